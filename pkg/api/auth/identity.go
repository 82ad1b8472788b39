package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/valyala/fasthttp"
)

// Role is the privilege level the API key (or token) grants.
type Role int

const (
	RoleUnauth Role = iota
	RoleUser
	RoleFrontend
	RoleBackend
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleFrontend:
		return "frontend"
	case RoleBackend:
		return "backend"
	case RoleAdmin:
		return "admin"
	default:
		return "unauth"
	}
}

const (
	userValueUser = "user"
	userValueRole = "role"

	maxUserIDLen = 128
)

// Config drives the request gateway.
type Config struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	FrontendKeys   map[string]struct{}
	BackendKeys    map[string]struct{}
	AdminKeys      map[string]struct{}
	// SigningKeys verify X-User-Signature headers.
	SigningKeys map[string]struct{}
}

// KeySet builds the map form used by Config from a list.
func KeySet(keys ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out[k] = struct{}{}
		}
	}
	return out
}

// CreateHMACSignature signs userID with key.
func CreateHMACSignature(userID, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSignature reports whether signature was made for userID by any of
// keys.
func VerifyHMACSignature(userID, signature string, keys map[string]struct{}) bool {
	if userID == "" || signature == "" {
		return false
	}
	for k := range keys {
		expected := CreateHMACSignature(userID, k)
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return true
		}
	}
	return false
}

// UserID returns the authenticated user of the request, "" when none.
func UserID(ctx *fasthttp.RequestCtx) string {
	if v, ok := ctx.UserValue(userValueUser).(string); ok {
		return v
	}
	return ""
}

// RoleOf returns the role the gateway resolved for the request.
func RoleOf(ctx *fasthttp.RequestCtx) Role {
	if v, ok := ctx.UserValue(userValueRole).(Role); ok {
		return v
	}
	return RoleUnauth
}

func roleForKey(cfg Config, key string) Role {
	if _, ok := cfg.AdminKeys[key]; ok {
		return RoleAdmin
	}
	if _, ok := cfg.BackendKeys[key]; ok {
		return RoleBackend
	}
	if _, ok := cfg.FrontendKeys[key]; ok {
		return RoleFrontend
	}
	return RoleUnauth
}

func bearer(header string) string {
	parts := strings.Fields(header)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}
