package auth

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/valyala/fasthttp"

	"convodb/pkg/api/router"
	"convodb/pkg/state/logger"
)

// Gateway authenticates REST requests and resolves live connections.
type Gateway struct {
	cfg      Config
	tokens   *Tokens
	limiters *limiterPool
}

func NewGateway(cfg Config, tokens *Tokens) *Gateway {
	return &Gateway{cfg: cfg, tokens: tokens, limiters: newLimiterPool(cfg.RPS, cfg.Burst)}
}

// Shutdown stops the limiter cleanup loop.
func (g *Gateway) Shutdown() { g.limiters.Shutdown() }

// Middleware wraps next with CORS, IP filtering, key and token checks, route
// restrictions, rate limiting and signed user resolution, in that order.
func (g *Gateway) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		logger.Debug("http_request", "method", string(ctx.Method()), "path", path, "remote", ctx.RemoteAddr().String())

		origin := string(ctx.Request.Header.Peek("Origin"))
		if origin != "" && originAllowed(origin, g.cfg.AllowedOrigins) {
			h := &ctx.Response.Header
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			h.Set("Access-Control-Max-Age", "600")
			h.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key,X-User-ID,X-User-Signature")
		}
		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		if len(g.cfg.IPWhitelist) > 0 {
			ip := clientIP(ctx.RemoteAddr().String())
			if !ipWhitelisted(ip, g.cfg.IPWhitelist) {
				logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", path)
				router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
				return
			}
		}

		if publicPath(ctx) {
			next(ctx)
			return
		}

		role, limitKey, err := g.resolve(ctx)
		if err != nil {
			logger.Warn("request_unauthorized", "path", path, "remote", ctx.RemoteAddr().String(), "error", err)
			router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "unauthorized")
			return
		}
		ctx.SetUserValue(userValueRole, role)

		if msg := restricted(role, path); msg != "" {
			logger.Warn("request_forbidden", "role", role.String(), "path", path)
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, msg)
			return
		}

		if !g.limiters.Allow(limitKey) {
			logger.Warn("rate_limited", "role", role.String(), "path", path)
			router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if err := g.resolveSigned(ctx, role); err != nil {
			logger.Warn("invalid_signature", "path", path, "remote", ctx.RemoteAddr().String(), "error", err)
			router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, err.Error())
			return
		}
		next(ctx)
	}
}

// resolve finds the caller's role from an API key or a bearer user token.
// The returned key buckets the caller for rate limiting.
func (g *Gateway) resolve(ctx *fasthttp.RequestCtx) (Role, string, error) {
	apiKey := strings.TrimSpace(string(ctx.Request.Header.Peek("X-API-Key")))
	token := bearer(string(ctx.Request.Header.Peek("Authorization")))
	if apiKey == "" && token != "" && roleForKey(g.cfg, token) != RoleUnauth {
		apiKey, token = token, ""
	}

	role := RoleUnauth
	if apiKey != "" {
		if role = roleForKey(g.cfg, apiKey); role == RoleUnauth {
			return RoleUnauth, "", errors.New("unknown api key")
		}
	}
	if token != "" {
		userID, err := g.tokens.Parse(token)
		if err != nil {
			return RoleUnauth, "", err
		}
		ctx.SetUserValue(userValueUser, userID)
		if role == RoleUnauth {
			return RoleUser, "user:" + userID, nil
		}
	}
	if role == RoleUnauth {
		return RoleUnauth, "", errors.New("missing credentials")
	}
	return role, "key:" + apiKey, nil
}

var ErrBadSignature = errors.New("invalid signature")

// resolveSigned applies X-User-ID / X-User-Signature. Backend keys may name
// a user without signing; frontend keys must sign.
func (g *Gateway) resolveSigned(ctx *fasthttp.RequestCtx, role Role) error {
	userID := strings.TrimSpace(string(ctx.Request.Header.Peek("X-User-ID")))
	sig := strings.TrimSpace(string(ctx.Request.Header.Peek("X-User-Signature")))
	if userID == "" && sig == "" {
		return nil
	}
	if len(userID) > maxUserIDLen {
		return errors.New("user id too long")
	}
	if current := UserID(ctx); current != "" && userID != "" && current != userID {
		return errors.New("user mismatch")
	}
	switch {
	case sig != "":
		if !VerifyHMACSignature(userID, sig, g.cfg.SigningKeys) {
			return ErrBadSignature
		}
	case role == RoleBackend:
	default:
		return errors.New("missing signature headers")
	}
	ctx.SetUserValue(userValueUser, userID)
	return nil
}

// restricted returns a reason when role may not call path.
func restricted(role Role, path string) string {
	admin := strings.HasPrefix(path, "/admin")
	switch {
	case role == RoleAdmin && !admin:
		return "admin api keys may only access /admin routes"
	case role != RoleAdmin && admin:
		return "admin routes require an admin api key"
	case role != RoleBackend && strings.HasPrefix(path, "/v1/users"):
		return "user registration requires a backend api key"
	}
	return ""
}

// ResolveHTTP identifies the user of a live connection from a bearer token,
// a ?token= query parameter or a signed ?user=&sig= pair. No credentials is
// an anonymous connection, not an error.
func (g *Gateway) ResolveHTTP(r *http.Request) (string, error) {
	q := r.URL.Query()
	token := bearer(r.Header.Get("Authorization"))
	if token == "" {
		token = q.Get("token")
	}
	if token != "" {
		return g.tokens.Parse(token)
	}
	userID := r.Header.Get("X-User-ID")
	sig := r.Header.Get("X-User-Signature")
	if userID == "" {
		userID, sig = q.Get("user"), q.Get("sig")
	}
	if userID == "" {
		return "", nil
	}
	if !VerifyHMACSignature(userID, sig, g.cfg.SigningKeys) {
		return "", ErrBadSignature
	}
	return userID, nil
}

// AllowOrigin is the websocket origin check.
func (g *Gateway) AllowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || originAllowed(origin, g.cfg.AllowedOrigins)
}

func clientIP(addr string) string {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return h
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}

func publicPath(ctx *fasthttp.RequestCtx) bool {
	path := string(ctx.Path())
	return (path == "/healthz" || path == "/readyz") && string(ctx.Method()) == fasthttp.MethodGet
}
