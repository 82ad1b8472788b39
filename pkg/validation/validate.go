package validation

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"convodb/pkg/models"
)

var ErrInvalid = errors.New("validation failed")

// Rules bound what clients may write. Zero values disable a check.
type Rules struct {
	MaxBodyLen   int
	MaxNameLen   int
	MaxMembers   int
	MessageTypes []string
}

// Defaults are applied when the configuration leaves limits unset.
func Defaults() Rules {
	return Rules{MaxBodyLen: 16 * 1024, MaxNameLen: 200, MaxMembers: 256}
}

// Message checks a message before it is inserted.
func (r Rules) Message(m models.Message) error {
	var errs []string
	if strings.TrimSpace(m.Body) == "" {
		errs = append(errs, "body is required")
	}
	if m.ConversationID == "" {
		errs = append(errs, "conversationId is required")
	}
	if r.MaxBodyLen > 0 && utf8.RuneCountInString(m.Body) > r.MaxBodyLen {
		errs = append(errs, fmt.Sprintf("max length exceeded at body: %d > %d", utf8.RuneCountInString(m.Body), r.MaxBodyLen))
	}
	if m.MessageType != "" && len(r.MessageTypes) > 0 && !slices.Contains(r.MessageTypes, m.MessageType) {
		errs = append(errs, fmt.Sprintf("invalid enum at messageType: %s", m.MessageType))
	}
	return join(errs)
}

// Conversation checks a new conversation and its member list.
func (r Rules) Conversation(name string, members []string) error {
	var errs []string
	if r.MaxNameLen > 0 && utf8.RuneCountInString(name) > r.MaxNameLen {
		errs = append(errs, fmt.Sprintf("max length exceeded at name: %d > %d", utf8.RuneCountInString(name), r.MaxNameLen))
	}
	if r.MaxMembers > 0 && len(members) > r.MaxMembers {
		errs = append(errs, fmt.Sprintf("too many members: %d > %d", len(members), r.MaxMembers))
	}
	for _, m := range members {
		if strings.TrimSpace(m) == "" {
			errs = append(errs, "member ids must be non-empty")
			break
		}
	}
	return join(errs)
}

// User checks a user registration.
func (r Rules) User(u models.User) error {
	var errs []string
	if u.ID == "" {
		errs = append(errs, "id is required")
	}
	if strings.TrimSpace(u.Username) == "" {
		errs = append(errs, "username is required")
	}
	return join(errs)
}

func join(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
}
