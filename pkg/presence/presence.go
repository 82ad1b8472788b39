// Package presence keeps the viewing and typing state of participants in
// step with live subscriptions.
package presence

import (
	"context"
	"fmt"
	"sync"

	"convodb/pkg/access"
	"convodb/pkg/metrics"
	"convodb/pkg/models"
	"convodb/pkg/state/logger"
	"convodb/pkg/store/collection"
	"convodb/pkg/store/docs"
	"convodb/pkg/store/selector"
)

// Sub is the part of a live subscription presence needs.
type Sub interface {
	UserID() string
	SessionID() string
	OnStop(fn func())
}

type viewKey struct {
	conversation string
	user         string
	session      string
}

type typeKey struct {
	conversation string
	user         string
}

// Tracker writes presence into the participants collection. Viewers are
// counted per session so that two views from one client pull the session id
// only when the last one ends. Typing is last writer wins: any stop clears
// the flag. live only tells Sweep which typing flags a subscription holds.
type Tracker struct {
	participants *collection.Collection

	mu      sync.Mutex
	viewing map[viewKey]int
	live    map[typeKey]map[*typer]struct{}
}

// typer is one live typing subscription.
type typer struct{ session string }

func NewTracker(participants *collection.Collection) *Tracker {
	return &Tracker{
		participants: participants,
		viewing:      make(map[viewKey]int),
		live:         make(map[typeKey]map[*typer]struct{}),
	}
}

// View marks the caller as looking at conversationID: their session joins
// the observing set and the conversation is read. Both undo when sub stops.
// Anonymous callers are ignored.
func (t *Tracker) View(sub Sub, conversationID string) error {
	user := sub.UserID()
	if user == "" || conversationID == "" {
		return nil
	}
	k := viewKey{conversationID, user, sub.SessionID()}

	t.mu.Lock()
	t.viewing[k]++
	_, err := t.participants.Update(access.Membership(user, conversationID), collection.Modifier{
		AddToSet: map[string]any{models.FieldObserving: k.session},
		Set:      map[string]any{models.FieldRead: true},
	}, false)
	if err != nil {
		t.viewing[k]--
		if t.viewing[k] <= 0 {
			delete(t.viewing, k)
		}
		t.mu.Unlock()
		return fmt.Errorf("presence view: %w", err)
	}
	t.mu.Unlock()

	var once sync.Once
	sub.OnStop(func() { once.Do(func() { t.unview(k) }) })
	logger.Debug("presence_viewing", "conversation", conversationID, "user", user, "session", k.session)
	return nil
}

func (t *Tracker) unview(k viewKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.viewing[k]--
	if t.viewing[k] > 0 {
		return
	}
	delete(t.viewing, k)
	if _, err := t.participants.Update(access.Membership(k.user, k.conversation), collection.Modifier{
		Pull: map[string]any{models.FieldObserving: k.session},
	}, false); err != nil {
		logger.Error("presence_unview_failed", "conversation", k.conversation, "user", k.user, "session", k.session, "error", err)
	}
}

// Typing sets the caller's typing flag. When sub stops the flag is set back
// to false, even if another session of the same user still types.
func (t *Tracker) Typing(sub Sub, conversationID string) error {
	user := sub.UserID()
	if user == "" || conversationID == "" {
		return nil
	}
	k := typeKey{conversationID, user}
	ty := &typer{session: sub.SessionID()}

	t.mu.Lock()
	if err := t.setTyping(k, true); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("presence typing: %w", err)
	}
	if t.live[k] == nil {
		t.live[k] = make(map[*typer]struct{})
	}
	t.live[k][ty] = struct{}{}
	t.mu.Unlock()

	var once sync.Once
	sub.OnStop(func() { once.Do(func() { t.untype(k, ty) }) })
	return nil
}

func (t *Tracker) untype(k typeKey, ty *typer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.live[k], ty)
	if len(t.live[k]) == 0 {
		delete(t.live, k)
	}
	if err := t.setTyping(k, false); err != nil {
		logger.Error("presence_untype_failed", "conversation", k.conversation, "user", k.user, "error", err)
	}
}

func (t *Tracker) setTyping(k typeKey, on bool) error {
	_, err := t.participants.Update(access.Membership(k.user, k.conversation), collection.Modifier{
		Set: map[string]any{models.FieldTyping: on},
	}, false)
	return err
}

// SweepResult counts what a sweep cleared.
type SweepResult struct {
	Observing int `json:"observing"`
	Typing    int `json:"typing"`
}

// Sweep removes presence no live subscription in this process holds: session
// ids left in observing sets and typing flags left on. Such state is what a
// crashed process leaves behind.
func (t *Tracker) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	t.mu.Lock()
	defer t.mu.Unlock()

	observed := t.participants.Find(selector.Where(selector.NotEmpty(models.FieldObserving)), selector.Options{})
	for _, d := range observed {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		var p models.Participant
		if err := docs.Decode(d, &p); err != nil {
			logger.Warn("presence_sweep_decode_failed", "id", d.ID(), "error", err)
			continue
		}
		for _, session := range p.Observing {
			if t.viewing[viewKey{p.ConversationID, p.UserID, session}] > 0 {
				continue
			}
			n, err := t.participants.Update(selector.Where(selector.ID(p.ID)), collection.Modifier{
				Pull: map[string]any{models.FieldObserving: session},
			}, false)
			if err != nil {
				metrics.PresenceSweeps.WithLabelValues("error").Inc()
				return res, fmt.Errorf("sweep observing %s: %w", p.ID, err)
			}
			res.Observing += n
		}
	}

	typing := t.participants.Find(selector.Where(selector.Eq(models.FieldTyping, true)), selector.Options{})
	for _, d := range typing {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		conv, _ := d[models.FieldConversationID].(string)
		user, _ := d[models.FieldUserID].(string)
		if len(t.live[typeKey{conv, user}]) > 0 {
			continue
		}
		n, err := t.participants.Update(selector.Where(selector.ID(d.ID())), collection.Modifier{
			Set: map[string]any{models.FieldTyping: false},
		}, false)
		if err != nil {
			metrics.PresenceSweeps.WithLabelValues("error").Inc()
			return res, fmt.Errorf("sweep typing %s: %w", d.ID(), err)
		}
		res.Typing += n
	}

	metrics.PresenceSweeps.WithLabelValues("ok").Inc()
	metrics.PresenceCleared.Add(float64(res.Observing + res.Typing))
	if res.Observing+res.Typing > 0 {
		logger.Info("presence_sweep_cleared", "observing", res.Observing, "typing", res.Typing)
	}
	return res, nil
}

// Stats reports the in-memory presence the tracker holds.
func (t *Tracker) Stats() (viewers, typers int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.viewing), len(t.live)
}
