package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"convodb/pkg/api/auth"
	"convodb/pkg/ingest"
	"convodb/pkg/models"
	"convodb/pkg/presence"
	"convodb/pkg/publish"
	"convodb/pkg/state"
	"convodb/pkg/store/collection"
	"convodb/pkg/store/db/storedb"
	"convodb/pkg/validation"
)

type fakeSweeper struct{ calls int }

func (f *fakeSweeper) RunImmediate(context.Context) (presence.SweepResult, error) {
	f.calls++
	return presence.SweepResult{Observing: 2, Typing: 1}, nil
}

type env struct {
	t       *testing.T
	handler fasthttp.RequestHandler
	tokens  *auth.Tokens
	sweeper *fakeSweeper
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := storedb.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	colls := collection.NewRegistry(store)
	svc, err := ingest.New(colls, ingest.Options{Rules: validation.Defaults()})
	require.NoError(t, err)

	tokens := auth.NewTokens("s3cret", "convodb", time.Minute)
	gw := auth.NewGateway(auth.Config{
		BackendKeys: auth.KeySet("back"),
		AdminKeys:   auth.KeySet("admin"),
	}, tokens)
	t.Cleanup(gw.Shutdown)

	sw := &fakeSweeper{}
	h := Handler(gw, Deps{
		Ingest:      svc,
		Sessions:    publish.NewServer(publish.NewRegistry()),
		Presence:    presence.NewTracker(colls.MustOpen(models.Participants)),
		Collections: colls,
		Sweeper:     sw,
		Ready:       store.Ready,
		DiskSpace:   func() (state.Space, error) { return state.Space{Total: 200, Available: 50}, nil },
		Version:     "test",
	})
	return &env{t: t, handler: h, tokens: tokens, sweeper: sw}
}

func (e *env) token(user string) string {
	raw, err := e.tokens.Issue(user, time.Hour)
	require.NoError(e.t, err)
	return raw
}

func (e *env) do(method, path string, headers map[string]string, body any) (int, map[string]any) {
	e.t.Helper()
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	for k, v := range headers {
		ctx.Request.Header.Set(k, v)
	}
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		ctx.Request.SetBody(b)
	}
	e.handler(ctx)
	out := map[string]any{}
	if len(ctx.Response.Body()) > 0 {
		require.NoError(e.t, json.Unmarshal(ctx.Response.Body(), &out), string(ctx.Response.Body()))
	}
	return ctx.Response.StatusCode(), out
}

func (e *env) as(user string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + e.token(user)}
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	status, body := e.do("GET", "/healthz", nil, nil)
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, "test", body["version"])

	status, _ = e.do("GET", "/readyz", nil, nil)
	assert.Equal(t, fasthttp.StatusOK, status)
}

func TestConversationFlow(t *testing.T) {
	e := newEnv(t)

	status, _ := e.do("POST", "/v1/users", map[string]string{"X-API-Key": "back"}, models.User{ID: "ann", Username: "ann"})
	require.Equal(t, fasthttp.StatusCreated, status)
	status, body := e.do("POST", "/v1/users", map[string]string{"X-API-Key": "back"}, models.User{ID: "ann", Username: "annie"})
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, false, body["created"])

	status, conv := e.do("POST", "/v1/conversations", e.as("ann"), conversationRequest{Name: "team", Members: []string{"bob"}})
	require.Equal(t, fasthttp.StatusCreated, status)
	convID, _ := conv["_id"].(string)
	require.NotEmpty(t, convID)

	status, msg := e.do("POST", "/v1/conversations/"+convID+"/messages", e.as("bob"), messageRequest{Body: "hi"})
	require.Equal(t, fasthttp.StatusCreated, status)
	msgID, _ := msg["_id"].(string)
	require.NotEmpty(t, msgID)

	status, body = e.do("POST", "/v1/messages/"+msgID+"/like", e.as("ann"), nil)
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, true, body["changed"])
	_, body = e.do("POST", "/v1/messages/"+msgID+"/like", e.as("ann"), nil)
	assert.Equal(t, false, body["changed"])

	_, body = e.do("POST", "/v1/messages/"+msgID+"/like/toggle", e.as("ann"), nil)
	assert.Equal(t, false, body["liked"])
	_, body = e.do("DELETE", "/v1/messages/"+msgID+"/like", e.as("ann"), nil)
	assert.Equal(t, false, body["changed"])

	status, body = e.do("POST", "/v1/messages/"+msgID+"/hide", e.as("bob"), nil)
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, true, body["changed"])

	status, body = e.do("POST", "/v1/conversations/"+convID+"/participants", e.as("ann"), participantRequest{UserID: "cat"})
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, true, body["added"])

	status, _ = e.do("POST", "/v1/conversations/"+convID+"/leave", e.as("cat"), nil)
	require.Equal(t, fasthttp.StatusOK, status)
}

func TestErrorMapping(t *testing.T) {
	e := newEnv(t)
	_, conv := e.do("POST", "/v1/conversations", e.as("ann"), conversationRequest{Name: "team"})
	convID, _ := conv["_id"].(string)

	tests := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		body    any
		status  int
	}{
		{"outsider posts", "POST", "/v1/conversations/" + convID + "/messages", e.as("eve"), messageRequest{Body: "x"}, fasthttp.StatusForbidden},
		{"empty body", "POST", "/v1/conversations/" + convID + "/messages", e.as("ann"), messageRequest{}, fasthttp.StatusBadRequest},
		{"unknown message", "POST", "/v1/messages/nope/like", e.as("ann"), nil, fasthttp.StatusNotFound},
		{"no user behind key", "POST", "/v1/messages/nope/like", map[string]string{"X-API-Key": "back"}, nil, fasthttp.StatusUnauthorized},
		{"bad json", "POST", "/v1/conversations", e.as("ann"), json.RawMessage(`"x"`), fasthttp.StatusBadRequest},
		{"wrong method", "GET", "/v1/conversations", e.as("ann"), nil, fasthttp.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := e.do(tt.method, tt.path, tt.headers, tt.body)
			assert.Equal(t, tt.status, status, body)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAdminRoutes(t *testing.T) {
	e := newEnv(t)
	admin := map[string]string{"X-API-Key": "admin"}

	status, body := e.do("GET", "/admin/stats", admin, nil)
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, body, "live")
	assert.Contains(t, body, "presence")
	fs, ok := body["filesystem"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(75), fs["used_pct"])

	status, body = e.do("POST", "/admin/presence/sweep", admin, nil)
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, float64(2), body["observing"])
	assert.Equal(t, 1, e.sweeper.calls)

	status, _ = e.do("GET", "/admin/stats", e.as("ann"), nil)
	assert.Equal(t, fasthttp.StatusForbidden, status)
}
