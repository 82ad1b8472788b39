package router

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func request(r *Router, method, path string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	r.Handler(ctx)
	return ctx
}

func TestRouteParams(t *testing.T) {
	r := New()
	r.POST("/v1/messages/{id}/like", func(ctx *fasthttp.RequestCtx) {
		WriteJSONOk(ctx, map[string]any{"id": PathParam(ctx, "id")})
	})
	r.POST("/v1/messages/{id}/like/toggle", func(ctx *fasthttp.RequestCtx) {
		WriteJSONOk(ctx, map[string]any{"toggle": PathParam(ctx, "id")})
	})

	ctx := request(r, "POST", "/v1/messages/m1/like")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var body map[string]string
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	assert.Equal(t, "m1", body["id"])

	ctx = request(r, "POST", "/v1/messages/m2/like/toggle/")
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	assert.Equal(t, "m2", body["toggle"])
}

func TestMethodNotAllowedAndNotFound(t *testing.T) {
	r := New()
	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) { WriteJSONOk(ctx, map[string]any{"status": "ok"}) })
	r.DELETE("/v1/messages/{id}/like", func(ctx *fasthttp.RequestCtx) {})

	ctx := request(r, "POST", "/healthz")
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode())
	assert.Equal(t, "GET", string(ctx.Response.Header.Peek("Allow")))

	ctx = request(r, "GET", "/nope")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())

	r.NotFound(func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusTeapot) })
	ctx = request(r, "GET", "/nope")
	assert.Equal(t, fasthttp.StatusTeapot, ctx.Response.StatusCode())

	assert.Equal(t, []string{"DELETE /v1/messages/{id}/like", "GET /healthz"}, r.Routes())
}

func TestDecodeBody(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	var out struct{ Body string }
	require.NoError(t, DecodeBody(ctx, &out))

	ctx.Request.SetBodyString(`{"body":"hi"}`)
	require.NoError(t, DecodeBody(ctx, &out))
	assert.Equal(t, "hi", out.Body)

	ctx.Request.SetBodyString(`{`)
	assert.Error(t, DecodeBody(ctx, &out))
}
