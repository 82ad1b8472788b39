package router

import (
	"encoding/json"
	"fmt"

	"github.com/valyala/fasthttp"
)

// WriteJSON writes v as a JSON response with status.
func WriteJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetStatusCode(status)
	ctx.Response.Header.Set("Content-Type", "application/json")
	_ = json.NewEncoder(ctx).Encode(v)
}

// WriteJSONError writes a JSON error response.
func WriteJSONError(ctx *fasthttp.RequestCtx, status int, message string) {
	WriteJSON(ctx, status, map[string]string{"error": message})
}

// WriteJSONOk writes a 200 JSON object.
func WriteJSONOk(ctx *fasthttp.RequestCtx, data map[string]any) {
	WriteJSON(ctx, fasthttp.StatusOK, data)
}

// PathParam returns a {name} path segment of the matched route.
func PathParam(ctx *fasthttp.RequestCtx, name string) string {
	if v := ctx.UserValue(name); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

// DecodeBody unmarshals the request body into out. An empty body leaves out
// untouched.
func DecodeBody(ctx *fasthttp.RequestCtx, out any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}
