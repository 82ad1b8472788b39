package api

import (
	"errors"

	"github.com/valyala/fasthttp"

	"convodb/pkg/api/router"
	"convodb/pkg/ingest"
	"convodb/pkg/state/logger"
	"convodb/pkg/store/collection"
)

// writeError maps domain errors onto status codes.
func writeError(ctx *fasthttp.RequestCtx, err error) {
	status := fasthttp.StatusInternalServerError
	switch {
	case errors.Is(err, ingest.ErrUnauthenticated):
		status = fasthttp.StatusUnauthorized
	case errors.Is(err, ingest.ErrForbidden):
		status = fasthttp.StatusForbidden
	case errors.Is(err, ingest.ErrNotFound), errors.Is(err, collection.ErrNotFound):
		status = fasthttp.StatusNotFound
	case errors.Is(err, ingest.ErrEmptyBody), errors.Is(err, ingest.ErrInvalid):
		status = fasthttp.StatusBadRequest
	case errors.Is(err, collection.ErrDuplicateID):
		status = fasthttp.StatusConflict
	}
	if status == fasthttp.StatusInternalServerError {
		logger.Error("request_failed", "path", string(ctx.Path()), "error", err)
		router.WriteJSONError(ctx, status, "internal error")
		return
	}
	router.WriteJSONError(ctx, status, err.Error())
}

// payload reads a bounded JSON body into out. It writes the error response
// itself and reports false on failure.
func payload(ctx *fasthttp.RequestCtx, out any) bool {
	const maxPayloadSize = 100 << 10
	if len(ctx.PostBody()) > maxPayloadSize {
		router.WriteJSONError(ctx, fasthttp.StatusRequestEntityTooLarge, "request payload exceeds 100kb limit")
		return false
	}
	if err := router.DecodeBody(ctx, out); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func param(ctx *fasthttp.RequestCtx, name string) (string, bool) {
	v := router.PathParam(ctx, name)
	if v == "" {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "missing "+name)
		return "", false
	}
	return v, true
}
