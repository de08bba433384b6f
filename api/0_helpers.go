package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fulldump/box"

	"github.com/fulldump/itempicker/batchqueue"
	"github.com/fulldump/itempicker/database"
	"github.com/fulldump/itempicker/itemstore"
	"github.com/fulldump/itempicker/service"
)

var ErrUnavailable = errors.New("temporary unavailable")
var ErrTooManyRequests = errors.New("too many requests")

type PrettyError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

func (p PrettyError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"error": struct {
			Message     string `json:"message"`
			Description string `json:"description"`
		}{
			p.Message,
			p.Description,
		},
	})
}

func (p PrettyError) MarshalTo(w io.Writer) error {
	return json.NewEncoder(w).Encode(p)
}

func InterceptorUnavailable(db *database.Database) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {

			status := db.GetStatus()
			if status == database.StatusOpening {
				box.SetError(ctx, fmt.Errorf("%w: opening", ErrUnavailable))
				return
			}
			if status == database.StatusClosing {
				box.SetError(ctx, fmt.Errorf("%w: closing", ErrUnavailable))
				return
			}
			next(ctx)
		}
	}
}

// errorStatus maps an error to its http status and a human description.
func errorStatus(ctx context.Context, err error) (int, string) {

	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, itemstore.ErrInvalidID):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, service.ErrItemAlreadyExists):
		return http.StatusConflict, "Item already exists"
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, "Rate limit exceeded, retry later"
	case errors.Is(err, ErrUnavailable), errors.Is(err, batchqueue.ErrClosed):
		return http.StatusServiceUnavailable, "Service is not accepting requests right now"
	case err == box.ErrResourceNotFound:
		return http.StatusNotFound, fmt.Sprintf("resource '%s' not found", box.GetRequest(ctx).URL.String())
	case err == box.ErrMethodNotAllowed:
		return http.StatusMethodNotAllowed, fmt.Sprintf("method '%s' not allowed", box.GetRequest(ctx).Method)
	}

	var syntaxError *json.SyntaxError
	if errors.As(err, &syntaxError) {
		return http.StatusBadRequest, "Malformed JSON"
	}

	return http.StatusInternalServerError, "Unexpected error"
}

func PrettyErrorInterceptor(next box.H) box.H {
	return func(ctx context.Context) {

		next(ctx)

		err := box.GetError(ctx)
		if err == nil {
			return
		}

		status, description := errorStatus(ctx, err)

		w := box.GetResponse(ctx)
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "1")
		}
		w.WriteHeader(status)
		PrettyError{
			Message:     err.Error(),
			Description: description,
		}.MarshalTo(w)
	}
}
