package router

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"reflect"
	"runtime"

	"github.com/go-chi/chi/v5"
)

// Error is an error the router knows how to render as a response body.
type Error interface {
	error
	StatusCode() int
	Encode(w io.Writer) error
}

// JsonError is the canonical Error, rendered as {"code": ..., "error": ...}.
type JsonError struct {
	Code int    `json:"code"`
	Err  string `json:"error"`
}

func NewJsonError(code int, msg string) JsonError {
	return JsonError{Code: code, Err: msg}
}

func (e JsonError) StatusCode() int          { return e.Code }
func (e JsonError) Error() string            { return e.Err }
func (e JsonError) Encode(w io.Writer) error { return json.NewEncoder(w).Encode(e) }

var DefaultError = NewJsonError(http.StatusInternalServerError, "internal server error")

// Router is a wrapper around chi.Router that provides error handling.
// Handlers can return an error that will then get mapped to an error
// response. Error mappers can be registered for sentinel errors to
// provide custom error responses.
type Router struct {
	chi.Router
	errorMappers []errorMapping
	defaultError JsonError
	logger       *slog.Logger
}

type errorMapping struct {
	target error
	fn     ErrorMapper
}

func New(opts ...RouterOption) *Router {
	return newRouter(chi.NewRouter(), opts...)
}

type RouterOption func(*Router)

func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

func WithDefaultError(err JsonError) RouterOption {
	return func(r *Router) {
		r.defaultError = err
	}
}

func newRouter(chiRouter chi.Router, opts ...RouterOption) *Router {
	router := &Router{
		Router:       chiRouter,
		defaultError: DefaultError,
		logger:       slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}

	for _, opt := range opts {
		opt(router)
	}
	return router
}

// HandlerFunc is a function that handles an HTTP request and returns an
// error. When the handler fails it should not write anything to the
// response writer; it returns an error that is mapped to an error
// response instead.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// ErrorMapper is a function that maps go errors to API errors.
type ErrorMapper func(error) Error

func (a *Router) RegisterErrorMapper(target error, fn ErrorMapper) {
	a.errorMappers = append(a.errorMappers, errorMapping{target: target, fn: fn})
}

// mapError maps a go error to an API error.
// The mapping works as follows:
//   - if the error is already an Error it is returned as is.
//   - otherwise the first registered mapper whose target matches via
//     errors.Is is applied.
//   - if no mapper matches the default error is returned.
func (a *Router) mapError(err error) Error {
	var apiErr JsonError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	for _, m := range a.errorMappers {
		if errors.Is(err, m.target) {
			return m.fn(err)
		}
	}
	return a.defaultError
}

func (a *Router) handleWithErr(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err != nil {
			handlerFn := runtime.FuncForPC(reflect.ValueOf(h).Pointer())
			a.logger.Error(err.Error(), slog.String("handler", handlerFn.Name()))
			resError := a.mapError(err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(resError.StatusCode())
			if err := resError.Encode(w); err != nil {
				a.logger.Error("encoding error response", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *Router) Get(path string, h HandlerFunc) {
	a.Router.Get(path, a.handleWithErr(h))
}

func (a *Router) Post(path string, h HandlerFunc) {
	a.Router.Post(path, a.handleWithErr(h))
}

func (a *Router) Route(path string, f func(r *Router)) {
	a.Router.Route(path, func(r chi.Router) {
		f(newRouter(r))
	})
}
