// Package fault contains panics so one failing goroutine or request cannot take the
// process down.
package fault

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// ErrPanic is wrapped by errors returned from Guard for a recovered panic.
var ErrPanic = errors.New("panic recovered")

// Recover logs a recovered panic. Use it as `defer fault.Recover(logger, "name")`.
func Recover(logger zerolog.Logger, component string) {
	if r := recover(); r != nil {
		logPanic(logger, component, r)
	}
}

// Guard runs fn and turns a panic into an error wrapping ErrPanic, for goroutines
// whose result someone waits on.
func Guard(logger zerolog.Logger, component string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger, component, r)
			err = fmt.Errorf("%s: %w: %v", component, ErrPanic, r)
		}
	}()
	return fn()
}

func logPanic(logger zerolog.Logger, component string, r interface{}) {
	logger.Error().
		Str("component", component).
		Str("panic", fmt.Sprint(r)).
		Bytes("stack", debug.Stack()).
		Msg("unhandled fault recovered")
}

// Go runs fn in a new goroutine with panic recovery.
func Go(logger zerolog.Logger, component string, fn func()) {
	go func() {
		defer Recover(logger, component)
		fn()
	}()
}

// Middleware recovers handler panics and answers with a generic 500 JSON body.
func Middleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("panic", fmt.Sprint(rec)).
					Bytes("stack", debug.Stack()).
					Msg("handler panic recovered")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal server error"}`))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
