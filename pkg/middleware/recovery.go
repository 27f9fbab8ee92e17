package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/auth"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/httputil"
)

// Recovery turns a handler panic into a 500 problem response. Mounted below
// Auth on a page route it also logs the page and the calling user. A panic
// after the response has started or the connection was hijacked for a
// websocket only ends the request.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := false
			tracked := httpsnoop.Wrap(w, httpsnoop.Hooks{
				WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
					return func(code int) {
						started = true
						next(code)
					}
				},
				Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
					return func(b []byte) (int, error) {
						started = true
						return next(b)
					}
				},
				Hijack: func(next httpsnoop.HijackFunc) httpsnoop.HijackFunc {
					return func() (net.Conn, *bufio.ReadWriter, error) {
						started = true
						return next()
					}
				},
			})

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				attrs := []any{
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"response_started", started,
				}
				if pageID := mux.Vars(r)["pageId"]; pageID != "" {
					attrs = append(attrs, "page_id", pageID)
				}
				if id, ok := auth.FromContext(r.Context()); ok {
					attrs = append(attrs, "user_id", id.UserID)
				}
				attrs = append(attrs, "stack", string(debug.Stack()))
				logger.Error("handler panicked", attrs...)

				if !started {
					httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(tracked, r)
		})
	}
}
