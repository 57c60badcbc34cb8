package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// statusRecorder remembers what the handler sent.
type statusRecorder struct {
	http.ResponseWriter
	code    int
	written int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.code == 0 {
		s.code = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.code == 0 {
		s.code = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(p)
	s.written += int64(n)
	return n, err
}

// Logger emits one access line per request. Server errors log at error and
// client errors at warn. Successful hits on the quiet paths drop to debug,
// which keeps the display poll out of production logs.
func Logger(l zerolog.Logger, quiet ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.code == 0 {
				rec.code = http.StatusOK
			}

			l.WithLevel(accessLevel(rec.code, r.URL.Path, quiet)).
				Str("request_id", RequestIDFromContext(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Int("status", rec.code).
				Int64("bytes", rec.written).
				Dur("elapsed", time.Since(began)).
				Msg("http request")
		})
	}
}

func accessLevel(code int, path string, quiet []string) zerolog.Level {
	switch {
	case code >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case code >= http.StatusBadRequest:
		return zerolog.WarnLevel
	}
	for _, p := range quiet {
		if p == path {
			return zerolog.DebugLevel
		}
	}
	return zerolog.InfoLevel
}
