package timer

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Saver receives the outcome of a request once the response is written.
type Saver func(req *http.Request, status int, size int64, d time.Duration)

// recorder remembers the status code and the number of body bytes
// written through it.
type recorder struct {
	http.ResponseWriter
	status int
	size   int64
}

func (rec *recorder) WriteHeader(code int) {
	if rec.status == 0 && code >= http.StatusOK {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.size += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rec *recorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// Track wraps handler and calls saver after each request with the
// status, the body size and the time spent in handler.
func Track(handler http.Handler, saver Saver) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &recorder{ResponseWriter: rw}
		handler.ServeHTTP(rec, req)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		saver(req, status, rec.size, time.Since(start))
	})
}

// Savers calls every saver in order.
func Savers(savers ...Saver) Saver {
	return func(req *http.Request, status int, size int64, d time.Duration) {
		for _, s := range savers {
			s(req, status, size, d)
		}
	}
}

// LogSaver writes an access log line per request. Server errors are
// logged as errors. Client errors are warnings when verbose and info
// otherwise.
func LogSaver(logger *log.Logger, verbose bool) Saver {
	return func(req *http.Request, status int, size int64, d time.Duration) {
		msg := req.Method + " " + req.URL.RequestURI()
		keyvals := []interface{}{
			"status", status,
			"size", size,
			"time", d,
			"remote", req.RemoteAddr,
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(msg, keyvals...)
		case status >= http.StatusBadRequest && verbose:
			logger.Warn(msg, keyvals...)
		default:
			logger.Info(msg, keyvals...)
		}
	}
}
