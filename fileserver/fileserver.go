// Package fileserver serves a directory tree over HTTP.
//
// Every error response goes through a single path. Not-found errors can be
// replaced by an injected NotFoundFunc; all other errors, and not-found
// errors the hook declines, get the default HTML error page.
package fileserver

import (
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/charmbracelet/log"
)

// NotFoundFunc writes a replacement for a not-found response. root is the
// served directory at the moment of the call. It reports whether it wrote
// the response; false means the default error page is sent instead.
type NotFoundFunc func(w http.ResponseWriter, r *http.Request, root string) bool

// Option configures a Handler.
type Option func(*Handler)

// WithNotFound sets the hook called for every 404.
func WithNotFound(fn NotFoundFunc) Option {
	return func(h *Handler) {
		h.notFound = fn
	}
}

// indexPages are tried in order when a directory is requested.
var indexPages = []string{"index.html", "index.htm"}

// Handler serves files below a root directory.
type Handler struct {
	root     atomic.Pointer[string]
	notFound NotFoundFunc
	logger   *log.Logger
}

// New returns a Handler serving root.
func New(root string, logger *log.Logger, opts ...Option) *Handler {
	h := &Handler{logger: logger}
	h.root.Store(&root)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Root returns the directory currently served.
func (h *Handler) Root() string {
	return *h.root.Load()
}

// SetRoot changes the served directory. Requests already running keep
// the root they started with.
func (h *Handler) SetRoot(root string) {
	h.root.Store(&root)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.sendError(w, r, http.StatusNotImplemented, "Unsupported method ("+r.Method+")")
		return
	}

	upath := r.URL.Path
	if strings.ContainsRune(upath, 0) {
		h.sendError(w, r, http.StatusBadRequest, "Bad request path")
		return
	}
	if !strings.HasPrefix(upath, "/") {
		upath = "/" + upath
	}
	// rooted clean path, ".." cannot climb above "/"
	name := path.Clean(upath)
	root := http.Dir(h.Root())

	f, err := root.Open(name)
	if err != nil {
		h.sendOpenError(w, r, err)
		return
	}
	defer f.Close()

	d, err := f.Stat()
	if err != nil {
		h.sendOpenError(w, r, err)
		return
	}

	if d.IsDir() {
		if !strings.HasSuffix(upath, "/") {
			h.redirectToDir(w, r, name)
			return
		}
		if h.serveIndex(w, r, root, name) {
			return
		}
		h.listDirectory(w, r, f, upath)
		return
	}

	if strings.HasSuffix(upath, "/") {
		h.sendError(w, r, http.StatusNotFound, "File not found")
		return
	}

	http.ServeContent(w, r, d.Name(), d.ModTime(), f)
}

func (h *Handler) serveIndex(w http.ResponseWriter, r *http.Request, root http.Dir, dir string) bool {
	for _, index := range indexPages {
		f, err := root.Open(path.Join(dir, index))
		if err != nil {
			continue
		}

		d, err := f.Stat()
		if err != nil || d.IsDir() {
			f.Close()
			continue
		}

		http.ServeContent(w, r, d.Name(), d.ModTime(), f)
		f.Close()
		return true
	}
	return false
}

func (h *Handler) redirectToDir(w http.ResponseWriter, r *http.Request, name string) {
	target := (&url.URL{Path: name + "/"}).EscapedPath()
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

func (h *Handler) sendOpenError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		h.sendError(w, r, http.StatusNotFound, "File not found")
	case errors.Is(err, fs.ErrPermission):
		h.sendError(w, r, http.StatusForbidden, "Permission denied")
	case errors.Is(err, fs.ErrInvalid), errors.Is(err, syscall.EINVAL):
		h.sendError(w, r, http.StatusBadRequest, "Bad request path")
	default:
		h.logger.Error("Failed to open file", "path", r.URL.Path, "err", err)
		h.sendError(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

// sendError is the only way an error response leaves the Handler.
func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, code int, message string) {
	h.logger.Debug("Sending error", "code", code, "path", r.URL.Path, "message", message)

	if code == http.StatusNotFound && h.notFound != nil {
		if h.notFound(w, r, h.Root()) {
			return
		}
	}
	writeErrorPage(w, r, code, message)
}
