// Package notfound serves the site's own 404.html for missing pages,
// the way static hosting platforms do.
package notfound

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
)

// PageName is the file looked up at the top of the served directory.
const PageName = "404.html"

// Page writes the fallback document.
type Page struct {
	logger *log.Logger
	served func()
}

// Option configures a Page.
type Option func(*Page)

// WithServed registers a function called each time the fallback
// document is sent.
func WithServed(fn func()) Option {
	return func(p *Page) {
		p.served = fn
	}
}

// New returns a Page.
func New(logger *log.Logger, opts ...Option) *Page {
	p := &Page{logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Serve answers with status 404 and root/404.html as the body. The file
// is read on every call. It returns false, writing nothing, if there is
// no such file or it cannot be read.
// Serve is a fileserver.NotFoundFunc.
func (p *Page) Serve(w http.ResponseWriter, r *http.Request, root string) bool {
	name := filepath.Join(root, PageName)

	body, err := os.ReadFile(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("Failed to read fallback page", "path", name, "err", err)
		}
		return false
	}

	header := w.Header()
	header.Set("Content-Type", "text/html; charset=utf-8")
	header.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusNotFound)

	if r.Method != http.MethodHead {
		if _, err := w.Write(body); err != nil {
			p.logger.Debug("Failed to write fallback page", "path", r.URL.Path, "err", err)
		}
	}

	if p.served != nil {
		p.served()
	}
	return true
}
