package fileserver

import (
	"bytes"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Directory listing for {{.Path}}</title>
</head>
<body>
<h1>Directory listing for {{.Path}}</h1>
<hr>
<ul>
{{- range .Entries}}
<li><a href="{{.Href}}">{{.Name}}</a></li>
{{- end}}
</ul>
<hr>
</body>
</html>
`))

type listingEntry struct {
	Name string
	Href string
}

type listing struct {
	Path    string
	Entries []listingEntry
}

func (h *Handler) listDirectory(w http.ResponseWriter, r *http.Request, dir http.File, upath string) {
	infos, err := dir.Readdir(-1)
	if err != nil {
		h.logger.Debug("Failed to read directory", "path", upath, "err", err)
		h.sendError(w, r, http.StatusNotFound, "No permission to list directory")
		return
	}
	sort.Slice(infos, func(i, j int) bool {
		return strings.ToLower(infos[i].Name()) < strings.ToLower(infos[j].Name())
	})

	page := listing{
		Path:    upath,
		Entries: make([]listingEntry, 0, len(infos)),
	}
	for _, info := range infos {
		name := info.Name()
		display := name
		switch {
		case info.IsDir():
			name += "/"
			display += "/"
		case info.Mode()&fs.ModeSymlink != 0:
			display += "@"
		}
		// a URL with a colon in the first segment would read as a scheme
		href := url.URL{Path: name}
		page.Entries = append(page.Entries, listingEntry{Name: display, Href: href.String()})
	}

	var body bytes.Buffer
	if err := listingTemplate.Execute(&body, page); err != nil {
		h.logger.Error("Failed to render directory listing", "path", upath, "err", err)
		h.sendError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	header := w.Header()
	header.Set("Content-Type", htmlContentType)
	header.Set("Content-Length", strconv.Itoa(body.Len()))
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		_, _ = w.Write(body.Bytes())
	}
}
