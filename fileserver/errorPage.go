package fileserver

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"
)

const htmlContentType = "text/html; charset=utf-8"

var errorTemplate = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Code}} {{.Status}}</title>
</head>
<body>
<h1>{{.Code}} {{.Status}}</h1>
<p>{{.Message}}</p>
{{- with .Explain}}
<p>{{.}}</p>
{{- end}}
</body>
</html>
`))

var explanations = map[int]string{
	http.StatusBadRequest:          "The request could not be understood by the server.",
	http.StatusForbidden:           "The server refuses to give access to this resource.",
	http.StatusNotFound:            "No file matches the requested path.",
	http.StatusInternalServerError: "The server failed while handling the request.",
	http.StatusNotImplemented:      "Only GET and HEAD requests are supported.",
}

type errorPage struct {
	Code    int
	Status  string
	Message string
	Explain string
}

// writeErrorPage writes the default error document for code.
func writeErrorPage(w http.ResponseWriter, r *http.Request, code int, message string) {
	page := errorPage{
		Code:    code,
		Status:  http.StatusText(code),
		Message: message,
		Explain: explanations[code],
	}
	if page.Message == "" {
		page.Message = page.Status
	}

	var body bytes.Buffer
	if err := errorTemplate.Execute(&body, page); err != nil {
		http.Error(w, page.Message, code)
		return
	}

	header := w.Header()
	header.Del("Content-Encoding")
	header.Set("Content-Type", htmlContentType)
	header.Set("X-Content-Type-Options", "nosniff")
	header.Set("Content-Length", strconv.Itoa(body.Len()))
	w.WriteHeader(code)

	if r.Method != http.MethodHead {
		_, _ = w.Write(body.Bytes())
	}
}
