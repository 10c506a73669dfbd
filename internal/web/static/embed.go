// Package static embeds the live dashboard served at the web root.
package static

import (
	"embed"
	"io/fs"
	"path"
	"strings"
)

//go:embed all:dist/*
var distFS embed.FS

// IndexFile is served for the web root and unknown dashboard pages.
const IndexFile = "index.html"

var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
}

// Asset returns an embedded dashboard file and its content type. name is a
// URL path; the leading slash is optional.
func Asset(name string) ([]byte, string, error) {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" {
		name = IndexFile
	}
	data, err := fs.ReadFile(distFS, path.Join("dist", name))
	if err != nil {
		return nil, "", err
	}
	contentType, ok := contentTypes[path.Ext(name)]
	if !ok {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}
