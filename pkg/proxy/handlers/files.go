package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// FilesHandler serves localized images from a directory. Directory
// listings and dot files are never served.
type FilesHandler struct {
	dir string
}

// NewFilesHandler creates a handler serving files from dir. Mount it with
// http.StripPrefix so the remaining path is the file name.
func NewFilesHandler(dir string) *FilesHandler {
	return &FilesHandler{dir: dir}
}

// ServeHTTP implements http.Handler.
func (h *FilesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")
	if name == "" || strings.Contains(name, "/") || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(h.dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, path)
}
