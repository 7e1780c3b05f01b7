package server

import (
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"taskdeck/internal/upload"
)

// registerUploads wires file transport outside huma: multipart in, raw
// bytes out. Uploads are authenticated through the API base path; download
// serves stored files at their reference path.
func registerUploads(r chi.Router, basePath string, store *upload.Store) {
	if store == nil {
		return
	}
	r.Post(path.Join(basePath, "uploads"), func(w http.ResponseWriter, req *http.Request) {
		if err := req.ParseMultipartForm(32 << 20); err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "multipart form required", nil))
			return
		}
		file, header, err := req.FormFile("file")
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "file field required", nil))
			return
		}
		defer file.Close()
		ref, err := store.Save(header.Filename, file)
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"file": ref})
	})

	r.Get("/uploads/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		if strings.Contains(name, "/") || strings.Contains(name, "..") {
			http.NotFound(w, req)
			return
		}
		f, err := store.Open("/uploads/" + name)
		if err != nil {
			http.NotFound(w, req)
			return
		}
		defer f.Close()
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.Copy(w, f)
	})
}
