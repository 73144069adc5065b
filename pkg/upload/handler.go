package upload

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

// DownloadPath is the URL prefix DownloadHandler is mounted under.
const DownloadPath = "/_domwire/download/"

// DownloadURL returns the URL that serves the stored file id once.
func DownloadURL(id string) string {
	return DownloadPath + id
}

// DownloadHandler serves stored files as attachments. Each file is claimed,
// so a download link works exactly once.
//
// Mount it on your router:
//
//	r.Handle(upload.DownloadPath+"*", upload.DownloadHandler(store))
func DownloadHandler(store Store) http.Handler {
	logger := slog.Default().With("component", "upload")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		id := strings.TrimPrefix(r.URL.Path, DownloadPath)
		if id == "" || strings.Contains(id, "/") {
			http.NotFound(w, r)
			return
		}

		file, err := store.Claim(r.Context(), id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			logger.Error("claim failed", "id", id, "error", err)
			http.Error(w, "Download failed", http.StatusInternalServerError)
			return
		}
		defer file.Close()

		ct := file.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}))
		if file.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")

		if _, err := io.Copy(w, file.Reader); err != nil {
			logger.Debug("download interrupted", "id", id, "error", err)
		}
	})
}
