package handlers

import (
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/service-interactor/internal/helpers"
	"github.com/pysugar/service-interactor/internal/logging"
	"github.com/pysugar/service-interactor/internal/provider"
	"go.uber.org/zap"
)

// FilesHandler lists files of the active service. q is passed through in
// the vendor's search syntax.
func FilesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := active(w, r)
		if !ok {
			return
		}
		limit, err := intParam(r, "limit", DefaultLimit)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		files, err := take(a.Files(r.Context(), provider.FileQuery{
			Query:   r.URL.Query().Get("q"),
			OrderBy: r.URL.Query().Get("order_by"),
		}), limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"files": files, "count": len(files)})
	}
}

// FileDetailsHandler describes file {id}.
func FileDetailsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := active(w, r)
		if !ok {
			return
		}
		f, err := a.FileDetails(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

// FileContentHandler streams file {id} as a download. With
// ?export=<mime type> the file is converted by the vendor first.
func FileContentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := active(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")
		exportAs := r.URL.Query().Get("export")

		var (
			body io.ReadCloser
			err  error
		)
		if exportAs != "" {
			body, err = a.ExportFile(r.Context(), id, exportAs)
		} else {
			body, err = a.DownloadFile(r.Context(), id)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer body.Close()

		contentType := "application/octet-stream"
		if exportAs != "" {
			contentType = exportAs
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": id}))
		if _, err := io.Copy(w, body); err != nil {
			logging.From(r.Context()).Warn("file stream interrupted", zap.String("file_id", id), zap.Error(err))
		}
	}
}

// TakeoutHandler lists this month's Google Takeout archives.
func TakeoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := active(w, r)
		if !ok {
			return
		}
		files, err := helpers.TakeoutFiles(r.Context(), a, helpers.TakeoutOptions{
			IncludeDetails: boolParam(r, "details"),
			AllowLarge:     boolParam(r, "allow_large"),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		if files == nil {
			files = []provider.File{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"files": files, "count": len(files)})
	}
}
