package httpstore

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/roach88/minisync/internal/blob"
	"github.com/roach88/minisync/internal/layout"
)

// FilesPrefix is the route prefix under which Handler serves files.
const FilesPrefix = "/files/"

// Handler serves GET /files/{key} from store. A store exposed this way
// should be opened with a public base of "<server address>/files" so the
// URLs it publishes point back here.
func Handler(store blob.Store, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()
	Register(r, store, logger)
	return r
}

// Register mounts the file routes on an existing router.
func Register(r *mux.Router, store blob.Store, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.HandleFunc(FilesPrefix+"{key:.+}", func(w http.ResponseWriter, req *http.Request) {
		key := mux.Vars(req)["key"]
		path, name := layout.Split(key)
		if name == "" {
			http.NotFound(w, req)
			return
		}

		fd, err := store.GetFile(req.Context(), blob.FileHandle{Path: path, Name: name})
		if err != nil {
			logger.Error("serve file", "key", key, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if fd == nil {
			http.NotFound(w, req)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(fd.Contents); err != nil {
			logger.Debug("write response", "key", key, "error", err)
		}
	}).Methods(http.MethodGet)
}
