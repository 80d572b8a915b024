package serve

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// maxUploadBytes bounds a single file upload.
const maxUploadBytes = 32 << 20 // 32 MB

// handleUploadFile stores a multipart upload under the files directory and
// records it for the caller. Files are stored under a uuid name so tenants
// cannot collide or overwrite each other.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request, user *User) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	src, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "file field required"})
		return
	}
	defer src.Close()

	name := filepath.Base(header.Filename)
	storedName := uuid.NewString() + filepath.Ext(name)
	storedPath := filepath.Join(s.cfg.FilesDir, storedName)

	dst, err := os.Create(storedPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	size, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(storedPath)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	createdAt := time.Now().UTC()
	id, err := s.store.InsertFile(UserFile{
		UserID:      user.ID,
		Name:        name,
		ContentType: header.Header.Get("Content-Type"),
		Path:        storedPath,
		Size:        size,
		CreatedAt:   createdAt,
	})
	if err != nil {
		os.Remove(storedPath)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	slog.Info("file uploaded", "user", user.Username, "name", name, "size", size)
	writeJSON(w, http.StatusOK, FileResponse{
		ID:          id,
		Name:        name,
		ContentType: header.Header.Get("Content-Type"),
		Size:        size,
		CreatedAt:   formatTime(createdAt),
	})
}

// handleListFiles returns the caller's uploads, newest first.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request, user *User) {
	files, err := s.store.ListFiles(user.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	out := make([]FileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, FileResponse{
			ID:          f.ID,
			Name:        f.Name,
			ContentType: f.ContentType,
			Size:        f.Size,
			CreatedAt:   formatTime(f.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
