package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pixora/backend/internal/domain"
	"github.com/pixora/backend/internal/middleware"
	"github.com/pixora/backend/pkg/response"
)

// MaxUploadSize is the largest accepted image upload.
const MaxUploadSize = 5 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/apng": true,
}

var (
	errMissingFile     = errors.New("missing file")
	errFileTooLarge    = errors.New("file exceeds the 5 MiB limit")
	errUnsupportedType = errors.New("only jpeg and png images are accepted")
)

// upload is a validated image read from a multipart form.
type upload struct {
	data     []byte
	filename string
	form     map[string][]string
}

func (u *upload) value(key string) string {
	if v := u.form[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// readUpload reads the multipart "file" field. Callers respond 400 on error.
func readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errFileTooLarge
		}
		return nil, errMissingFile
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errMissingFile
	}
	defer file.Close()

	if header.Size > MaxUploadSize {
		return nil, errFileTooLarge
	}
	contentType := strings.ToLower(header.Header.Get("Content-Type"))
	if !allowedImageTypes[contentType] {
		return nil, errUnsupportedType
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadSize+1))
	if err != nil {
		return nil, errMissingFile
	}
	if len(data) > MaxUploadSize {
		return nil, errFileTooLarge
	}

	return &upload{data: data, filename: header.Filename, form: r.MultipartForm.Value}, nil
}

// pathID parses a uuid URL parameter, writing a 400 when it is malformed
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.BadRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// currentUser returns the authenticated account id, writing a 401 if absent
func currentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return uuid.Nil, false
	}
	return userID, true
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// discardUpload deletes url after the record write that should have owned it
// failed. The request may already be cancelled at this point.
func discardUpload(r *http.Request, media *domain.MediaService, logger *zap.Logger, url string) {
	if err := media.Discard(context.WithoutCancel(r.Context()), url); err != nil {
		logger.Warn("Failed to remove orphaned upload", zap.String("url", url), zap.Error(err))
	}
}
