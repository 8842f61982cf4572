package http

import (
	"errors"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"braille-voice/internal/storage"
)

// DefaultMaxUploadBytes caps a single image upload.
const DefaultMaxUploadBytes int64 = 10 << 20

// multipart framing allowance on top of the file itself
const multipartOverhead int64 = 1 << 20

var allowedExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".bmp":  {},
	".tiff": {},
	".webp": {},
}

var allowedMIMETypes = []string{
	"image/png",
	"image/jpeg",
	"image/bmp",
	"image/tiff",
	"image/webp",
}

type UploadResponse struct {
	FileID    string `json:"file_id"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Location  string `json:"location"`
	Message   string `json:"message"`
}

type StorageObjectResponse struct {
	FileID       string  `json:"file_id"`
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func (h *Handler) uploadImage(c *gin.Context) {
	if h.storage == nil || h.upload.Bucket == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upload storage not configured"})
		return
	}
	user := currentUser(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.upload.MaxBytes+multipartOverhead)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no filename provided"})
		return
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExtensions[ext]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type " + ext})
		return
	}
	if header.Size > h.upload.MaxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read uploaded file"})
		return
	}
	defer file.Close()

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read uploaded file"})
		return
	}
	if !mimetype.EqualsAny(mtype.String(), allowedMIMETypes...) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file content is not a supported image"})
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	fileID := uuid.NewString()
	key := storage.ObjectKey(h.upload.KeyPrefix, user.ID, fileID, ext)
	location, err := h.storage.Put(c.Request.Context(), file, storage.PutOptions{
		Bucket:      h.upload.Bucket,
		Key:         key,
		ContentType: mtype.String(),
	})
	if err != nil {
		h.logger.WithFields(logrus.Fields{"user_id": user.ID, "key": key}).Errorf("upload image: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed"})
		return
	}

	h.logger.WithFields(logrus.Fields{"user_id": user.ID, "file_id": fileID}).Infof("stored %s (%d bytes)", filename, header.Size)
	c.JSON(http.StatusOK, UploadResponse{
		FileID:    fileID,
		Filename:  filename,
		SizeBytes: header.Size,
		Location:  location,
		Message:   "File uploaded successfully",
	})
}

func (h *Handler) listUploads(c *gin.Context) {
	if h.storage == nil || h.upload.Bucket == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upload storage not configured"})
		return
	}
	user := currentUser(c)

	objects, err := h.storage.ListObjects(c.Request.Context(), h.upload.Bucket, storage.UserPrefix(h.upload.KeyPrefix, user.ID))
	if err != nil {
		h.logger.WithField("user_id", user.ID).Errorf("list uploads: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "list uploads failed"})
		return
	}

	resp := make([]StorageObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) deleteUpload(c *gin.Context) {
	if h.storage == nil || h.upload.Bucket == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upload storage not configured"})
		return
	}
	user := currentUser(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return
	}

	prefix := storage.UserPrefix(h.upload.KeyPrefix, user.ID) + id.String()
	if err := h.storage.DeletePrefix(c.Request.Context(), h.upload.Bucket, prefix); err != nil {
		h.logger.WithField("user_id", user.ID).Errorf("delete upload: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "delete upload failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": id.String()})
}

func objectToResponse(obj storage.ObjectInfo) StorageObjectResponse {
	base := path.Base(obj.Key)
	resp := StorageObjectResponse{
		FileID: strings.TrimSuffix(base, path.Ext(base)),
		Key:    obj.Key,
		Size:   obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.UTC().Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}
