package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/Xzayogn-ECS/trueport-backend/internal/filestore"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/errcode"
	"github.com/Xzayogn-ECS/trueport-backend/internal/pkg/response"
)

var allowedEvidenceTypes = map[string]struct{}{
	"application/pdf": {},
	"image/png":       {},
	"image/jpeg":      {},
	"image/gif":       {},
	"image/webp":      {},
	"text/plain":      {},
}

type FileHandler struct {
	store   filestore.Store
	maxSize int64
}

type UploadResponse struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

func NewFileHandler(store filestore.Store, maxSize int64) *FileHandler {
	return &FileHandler{store: store, maxSize: maxSize}
}

func (h *FileHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if h.maxSize > 0 && file.Size > h.maxSize {
		response.Error(c, errcode.ErrInvalidFile, evidenceLimitMessage(h.maxSize))
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()

	contentType, err := sniffContentType(opened)
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to read file")
		return
	}
	if _, ok := allowedEvidenceTypes[contentType]; !ok {
		response.Error(c, errcode.ErrInvalidFile, "unsupported file type "+contentType)
		return
	}

	key := buildFileKey(getUserID(c), file.Filename)
	if err := h.store.Save(c.Request.Context(), key, opened, file.Size); err != nil {
		logutil.GetLogger(c.Request.Context()).Error("save evidence failed", zap.String("key", key), zap.Error(err))
		response.Error(c, errcode.ErrUploadFailed, "failed to upload file")
		return
	}
	response.Success(c, UploadResponse{
		Key:         key,
		URL:         h.store.URL(key, requestBaseURL(c)),
		Name:        file.Filename,
		ContentType: contentType,
		Size:        file.Size,
	})
}

func (h *FileHandler) Get(c *gin.Context) {
	key := c.Param("key")
	if !filestore.ValidKey(key) {
		c.Status(http.StatusBadRequest)
		return
	}
	file, err := h.store.Open(c.Request.Context(), key)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	defer file.Close()
	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("X-Content-Type-Options", "nosniff")
	_, _ = io.Copy(c.Writer, file)
}

func requestBaseURL(c *gin.Context) string {
	proto := c.GetHeader("X-Forwarded-Proto")
	if proto == "" {
		if c.Request.TLS != nil {
			proto = "https"
		} else {
			proto = "http"
		}
	}
	host := c.GetHeader("X-Forwarded-Host")
	if host == "" {
		host = c.Request.Host
	}
	return proto + "://" + host
}

func sniffContentType(file io.ReadSeeker) (string, error) {
	buf := make([]byte, 512)
	read, err := file.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	contentType := http.DetectContentType(buf[:read])
	if semi := strings.Index(contentType, ";"); semi >= 0 {
		contentType = strings.TrimSpace(contentType[:semi])
	}
	return contentType, nil
}

func buildFileKey(userID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.ReplaceAll(uuid.NewString(), "-", "")
	if userID != "" {
		base = userID + "_" + base
	}
	return base + ext
}

// evidenceLimitMessage reports the upload cap in whole MB, or KB below 1MB.
func evidenceLimitMessage(maxSize int64) string {
	const kb, mb = 1024, 1024 * 1024
	size := strconv.FormatInt(maxSize/mb, 10) + "MB"
	if maxSize < mb {
		size = strconv.FormatInt((maxSize+kb-1)/kb, 10) + "KB"
	}
	return "evidence file exceeds the " + size + " limit"
}
