package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaos-io/clearbg/batch"
)

const (
	singleField = "file"
	batchField  = "files"

	archiveName          = "images.zip"
	internalErrorMessage = "Internal Server Error"

	HeaderOutcome   = "X-ClearBG-Outcome"
	HeaderProcessed = "X-ClearBG-Processed"
	HeaderFallback  = "X-ClearBG-Fallback"
	HeaderSkipped   = "X-ClearBG-Skipped"
)

var exposedHeaders = []string{"Content-Disposition", HeaderRequestID, HeaderOutcome, HeaderProcessed, HeaderFallback, HeaderSkipped}

// ImageProcessor 处理上传图片，batch.Processor 实现了它
type ImageProcessor interface {
	ProcessSingle(ctx context.Context, item batch.ImageItem) batch.Outcome
	ProcessBatch(ctx context.Context, sources []batch.Source) (*batch.Result, error)
	MaxItemBytes() int64
}

type Handler struct {
	processor ImageProcessor
	logger    *zap.Logger
}

func NewHandler(processor ImageProcessor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{processor: processor, logger: logger}
}

// Health 存活探针，不会触发模型加载
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RemoveBackground POST /api/remove-bg
func (h *Handler) RemoveBackground(c *gin.Context) {
	fh, err := c.FormFile(singleField)
	if err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("form field %q is required", singleField))
		return
	}

	item, err := batch.ReadItem(batch.FileHeaderSource(fh), h.processor.MaxItemBytes())
	switch {
	case errors.Is(err, batch.ErrPayloadTooLarge):
		c.String(http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large. Maximum is %d MB.", h.processor.MaxItemBytes()>>20))
		return
	case errors.Is(err, batch.ErrEmptyPayload):
		c.String(http.StatusBadRequest, "Uploaded file is empty.")
		return
	case err != nil:
		h.internalError(c, "failed to read upload", err)
		return
	}

	out := h.processor.ProcessSingle(c.Request.Context(), item)

	contentType := out.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header(HeaderOutcome, out.Kind.String())
	c.Data(http.StatusOK, contentType, out.Content)
}

// RemoveBackgroundBatch POST /api/remove-bg-batch
func (h *Handler) RemoveBackgroundBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid multipart form.")
		return
	}

	files := form.File[batchField]
	if len(files) == 0 {
		c.String(http.StatusBadRequest, batch.ErrNoItems.Error())
		return
	}

	sources := make([]batch.Source, 0, len(files))
	for _, fh := range files {
		sources = append(sources, batch.FileHeaderSource(fh))
	}

	result, err := h.processor.ProcessBatch(c.Request.Context(), sources)
	if err != nil {
		var tooMany *batch.TooManyItemsError
		if errors.As(err, &tooMany) {
			c.String(http.StatusBadRequest, tooMany.Error())
			return
		}
		h.internalError(c, "failed to process batch", err)
		return
	}

	processedN, fallbackN, skippedN := result.Counts()
	c.Header("Content-Disposition", "attachment; filename="+archiveName)
	c.Header(HeaderProcessed, strconv.Itoa(processedN))
	c.Header(HeaderFallback, strconv.Itoa(fallbackN))
	c.Header(HeaderSkipped, strconv.Itoa(skippedN))
	c.Data(http.StatusOK, "application/zip", result.Archive)
}

func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg,
		zap.String("request_id", GetRequestID(c)),
		zap.Error(err),
	)
	c.String(http.StatusInternalServerError, internalErrorMessage)
}
