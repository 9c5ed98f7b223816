package batch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrEmptyPayload    = errors.New("empty payload")
)

// ImageItem 一张待处理的图片
type ImageItem struct {
	Name        string
	ContentType string
	Payload     []byte
}

// Source 尚未读取的上传内容，读取可能失败
type Source interface {
	Filename() string
	ContentType() string
	Open() (io.ReadCloser, error)
}

type fileHeaderSource struct {
	fh *multipart.FileHeader
}

// FileHeaderSource 包装 multipart 上传文件
func FileHeaderSource(fh *multipart.FileHeader) Source {
	return fileHeaderSource{fh: fh}
}

func (s fileHeaderSource) Filename() string {
	return s.fh.Filename
}

func (s fileHeaderSource) ContentType() string {
	return s.fh.Header.Get("Content-Type")
}

func (s fileHeaderSource) Open() (io.ReadCloser, error) {
	return s.fh.Open()
}

type bytesSource struct {
	name        string
	contentType string
	payload     []byte
}

// BytesSource 内存中的图片
func BytesSource(name, contentType string, payload []byte) Source {
	return bytesSource{name: name, contentType: contentType, payload: payload}
}

func (s bytesSource) Filename() string {
	return s.name
}

func (s bytesSource) ContentType() string {
	return s.contentType
}

func (s bytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.payload)), nil
}

// ReadItem 读取上传内容，maxBytes <= 0 表示不限制大小
// 未声明 Content-Type 时按内容探测。
func ReadItem(src Source, maxBytes int64) (ImageItem, error) {
	rc, err := src.Open()
	if err != nil {
		return ImageItem{}, fmt.Errorf("open %q: %w", src.Filename(), err)
	}
	defer func() {
		_ = rc.Close()
	}()

	var r io.Reader = rc
	if maxBytes > 0 {
		r = io.LimitReader(rc, maxBytes+1)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return ImageItem{}, fmt.Errorf("read %q: %w", src.Filename(), err)
	}
	if maxBytes > 0 && int64(len(payload)) > maxBytes {
		return ImageItem{}, fmt.Errorf("read %q: %w (limit %d bytes)", src.Filename(), ErrPayloadTooLarge, maxBytes)
	}
	if len(payload) == 0 {
		return ImageItem{}, fmt.Errorf("read %q: %w", src.Filename(), ErrEmptyPayload)
	}

	contentType := src.ContentType()
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(payload).String()
	}

	return ImageItem{
		Name:        src.Filename(),
		ContentType: contentType,
		Payload:     payload,
	}, nil
}
