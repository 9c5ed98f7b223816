package rembg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	nhttp "github.com/chaos-io/clearbg/util/http"
)

const (
	defaultEndpoint = "http://127.0.0.1:7000/api/remove"
	formField       = "file"
	uploadName      = "image.png"
)

// HTTPConfig 远程推理服务（rembg / BiRefNet server）配置
type HTTPConfig struct {
	Endpoint  string
	HealthURL string
	Timeout   time.Duration
}

// HTTPRemover 通过 HTTP 调用远程推理服务去背景
//
//	curl -X POST "$REMBG_URL" -F "file=@my_image.png" -o out.png
type HTTPRemover struct {
	endpoint string
	timeout  time.Duration
	cli      nhttp.IClient
}

func NewHTTPRemover(cfg HTTPConfig, cli nhttp.IClient) *HTTPRemover {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cli == nil {
		cli = nhttp.NewHTTPClientWithTimeout(cfg.Timeout)
	}
	return &HTTPRemover{
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout,
		cli:      cli,
	}
}

func (h *HTTPRemover) Remove(ctx context.Context, payload []byte) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(formField, uploadName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var out []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: h.endpoint,
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   &out,
		Timeout:    h.timeout,
	}
	if err := h.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("empty response from remover")
	}

	return out, nil
}

// NewHTTPProvider 返回用于 Loader 的 Provider：先探测健康地址，再构造 HTTPRemover
func NewHTTPProvider(cfg HTTPConfig, cli nhttp.IClient) Provider {
	return func(ctx context.Context) (Remover, error) {
		remover := NewHTTPRemover(cfg, cli)
		if cfg.HealthURL == "" {
			return remover, nil
		}

		err := remover.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
			RequestURI: cfg.HealthURL,
			Method:     http.MethodGet,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", cfg.HealthURL, err)
		}
		return remover, nil
	}
}
