package http

import (
	"context"
	"time"
)

// IClient 抽象 HTTP 调用，方便在测试里替换
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam 描述一次 HTTP 调用
//
// Body 支持 io.Reader、[]byte、string，其余类型按 JSON 序列化。
// Response 为 *[]byte 时写入原始响应体，为其他非 nil 指针时按 JSON 反序列化。
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       interface{}
	Response   interface{}

	Timeout time.Duration
}
