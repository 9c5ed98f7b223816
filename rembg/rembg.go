package rembg

import (
	"context"
)

const (
	BackendHTTP = "http"
	BackendNoop = "noop"
)

// Remover 去除背景：输入原始图片字节，输出去背景后的图片字节
// 任意输入都可能失败（例如图片损坏），调用方需要自行兜底。
type Remover interface {
	Remove(ctx context.Context, payload []byte) ([]byte, error)
}

// RemoverFunc 让普通函数满足 Remover
type RemoverFunc func(ctx context.Context, payload []byte) ([]byte, error)

func (f RemoverFunc) Remove(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

// NoopRemover 不做任何处理，原样返回（开发环境使用，配合 Pipeline 只做 PNG 归一化）
type NoopRemover struct{}

func NewNoopRemover() *NoopRemover {
	return &NoopRemover{}
}

func (n *NoopRemover) Remove(_ context.Context, payload []byte) ([]byte, error) {
	return payload, nil
}
