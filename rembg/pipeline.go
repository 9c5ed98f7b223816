package rembg

import (
	"context"
	"fmt"

	"github.com/chaos-io/clearbg/util"
)

const DefaultMaxSide = 1024

// Pipeline 把任意输入图片处理成模型需要的输入，并把模型输出统一为 PNG
//
//	解码（png/jpeg/gif/webp/bmp/tiff）
//	已有透明通道时可直接返回（SkipTransparent）
//	缩放模型输入（最长边 <= MaxSide）
//	调用 Remover
//	输出与原图尺寸不同时，把模型给出的 alpha 还原到原图分辨率
//	输出归一化为 PNG
type Pipeline struct {
	next            Remover
	maxSide         int
	skipTransparent bool
}

type PipelineOption func(*Pipeline)

// WithMaxSide 设置送入模型的最长边，<= 0 表示不缩放
func WithMaxSide(n int) PipelineOption {
	return func(p *Pipeline) { p.maxSide = n }
}

// WithSkipTransparent 已经带透明信息的图片不再调用模型
func WithSkipTransparent(skip bool) PipelineOption {
	return func(p *Pipeline) { p.skipTransparent = skip }
}

func NewPipeline(next Remover, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{next: next, maxSide: DefaultMaxSide}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Remove(ctx context.Context, payload []byte) ([]byte, error) {
	img, _, err := util.DecodeImage(payload)
	if err != nil {
		return nil, err
	}
	src := util.ToNRGBA(img)

	if p.skipTransparent && util.HasUsefulAlpha(src) {
		return util.EncodePNG(src)
	}

	in, err := util.EncodePNG(util.ResizeWithinMax(src, p.maxSide))
	if err != nil {
		return nil, err
	}

	out, err := p.next.Remove(ctx, in)
	if err != nil {
		return nil, err
	}

	outImg, _, err := util.DecodeImage(out)
	if err != nil {
		return nil, fmt.Errorf("normalize output: %w", err)
	}
	if outImg.Bounds().Dx() != src.Bounds().Dx() || outImg.Bounds().Dy() != src.Bounds().Dy() {
		return util.EncodePNG(util.ApplyAlphaMask(src, outImg))
	}

	normalized, err := util.NormalizePNG(out)
	if err != nil {
		return nil, fmt.Errorf("normalize output: %w", err)
	}
	return normalized, nil
}

// WrapProvider 让 Provider 产出的 Remover 都经过同一个 Pipeline 配置
func WrapProvider(provider Provider, opts ...PipelineOption) Provider {
	return func(ctx context.Context) (Remover, error) {
		r, err := provider(ctx)
		if err != nil {
			return nil, err
		}
		return NewPipeline(r, opts...), nil
	}
}
