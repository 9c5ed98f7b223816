package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chaos-io/clearbg/rembg"
	"github.com/chaos-io/clearbg/util"
)

const DefaultMaxBatchSize = 10

var (
	ErrNoItems     = errors.New("no files uploaded")
	ErrEmptyOutput = errors.New("remover returned empty output")
)

// TooManyItemsError 批量数量超过上限
type TooManyItemsError struct {
	Max int
}

func (e *TooManyItemsError) Error() string {
	return fmt.Sprintf("Too many files. Maximum is %d images per batch.", e.Max)
}

// CapabilityLoader 提供去背景能力句柄，rembg.Loader 实现了它
type CapabilityLoader interface {
	Ensure(ctx context.Context) rembg.Handle
}

type Options struct {
	MaxBatchSize int
	// MaxItemBytes 单张图片大小上限，<= 0 不限制
	MaxItemBytes int64
	// ItemTimeout 单张图片处理超时，<= 0 不限制
	ItemTimeout time.Duration
}

// Entry 压缩包中的一个条目
type Entry struct {
	Source string
	Name   string
	Kind   Kind
	Reason string
}

// Result 批量处理结果
type Result struct {
	Archive []byte
	Entries []Entry
	// Skipped 读取失败而被丢弃的文件名
	Skipped []string
}

// Counts 返回成功、兜底、丢弃的数量
func (r *Result) Counts() (processedN, fallbackN, skippedN int) {
	for _, e := range r.Entries {
		if e.Kind == KindProcessed {
			processedN++
		} else {
			fallbackN++
		}
	}
	return processedN, fallbackN, len(r.Skipped)
}

// Processor 串行处理图片，单张失败时回退到原图，不影响其他图片
type Processor struct {
	loader CapabilityLoader
	opts   Options
	logger *zap.Logger
}

func NewProcessor(loader CapabilityLoader, opts Options, logger *zap.Logger) *Processor {
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = DefaultMaxBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{loader: loader, opts: opts, logger: logger}
}

func (p *Processor) MaxBatchSize() int {
	return p.opts.MaxBatchSize
}

func (p *Processor) MaxItemBytes() int64 {
	return p.opts.MaxItemBytes
}

// TransformOne 处理单张图片，从不返回错误：能力不可用或处理失败时返回原图
func (p *Processor) TransformOne(ctx context.Context, item ImageItem, handle rembg.Handle) Outcome {
	if !handle.Ready() {
		return fallback(item, ReasonUnavailable, handle.Err())
	}

	out, err := p.invoke(ctx, handle.Remover(), item.Payload)
	if err != nil {
		p.logger.Warn("background removal failed, using original image",
			zap.String("filename", item.Name),
			zap.Error(err),
		)
		return fallback(item, ReasonTransformFailed, err)
	}
	return processed(out)
}

// ProcessSingle 单张接口：与批量使用同样的回退策略，但不打包
func (p *Processor) ProcessSingle(ctx context.Context, item ImageItem) Outcome {
	handle := p.loader.Ensure(ctx)
	out := p.TransformOne(ctx, item, handle)
	if out.IsFallback() && out.Reason == ReasonUnavailable {
		p.logger.Warn("background remover unavailable, returning original image",
			zap.String("filename", item.Name),
			zap.Error(out.Err),
		)
	}
	return out
}

// ProcessBatch 按输入顺序处理所有图片并打包为 zip
//
// 数量超过上限时立即返回 *TooManyItemsError，不做任何处理。
// 读取失败的图片会被记录并跳过；处理失败的图片以原图写入。
func (p *Processor) ProcessBatch(ctx context.Context, sources []Source) (*Result, error) {
	if len(sources) > p.opts.MaxBatchSize {
		return nil, &TooManyItemsError{Max: p.opts.MaxBatchSize}
	}

	defer util.Trace(p.logger, "process batch", zap.Int("items", len(sources)))()

	handle := p.loader.Ensure(ctx)
	if !handle.Ready() {
		p.logger.Warn("background remover unavailable, batch will contain original images",
			zap.Int("items", len(sources)),
			zap.Error(handle.Err()),
		)
	}

	arc := newArchive()
	result := &Result{}

	for _, src := range sources {
		item, err := ReadItem(src, p.opts.MaxItemBytes)
		if err != nil {
			p.logger.Warn("skipping unreadable file",
				zap.String("filename", src.Filename()),
				zap.Error(err),
			)
			result.Skipped = append(result.Skipped, src.Filename())
			continue
		}

		out := p.TransformOne(ctx, item, handle)
		name, err := arc.add(EntryName(item.Name, out.Kind), out.Content)
		if err != nil {
			return nil, fmt.Errorf("add %q to archive: %w", name, err)
		}

		result.Entries = append(result.Entries, Entry{
			Source: item.Name,
			Name:   name,
			Kind:   out.Kind,
			Reason: out.Reason,
		})
	}

	data, err := arc.close()
	if err != nil {
		return nil, err
	}
	result.Archive = data

	processedN, fallbackN, skippedN := result.Counts()
	p.logger.Info("batch processed",
		zap.Int("processed", processedN),
		zap.Int("fallback", fallbackN),
		zap.Int("skipped", skippedN),
	)
	return result, nil
}

// invoke 带超时调用 Remover，panic 视为失败
func (p *Processor) invoke(ctx context.Context, remover rembg.Remover, payload []byte) (out []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("remover panicked: %v", rec)
		}
	}()

	if p.opts.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.ItemTimeout)
		defer cancel()
	}

	out, err = remover.Remove(ctx, payload)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrEmptyOutput
	}
	return out, nil
}
