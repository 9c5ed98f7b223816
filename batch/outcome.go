package batch

import (
	"github.com/chaos-io/clearbg/util"
)

const (
	ReasonUnavailable     = "capability unavailable"
	ReasonTransformFailed = "transform failed"

	processedSuffix = "-ClearBG"
	fallbackSuffix  = "-Original"
	outputExt       = ".png"

	ContentTypePNG = "image/png"
)

type Kind int

const (
	KindProcessed Kind = iota + 1
	KindFallback
)

func (k Kind) String() string {
	switch k {
	case KindProcessed:
		return "processed"
	case KindFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Outcome 单张图片的处理结果
// Processed: Content 为去背景后的 PNG；Fallback: Content 为原图，Reason 说明原因。
type Outcome struct {
	Kind        Kind
	Content     []byte
	ContentType string
	Reason      string
	Err         error
}

func processed(content []byte) Outcome {
	return Outcome{Kind: KindProcessed, Content: content, ContentType: ContentTypePNG}
}

func fallback(item ImageItem, reason string, err error) Outcome {
	return Outcome{
		Kind:        KindFallback,
		Content:     item.Payload,
		ContentType: item.ContentType,
		Reason:      reason,
		Err:         err,
	}
}

func (o Outcome) IsFallback() bool {
	return o.Kind == KindFallback
}

// EntryName 根据原文件名生成压缩包内的文件名
//
//	Processed: photo.jpg -> photo-ClearBG.png
//	Fallback:  photo.jpg -> photo-Original.jpg，无扩展名时 c -> c-Original.png
func EntryName(filename string, kind Kind) string {
	stem, ext := util.SplitExt(util.SafeBase(filename))
	if kind == KindProcessed {
		return stem + processedSuffix + outputExt
	}
	if ext == "" {
		ext = outputExt
	}
	return stem + fallbackSuffix + ext
}
