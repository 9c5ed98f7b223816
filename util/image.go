package util

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// DecodeImage 解码任意已注册格式的图片（png/jpeg/gif/webp/bmp/tiff）
func DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("decode image: empty data")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// EncodePNG 编码为 PNG
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// IsPNG 根据文件头判断是否已经是 PNG
func IsPNG(data []byte) bool {
	return bytes.HasPrefix(data, pngSignature)
}

// NormalizePNG 保证输出为 PNG：已经是 PNG 且可解码则原样返回，否则解码后重新编码
func NormalizePNG(data []byte) ([]byte, error) {
	img, format, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	if format == "png" && IsPNG(data) {
		return data, nil
	}
	return EncodePNG(img)
}

// ToNRGBA 转为 NRGBA，方便统一处理
func ToNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// HasUsefulAlpha 检查 alpha 通道是否真的包含透明信息
// 只要存在非 255（非完全不透明），就认为“已有抠图”
func HasUsefulAlpha(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 255 {
			return true
		}
	}
	return false
}

// ResizeWithinMax 缩放（最长边 <= maxSize），maxSize <= 0 时不缩放
func ResizeWithinMax(img *image.NRGBA, maxSize int) *image.NRGBA {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	longest := max(w, h)

	if maxSize <= 0 || longest <= maxSize {
		return img
	}

	scale := float64(maxSize) / float64(longest)
	newW := max(1, int(float64(w)*scale))
	newH := max(1, int(float64(h)*scale))

	resized := resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3)
	return ToNRGBA(resized)
}

// ApplyAlphaMask 把 mask 的 alpha 通道缩放到 src 的尺寸后作用在 src 的副本上
// 用于模型只处理了缩小图时，把抠图结果还原到原始分辨率
func ApplyAlphaMask(src *image.NRGBA, mask image.Image) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()

	m := ToNRGBA(mask)
	if m.Bounds().Dx() != w || m.Bounds().Dy() != h {
		m = ToNRGBA(resize.Resize(uint(w), uint(h), m, resize.Bilinear))
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		srow := y * src.Stride
		mrow := y * m.Stride
		drow := y * dst.Stride
		copy(dst.Pix[drow:drow+w*4], src.Pix[srow:srow+w*4])
		for x := 0; x < w; x++ {
			a := m.Pix[mrow+x*4+3]
			dst.Pix[drow+x*4+3] = uint8(uint16(a) * uint16(src.Pix[srow+x*4+3]) / 255)
		}
	}
	return dst
}
