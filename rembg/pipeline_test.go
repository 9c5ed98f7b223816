package rembg

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/clearbg/util"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func TestPipeline_Remove(t *testing.T) {
	t.Parallel()

	var gotInput []byte
	inner := RemoverFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		gotInput = payload
		return payload, nil
	})

	out, err := NewPipeline(inner, WithMaxSide(32)).Remove(context.Background(), jpegBytes(t, 64, 16))
	require.NoError(t, err)

	// 送入模型的是缩放后的 PNG
	require.True(t, util.IsPNG(gotInput))
	img, _, err := util.DecodeImage(gotInput)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())

	assert.True(t, util.IsPNG(out))
}

func TestPipeline_NormalizesOutput(t *testing.T) {
	t.Parallel()

	jpegOut := jpegBytes(t, 4, 4)
	inner := RemoverFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		return jpegOut, nil
	})

	out, err := NewPipeline(inner).Remove(context.Background(), jpegBytes(t, 4, 4))
	require.NoError(t, err)
	assert.True(t, util.IsPNG(out))
}

func TestPipeline_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("inference failed")

	tests := []struct {
		name    string
		inner   Remover
		payload []byte
		wantErr error
	}{
		{
			name:    "输入无法解码",
			inner:   NewNoopRemover(),
			payload: []byte("corrupt"),
		},
		{
			name: "模型失败",
			inner: RemoverFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
				return nil, boom
			}),
			payload: jpegBytes(t, 4, 4),
			wantErr: boom,
		},
		{
			name: "模型输出不是图片",
			inner: RemoverFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
				return []byte("garbage"), nil
			}),
			payload: jpegBytes(t, 4, 4),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewPipeline(tt.inner).Remove(context.Background(), tt.payload)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestPipeline_SkipTransparent(t *testing.T) {
	t.Parallel()

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	data, err := util.EncodePNG(img)
	require.NoError(t, err)

	called := false
	inner := RemoverFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		called = true
		return payload, nil
	})

	out, err := NewPipeline(inner, WithSkipTransparent(true)).Remove(context.Background(), data)
	require.NoError(t, err)
	assert.False(t, called)
	assert.True(t, util.IsPNG(out))

	_, err = NewPipeline(inner).Remove(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestWrapProvider(t *testing.T) {
	t.Parallel()

	provider := WrapProvider(func(ctx context.Context) (Remover, error) {
		return NewNoopRemover(), nil
	})
	r, err := provider(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &Pipeline{}, r)

	failing := WrapProvider(func(ctx context.Context) (Remover, error) {
		return nil, errors.New("no model")
	})
	_, err = failing(context.Background())
	assert.Error(t, err)
}

func TestPipeline_KeepsSourceDimensions(t *testing.T) {
	t.Parallel()

	// 模型只保留左半边：右半边 alpha 置 0
	inner := RemoverFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		in, _, err := util.DecodeImage(payload)
		if err != nil {
			return nil, err
		}
		mask := util.ToNRGBA(in)
		b := mask.Bounds()
		for y := 0; y < b.Dy(); y++ {
			for x := b.Dx() / 2; x < b.Dx(); x++ {
				mask.Pix[y*mask.Stride+x*4+3] = 0
			}
		}
		return util.EncodePNG(mask)
	})

	tests := []struct {
		name    string
		maxSide int
		w, h    int
	}{
		{name: "横图缩放后还原", maxSide: 100, w: 300, h: 200},
		{name: "竖图缩放后还原", maxSide: 64, w: 90, h: 250},
		{name: "不需要缩放", maxSide: 1024, w: 40, h: 30},
		{name: "不限制最长边", maxSide: 0, w: 120, h: 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := NewPipeline(inner, WithMaxSide(tt.maxSide)).Remove(context.Background(), jpegBytes(t, tt.w, tt.h))
			require.NoError(t, err)
			require.True(t, util.IsPNG(out))

			img, _, err := util.DecodeImage(out)
			require.NoError(t, err)
			assert.Equal(t, tt.w, img.Bounds().Dx())
			assert.Equal(t, tt.h, img.Bounds().Dy())

			got := util.ToNRGBA(img)
			left := got.NRGBAAt(2, tt.h/2)
			right := got.NRGBAAt(tt.w-3, tt.h/2)
			assert.Equal(t, uint8(255), left.A)
			assert.Equal(t, uint8(0), right.A)
		})
	}
}
