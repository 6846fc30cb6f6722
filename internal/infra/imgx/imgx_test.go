package imgx

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func solidJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src.Set(x, y, color.RGBA{200, 100, 50, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg 失败：%v", err)
	}
	return buf.Bytes()
}

func TestVerifyJPEG(t *testing.T) {
	b := solidJPEG(t, 32, 16)
	cfg, err := VerifyJPEG(b)
	if err != nil {
		t.Fatalf("VerifyJPEG 失败：%v", err)
	}
	if cfg.Width != 32 || cfg.Height != 16 {
		t.Fatalf("尺寸不符合预期：%dx%d", cfg.Width, cfg.Height)
	}
}

func TestVerifyJPEG_Truncated(t *testing.T) {
	b := solidJPEG(t, 32, 16)
	if _, err := VerifyJPEG(b[:len(b)/2]); err == nil {
		t.Fatalf("期望截断的 JPEG 返回错误")
	}
	if _, err := VerifyJPEG(nil); err == nil {
		t.Fatalf("期望空输入返回错误")
	}
}

func TestSameGeometry(t *testing.T) {
	a := solidJPEG(t, 32, 16)
	if err := SameGeometry(a, a); err != nil {
		t.Fatalf("同一张图不应报错：%v", err)
	}
	if err := SameGeometry(a, solidJPEG(t, 16, 16)); err == nil || errors.Is(err, ErrSourceUndecodable) {
		t.Fatalf("期望尺寸不一致报错：%v", err)
	}
	if err := SameGeometry([]byte("not-a-jpeg"), a); !errors.Is(err, ErrSourceUndecodable) {
		t.Fatalf("原图无法解码应返回 ErrSourceUndecodable：%v", err)
	}
}
