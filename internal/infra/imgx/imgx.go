package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
)

// VerifyJPEG 确认 b 仍是可完整解码的 JPEG（写回 EXIF 之后的结构校验）。
//
// 约束：
// - 先 DecodeConfig 取尺寸（便于调用方与原图比对）
// - 再做一次完整 Decode，确保扫描数据没有被截断或错位
func VerifyJPEG(b []byte) (image.Config, error) {
	if len(b) == 0 {
		return image.Config{}, errors.New("图片为空")
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return image.Config{}, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, errors.New("图片尺寸无效")
	}
	if _, err := jpeg.Decode(bytes.NewReader(b)); err != nil {
		return image.Config{}, err
	}
	return cfg, nil
}

// ErrSourceUndecodable 表示原图本身无法被标准库解码（例如算术编码），此时没有可比对的基准。
var ErrSourceUndecodable = errors.New("原图无法解码")

// SameGeometry 校验改写前后的图片尺寸与颜色模型一致；每张图只解码一次。
func SameGeometry(before, after []byte) error {
	a, err := VerifyJPEG(before)
	if err != nil {
		return fmt.Errorf("%w：%v", ErrSourceUndecodable, err)
	}
	b, err := VerifyJPEG(after)
	if err != nil {
		return fmt.Errorf("改写后无法解码：%w", err)
	}
	if a.Width != b.Width || a.Height != b.Height || a.ColorModel != b.ColorModel {
		return fmt.Errorf("改写前后尺寸不一致：%dx%d -> %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	return nil
}
