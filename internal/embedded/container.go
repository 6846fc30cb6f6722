package embedded

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/John-Robertt/photofix/internal/domain"
	"github.com/John-Robertt/photofix/internal/infra/fsx"
)

// Codec 是单一容器格式的读写能力。
//
// Read 返回 ok=false 表示字段不存在（不是错误）；err 只在容器结构损坏时出现。
// Write 把 src 的完整副本写到 dst（创建或截断），仅改写拍摄时间字段。
// CanWrite 只读地确认 Write 能找到落点，不产生任何文件。
type Codec interface {
	Format() Format
	Read(path string) (time.Time, bool, error)
	Write(src, dst string, t time.Time) error
	CanWrite(path string) error
}

// Detect 按魔数选择 Codec；未知格式返回一个只读不写的 Codec。
func Detect(path string) (Codec, error) {
	f, err := sniffFile(path)
	if err != nil {
		return nil, err
	}
	return codecFor(f), nil
}

func codecFor(f Format) Codec {
	switch f {
	case FormatJPEG:
		return jpegCodec{}
	case FormatMP4:
		return mp4Codec{}
	default:
		return unknownCodec{}
	}
}

// ReadTimestamp 读取嵌入的拍摄时间并打上 embedded 标签。
func ReadTimestamp(path string) (domain.Candidate, bool, error) {
	c, err := Detect(path)
	if err != nil {
		return domain.Candidate{}, false, err
	}
	t, ok, err := c.Read(path)
	if err != nil || !ok {
		return domain.Candidate{}, false, err
	}
	return domain.Candidate{Time: t, Source: domain.SourceEmbedded}, true, nil
}

// CheckWritable 在创建任何目标目录之前确认 path 的拍摄时间可以被改写。
func CheckWritable(path string) error {
	c, err := Detect(path)
	if err != nil {
		return err
	}
	return c.CanWrite(path)
}

// Stage 在 dir 下生成“已改写拍摄时间”的临时副本，返回临时文件路径。
// 失败时不留下任何文件；src 始终不被修改。
func Stage(src, dir, name string, t time.Time) (string, error) {
	c, err := Detect(src)
	if err != nil {
		return "", err
	}
	if c.Format() == FormatUnsupported {
		return "", unsupported(src, FormatUnsupported, "无法识别的容器", nil)
	}

	tmp, err := fsx.CreateTemp(dir, name)
	if err != nil {
		return "", errors.Wrap(err, "创建临时文件失败")
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	if err := c.Write(src, tmpPath, t); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return tmpPath, nil
}

// RewriteInPlace 原地改写拍摄时间（同目录临时文件 + rename）。
func RewriteInPlace(path string, t time.Time) error {
	tmpPath, err := Stage(path, filepath.Dir(path), filepath.Base(path), t)
	if err != nil {
		return err
	}
	if err := fsx.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

type unknownCodec struct{}

func (unknownCodec) Format() Format { return FormatUnsupported }

func (unknownCodec) Read(string) (time.Time, bool, error) { return time.Time{}, false, nil }

func (unknownCodec) Write(src, _ string, _ time.Time) error {
	return unsupported(src, FormatUnsupported, "无法识别的容器", nil)
}

func (unknownCodec) CanWrite(path string) error {
	return unsupported(path, FormatUnsupported, "无法写入拍摄时间", nil)
}

// openDst 创建或截断 dst，用于写出完整副本。
func openDst(dst string) (*os.File, error) {
	return os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}
