package embedded

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"time"

	"github.com/abema/go-mp4"
	"github.com/pkg/errors"
)

// mp4EpochOffset 是 1904-01-01 到 1970-01-01 的秒数（ISO BMFF 的时间起点）。
const mp4EpochOffset = 2082844800

type mp4Codec struct{}

func (mp4Codec) Format() Format { return FormatMP4 }

type mvhdField struct {
	version  uint8
	offset   int64 // creation_time 在文件中的绝对偏移
	creation uint64
}

func locateMvhd(path string, r io.ReadSeeker) (*mvhdField, bool, error) {
	bips, err := mp4.ExtractBoxWithPayload(r, nil, mp4.BoxPath{mp4.BoxTypeMoov(), mp4.BoxTypeMvhd()})
	if err != nil {
		return nil, false, unsupported(path, FormatMP4, "MP4 结构损坏", err)
	}
	if len(bips) == 0 {
		return nil, false, nil
	}
	mvhd, ok := bips[0].Payload.(*mp4.Mvhd)
	if !ok {
		return nil, false, unsupported(path, FormatMP4, "mvhd 解析结果异常", nil)
	}

	info := bips[0].Info
	// payload = version(1) + flags(3) + creation_time
	f := &mvhdField{version: mvhd.GetVersion(), offset: int64(info.Offset + info.HeaderSize + 4)}
	switch f.version {
	case 0:
		f.creation = uint64(mvhd.CreationTimeV0)
	case 1:
		f.creation = mvhd.CreationTimeV1
	default:
		return nil, false, unsupported(path, FormatMP4, "未知的 mvhd 版本", nil)
	}
	return f, true, nil
}

func (mp4Codec) Read(path string) (time.Time, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "打开 MP4 失败")
	}
	defer f.Close()

	field, ok, err := locateMvhd(path, f)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	// 很多设备写 0 表示“未知”。
	if field.creation == 0 || field.creation > math.MaxInt64 {
		return time.Time{}, false, nil
	}
	return time.Unix(int64(field.creation)-mp4EpochOffset, 0).UTC(), true, nil
}

func (mp4Codec) Write(src, dst string, t time.Time) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "打开 MP4 失败")
	}
	defer in.Close()

	field, ok, err := locateMvhd(src, in)
	if err != nil {
		return err
	}
	if !ok {
		return unsupported(src, FormatMP4, "缺少 moov/mvhd，无法安全添加", nil)
	}
	value, err := encodeCreation(src, field.version, t)
	if err != nil {
		return err
	}

	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "重置读取位置失败")
	}
	out, err := openDst(dst)
	if err != nil {
		return errors.Wrap(err, "创建目标文件失败")
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.Wrap(err, "复制 MP4 失败")
	}
	if _, err := out.WriteAt(value, field.offset); err != nil {
		_ = out.Close()
		return errors.Wrap(err, "写入 creation_time 失败")
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return errors.Wrap(err, "同步目标文件失败")
	}
	if err := out.Close(); err != nil {
		return err
	}
	return verifyMP4(src, dst, t)
}

func (mp4Codec) CanWrite(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "打开 MP4 失败")
	}
	defer f.Close()

	if _, ok, err := locateMvhd(path, f); err != nil {
		return err
	} else if !ok {
		return unsupported(path, FormatMP4, "缺少 moov/mvhd，无法安全添加", nil)
	}
	return nil
}

func encodeCreation(path string, version uint8, t time.Time) ([]byte, error) {
	secs := t.UTC().Unix() + mp4EpochOffset
	if secs < 0 {
		return nil, unsupported(path, FormatMP4, "时间早于 1904 年，无法表示", nil)
	}
	switch version {
	case 0:
		if secs > math.MaxUint32 {
			return nil, unsupported(path, FormatMP4, "mvhd v0 无法表示 2040 年之后的时间", nil)
		}
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(secs))
		return b, nil
	default:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(secs))
		return b, nil
	}
}

func verifyMP4(src, dst string, want time.Time) error {
	got, ok, err := mp4Codec{}.Read(dst)
	if err != nil {
		return unsupported(src, FormatMP4, "改写后结构校验失败", err)
	}
	if !ok || !got.Equal(want.UTC().Truncate(time.Second)) {
		return unsupported(src, FormatMP4, "改写后读回的时间不一致", nil)
	}
	return nil
}
