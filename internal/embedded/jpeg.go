package embedded

import (
	"bytes"
	"os"
	"strings"
	"time"

	exifw "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	"github.com/pkg/errors"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/John-Robertt/photofix/internal/infra/imgx"
)

const (
	exifTimeLayout = "2006:01:02 15:04:05"
	exifTimeLen    = len(exifTimeLayout)

	markerAPP1 = 0xe1
)

var exifHeader = []byte("Exif\x00\x00")

type jpegCodec struct{}

func (jpegCodec) Format() Format { return FormatJPEG }

// exifBlock 记录 EXIF 在文件中的位置。tiffStart 为 TIFF 头在文件中的偏移；无 EXIF 时为 -1。
type exifBlock struct {
	tiffStart int
	x         *exif.Exif
}

func (b *exifBlock) dateTimeOriginalTag() (*tiff.Tag, bool) {
	if b.x == nil {
		return nil, false
	}
	tag, err := b.x.Get(exif.DateTimeOriginal)
	if err != nil {
		return nil, false
	}
	return tag, true
}

// dateTimeOriginal 读取 DateTimeOriginal。EXIF 墙钟没有时区，这里按 UTC 解释
// （本工具写回时也总是写 UTC）。空白或无法解析的值视为字段不存在。
func (b *exifBlock) dateTimeOriginal() (time.Time, bool) {
	tag, ok := b.dateTimeOriginalTag()
	if !ok {
		return time.Time{}, false
	}
	s, err := tag.StringVal()
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(exifTimeLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func parseJPEG(path string, data []byte) (*jpegstructure.SegmentList, *exifBlock, error) {
	intfc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, nil, unsupported(path, FormatJPEG, "JPEG 结构损坏", err)
	}
	sl, ok := intfc.(*jpegstructure.SegmentList)
	if !ok {
		return nil, nil, unsupported(path, FormatJPEG, "JPEG 结构解析结果异常", nil)
	}

	blk := &exifBlock{tiffStart: -1}
	for _, s := range sl.Segments() {
		if s.MarkerId != markerAPP1 || !bytes.HasPrefix(s.Data, exifHeader) {
			continue
		}
		x, err := exif.Decode(bytes.NewReader(s.Data[len(exifHeader):]))
		if err != nil && (x == nil || exif.IsCriticalError(err)) {
			return nil, nil, unsupported(path, FormatJPEG, "EXIF 结构损坏", err)
		}
		at := bytes.Index(data, s.Data)
		if at < 0 {
			return nil, nil, unsupported(path, FormatJPEG, "EXIF 段定位失败", nil)
		}
		blk.tiffStart = at + len(exifHeader)
		blk.x = x
		break
	}
	return sl, blk, nil
}

func (jpegCodec) Read(path string) (time.Time, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "读取 JPEG 失败")
	}
	_, blk, err := parseJPEG(path, data)
	if err != nil {
		return time.Time{}, false, err
	}
	t, ok := blk.dateTimeOriginal()
	return t, ok, nil
}

func (jpegCodec) Write(src, dst string, t time.Time) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrap(err, "读取 JPEG 失败")
	}
	want := t.UTC().Format(exifTimeLayout)

	out, err := rewriteJPEG(src, data, want)
	if err != nil {
		return err
	}
	if err := verifyJPEG(src, data, out, want); err != nil {
		return err
	}
	return writeFileSync(dst, out)
}

func (jpegCodec) CanWrite(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "读取 JPEG 失败")
	}
	_, _, err = parseJPEG(path, data)
	return err
}

// rewriteJPEG 优先原地覆盖已有的 19 字节时间值；字段或 EXIF 段不存在时才重建 EXIF。
func rewriteJPEG(path string, data []byte, want string) ([]byte, error) {
	sl, blk, err := parseJPEG(path, data)
	if err != nil {
		return nil, err
	}
	if out, ok := patchDateTimeOriginal(data, blk, want); ok {
		return out, nil
	}
	return rebuildExif(path, sl, blk.x != nil, want)
}

func patchDateTimeOriginal(data []byte, blk *exifBlock, want string) ([]byte, bool) {
	tag, ok := blk.dateTimeOriginalTag()
	if !ok || tag.Type != tiff.DTAscii || tag.ValOffset == 0 || len(tag.Val) < exifTimeLen {
		return nil, false
	}
	at := blk.tiffStart + int(tag.ValOffset)
	if at < 0 || at+exifTimeLen > len(data) {
		return nil, false
	}
	// 偏移必须指向与解析结果完全一致的字节，否则不冒险写入。
	if !bytes.Equal(data[at:at+exifTimeLen], tag.Val[:exifTimeLen]) {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	copy(out[at:at+exifTimeLen], want)
	return out, true
}

func rebuildExif(path string, sl *jpegstructure.SegmentList, hasExif bool, want string) ([]byte, error) {
	var rootIb *exifw.IfdBuilder
	if hasExif {
		ib, err := sl.ConstructExifBuilder()
		if err != nil {
			return nil, unsupported(path, FormatJPEG, "EXIF 无法安全重建", err)
		}
		rootIb = ib
	} else {
		im, err := exifcommon.NewIfdMappingWithStandard()
		if err != nil {
			return nil, errors.Wrap(err, "初始化 IFD 映射失败")
		}
		ti := exifw.NewTagIndex()
		rootIb = exifw.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)
	}

	exifIb, err := exifw.GetOrCreateIbFromRootIb(rootIb, "IFD/Exif")
	if err != nil {
		return nil, unsupported(path, FormatJPEG, "无法创建 Exif 子目录", err)
	}
	if err := exifIb.SetStandardWithName("DateTimeOriginal", want); err != nil {
		return nil, unsupported(path, FormatJPEG, "无法写入 DateTimeOriginal", err)
	}
	if err := sl.SetExif(rootIb); err != nil {
		return nil, unsupported(path, FormatJPEG, "EXIF 编码失败", err)
	}

	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		return nil, errors.Wrap(err, "JPEG 重新编码失败")
	}
	return buf.Bytes(), nil
}

// verifyJPEG 校验改写结果：结构可解析、字段读回一致、图像仍可解码。
// 原图本身无法被标准库解码时（例如算术编码），跳过图像比对。
func verifyJPEG(path string, before, after []byte, want string) error {
	_, blk, err := parseJPEG(path, after)
	if err != nil {
		return unsupported(path, FormatJPEG, "改写后结构校验失败", err)
	}
	got, ok := blk.dateTimeOriginal()
	if !ok || got.Format(exifTimeLayout) != want {
		return unsupported(path, FormatJPEG, "改写后读回的时间不一致", nil)
	}
	if err := imgx.SameGeometry(before, after); err != nil {
		if errors.Is(err, imgx.ErrSourceUndecodable) {
			return nil
		}
		return unsupported(path, FormatJPEG, "改写后图像校验失败", err)
	}
	return nil
}

func writeFileSync(dst string, b []byte) error {
	f, err := openDst(dst)
	if err != nil {
		return errors.Wrap(err, "创建目标文件失败")
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "写入目标文件失败")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "同步目标文件失败")
	}
	return f.Close()
}
