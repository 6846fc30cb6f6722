// Package embeddedtest 构造测试用的最小 JPEG / MP4 文件。
package embeddedtest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	exifw "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
)

// JPEGSpec 描述要写进 EXIF 的字段；全部为空时生成不带 EXIF 的 JPEG。
type JPEGSpec struct {
	DateTimeOriginal string // "2006:01:02 15:04:05"
	Make             string
}

// PlainJPEG 生成一张 16x8 的渐变 JPEG（无 APP1）。
func PlainJPEG(t testing.TB) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 32), 80, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg 失败：%v", err)
	}
	return buf.Bytes()
}

// JPEG 生成带指定 EXIF 字段的 JPEG。
func JPEG(t testing.TB, spec JPEGSpec) []byte {
	t.Helper()
	data := PlainJPEG(t)
	if spec.DateTimeOriginal == "" && spec.Make == "" {
		return data
	}

	intfc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		t.Fatalf("解析 jpeg 失败：%v", err)
	}
	sl := intfc.(*jpegstructure.SegmentList)

	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		t.Fatalf("初始化 IFD 映射失败：%v", err)
	}
	root := exifw.NewIfdBuilder(im, exifw.NewTagIndex(), exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)
	if spec.Make != "" {
		if err := root.SetStandardWithName("Make", spec.Make); err != nil {
			t.Fatalf("写入 Make 失败：%v", err)
		}
	}
	if spec.DateTimeOriginal != "" {
		eib, err := exifw.GetOrCreateIbFromRootIb(root, "IFD/Exif")
		if err != nil {
			t.Fatalf("创建 Exif IFD 失败：%v", err)
		}
		if err := eib.SetStandardWithName("DateTimeOriginal", spec.DateTimeOriginal); err != nil {
			t.Fatalf("写入 DateTimeOriginal 失败：%v", err)
		}
	}
	if err := sl.SetExif(root); err != nil {
		t.Fatalf("SetExif 失败：%v", err)
	}
	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		t.Fatalf("写出 jpeg 失败：%v", err)
	}
	return buf.Bytes()
}

// MP4Spec 描述 mvhd 版本与 creation_time；NoMvhd 生成不含 mvhd 的 moov。
type MP4Spec struct {
	Version  uint8
	Creation time.Time // 零值表示 creation_time=0
	NoMvhd   bool
	Payload  []byte    // mdat 内容
}

const mp4EpochOffset = 2082844800

// MP4 按 ISO BMFF 手工拼出 ftyp + moov(mvhd) + mdat。
func MP4(t testing.TB, spec MP4Spec) []byte {
	t.Helper()
	var out bytes.Buffer
	out.Write(box("ftyp", append([]byte("isom"), 0, 0, 2, 0, 'i', 's', 'o', 'm')))

	var moov []byte
	if spec.NoMvhd {
		moov = box("free", []byte{0, 0, 0, 0})
	} else {
		moov = box("mvhd", mvhdPayload(spec))
	}
	out.Write(box("moov", moov))

	payload := spec.Payload
	if payload == nil {
		payload = []byte("payload-bytes")
	}
	out.Write(box("mdat", payload))
	return out.Bytes()
}

func mvhdPayload(spec MP4Spec) []byte {
	var secs uint64
	if !spec.Creation.IsZero() {
		secs = uint64(spec.Creation.UTC().Unix() + mp4EpochOffset)
	}
	var p bytes.Buffer
	p.Write([]byte{spec.Version, 0, 0, 0})
	if spec.Version == 1 {
		// creation_time / modification_time
		_ = binary.Write(&p, binary.BigEndian, secs)
		_ = binary.Write(&p, binary.BigEndian, secs)
		_ = binary.Write(&p, binary.BigEndian, uint32(1000))
		_ = binary.Write(&p, binary.BigEndian, uint64(5000))
	} else {
		_ = binary.Write(&p, binary.BigEndian, uint32(secs))
		_ = binary.Write(&p, binary.BigEndian, uint32(secs))
		_ = binary.Write(&p, binary.BigEndian, uint32(1000))
		_ = binary.Write(&p, binary.BigEndian, uint32(5000))
	}
	// rate / volume / reserved
	_ = binary.Write(&p, binary.BigEndian, int32(0x00010000))
	_ = binary.Write(&p, binary.BigEndian, int16(0x0100))
	p.Write(make([]byte, 2+8))
	matrix := []int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
	for _, v := range matrix {
		_ = binary.Write(&p, binary.BigEndian, v)
	}
	// pre_defined / next_track_ID
	p.Write(make([]byte, 24))
	_ = binary.Write(&p, binary.BigEndian, uint32(2))
	return p.Bytes()
}

// HEIC 拼出 ftyp(heic) + meta 的最小 HEIF 头部；没有 moov。
func HEIC(t testing.TB) []byte {
	t.Helper()
	var out bytes.Buffer
	out.Write(box("ftyp", append([]byte("heic"), 0, 0, 0, 0, 'm', 'i', 'f', '1', 'h', 'e', 'i', 'c')))
	out.Write(box("meta", []byte{0, 0, 0, 0}))
	out.Write(box("mdat", []byte("heic-payload")))
	return out.Bytes()
}

func box(typ string, payload []byte) []byte {
	b := make([]byte, 8, 8+len(payload))
	binary.BigEndian.PutUint32(b, uint32(8+len(payload)))
	copy(b[4:], typ)
	return append(b, payload...)
}

// WriteFile 把 data 写到 dir/name 并返回路径。
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("写入 %s 失败：%v", name, err)
	}
	return p
}
