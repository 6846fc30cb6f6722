package embedded

import (
	"bytes"
	"io"
	"os"
)

// Format 是封闭的容器类型集合。
type Format int

const (
	FormatUnsupported Format = iota
	FormatJPEG
	FormatMP4
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatMP4:
		return "mp4"
	default:
		return "unsupported"
	}
}

const sniffLen = 12

// ISO BMFF / QuickTime 文件开头常见的顶层 box。
var bmffLeadBoxes = [][]byte{
	[]byte("ftyp"),
	[]byte("moov"),
	[]byte("mdat"),
	[]byte("wide"),
	[]byte("free"),
	[]byte("skip"),
}

// HEIF 家族（HEIC、AVIF 等）同样以 ftyp 开头，但时间在 meta/Exif 里而不是 mvhd。
var heifBrands = [][]byte{
	[]byte("heic"),
	[]byte("heix"),
	[]byte("heim"),
	[]byte("heis"),
	[]byte("hevc"),
	[]byte("hevx"),
	[]byte("mif1"),
	[]byte("msf1"),
	[]byte("avif"),
	[]byte("avis"),
}

// Sniff 按魔数判断容器类型；不看扩展名。
func Sniff(head []byte) Format {
	if len(head) >= 3 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF {
		return FormatJPEG
	}
	if len(head) >= 12 && bytes.Equal(head[4:8], []byte("ftyp")) {
		for _, b := range heifBrands {
			if bytes.Equal(head[8:12], b) {
				return FormatUnsupported
			}
		}
	}
	if len(head) >= 8 {
		for _, b := range bmffLeadBoxes {
			if bytes.Equal(head[4:8], b) {
				return FormatMP4
			}
		}
	}
	return FormatUnsupported
}

func sniffFile(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnsupported, err
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FormatUnsupported, err
	}
	return Sniff(head[:n]), nil
}
