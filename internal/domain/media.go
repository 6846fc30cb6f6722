package domain

import "path/filepath"

// MediaKind 区分图片与视频（只由扩展名决定；容器格式由 embedded 包嗅探）。
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// MediaFile 描述一次扫描得到的媒体文件（只做 stat，不读内容）。
//
// 不变量（实现必须遵守）：
// - AbsPath 必须是 clean + absolute（也是文件的身份）
// - 扫描阶段只做 stat，不读文件内容
type MediaFile struct {
	AbsPath string
	RelPath string
	Base    string // filename without ext
	Ext     string // ".jpg"（小写）
	Kind    MediaKind
	Size    int64
	ModUnix int64
}

// Name 返回带扩展名的原始文件名（保留大小写）。
func (m MediaFile) Name() string {
	return filepath.Base(m.AbsPath)
}
