package domain

import "time"

// Source 标记候选时间戳的来源。
type Source string

const (
	SourceSidecar    Source = "sidecar"
	SourceEmbedded   Source = "embedded"
	SourceFilename   Source = "filename"
	SourceFilesystem Source = "filesystem"
)

// Rank 返回来源的可信度（越大越优先）。未知来源为 0。
func (s Source) Rank() int {
	switch s {
	case SourceSidecar:
		return 4
	case SourceEmbedded:
		return 3
	case SourceFilename:
		return 2
	case SourceFilesystem:
		return 1
	default:
		return 0
	}
}

// Candidate 是某个来源给出的候选时间戳（每个文件临时产生，由 reconcile 消费）。
type Candidate struct {
	Time   time.Time
	Source Source
}

// Authoritative 是仲裁后唯一采用的时间戳；Time 已规范化（UTC，秒精度）。
type Authoritative struct {
	Time   time.Time
	Source Source
}

// NormalizeTime 统一时间精度：UTC + 截断到秒。
// 嵌入元数据（EXIF/mvhd）只有秒精度，比较与写入都以此为准。
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// SameInstant 判断两个时间在规范化精度下是否相同。
func SameInstant(a, b time.Time) bool {
	return NormalizeTime(a).Equal(NormalizeTime(b))
}
