package domain

// Pair 是发现阶段给核心的输入：一个媒体文件 + 可选的侧车路径。
// SidecarPath 为空表示没有侧车；侧车匹配规则属于发现阶段，核心不再二次猜测。
type Pair struct {
	Media       MediaFile
	SidecarPath string
}
