package domain

// Outcome 是单个文件的终态。
type Outcome string

const (
	OutcomeUpdated   Outcome = "updated"    // 元数据已重写并移动
	OutcomeMovedOnly Outcome = "moved_only" // 元数据已正确，仅移动
	OutcomeSkipped   Outcome = "skipped"    // 已在正确位置，或目标处已有完全相同的文件
	OutcomeFailed    Outcome = "failed"     // 文件保持原样、原位
)

// ErrorKind 是失败/告警的分类（report 中的 error_kind）。
type ErrorKind string

const (
	ErrSidecarUnreadable    ErrorKind = "sidecar_unreadable" // 仅告警，不导致失败
	ErrUnsupportedFormat    ErrorKind = "unsupported_format"
	ErrNoTimestampAvailable ErrorKind = "no_timestamp_available"
	ErrIOFailure            ErrorKind = "io_failure"
	ErrDestinationConflict  ErrorKind = "destination_conflict"
	ErrInterrupted          ErrorKind = "interrupted" // 运行被取消时尚未派发的文件

	// WarnImplausibleTimestamp 只出现在告警中：某个来源的时间早于下限或晚于当前时间，已被丢弃。
	WarnImplausibleTimestamp ErrorKind = "implausible_timestamp"

	ErrConfigNotFound    ErrorKind = "config_not_found"
	ErrConfigInvalid     ErrorKind = "config_invalid"
	ErrConfigMissingPath ErrorKind = "config_missing_path"
)

// Stage 是单文件状态机的状态（写入 report 便于定位失败发生在哪一步）。
type Stage string

const (
	StageDiscovered      Stage = "discovered"
	StageMetadataRead    Stage = "metadata_read"
	StageReconciled      Stage = "reconciled"
	StageRewritten       Stage = "rewritten"
	StageNoRewriteNeeded Stage = "no_rewrite_needed"
	StageOrganized       Stage = "organized"
	StageDone            Stage = "done"
	StageFailed          Stage = "failed"
)
