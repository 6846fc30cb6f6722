package domain

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/maruel/natural"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Input  string `json:"input"`
	Dest   string `json:"dest"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

// ReportSummary 按 Outcome 与 ErrorKind 计数；CLI 据此决定退出码。
type ReportSummary struct {
	Updated   int `json:"updated"`
	MovedOnly int `json:"moved_only"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Warnings  int `json:"warnings"`

	// ByError 同时统计失败与告警（例如 sidecar_unreadable）。
	ByError map[ErrorKind]int `json:"by_error"`
}

// ItemResult 是单个媒体文件的终态记录。
type ItemResult struct {
	Src     string `json:"src"`
	Sidecar string `json:"sidecar"`
	Dst     string `json:"dst"`

	Outcome Outcome `json:"outcome"`
	Stage   Stage   `json:"stage"`

	// Timestamp 为 RFC3339（UTC）；仲裁失败时为空。
	Timestamp string `json:"timestamp"`
	Source    Source `json:"source"`

	ErrorKind ErrorKind `json:"error_kind"`
	ErrorMsg  string    `json:"error_msg"`

	Warnings []Warning `json:"warnings"`
}

// Warning 是不影响终态的问题（例如侧车损坏、某个来源时间不合理被丢弃）。
type Warning struct {
	Kind ErrorKind `json:"kind"`
	Msg  string    `json:"msg"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 src 自然序；src=="" 的合成条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Src
		b := r.Items[j].Src
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return natural.Less(a, b)
	})

	s := ReportSummary{ByError: map[ErrorKind]int{}}
	for i := range r.Items {
		it := &r.Items[i]
		if it.Warnings == nil {
			it.Warnings = []Warning{}
		}
		switch it.Outcome {
		case OutcomeUpdated:
			s.Updated++
		case OutcomeMovedOnly:
			s.MovedOnly++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeFailed:
			s.Failed++
			if it.ErrorKind != "" {
				s.ByError[it.ErrorKind]++
			}
		}
		for _, w := range it.Warnings {
			s.Warnings++
			s.ByError[w.Kind]++
		}
	}
	r.Summary = s
}

// HasFailures 表示是否存在 failed 条目（CLI 据此返回非零退出码）。
func (r RunReport) HasFailures() bool {
	return r.Summary.Failed > 0
}

// Failures 返回所有失败条目（已按 Finalize 的顺序）。
func (r RunReport) Failures() []ItemResult {
	out := make([]ItemResult, 0, r.Summary.Failed)
	for _, it := range r.Items {
		if it.Outcome == OutcomeFailed {
			out = append(out, it)
		}
	}
	return out
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为（map 键由 encoding/json 排序）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
