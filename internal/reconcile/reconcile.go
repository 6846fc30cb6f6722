package reconcile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/John-Robertt/photofix/internal/domain"
)

// DefaultFloor 是可信拍摄时间的下限：早于它的值视为占位或错误。
var DefaultFloor = time.Date(1975, 1, 1, 0, 0, 0, 0, time.UTC)

// ErrNoTimestamp 用于 errors.Is 判断“没有任何可信来源”。
var ErrNoTimestamp = errors.New("no timestamp available")

// Policy 是时间来源的仲裁策略。零值可用：Floor 为零时取 DefaultFloor，Now 为 nil 时取 time.Now。
type Policy struct {
	Floor time.Time
	Now   func() time.Time
}

// Discard 记录一个被判定为不可信而丢弃的候选。
type Discard struct {
	Candidate domain.Candidate
	Reason    string
}

type Result struct {
	Authoritative domain.Authoritative

	// NeedsRewrite 为 true 表示嵌入时间缺失或与选中时间不同，需要写回。
	NeedsRewrite bool

	Discarded []Discard
}

// NoTimestampError 表示所有候选都缺失或被丢弃。
type NoTimestampError struct {
	Discarded []Discard
}

func (e *NoTimestampError) Error() string {
	if len(e.Discarded) == 0 {
		return "没有可用的时间来源"
	}
	parts := make([]string, 0, len(e.Discarded))
	for _, d := range e.Discarded {
		parts = append(parts, fmt.Sprintf("%s=%s（%s）", d.Candidate.Source, d.Candidate.Time.UTC().Format(time.RFC3339), d.Reason))
	}
	return "没有可信的时间来源：" + strings.Join(parts, "；")
}

func (e *NoTimestampError) Is(target error) bool { return target == ErrNoTimestamp }

// Kind 映射到报告里的 error_kind。
func (e *NoTimestampError) Kind() domain.ErrorKind { return domain.ErrNoTimestampAvailable }

func (p Policy) floor() time.Time {
	if p.Floor.IsZero() {
		return DefaultFloor
	}
	return p.Floor
}

func (p Policy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// Reconcile 按 sidecar > embedded > fallback（filename 或 filesystem）的顺序选出权威时间。
//
// 规则：
// - 早于 Floor 或晚于 Now 的候选被丢弃，继续尝试下一个
// - 全部缺失或被丢弃：返回 *NoTimestampError
// - 选中来源就是 embedded，或嵌入时间与选中时间（秒级）一致时，不需要写回
func (p Policy) Reconcile(embedded, sidecar, fallback *domain.Candidate) (Result, error) {
	floor := p.floor()
	now := p.now()

	var res Result
	for _, c := range []*domain.Candidate{sidecar, embedded, fallback} {
		if c == nil {
			continue
		}
		switch {
		case c.Time.Before(floor):
			res.Discarded = append(res.Discarded, Discard{Candidate: *c, Reason: "早于下限 " + floor.UTC().Format("2006-01-02")})
			continue
		case c.Time.After(now):
			res.Discarded = append(res.Discarded, Discard{Candidate: *c, Reason: "晚于当前时间"})
			continue
		}

		res.Authoritative = domain.Authoritative{Time: domain.NormalizeTime(c.Time), Source: c.Source}
		res.NeedsRewrite = c.Source != domain.SourceEmbedded &&
			(embedded == nil || !domain.SameInstant(embedded.Time, res.Authoritative.Time))
		return res, nil
	}
	return Result{}, &NoTimestampError{Discarded: res.Discarded}
}
