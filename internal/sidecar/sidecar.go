package sidecar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/photofix/internal/domain"
)

// Record 是侧车 JSON 中与拍摄时间相关的字段。解析后只读。
type Record struct {
	Title string

	// TakenAt 为绝对时刻；Offset 非空时其 Location 为该偏移，否则为 UTC。
	TakenAt    time.Time
	HasTakenAt bool
	Offset     *time.Location
}

// Error 表示侧车存在但不可用（读取失败、JSON 损坏、时间字段缺失或非法）。
// 它永远不是致命错误：调用方记一条告警后继续。
type Error struct {
	Path   string
	Kind   domain.ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("侧车不可用：%q：%s：%v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("侧车不可用：%q：%s", e.Path, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func unreadable(path, reason string, err error) *Error {
	return &Error{Path: path, Kind: domain.ErrSidecarUnreadable, Reason: reason, Err: err}
}

type takenTime struct {
	Timestamp     json.RawMessage `json:"timestamp"`
	Formatted     string          `json:"formatted"`
	Offset        string          `json:"offset"`
	OffsetSeconds *int64          `json:"offsetSeconds"`
}

type takeoutJSON struct {
	Title          string     `json:"title"`
	PhotoTakenTime *takenTime `json:"photoTakenTime"`
}

// Parse 解析 Takeout 风格的侧车 JSON。
//
// 约束：
// - photoTakenTime.timestamp 允许为字符串（Takeout 实际形态）或整数
// - 时间字段缺失不是解析错误：HasTakenAt=false
// - 时间字段存在但非法：返回错误
func Parse(b []byte) (Record, error) {
	var raw takeoutJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return Record{}, err
	}
	rec := Record{Title: strings.TrimSpace(raw.Title)}
	if raw.PhotoTakenTime == nil || len(bytes.TrimSpace(raw.PhotoTakenTime.Timestamp)) == 0 {
		return rec, nil
	}

	secs, err := parseEpoch(raw.PhotoTakenTime.Timestamp)
	if err != nil {
		return Record{}, err
	}
	loc, err := parseOffset(raw.PhotoTakenTime)
	if err != nil {
		return Record{}, err
	}

	// epoch 秒本身是绝对时刻：偏移只决定展示用的 Location，不平移时刻。
	t := time.Unix(secs, 0).UTC()
	if loc != nil {
		t = t.In(loc)
		rec.Offset = loc
	}
	rec.TakenAt = t
	rec.HasTakenAt = true
	return rec, nil
}

func parseEpoch(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return 0, errors.New("timestamp 为 null")
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("timestamp 为空")
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("timestamp 不是整数秒：%q", s)
	}
	return secs, nil
}

var offsetLayouts = []string{"-07:00", "-0700", "-07"}

func parseOffset(tt *takenTime) (*time.Location, error) {
	if tt.OffsetSeconds != nil {
		return time.FixedZone("", int(*tt.OffsetSeconds)), nil
	}
	s := strings.TrimSpace(tt.Offset)
	if s == "" {
		return nil, nil
	}
	if s == "Z" || s == "z" {
		return time.UTC, nil
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			_, off := t.Zone()
			return time.FixedZone("", off), nil
		}
	}
	return nil, fmt.Errorf("无法识别的时区偏移：%q", s)
}
