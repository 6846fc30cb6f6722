package filedate

import (
	"regexp"
	"strconv"
	"time"

	"github.com/djherbis/times"

	"github.com/John-Robertt/photofix/internal/domain"
)

// 文件名中的日期模式，按“信息量从多到少”排列，命中第一个即返回。
// 两端要求非数字边界，避免把计数器或哈希片段误判为日期。
var namePatterns = []struct {
	re    *regexp.Regexp
	parse func(m []string) (time.Time, bool)
}{
	// 2021-06-01 10.00.00 / 2021-06-01_10-00-00
	{regexp.MustCompile(`(?:^|\D)(\d{4})-(\d{2})-(\d{2})[ _-](\d{2})[.-](\d{2})[.-](\d{2})(?:\D|$)`), parseDateTime},
	// 20210601_100000 / 20210601-100000
	{regexp.MustCompile(`(?:^|\D)(\d{4})(\d{2})(\d{2})[_-](\d{2})(\d{2})(\d{2})(?:\D|$)`), parseDateTime},
	// 20210601100000
	{regexp.MustCompile(`(?:^|\D)(\d{4})(\d{2})(\d{2})(\d{2})(\d{2})(\d{2})(?:\D|$)`), parseDateTime},
	// mmexport1622541600000 / wx_camera_1622541600000（毫秒 epoch）
	{regexp.MustCompile(`(?:^|\D)(1\d{12})(?:\D|$)`), parseMillis},
	// 2021-06-01
	{regexp.MustCompile(`(?:^|\D)(\d{4})-(\d{2})-(\d{2})(?:\D|$)`), parseDate},
	// 20210601
	{regexp.MustCompile(`(?:^|\D)(\d{4})(\d{2})(\d{2})(?:\D|$)`), parseDate},
}

// FromName 从文件名识别拍摄时间（UTC）。识别不到返回 ok=false。
func FromName(name string) (domain.Candidate, bool) {
	for _, p := range namePatterns {
		if t, ok := firstValid(p.re, name, p.parse); ok {
			return domain.Candidate{Time: t, Source: domain.SourceFilename}, true
		}
	}
	return domain.Candidate{}, false
}

// firstValid 从左到右尝试 re 的每一处命中，返回第一个合法的日期。
// 下一轮从上一处最后一个数字组的末尾开始，让被消耗的分隔符还能充当下一处的左边界。
func firstValid(re *regexp.Regexp, name string, parse func([]string) (time.Time, bool)) (time.Time, bool) {
	for off := 0; off < len(name); {
		loc := re.FindStringSubmatchIndex(name[off:])
		if loc == nil {
			break
		}
		groups := make([]string, 0, len(loc)/2-1)
		for i := 2; i < len(loc); i += 2 {
			groups = append(groups, name[off+loc[i]:off+loc[i+1]])
		}
		if t, ok := parse(groups); ok {
			return t, true
		}
		off += loc[len(loc)-1]
	}
	return time.Time{}, false
}

// FromFS 取文件的创建时间（可用时），否则取修改时间。
func FromFS(path string) (domain.Candidate, bool) {
	ts, err := times.Stat(path)
	if err != nil {
		return domain.Candidate{}, false
	}
	t := ts.ModTime()
	if ts.HasBirthTime() {
		if bt := ts.BirthTime(); !bt.IsZero() && bt.Before(t) {
			t = bt
		}
	}
	if t.IsZero() {
		return domain.Candidate{}, false
	}
	return domain.Candidate{Time: t.UTC(), Source: domain.SourceFilesystem}, true
}

// Extract 先看文件名，再看文件系统属性。永不失败。
func Extract(m domain.MediaFile) (domain.Candidate, bool) {
	name := m.Base
	if name == "" {
		name = m.Name()
	}
	if c, ok := FromName(name); ok {
		return c, true
	}
	return FromFS(m.AbsPath)
}

func atoi(parts []string) ([]int, bool) {
	out := make([]int, len(parts))
	for i, s := range parts {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

// civil 构造 UTC 时间，并要求各字段不被 time.Date 归一化（即必须是真实日历时间）。
func civil(y, mo, d, h, mi, s int) (time.Time, bool) {
	if y < 1900 || y > 2099 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(mo), d, h, mi, s, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d || t.Hour() != h || t.Minute() != mi || t.Second() != s {
		return time.Time{}, false
	}
	return t, true
}

func parseDateTime(m []string) (time.Time, bool) {
	n, ok := atoi(m)
	if !ok || len(n) != 6 {
		return time.Time{}, false
	}
	return civil(n[0], n[1], n[2], n[3], n[4], n[5])
}

func parseDate(m []string) (time.Time, bool) {
	n, ok := atoi(m)
	if !ok || len(n) != 3 {
		return time.Time{}, false
	}
	return civil(n[0], n[1], n[2], 0, 0, 0)
}

func parseMillis(m []string) (time.Time, bool) {
	ms, err := strconv.ParseInt(m[0], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC().Truncate(time.Second), true
}
