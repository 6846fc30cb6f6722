package organize

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	DefaultSuffixFormat = "-%d"
	DefaultMaxAttempts  = 999
)

// SuffixPolicy 生成重名时的候选文件名：IMG.jpg -> IMG-1.jpg -> IMG-2.jpg ...
type SuffixPolicy struct {
	// Format 必须恰好包含一个 %d，且不能包含路径分隔符。
	Format string
	// MaxAttempts 是最多尝试的后缀数量；用尽后返回 destination_conflict。
	MaxAttempts int
}

func (s SuffixPolicy) Validate() error {
	f := s.format()
	if strings.Count(f, "%") != 1 || strings.Count(f, "%d") != 1 {
		return fmt.Errorf("suffix_format 必须恰好包含一个 %%d：%q", f)
	}
	if strings.ContainsAny(f, `/\`) {
		return fmt.Errorf("suffix_format 不能包含路径分隔符：%q", f)
	}
	if s.MaxAttempts < 0 {
		return fmt.Errorf("max_suffix 不能为负数：%d", s.MaxAttempts)
	}
	return nil
}

func (s SuffixPolicy) format() string {
	if s.Format == "" {
		return DefaultSuffixFormat
	}
	return s.Format
}

func (s SuffixPolicy) maxAttempts() int {
	if s.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return s.MaxAttempts
}

// Name 返回第 n 个候选名（n>=1）；扩展名保持原样。
func (s SuffixPolicy) Name(name string, n int) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return base + fmt.Sprintf(s.format(), n) + ext
}
