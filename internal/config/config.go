package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/John-Robertt/photofix/internal/organize"
	"github.com/John-Robertt/photofix/internal/reconcile"
)

const (
	// ErrCodeNotFound 表示未指定 input 且 cwd 下没有配置文件。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示未指定 input 且配置文件缺少 input 字段。
	ErrCodeMissingPath = "config_missing_path"
)

const (
	// DefaultConcurrency 是并发的内置默认值（当配置未指定时）。
	DefaultConcurrency = 4
	// MaxConcurrency 是并发上限；超出截断。
	MaxConcurrency = 32
	// DefaultIORetries 是存储操作遇到瞬时错误时的默认重试次数。
	DefaultIORetries = 2
	// DefaultSidecarTimeout 是远程侧车单次读取的默认超时。
	DefaultSidecarTimeout = 10 * time.Second
	// DefaultLogLevel 是 stderr 日志的默认级别。
	DefaultLogLevel = "info"
)

// FileNames 是按顺序尝试的配置文件名；找到第一个即停止。
var FileNames = []string{"photofix.json", "photofix.yaml", "photofix.yml"}

// CLIArgs 只包含 CLI 暴露的入口（input/dest/apply/concurrency），并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 config.apply=true。
type CLIArgs struct {
	Input string

	Dest    string
	DestSet bool

	Apply    bool
	ApplySet bool

	Concurrency    int
	ConcurrencySet bool
}

// FileConfig 对应 photofix.json / photofix.yaml 的解析结构。
type FileConfig struct {
	Input          string       `json:"input" yaml:"input"`
	Dest           string       `json:"dest" yaml:"dest"`
	Apply          *bool        `json:"apply" yaml:"apply"`
	Concurrency    int          `json:"concurrency" yaml:"concurrency"`
	ExcludeDirs    []string     `json:"exclude_dirs" yaml:"exclude_dirs"`
	SanityFloor    string       `json:"sanity_floor" yaml:"sanity_floor"`
	DuplicateCheck string       `json:"duplicate_check" yaml:"duplicate_check"`
	SuffixFormat   string       `json:"suffix_format" yaml:"suffix_format"`
	MaxSuffix      int          `json:"max_suffix" yaml:"max_suffix"`
	IORetries      *int         `json:"io_retries" yaml:"io_retries"`
	SetMtime       *bool        `json:"set_mtime" yaml:"set_mtime"`
	LogLevel       string       `json:"log_level" yaml:"log_level"`
	SidecarTimeout string       `json:"sidecar_timeout" yaml:"sidecar_timeout"`
	Proxy          *ProxyConfig `json:"proxy" yaml:"proxy"`
}

type ProxyConfig struct {
	URL string `json:"url" yaml:"url"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Input string
	// Dest 是归档根目录；未配置时等于 Input（就地整理）。
	Dest  string
	Apply bool

	Concurrency int
	ExcludeDirs []string

	SanityFloor    time.Time
	DuplicateCheck organize.ContentPolicy
	Suffix         organize.SuffixPolicy
	IORetries      int
	SetMtime       bool

	LogLevel       string
	SidecarTimeout time.Duration
	ProxyURL       string

	// ConfigPath 是实际读取到的配置文件；未读取任何文件时为空。
	ConfigPath string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 input", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 input：尝试读取 <input>/photofix.{json,yaml,yml}（可选）
// 2) CLI 未提供 input：必须读取 <cwd>/photofix.{json,yaml,yml}（必选），且其中必须包含 input
//
// 覆盖优先级（固定）：
// - input：CLI > config
// - dest / apply / concurrency：CLI 显式指定 > config > 默认
// - 其他字段：仅由 config 控制（CLI 不暴露）
//
// 配置文件中的相对路径以配置文件所在目录为基准。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Input) != "" {
		input := absCleanFrom(cwdAbs, cli.Input)
		fc, cfgPath, err := discover(input)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		return merge(cwdAbs, input, input, cli, fc, cfgPath)
	}

	fc, cfgPath, err := discover(cwdAbs)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if cfgPath == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: filepath.Join(cwdAbs, FileNames[0]), Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Input) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}
	return merge(cwdAbs, cwdAbs, absCleanFrom(cwdAbs, fc.Input), cli, fc, cfgPath)
}

// discover 在 dir 下按 FileNames 顺序查找配置文件；都不存在时 cfgPath 为空。
func discover(dir string) (FileConfig, string, error) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		fc, exists, err := readFileConfig(p)
		if err != nil {
			return FileConfig{}, p, err
		}
		if exists {
			return fc, p, nil
		}
	}
	return FileConfig{}, "", nil
}

// merge 合并 CLI 与配置文件。cfgBase 是配置文件中相对路径的基准目录。
func merge(cwdAbs, cfgBase, input string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	dest := input
	if cli.DestSet && strings.TrimSpace(cli.Dest) != "" {
		dest = absCleanFrom(cwdAbs, cli.Dest)
	} else if strings.TrimSpace(fc.Dest) != "" {
		dest = absCleanFrom(cfgBase, fc.Dest)
	}

	// apply：CLI > config > 默认 false（dry-run）
	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	concurrency := fc.Concurrency
	if cli.ConcurrencySet {
		concurrency = cli.Concurrency
	}
	concurrency = ClampConcurrency(concurrency)

	floor := reconcile.DefaultFloor
	if s := strings.TrimSpace(fc.SanityFloor); s != "" {
		t, err := parseFloor(s)
		if err != nil {
			return invalid(err)
		}
		floor = t
	}

	policy, err := organize.ParseContentPolicy(fc.DuplicateCheck)
	if err != nil {
		return invalid(err)
	}

	suffix := organize.SuffixPolicy{Format: fc.SuffixFormat, MaxAttempts: fc.MaxSuffix}
	if err := suffix.Validate(); err != nil {
		return invalid(err)
	}

	retries := DefaultIORetries
	if fc.IORetries != nil {
		if *fc.IORetries < 0 {
			return invalid(fmt.Errorf("io_retries 不能为负数：%d", *fc.IORetries))
		}
		retries = *fc.IORetries
	}

	setMtime := true
	if fc.SetMtime != nil {
		setMtime = *fc.SetMtime
	}

	level := strings.ToLower(strings.TrimSpace(fc.LogLevel))
	if level == "" {
		level = DefaultLogLevel
	}
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return invalid(fmt.Errorf("log_level 只能是 debug/info/warn/error，实际是 %q", fc.LogLevel))
	}

	timeout := DefaultSidecarTimeout
	if s := strings.TrimSpace(fc.SidecarTimeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return invalid(fmt.Errorf("sidecar_timeout 无效：%q", s))
		}
		timeout = d
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid(fmt.Errorf("proxy.url 无效：%q", proxyURL))
		}
	}

	excludes := make([]string, 0, len(fc.ExcludeDirs))
	for _, d := range fc.ExcludeDirs {
		if strings.TrimSpace(d) == "" {
			continue
		}
		excludes = append(excludes, absCleanFrom(input, d))
	}

	return EffectiveConfig{
		Input:          input,
		Dest:           dest,
		Apply:          apply,
		Concurrency:    concurrency,
		ExcludeDirs:    excludes,
		SanityFloor:    floor,
		DuplicateCheck: policy,
		Suffix:         suffix,
		IORetries:      retries,
		SetMtime:       setMtime,
		LogLevel:       level,
		SidecarTimeout: timeout,
		ProxyURL:       proxyURL,
		ConfigPath:     cfgPath,
	}, nil
}

// ClampConcurrency 把并发数规范到 [1, MaxConcurrency]；0 取默认值。
func ClampConcurrency(n int) int {
	if n == 0 {
		n = DefaultConcurrency
	}
	if n < 1 {
		n = 1
	}
	if n > MaxConcurrency {
		n = MaxConcurrency
	}
	return n
}

// parseFloor 接受 RFC3339 或 YYYY-MM-DD（按 UTC 零点）。
func parseFloor(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("sanity_floor 无效：%q（期望 RFC3339 或 YYYY-MM-DD）", s)
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析配置文件；扩展名决定 JSON 还是 YAML。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.UnmarshalStrict(b, &fc)
	default:
		err = json.Unmarshal(b, &fc)
	}
	if err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
