package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/photofix/internal/organize"
	"github.com/John-Robertt/photofix/internal/reconcile"
)

func TestLoadEffective_ConfigNotFound(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadEffective_ConfigMissingPath(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "photofix.json"), []byte(`{"concurrency":2}`))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeMissingPath {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeMissingPath, err, Code(err))
	}
}

func TestLoadEffective_Defaults(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "photofix.json"), []byte(`{"input":"takeout"}`))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := filepath.Join(cwd, "takeout")
	if eff.Input != want || eff.Dest != want {
		t.Fatalf("input/dest 不符合预期：%q %q", eff.Input, eff.Dest)
	}
	if eff.Apply {
		t.Fatalf("默认必须是 dry-run")
	}
	if eff.Concurrency != DefaultConcurrency {
		t.Fatalf("concurrency=%d", eff.Concurrency)
	}
	if !eff.SanityFloor.Equal(reconcile.DefaultFloor) {
		t.Fatalf("sanity_floor=%v", eff.SanityFloor)
	}
	if eff.DuplicateCheck != organize.CompareXXHash {
		t.Fatalf("duplicate_check=%q", eff.DuplicateCheck)
	}
	if !eff.SetMtime || eff.IORetries != DefaultIORetries || eff.LogLevel != "info" {
		t.Fatalf("默认值不符合预期：%+v", eff)
	}
	if eff.SidecarTimeout != DefaultSidecarTimeout {
		t.Fatalf("sidecar_timeout=%v", eff.SidecarTimeout)
	}
	if eff.ConfigPath != filepath.Join(cwd, "photofix.json") {
		t.Fatalf("config path=%q", eff.ConfigPath)
	}
}

func TestLoadEffective_ApplyCLIOverride(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "photofix.json"), []byte(`{"input":"photos","apply":true}`))

	eff, err := LoadEffective(cwd, CLIArgs{
		Apply:    false,
		ApplySet: true, // --apply=false
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Apply != false {
		t.Fatalf("期望 apply=false，实际=%v", eff.Apply)
	}
}

func TestLoadEffective_DestAndConcurrencyMergeOrder(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "photofix.json"), []byte(`{"input":"in","dest":"archive","concurrency":8}`))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Dest != filepath.Join(cwd, "archive") || eff.Concurrency != 8 {
		t.Fatalf("应使用配置文件的值：%q %d", eff.Dest, eff.Concurrency)
	}

	eff2, err := LoadEffective(cwd, CLIArgs{
		Dest:           "elsewhere",
		DestSet:        true,
		Concurrency:    100,
		ConcurrencySet: true,
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff2.Dest != filepath.Join(cwd, "elsewhere") {
		t.Fatalf("CLI dest 应覆盖配置：%q", eff2.Dest)
	}
	if eff2.Concurrency != MaxConcurrency {
		t.Fatalf("concurrency 应截断到 %d，实际=%d", MaxConcurrency, eff2.Concurrency)
	}
}

func TestLoadEffective_CLIInput_ConfigOptional(t *testing.T) {
	cwd := t.TempDir()
	root := filepath.Join(cwd, "root")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	eff, err := LoadEffective(cwd, CLIArgs{Input: "root"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Input != root || eff.ConfigPath != "" {
		t.Fatalf("input=%q config=%q", eff.Input, eff.ConfigPath)
	}
}

func TestLoadEffective_YAML(t *testing.T) {
	cwd := t.TempDir()
	root := filepath.Join(cwd, "root")
	writeFile(t, filepath.Join(root, "photofix.yaml"), []byte(`
dest: sorted
apply: true
exclude_dirs: [trash]
sanity_floor: "1990-01-01"
duplicate_check: blake3
suffix_format: "_%d"
max_suffix: 5
io_retries: 0
set_mtime: false
log_level: debug
sidecar_timeout: 3s
proxy:
  url: http://127.0.0.1:8080
`))

	eff, err := LoadEffective(cwd, CLIArgs{Input: root})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Dest != filepath.Join(root, "sorted") {
		t.Fatalf("dest 应以配置文件目录为基准：%q", eff.Dest)
	}
	if !eff.Apply || eff.SetMtime || eff.IORetries != 0 || eff.LogLevel != "debug" {
		t.Fatalf("yaml 字段未生效：%+v", eff)
	}
	if len(eff.ExcludeDirs) != 1 || eff.ExcludeDirs[0] != filepath.Join(root, "trash") {
		t.Fatalf("exclude_dirs=%v", eff.ExcludeDirs)
	}
	if !eff.SanityFloor.Equal(time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("sanity_floor=%v", eff.SanityFloor)
	}
	if eff.DuplicateCheck != organize.CompareBlake3 {
		t.Fatalf("duplicate_check=%q", eff.DuplicateCheck)
	}
	if eff.Suffix.Format != "_%d" || eff.Suffix.MaxAttempts != 5 {
		t.Fatalf("suffix=%+v", eff.Suffix)
	}
	if eff.SidecarTimeout != 3*time.Second || eff.ProxyURL != "http://127.0.0.1:8080" {
		t.Fatalf("timeout=%v proxy=%q", eff.SidecarTimeout, eff.ProxyURL)
	}
}

func TestLoadEffective_JSONWinsOverYAML(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "photofix.json"), []byte(`{"concurrency":3}`))
	writeFile(t, filepath.Join(root, "photofix.yaml"), []byte("concurrency: 7\n"))

	eff, err := LoadEffective(root, CLIArgs{Input: root})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Concurrency != 3 {
		t.Fatalf("photofix.json 应优先：concurrency=%d", eff.Concurrency)
	}
}

func TestLoadEffective_InvalidFields(t *testing.T) {
	cases := map[string]string{
		"bad json":        `{`,
		"floor":           `{"sanity_floor":"yesterday"}`,
		"duplicate_check": `{"duplicate_check":"md5"}`,
		"suffix":          `{"suffix_format":"-%s"}`,
		"suffix sep":      `{"suffix_format":"/%d"}`,
		"retries":         `{"io_retries":-1}`,
		"log level":       `{"log_level":"loud"}`,
		"timeout":         `{"sidecar_timeout":"soon"}`,
		"proxy":           `{"proxy":{"url":"::"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, "photofix.json"), []byte(body))
			_, err := LoadEffective(root, CLIArgs{Input: root})
			if Code(err) != ErrCodeInvalid {
				t.Fatalf("期望 %q，实际 err=%v", ErrCodeInvalid, err)
			}
		})
	}
}

func TestLoadEffective_YAMLUnknownFieldRejected(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "photofix.yml"), []byte("concurency: 2\n"))

	_, err := LoadEffective(root, CLIArgs{Input: root})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("yaml 拼写错误的字段应报 %q，实际 err=%v", ErrCodeInvalid, err)
	}
}

func TestClampConcurrency(t *testing.T) {
	cases := map[int]int{0: DefaultConcurrency, -3: 1, 1: 1, 16: 16, 33: MaxConcurrency}
	for in, want := range cases {
		if got := ClampConcurrency(in); got != want {
			t.Fatalf("ClampConcurrency(%d)=%d want=%d", in, got, want)
		}
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写文件失败：%v", err)
	}
}
