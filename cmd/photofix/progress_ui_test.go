package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/photofix/internal/config"
	"github.com/John-Robertt/photofix/internal/domain"
)

func TestProgressUI_PrintsConfigPhasesAndFailures(t *testing.T) {
	var buf bytes.Buffer
	ui := newProgressUI(&buf)
	ui.tickerInterval = time.Hour

	ui.OnStart(config.EffectiveConfig{Input: "/in", Dest: "/out", Concurrency: 4})
	ui.OnPhaseDone("scan", map[string]any{"files": 2, "sidecars": 1}, 1500*time.Millisecond)
	ui.OnPhaseDone("pair", map[string]any{"pairs": 2, "with_sidecar": 1}, 0)
	ui.OnPhaseDone("exec", map[string]any{"workers": 4, "total_items": 2}, 0)
	ui.OnItemDone(1, 2, domain.ItemResult{Src: "a.jpg", Outcome: domain.OutcomeUpdated}, time.Millisecond)
	ui.OnItemDone(2, 2, domain.ItemResult{
		Src:       "b.png",
		Outcome:   domain.OutcomeFailed,
		ErrorKind: domain.ErrUnsupportedFormat,
		ErrorMsg:  "不支持的容器",
	}, time.Millisecond)

	out := buf.String()
	for _, want := range []string{
		"photofix run (dry-run)",
		"input: /in",
		"扫描: files=2 sidecars=1 (1.5s)",
		"配对: pairs=2 with_sidecar=1",
		"执行: workers=4 total_items=2",
		"[2/2] b.png FAIL unsupported_format: 不支持的容器",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("输出缺少 %q：\n%s", want, out)
		}
	}
	if strings.Contains(out, "a.jpg") {
		t.Fatalf("成功条目不应逐行打印：\n%s", out)
	}
	if ui.tickerStarted {
		t.Fatalf("全部完成后 ticker 应已停止")
	}
	if ui.updated != 1 || ui.failed != 1 {
		t.Fatalf("计数不正确：updated=%d failed=%d", ui.updated, ui.failed)
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := formatElapsed(3725 * time.Second); got != "01:02:05" {
		t.Fatalf("formatElapsed=%q", got)
	}
	if got := formatProxy("http://u:p@127.0.0.1:8080"); got != "on (http://127.0.0.1:8080, auth=on)" {
		t.Fatalf("formatProxy=%q", got)
	}
	if got := formatStringListJSON(nil); got != "[]" {
		t.Fatalf("formatStringListJSON=%q", got)
	}
	if got := truncate("abcdefgh", 6); got != "abc..." {
		t.Fatalf("truncate=%q", got)
	}
}
