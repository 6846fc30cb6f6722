package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRunReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := RunReport{
		Input:      "/abs/in",
		Dest:       "/abs/out",
		DryRun:     true,
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Items: []ItemResult{
			{Src: "img10.jpg", Outcome: OutcomeSkipped},
			{Src: "", Outcome: OutcomeFailed, ErrorKind: ErrConfigInvalid}, // 合成条目
			{Src: "img2.jpg", Outcome: OutcomeUpdated, Warnings: []Warning{{Kind: ErrSidecarUnreadable}}},
			{Src: "img1.jpg", Outcome: OutcomeMovedOnly},
			{Src: "b.mp4", Outcome: OutcomeFailed, ErrorKind: ErrNoTimestampAvailable},
		},
	}

	r.Finalize()

	// 自然序：img2 在 img10 之前；src=="" 排在最后。
	got := []string{r.Items[0].Src, r.Items[1].Src, r.Items[2].Src, r.Items[3].Src, r.Items[4].Src}
	want := []string{"b.mp4", "img1.jpg", "img2.jpg", "img10.jpg", ""}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("items 排序不符合契约：got=%v want=%v", got, want)
		}
	}

	s := r.Summary
	if s.Updated != 1 || s.MovedOnly != 1 || s.Skipped != 1 || s.Failed != 2 || s.Warnings != 1 {
		t.Fatalf("summary 统计不正确：%+v", s)
	}
	if s.ByError[ErrNoTimestampAvailable] != 1 || s.ByError[ErrConfigInvalid] != 1 || s.ByError[ErrSidecarUnreadable] != 1 {
		t.Fatalf("by_error 统计不正确：%+v", s.ByError)
	}
	if !r.HasFailures() || len(r.Failures()) != 2 {
		t.Fatalf("HasFailures/Failures 不正确：%v %v", r.HasFailures(), r.Failures())
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
	// warnings 必须输出为 []，而不是 null（稳定结构）。
	if bytes.Contains(b, []byte("\"warnings\":null")) {
		t.Fatalf("warnings 不应为 null：%s", string(b))
	}
}

func TestSourceRank_Order(t *testing.T) {
	order := []Source{SourceSidecar, SourceEmbedded, SourceFilename, SourceFilesystem}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() <= order[i].Rank() {
			t.Fatalf("优先级不符合约定：%s(%d) 应高于 %s(%d)", order[i-1], order[i-1].Rank(), order[i], order[i].Rank())
		}
	}
	if Source("bogus").Rank() != 0 {
		t.Fatalf("未知来源 rank 应为 0")
	}
}

func TestNormalizeTime_UTCSecond(t *testing.T) {
	in := time.Date(2021, 6, 1, 12, 0, 0, 999_000_000, time.FixedZone("CEST", 2*3600))
	got := NormalizeTime(in)
	want := time.Date(2021, 6, 1, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("NormalizeTime=%v want=%v", got, want)
	}
	if !SameInstant(in, want) {
		t.Fatalf("SameInstant 应为 true")
	}
}
