package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/John-Robertt/photofix/internal/domain"
)

var fixedNow = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func cand(src domain.Source, t time.Time) *domain.Candidate {
	return &domain.Candidate{Time: t, Source: src}
}

func TestReconcile_SidecarWins(t *testing.T) {
	p := Policy{Now: fixedNow}
	res, err := p.Reconcile(
		cand(domain.SourceEmbedded, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)),
		cand(domain.SourceSidecar, time.Date(2021, 6, 1, 10, 0, 0, 0, time.UTC)),
		cand(domain.SourceFilename, time.Date(2021, 6, 2, 0, 0, 0, 0, time.UTC)),
	)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := time.Date(2021, 6, 1, 10, 0, 0, 0, time.UTC)
	if !res.Authoritative.Time.Equal(want) || res.Authoritative.Source != domain.SourceSidecar {
		t.Fatalf("authoritative=%+v", res.Authoritative)
	}
	if !res.NeedsRewrite {
		t.Fatalf("嵌入时间不同，应需要写回")
	}
}

func TestReconcile_ImplausibleChain(t *testing.T) {
	p := Policy{Now: fixedNow}

	// sidecar 是 1970 年占位值：丢弃后落到 embedded。
	res, err := p.Reconcile(
		cand(domain.SourceEmbedded, time.Date(2018, 5, 5, 0, 0, 0, 0, time.UTC)),
		cand(domain.SourceSidecar, time.Unix(0, 0)),
		nil,
	)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Authoritative.Source != domain.SourceEmbedded || res.NeedsRewrite {
		t.Fatalf("期望选中 embedded 且无需写回：%+v", res)
	}
	if len(res.Discarded) != 1 || res.Discarded[0].Candidate.Source != domain.SourceSidecar {
		t.Fatalf("discarded 记录不正确：%+v", res.Discarded)
	}

	// sidecar 在未来、embedded 缺失：落到 filename。
	res, err = p.Reconcile(
		nil,
		cand(domain.SourceSidecar, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)),
		cand(domain.SourceFilename, time.Date(2021, 6, 2, 0, 0, 0, 0, time.UTC)),
	)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Authoritative.Source != domain.SourceFilename || !res.NeedsRewrite {
		t.Fatalf("期望选中 filename 且需要写回：%+v", res)
	}
}

func TestReconcile_NoTimestamp(t *testing.T) {
	p := Policy{Now: fixedNow}

	_, err := p.Reconcile(nil, nil, nil)
	if !errors.Is(err, ErrNoTimestamp) {
		t.Fatalf("期望 ErrNoTimestamp，实际 %v", err)
	}

	_, err = p.Reconcile(
		cand(domain.SourceEmbedded, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)),
		nil,
		cand(domain.SourceFilesystem, time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)),
	)
	var ne *NoTimestampError
	if !errors.As(err, &ne) || len(ne.Discarded) != 2 || ne.Kind() != domain.ErrNoTimestampAvailable {
		t.Fatalf("期望 NoTimestampError 且记录 2 个丢弃：%v", err)
	}
}

func TestReconcile_SameInstantNoRewrite(t *testing.T) {
	p := Policy{Now: fixedNow}
	at := time.Date(2021, 6, 1, 10, 0, 0, 0, time.UTC)

	// 亚秒差异不算不同。
	res, err := p.Reconcile(
		cand(domain.SourceEmbedded, at),
		cand(domain.SourceSidecar, at.Add(400*time.Millisecond).In(time.FixedZone("", 7200))),
		nil,
	)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.NeedsRewrite || res.Authoritative.Source != domain.SourceSidecar {
		t.Fatalf("期望 sidecar 且无需写回：%+v", res)
	}
	if res.Authoritative.Time.Location() != time.UTC {
		t.Fatalf("权威时间应为 UTC")
	}
}

func TestReconcile_CustomFloor(t *testing.T) {
	p := Policy{Now: fixedNow, Floor: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)}
	res, err := p.Reconcile(
		cand(domain.SourceEmbedded, time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC)),
		nil,
		cand(domain.SourceFilename, time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)),
	)
	if err != nil || res.Authoritative.Source != domain.SourceFilename {
		t.Fatalf("期望下限生效：res=%+v err=%v", res, err)
	}
}
