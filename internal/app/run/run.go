package run

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/John-Robertt/photofix/internal/app"
	"github.com/John-Robertt/photofix/internal/config"
	"github.com/John-Robertt/photofix/internal/domain"
	"github.com/John-Robertt/photofix/internal/embedded"
	"github.com/John-Robertt/photofix/internal/filedate"
	"github.com/John-Robertt/photofix/internal/infra/cache"
	"github.com/John-Robertt/photofix/internal/infra/fsx"
	"github.com/John-Robertt/photofix/internal/infra/httpx"
	"github.com/John-Robertt/photofix/internal/infra/retry"
	"github.com/John-Robertt/photofix/internal/organize"
	"github.com/John-Robertt/photofix/internal/reconcile"
	"github.com/John-Robertt/photofix/internal/scan"
	"github.com/John-Robertt/photofix/internal/sidecar"
)

// retryBackoff 是存储操作遇到瞬时错误时的基础退避。
const retryBackoff = 50 * time.Millisecond

// Options 是 Process 的全部输入（除文件列表外）。零值可用：dry-run、默认并发、默认下限。
type Options struct {
	// RunID 为空时自动生成。
	RunID string

	// Input / Dest 只用于报告与相对路径展示；实际落盘位置由 Organizer.Root 决定。
	Input string
	Dest  string
	Apply bool

	Concurrency int
	Policy      reconcile.Policy
	// Organizer 为 nil 时以 Dest 为根新建一个（不带 hash 缓存）。
	Organizer *organize.Organizer
	Sidecars  sidecar.Reader
	SetMtime  bool

	Logger   *zap.Logger
	Observer Observer
}

func (o Options) withDefaults() Options {
	o.Concurrency = config.ClampConcurrency(o.Concurrency)
	if o.Organizer == nil {
		o.Organizer = &organize.Organizer{Root: o.Dest}
	}
	if o.Dest == "" {
		o.Dest = o.Organizer.Root
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	return o
}

// Execute 执行一次 run（dry-run/apply）：发现（scan + 侧车配对）后交给 Process。
// 该函数尽量把错误“降级”为 item 级失败（单条失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, obs Observer) domain.RunReport {
	return ExecuteWithLogger(ctx, eff, obs, nil)
}

// ExecuteWithLogger 与 Execute 相同，但允许注入 logger（CLI 按 log_level 构造；nil 表示不输出）。
func ExecuteWithLogger(ctx context.Context, eff config.EffectiveConfig, obs Observer, log *zap.Logger) domain.RunReport {
	started := time.Now().UTC()
	if log == nil {
		log = zap.NewNop()
	}
	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Input:     eff.Input,
		Dest:      eff.Dest,
		DryRun:    !eff.Apply,
		StartedAt: started,
		Items:     []domain.ItemResult{},
	}
	abort := func(kind domain.ErrorKind, msg string) domain.RunReport {
		rr.Items = append(rr.Items, syntheticFailed(kind, msg))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	client, err := httpx.NewSidecarClient(eff.SidecarTimeout, eff.ProxyURL)
	if err != nil {
		return abort(domain.ErrConfigInvalid, fmt.Sprintf("proxy.url 无效：%v", err))
	}

	scanStarted := time.Now()
	found, err := scan.ScanMedia(eff.Input, eff.Dest, eff.ExcludeDirs)
	if err != nil {
		return abort(domain.ErrIOFailure, fmt.Sprintf("扫描失败：%v", err))
	}
	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{
			"files":    len(found.Media),
			"sidecars": len(found.Sidecars),
		}, time.Since(scanStarted))
	}

	pairStarted := time.Now()
	pairs := app.PairSidecars(found.Media, found.Sidecars)
	if obs != nil {
		withSidecar := 0
		for i := range pairs {
			if pairs[i].SidecarPath != "" {
				withSidecar++
			}
		}
		obs.OnPhaseDone("pair", map[string]any{
			"pairs":        len(pairs),
			"with_sidecar": withSidecar,
		}, time.Since(pairStarted))
	}

	org := &organize.Organizer{
		Root:    eff.Dest,
		Compare: eff.DuplicateCheck,
		Suffix:  eff.Suffix,
		Retry:   retry.New(eff.IORetries, retryBackoff),
		Hashes:  cache.Open(eff.Dest, !eff.Apply),
	}

	out := Process(ctx, pairs, Options{
		RunID:       rr.RunID,
		Input:       eff.Input,
		Dest:        eff.Dest,
		Apply:       eff.Apply,
		Concurrency: eff.Concurrency,
		Policy:      reconcile.Policy{Floor: eff.SanityFloor},
		Organizer:   org,
		Sidecars:    sidecar.Reader{Client: client, Timeout: eff.SidecarTimeout},
		SetMtime:    eff.SetMtime,
		Logger:      log,
		Observer:    obs,
	})
	out.StartedAt = started
	out.Finalize()
	return out
}

// Process 是核心入口：对已配对的文件并发执行“读取 → 仲裁 → 改写 → 归档”，返回报告。
//
// 每个文件恰好产生一条 ItemResult。ctx 取消后不再派发新文件（记为 failed/interrupted），
// 已派发的文件照常完成，避免中途打断 I/O。
func Process(ctx context.Context, pairs []domain.Pair, opts Options) domain.RunReport {
	if ctx == nil {
		ctx = context.Background()
	}
	opts = opts.withDefaults()

	rr := domain.RunReport{
		RunID:     opts.RunID,
		Input:     opts.Input,
		Dest:      opts.Dest,
		DryRun:    !opts.Apply,
		StartedAt: time.Now().UTC(),
		Items:     make([]domain.ItemResult, 0, len(pairs)),
	}
	log := opts.Logger.With(zap.String("run_id", rr.RunID), zap.Bool("dry_run", rr.DryRun))

	// 执行阶段：按文件并发（worker pool），文件内串行。
	workers := opts.Concurrency
	if obs := opts.Observer; obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"workers":     workers,
			"total_items": len(pairs),
		}, 0)
	}
	log.Info("开始处理", zap.Int("files", len(pairs)), zap.Int("workers", workers))

	type execResult struct {
		res domain.ItemResult
		dur time.Duration
	}

	jobs := make(chan domain.Pair)
	results := make(chan execResult, len(pairs))

	p := &processor{opts: opts, log: log}
	// 已派发的文件不受取消影响（远程侧车读取仍受各自的超时约束）。
	work := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pr := range jobs {
				oneStarted := time.Now()
				r := p.one(work, pr)
				results <- execResult{res: r, dur: time.Since(oneStarted)}
			}
		}()
	}

	go func() {
		defer func() {
			close(jobs)
			wg.Wait()
			close(results)
		}()
		for i, pr := range pairs {
			if ctx.Err() == nil {
				select {
				case jobs <- pr:
					continue
				case <-ctx.Done():
				}
			}
			for _, rest := range pairs[i:] {
				results <- execResult{res: interruptedItem(rest)}
			}
			log.Warn("运行已取消，剩余文件未派发", zap.Int("interrupted", len(pairs)-i))
			return
		}
	}()

	done := 0
	for it := range results {
		done++
		rr.Items = append(rr.Items, it.res)
		if obs := opts.Observer; obs != nil {
			obs.OnItemDone(done, len(pairs), it.res, it.dur)
		}
	}

	// hash 缓存只在 apply 下落盘；dry-run 的 Store 是只读的。
	if opts.Apply && opts.Organizer.Hashes != nil {
		if err := opts.Organizer.Hashes.Save(); err != nil {
			log.Warn("保存 hash 缓存失败", zap.String("path", opts.Organizer.Hashes.Path()), zap.Error(err))
		}
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	log.Info("处理完成",
		zap.Int("updated", rr.Summary.Updated),
		zap.Int("moved_only", rr.Summary.MovedOnly),
		zap.Int("skipped", rr.Summary.Skipped),
		zap.Int("failed", rr.Summary.Failed),
	)
	return rr
}

type processor struct {
	opts Options
	log  *zap.Logger
}

// one 处理单个文件。Failed 的文件保持原样、原位：所有写入都先落在目标目录的临时副本上。
func (p *processor) one(ctx context.Context, pr domain.Pair) domain.ItemResult {
	m := pr.Media
	st := newFileState()
	item := domain.ItemResult{
		Src:      srcOf(m),
		Sidecar:  pr.SidecarPath,
		Warnings: []domain.Warning{},
	}
	log := p.log.With(zap.String("src", m.AbsPath))

	fail := func(err error) domain.ItemResult {
		st.to(domain.StageFailed)
		item.Outcome = domain.OutcomeFailed
		item.Stage = st.reported()
		item.ErrorKind = classify(err)
		item.ErrorMsg = err.Error()
		log.Warn("处理失败",
			zap.String("stage", string(item.Stage)),
			zap.String("error_kind", string(item.ErrorKind)),
			zap.Error(err),
		)
		return item
	}

	// 1) 读取三个来源。侧车问题只记告警。
	var side, emb, fallback *domain.Candidate
	if c, ok, err := p.opts.Sidecars.Read(ctx, pr.SidecarPath); err != nil {
		item.Warnings = append(item.Warnings, domain.Warning{Kind: domain.ErrSidecarUnreadable, Msg: err.Error()})
		log.Warn("侧车不可用", zap.String("sidecar", pr.SidecarPath), zap.Error(err))
	} else if ok {
		side = &c
	}
	if c, ok, err := embedded.ReadTimestamp(m.AbsPath); err != nil {
		return fail(err)
	} else if ok {
		emb = &c
	}
	if c, ok := filedate.Extract(m); ok {
		fallback = &c
	}
	st.to(domain.StageMetadataRead)
	log.Debug("来源读取完成",
		zap.Bool("sidecar", side != nil),
		zap.Bool("embedded", emb != nil),
		zap.Bool("fallback", fallback != nil),
	)

	// 2) 仲裁。
	res, err := p.opts.Policy.Reconcile(emb, side, fallback)
	if err != nil {
		return fail(err)
	}
	for _, d := range res.Discarded {
		item.Warnings = append(item.Warnings, domain.Warning{
			Kind: domain.WarnImplausibleTimestamp,
			Msg:  fmt.Sprintf("%s=%s：%s", d.Candidate.Source, d.Candidate.Time.UTC().Format(time.RFC3339), d.Reason),
		})
	}
	st.to(domain.StageReconciled)

	auth := res.Authoritative
	item.Timestamp = auth.Time.UTC().Format(time.RFC3339)
	item.Source = auth.Source
	name := m.Name()

	// 需要改写但写不进去的文件，在 dry-run 与 apply 下都在建目录之前失败。
	if res.NeedsRewrite {
		if err := embedded.CheckWritable(m.AbsPath); err != nil {
			return fail(err)
		}
	}

	// 3) dry-run：只预测，不写、不建目录。
	if !p.opts.Apply {
		pl, err := p.opts.Organizer.Plan(m.AbsPath, name, auth.Time)
		if err != nil {
			return fail(err)
		}
		st.to(rewriteStage(res.NeedsRewrite))
		st.to(domain.StageOrganized)
		return p.finish(st, item, pl, res.NeedsRewrite, log)
	}

	// 4) apply：改写结果先落在目标目录的临时副本里，再由 Organizer 原子地放到最终位置。
	staged := ""
	if res.NeedsRewrite {
		dir, err := p.opts.Organizer.Prepare(auth.Time)
		if err != nil {
			return fail(err)
		}
		staged, err = embedded.Stage(m.AbsPath, dir, name, auth.Time)
		if err != nil {
			return fail(err)
		}
	}
	st.to(rewriteStage(res.NeedsRewrite))

	pl, err := p.opts.Organizer.Place(m.AbsPath, staged, name, auth.Time)
	if err != nil {
		return fail(err)
	}
	st.to(domain.StageOrganized)

	if p.opts.SetMtime && (pl.Kind == organize.PlaceMoved || pl.Kind == organize.PlaceReplacedInPlace) {
		if err := fsx.SetTimes(pl.Dst, auth.Time); err != nil {
			item.Warnings = append(item.Warnings, domain.Warning{Kind: domain.ErrIOFailure, Msg: fmt.Sprintf("设置文件时间失败：%v", err)})
			log.Warn("设置文件时间失败", zap.String("dst", pl.Dst), zap.Error(err))
		}
	}
	return p.finish(st, item, pl, res.NeedsRewrite, log)
}

func (p *processor) finish(st *fileState, item domain.ItemResult, pl organize.Placement, rewrite bool, log *zap.Logger) domain.ItemResult {
	item.Dst = relTo(p.opts.Dest, pl.Dst)
	switch pl.Kind {
	case organize.PlaceMoved:
		item.Outcome = domain.OutcomeMovedOnly
		if rewrite {
			item.Outcome = domain.OutcomeUpdated
		}
	case organize.PlaceReplacedInPlace:
		item.Outcome = domain.OutcomeUpdated
	case organize.PlaceAlreadyInPlace:
		// dry-run 下“已在原位但需改写”只能由 Plan 给出。
		item.Outcome = domain.OutcomeSkipped
		if rewrite {
			item.Outcome = domain.OutcomeUpdated
		}
	default:
		item.Outcome = domain.OutcomeSkipped
	}
	st.to(domain.StageDone)
	item.Stage = st.reported()

	log.Debug("文件处理完成",
		zap.String("dst", pl.Dst),
		zap.String("placement", string(pl.Kind)),
		zap.String("outcome", string(item.Outcome)),
		zap.String("source", string(item.Source)),
		zap.String("timestamp", item.Timestamp),
	)
	return item
}

func rewriteStage(needsRewrite bool) domain.Stage {
	if needsRewrite {
		return domain.StageRewritten
	}
	return domain.StageNoRewriteNeeded
}

func interruptedItem(pr domain.Pair) domain.ItemResult {
	return domain.ItemResult{
		Src:       srcOf(pr.Media),
		Sidecar:   pr.SidecarPath,
		Outcome:   domain.OutcomeFailed,
		Stage:     domain.StageDiscovered,
		ErrorKind: domain.ErrInterrupted,
		ErrorMsg:  "运行已取消，文件未被处理",
		Warnings:  []domain.Warning{},
	}
}

func syntheticFailed(kind domain.ErrorKind, msg string) domain.ItemResult {
	return domain.ItemResult{
		Outcome:   domain.OutcomeFailed,
		ErrorKind: kind,
		ErrorMsg:  msg,
		Warnings:  []domain.Warning{},
	}
}

func srcOf(m domain.MediaFile) string {
	if m.RelPath != "" {
		return m.RelPath
	}
	return m.AbsPath
}

// relTo 尽量输出相对 base 的路径；失败则输出原始路径（至少可追溯）。
func relTo(base, p string) string {
	if base == "" {
		return p
	}
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return p
	}
	return rel
}
