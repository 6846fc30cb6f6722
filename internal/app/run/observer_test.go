package run

import (
	"sync"
	"time"

	"github.com/John-Robertt/photofix/internal/config"
	"github.com/John-Robertt/photofix/internal/domain"
)

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	phases     []string
	items      []string
	lastTotal  int
}

func (o *recordObserver) OnStart(eff config.EffectiveConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, res.Src)
	o.lastTotal = total
}

func (o *recordObserver) OnProgress(done, total, updated, failed, skipped int, elapsed time.Duration) {
	// keepalive 由 CLI 触发；这里无需断言。
}
