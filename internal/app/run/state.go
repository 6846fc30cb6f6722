package run

import (
	"fmt"

	"github.com/John-Robertt/photofix/internal/domain"
)

// transitions 是单文件状态机的全部合法边；任何状态都可以进入 failed。
// dry-run 走同样的边，只是 rewritten/organized 表示“预测会发生”。
var transitions = map[domain.Stage][]domain.Stage{
	domain.StageDiscovered:      {domain.StageMetadataRead},
	domain.StageMetadataRead:    {domain.StageReconciled},
	domain.StageReconciled:      {domain.StageRewritten, domain.StageNoRewriteNeeded},
	domain.StageRewritten:       {domain.StageOrganized},
	domain.StageNoRewriteNeeded: {domain.StageOrganized},
	domain.StageOrganized:       {domain.StageDone},
}

// fileState 记录单个文件当前所处的状态。只在处理该文件的 goroutine 内使用。
type fileState struct {
	cur domain.Stage
	// last 是进入 failed 之前的最后一个状态，写入报告便于定位失败发生在哪一步。
	last domain.Stage
}

func newFileState() *fileState {
	return &fileState{cur: domain.StageDiscovered, last: domain.StageDiscovered}
}

// to 推进状态；非法迁移是程序错误，直接 panic。
func (s *fileState) to(next domain.Stage) {
	if s.cur == domain.StageDone || s.cur == domain.StageFailed {
		panic(fmt.Sprintf("run: 终态 %s 不能再迁移到 %s", s.cur, next))
	}
	if next == domain.StageFailed {
		s.last = s.cur
		s.cur = next
		return
	}
	for _, ok := range transitions[s.cur] {
		if ok == next {
			s.last = s.cur
			s.cur = next
			return
		}
	}
	panic(fmt.Sprintf("run: 非法状态迁移 %s -> %s", s.cur, next))
}

// reported 返回写入报告的 stage：成功为 done，失败为失败发生时所处的状态。
func (s *fileState) reported() domain.Stage {
	if s.cur == domain.StageFailed {
		return s.last
	}
	return s.cur
}
