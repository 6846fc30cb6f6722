package run

import (
	"encoding/json"
	"path/filepath"

	"github.com/John-Robertt/photofix/internal/domain"
	"github.com/John-Robertt/photofix/internal/infra/cache"
	"github.com/John-Robertt/photofix/internal/infra/fsx"
)

const reportFile = "report.json"

// ReportPath 返回 apply 模式下 report.json 的位置：<dest>/.photofix/report.json。
func ReportPath(dest string) string {
	return filepath.Join(cache.StateDir(dest), reportFile)
}

// WriteReport 原子写入 report.json（覆盖上一次的报告）。只应在 apply 模式下调用；dry-run 禁止落盘。
func WriteReport(dest string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(cache.StateDir(dest), reportFile, b)
}
