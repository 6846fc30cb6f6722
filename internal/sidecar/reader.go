package sidecar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/John-Robertt/photofix/internal/domain"
)

// maxSidecarBytes 限制单个侧车的读取量（Takeout 侧车通常只有几 KB）。
const maxSidecarBytes = 1 << 20

// Reader 读取本地或远程（http/https）侧车。
type Reader struct {
	// Client 为 nil 时，远程侧车一律视为不可用（告警）。
	Client *http.Client

	// Timeout 是单次远程读取的上限；<=0 时只依赖 Client 自身的超时。
	Timeout time.Duration
}

// IsRemote 判断侧车位置是否为 http(s) URL。
func IsRemote(path string) bool {
	p := strings.ToLower(path)
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// Load 读取并解析侧车。ok=false 表示侧车不存在。
func (r Reader) Load(ctx context.Context, path string) (Record, bool, error) {
	if strings.TrimSpace(path) == "" {
		return Record{}, false, nil
	}

	var (
		b   []byte
		err error
	)
	if IsRemote(path) {
		b, err = r.fetch(ctx, path)
	} else {
		b, err = readLocal(path)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, unreadable(path, "读取失败", err)
	}

	rec, err := Parse(b)
	if err != nil {
		return Record{}, false, unreadable(path, "JSON 无法解析", err)
	}
	return rec, true, nil
}

// Read 返回 sidecar 来源的候选时间。
//
// - 侧车不存在：(zero, false, nil)
// - 侧车不可用或缺少时间字段：(zero, false, *Error)，调用方记告警后继续
func (r Reader) Read(ctx context.Context, path string) (domain.Candidate, bool, error) {
	rec, ok, err := r.Load(ctx, path)
	if err != nil || !ok {
		return domain.Candidate{}, false, err
	}
	if !rec.HasTakenAt {
		return domain.Candidate{}, false, unreadable(path, "缺少 photoTakenTime.timestamp", nil)
	}
	return domain.Candidate{Time: rec.TakenAt, Source: domain.SourceSidecar}, true, nil
}

func readLocal(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxSidecarBytes))
}

func (r Reader) fetch(ctx context.Context, url string) ([]byte, error) {
	if r.Client == nil {
		return nil, errors.New("未配置远程侧车 client")
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fs.ErrNotExist
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxSidecarBytes))
}
