package organize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/photofix/internal/infra/cache"
	"github.com/John-Robertt/photofix/internal/infra/fsx"
	"github.com/John-Robertt/photofix/internal/infra/retry"
)

// 通过可替换的函数指针，让测试能稳定模拟 EXDEV / 删除失败。
var (
	renameFile = fsx.Rename
	removeFile = fsx.Remove
)

// PlaceKind 描述一次落盘的结果。
type PlaceKind string

const (
	PlaceMoved           PlaceKind = "moved"
	PlaceReplacedInPlace PlaceKind = "replaced_in_place"
	PlaceAlreadyInPlace  PlaceKind = "already_in_place"
	PlaceDuplicate       PlaceKind = "duplicate"
)

type Placement struct {
	Dst  string
	Kind PlaceKind
}

// DestDir 返回 <root>/<YYYY>/<MM>（按 UTC 计算）。纯函数。
func DestDir(root string, t time.Time) string {
	u := t.UTC()
	return filepath.Join(root, fmt.Sprintf("%04d", u.Year()), fmt.Sprintf("%02d", int(u.Month())))
}

// Organizer 负责把文件放进按年月划分的目录。零值（除 Root 外）可用；必须以指针使用。
//
// 并发约束：同一目标目录内的“建目录 + 扫描已有名字 + 重名/重复判定 + 最终 rename”
// 在该目录的互斥锁内完成；不同目录之间互不阻塞。
type Organizer struct {
	Root    string
	Compare ContentPolicy
	Suffix  SuffixPolicy
	Retry   retry.Policy
	Hashes  *cache.Store

	locks keyedMutex

	// reserved 记录 dry-run 中已被预测占用的目标路径及将落在那里的源文件（本次运行内有效）。
	resMu    sync.Mutex
	reserved map[string]string
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

// Prepare 幂等地创建 t 对应的目标目录并返回它。路径类型冲突返回 *ConflictError。
func (o *Organizer) Prepare(t time.Time) (string, error) {
	dir := DestDir(o.Root, t)
	if err := fsx.EnsureDir(dir); err != nil {
		if fsx.IsPathTypeConflict(err) {
			return "", &ConflictError{Path: dir, Reason: "年月目录的位置已被文件占用", Err: err}
		}
		return "", err
	}
	return dir, nil
}

// Plan 只读地预测 src 的落盘结果（dry-run 使用），不创建目录、不移动文件。
// 同一次运行内已预测的目标会被占用，后续同名文件得到后缀。
func (o *Organizer) Plan(src, name string, t time.Time) (Placement, error) {
	dir := DestDir(o.Root, t)
	target := filepath.Join(dir, name)
	if samePath(src, target) {
		return Placement{Dst: target, Kind: PlaceAlreadyInPlace}, nil
	}

	unlock := o.locks.Lock(dir)
	defer unlock()

	if err := o.checkDirChain(dir); err != nil {
		return Placement{}, err
	}
	p, err := o.choose(dir, name, src, true)
	if err != nil {
		return Placement{}, err
	}
	if p.Kind == PlaceMoved {
		o.reserve(p.Dst, src)
	}
	return p, nil
}

// Place 把文件落到 t 对应的目录。
//
// staged 为空：移动 src 本身（跨盘时退化为复制 + 删除源）。
// staged 非空：staged 是已改写好的副本（必须位于目标目录内）；落盘成功后删除 src，
// 删除失败则撤回目标副本并返回错误，保证 src 保持原样、原位。
// 判定为 duplicate 时 staged 被丢弃，src 不动。
func (o *Organizer) Place(src, staged, name string, t time.Time) (Placement, error) {
	dir := DestDir(o.Root, t)
	target := filepath.Join(dir, name)

	unlock := o.locks.Lock(dir)
	defer unlock()

	discard := func() {
		if staged != "" {
			_ = os.Remove(staged)
		}
	}

	if samePath(src, target) {
		if staged == "" {
			return Placement{Dst: target, Kind: PlaceAlreadyInPlace}, nil
		}
		if err := o.Retry.Do(func() error { return renameFile(staged, target) }); err != nil {
			discard()
			return Placement{}, err
		}
		o.Hashes.Forget(target)
		return Placement{Dst: target, Kind: PlaceReplacedInPlace}, nil
	}

	if _, err := o.Prepare(t); err != nil {
		discard()
		return Placement{}, err
	}

	content := src
	if staged != "" {
		content = staged
	}
	p, err := o.choose(dir, name, content, false)
	if err != nil {
		discard()
		return Placement{}, err
	}
	if p.Kind == PlaceDuplicate {
		discard()
		return p, nil
	}

	if staged == "" {
		if err := o.move(src, p.Dst); err != nil {
			return Placement{}, err
		}
		return p, nil
	}

	if err := o.Retry.Do(func() error { return renameFile(staged, p.Dst) }); err != nil {
		discard()
		return Placement{}, err
	}
	if err := o.Retry.Do(func() error { return removeFile(src) }); err != nil {
		_ = os.Remove(p.Dst)
		return Placement{}, fmt.Errorf("删除源文件失败，已撤回目标副本：%w", err)
	}
	return p, nil
}

// choose 在 dir 内为 name 选出最终路径：空位即用；同名且内容相同判为 duplicate；
// 同名不同内容则按 SuffixPolicy 继续尝试。
func (o *Organizer) choose(dir, name, content string, dryRun bool) (Placement, error) {
	max := o.Suffix.maxAttempts()
	for n := 0; n <= max; n++ {
		cand := name
		if n > 0 {
			cand = o.Suffix.Name(name, n)
		}
		p := filepath.Join(dir, cand)
		if dryRun {
			if prev, ok := o.reservedBy(p); ok {
				same, err := o.sameFiles(content, prev)
				if err != nil {
					return Placement{}, err
				}
				if same {
					return Placement{Dst: p, Kind: PlaceDuplicate}, nil
				}
				continue
			}
		}

		fi, err := os.Lstat(p)
		if os.IsNotExist(err) {
			return Placement{Dst: p, Kind: PlaceMoved}, nil
		}
		if err != nil {
			return Placement{}, err
		}
		if !fi.Mode().IsRegular() {
			if n == 0 {
				return Placement{}, &ConflictError{Path: p, Reason: "目标文件名已被目录或特殊文件占用"}
			}
			continue
		}

		same, err := o.sameContent(content, p)
		if err != nil {
			return Placement{}, err
		}
		if same {
			return Placement{Dst: p, Kind: PlaceDuplicate}, nil
		}
	}
	return Placement{}, &ConflictError{
		Path:   filepath.Join(dir, name),
		Reason: fmt.Sprintf("重名候选已用尽（%d 个）", max),
	}
}

// move 移动 src 到 dst；跨盘时在目标目录生成临时副本再 rename，最后删除源。
func (o *Organizer) move(src, dst string) error {
	err := o.Retry.Do(func() error { return renameFile(src, dst) })
	if err == nil || !fsx.IsCrossDevice(err) {
		return err
	}

	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	tmp, err := fsx.CopyToTemp(src, filepath.Dir(dst), filepath.Base(dst))
	if err != nil {
		return err
	}
	_ = os.Chtimes(tmp, fi.ModTime(), fi.ModTime())
	if err := o.Retry.Do(func() error { return renameFile(tmp, dst) }); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	_ = fsx.SyncDir(filepath.Dir(dst))

	if err := o.Retry.Do(func() error { return removeFile(src) }); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("跨盘移动后删除源文件失败，已撤回目标副本：%w", err)
	}
	return nil
}

// checkDirChain 只读检查目标目录链上是否有文件挡路（dry-run 预测 destination_conflict）。
func (o *Organizer) checkDirChain(dir string) error {
	rel, err := filepath.Rel(o.Root, dir)
	if err != nil {
		return err
	}
	p := o.Root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		p = filepath.Join(p, part)
		fi, err := os.Stat(p)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return &ConflictError{Path: p, Reason: "年月目录的位置已被文件占用"}
		}
	}
	return nil
}

func (o *Organizer) reserve(p, src string) {
	o.resMu.Lock()
	defer o.resMu.Unlock()
	if o.reserved == nil {
		o.reserved = map[string]string{}
	}
	o.reserved[p] = src
}

func (o *Organizer) reservedBy(p string) (string, bool) {
	o.resMu.Lock()
	defer o.resMu.Unlock()
	src, ok := o.reserved[p]
	return src, ok
}
