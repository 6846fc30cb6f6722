package organize

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/John-Robertt/photofix/internal/infra/cache"
	"github.com/John-Robertt/photofix/internal/infra/fsx"
)

var june = time.Date(2021, 6, 1, 10, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, p, body string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	return p
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("读取 %s 失败：%v", p, err)
	}
	return string(b)
}

func exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

func TestDestDir_UTC(t *testing.T) {
	// 2021-06-30T23:30-02:00 在 UTC 下已是 7 月。
	at := time.Date(2021, 6, 30, 23, 30, 0, 0, time.FixedZone("", -2*3600))
	got := DestDir("/root", at)
	if got != filepath.Join("/root", "2021", "07") {
		t.Fatalf("DestDir=%q", got)
	}
}

func TestPlace_MoveAndCollisionAndDuplicate(t *testing.T) {
	in := t.TempDir()
	root := t.TempDir()
	o := &Organizer{Root: root}

	a := writeFile(t, filepath.Join(in, "a", "IMG.jpg"), "one")
	p, err := o.Place(a, "", "IMG.jpg", june)
	if err != nil {
		t.Fatalf("Place 失败：%v", err)
	}
	want := filepath.Join(root, "2021", "06", "IMG.jpg")
	if p.Kind != PlaceMoved || p.Dst != want || exists(a) || readFile(t, want) != "one" {
		t.Fatalf("placement=%+v", p)
	}

	// 同名不同内容：-1、-2。
	b := writeFile(t, filepath.Join(in, "b", "IMG.jpg"), "two")
	c := writeFile(t, filepath.Join(in, "c", "IMG.jpg"), "333")
	pb, err := o.Place(b, "", "IMG.jpg", june)
	if err != nil || filepath.Base(pb.Dst) != "IMG-1.jpg" {
		t.Fatalf("期望 IMG-1.jpg：%+v err=%v", pb, err)
	}
	pc, err := o.Place(c, "", "IMG.jpg", june)
	if err != nil || filepath.Base(pc.Dst) != "IMG-2.jpg" {
		t.Fatalf("期望 IMG-2.jpg：%+v err=%v", pc, err)
	}

	// 内容与 IMG-1.jpg 相同：duplicate，源文件保持不动。
	d := writeFile(t, filepath.Join(in, "d", "IMG.jpg"), "two")
	pd, err := o.Place(d, "", "IMG.jpg", june)
	if err != nil || pd.Kind != PlaceDuplicate || filepath.Base(pd.Dst) != "IMG-1.jpg" {
		t.Fatalf("期望 duplicate：%+v err=%v", pd, err)
	}
	if !exists(d) {
		t.Fatalf("duplicate 时源文件不应被移动")
	}
}

func TestPlace_ContentPolicies(t *testing.T) {
	for _, policy := range []ContentPolicy{CompareXXHash, CompareBlake3, CompareBlake2b, CompareBytes} {
		t.Run(string(policy), func(t *testing.T) {
			in := t.TempDir()
			root := t.TempDir()
			hashes := cache.Open(root, false)
			o := &Organizer{Root: root, Compare: policy, Hashes: hashes}

			writeFile(t, filepath.Join(root, "2021", "06", "x.mp4"), "same-bytes")
			src := writeFile(t, filepath.Join(in, "x.mp4"), "same-bytes")
			p, err := o.Place(src, "", "x.mp4", june)
			if err != nil || p.Kind != PlaceDuplicate {
				t.Fatalf("期望 duplicate：%+v err=%v", p, err)
			}

			// 同大小不同内容：不是 duplicate。
			other := writeFile(t, filepath.Join(in, "y", "x.mp4"), "diff-bytes")
			p, err = o.Place(other, "", "x.mp4", june)
			if err != nil || p.Kind != PlaceMoved || filepath.Base(p.Dst) != "x-1.mp4" {
				t.Fatalf("期望 x-1.mp4：%+v err=%v", p, err)
			}

			if policy != CompareBytes && hashes.Len() == 0 {
				t.Fatalf("目标文件摘要应写入缓存")
			}
		})
	}
}

func TestPlace_StagedRemovesSource(t *testing.T) {
	in := t.TempDir()
	root := t.TempDir()
	o := &Organizer{Root: root}

	src := writeFile(t, filepath.Join(in, "IMG.jpg"), "old")
	dir, err := o.Prepare(june)
	if err != nil {
		t.Fatalf("Prepare 失败：%v", err)
	}
	staged := writeFile(t, filepath.Join(dir, ".IMG.jpg.tmp-1"), "new")

	p, err := o.Place(src, staged, "IMG.jpg", june)
	if err != nil || p.Kind != PlaceMoved {
		t.Fatalf("Place 失败：%+v err=%v", p, err)
	}
	if exists(src) || exists(staged) || readFile(t, p.Dst) != "new" {
		t.Fatalf("源文件应删除、临时副本应被 rename 到目标")
	}
}

func TestPlace_SourceRemoveFailureRollsBack(t *testing.T) {
	in := t.TempDir()
	root := t.TempDir()
	o := &Organizer{Root: root}

	old := removeFile
	removeFile = func(string) error { return os.ErrPermission }
	defer func() { removeFile = old }()

	src := writeFile(t, filepath.Join(in, "IMG.jpg"), "old")
	dir, _ := o.Prepare(june)
	staged := writeFile(t, filepath.Join(dir, ".IMG.jpg.tmp-1"), "new")

	_, err := o.Place(src, staged, "IMG.jpg", june)
	if !errors.Is(err, os.ErrPermission) {
		t.Fatalf("期望权限错误，实际：%v", err)
	}
	if readFile(t, src) != "old" {
		t.Fatalf("源文件必须保持原样")
	}
	if exists(filepath.Join(dir, "IMG.jpg")) || exists(staged) {
		t.Fatalf("目标副本应被撤回")
	}
}

func TestPlace_InPlace(t *testing.T) {
	root := t.TempDir()
	o := &Organizer{Root: root}
	dst := writeFile(t, filepath.Join(root, "2021", "06", "IMG.jpg"), "old")

	p, err := o.Place(dst, "", "IMG.jpg", june)
	if err != nil || p.Kind != PlaceAlreadyInPlace || readFile(t, dst) != "old" {
		t.Fatalf("期望 already_in_place：%+v err=%v", p, err)
	}

	staged := writeFile(t, filepath.Join(root, "2021", "06", ".IMG.jpg.tmp-1"), "new")
	p, err = o.Place(dst, staged, "IMG.jpg", june)
	if err != nil || p.Kind != PlaceReplacedInPlace || readFile(t, dst) != "new" || exists(staged) {
		t.Fatalf("期望 replaced_in_place：%+v err=%v", p, err)
	}
}

func TestPlace_PathTypeConflicts(t *testing.T) {
	in := t.TempDir()
	root := t.TempDir()
	o := &Organizer{Root: root}

	// 2021 是文件。
	writeFile(t, filepath.Join(root, "2021"), "x")
	src := writeFile(t, filepath.Join(in, "a.jpg"), "a")
	if _, err := o.Place(src, "", "a.jpg", june); !IsConflict(err) {
		t.Fatalf("期望 ConflictError，实际：%v", err)
	}
	if _, err := o.Plan(src, "a.jpg", june); !IsConflict(err) {
		t.Fatalf("Plan 期望 ConflictError，实际：%v", err)
	}

	// 目标文件名是目录。
	root2 := t.TempDir()
	o2 := &Organizer{Root: root2}
	if err := os.MkdirAll(filepath.Join(root2, "2021", "06", "a.jpg"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if _, err := o2.Place(src, "", "a.jpg", june); !IsConflict(err) {
		t.Fatalf("期望 ConflictError，实际：%v", err)
	}
	if !exists(src) {
		t.Fatalf("冲突时源文件不应移动")
	}
}

func TestPlace_SuffixExhausted(t *testing.T) {
	in := t.TempDir()
	root := t.TempDir()
	o := &Organizer{Root: root, Suffix: SuffixPolicy{Format: "_%d", MaxAttempts: 1}}

	writeFile(t, filepath.Join(root, "2021", "06", "a.jpg"), "1")
	writeFile(t, filepath.Join(root, "2021", "06", "a_1.jpg"), "2")
	src := writeFile(t, filepath.Join(in, "a.jpg"), "3")

	_, err := o.Place(src, "", "a.jpg", june)
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("期望 ConflictError，实际：%v", err)
	}
}

func TestPlace_CrossDeviceFallback(t *testing.T) {
	in := t.TempDir()
	root := t.TempDir()
	o := &Organizer{Root: root}
	src := writeFile(t, filepath.Join(in, "v.mp4"), "video")

	old := renameFile
	renameFile = func(a, b string) error {
		if samePath(a, src) {
			return &fsx.CrossDeviceError{Src: a, Dst: b, Err: syscall.EXDEV}
		}
		return os.Rename(a, b)
	}
	defer func() { renameFile = old }()

	p, err := o.Place(src, "", "v.mp4", june)
	if err != nil || p.Kind != PlaceMoved {
		t.Fatalf("跨盘回退失败：%+v err=%v", p, err)
	}
	if exists(src) || readFile(t, p.Dst) != "video" {
		t.Fatalf("跨盘回退后源文件应删除、目标内容应一致")
	}
	entries, _ := os.ReadDir(filepath.Dir(p.Dst))
	if len(entries) != 1 {
		t.Fatalf("不应留下临时文件：%d 个条目", len(entries))
	}
}

func TestPlan_ReadOnlyAndReserves(t *testing.T) {
	in := t.TempDir()
	root := t.TempDir()
	o := &Organizer{Root: root}

	a := writeFile(t, filepath.Join(in, "a", "IMG.jpg"), "1")
	b := writeFile(t, filepath.Join(in, "b", "IMG.jpg"), "2")

	pa, err := o.Plan(a, "IMG.jpg", june)
	if err != nil || filepath.Base(pa.Dst) != "IMG.jpg" {
		t.Fatalf("Plan(a)=%+v err=%v", pa, err)
	}
	pb, err := o.Plan(b, "IMG.jpg", june)
	if err != nil || filepath.Base(pb.Dst) != "IMG-1.jpg" {
		t.Fatalf("同一次运行内重名应预测后缀：%+v err=%v", pb, err)
	}
	if exists(filepath.Join(root, "2021")) || !exists(a) || !exists(b) {
		t.Fatalf("Plan 不应产生任何写入")
	}
}

func TestPlan_IdenticalSameNamePredictsDuplicate(t *testing.T) {
	in := t.TempDir()
	root := t.TempDir()

	a := writeFile(t, filepath.Join(in, "a", "IMG.jpg"), "same")
	b := writeFile(t, filepath.Join(in, "b", "IMG.jpg"), "same")

	dry := &Organizer{Root: root}
	pa, err := dry.Plan(a, "IMG.jpg", june)
	if err != nil || pa.Kind != PlaceMoved || filepath.Base(pa.Dst) != "IMG.jpg" {
		t.Fatalf("Plan(a)=%+v err=%v", pa, err)
	}
	pb, err := dry.Plan(b, "IMG.jpg", june)
	if err != nil || pb.Kind != PlaceDuplicate || pb.Dst != pa.Dst {
		t.Fatalf("同批次内容相同应预测 duplicate：%+v err=%v", pb, err)
	}

	live := &Organizer{Root: root}
	ra, err := live.Place(a, "", "IMG.jpg", june)
	if err != nil || ra.Kind != pa.Kind || ra.Dst != pa.Dst {
		t.Fatalf("Place(a)=%+v 与预测 %+v 不一致 err=%v", ra, pa, err)
	}
	rb, err := live.Place(b, "", "IMG.jpg", june)
	if err != nil || rb.Kind != pb.Kind || rb.Dst != pb.Dst {
		t.Fatalf("Place(b)=%+v 与预测 %+v 不一致 err=%v", rb, pb, err)
	}
}

func TestPlace_ConcurrentSameDir(t *testing.T) {
	in := t.TempDir()
	root := t.TempDir()
	o := &Organizer{Root: root}

	const n = 8
	var wg sync.WaitGroup
	dsts := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		src := writeFile(t, filepath.Join(in, fmt.Sprint(i), "IMG.jpg"), fmt.Sprintf("content-%d", i))
		wg.Add(1)
		go func(i int, src string) {
			defer wg.Done()
			p, err := o.Place(src, "", "IMG.jpg", june)
			dsts[i], errs[i] = filepath.Base(p.Dst), err
		}(i, src)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
	}
	sort.Strings(dsts)
	seen := map[string]bool{}
	for _, d := range dsts {
		if seen[d] {
			t.Fatalf("目标名重复：%v", dsts)
		}
		seen[d] = true
	}
	entries, _ := os.ReadDir(filepath.Join(root, "2021", "06"))
	if len(entries) != n {
		t.Fatalf("期望 %d 个文件，实际 %d", n, len(entries))
	}
}

func TestSuffixPolicy(t *testing.T) {
	s := SuffixPolicy{}
	if got := s.Name("IMG.JPG", 3); got != "IMG-3.JPG" {
		t.Fatalf("Name=%q", got)
	}
	if got := (SuffixPolicy{Format: " (%d)"}).Name("a.mp4", 1); got != "a (1).mp4" {
		t.Fatalf("Name=%q", got)
	}
	for _, bad := range []string{"-%s", "%d-%d", "/%d", "-1"} {
		if err := (SuffixPolicy{Format: bad}).Validate(); err == nil {
			t.Fatalf("%q 应校验失败", bad)
		}
	}
	if _, err := ParseContentPolicy("md5"); err == nil {
		t.Fatalf("非法 duplicate_check 应报错")
	}
	if p, err := ParseContentPolicy(""); err != nil || p != CompareXXHash {
		t.Fatalf("默认应为 xxhash：%v %v", p, err)
	}
}
