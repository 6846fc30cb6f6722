package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/John-Robertt/photofix/internal/infra/fsx"
)

// StateDirName 是目标根目录下保存内部状态（哈希缓存、报告）的目录名。
const StateDirName = ".photofix"

const hashesFile = "hashes.json"

var ErrReadOnly = errors.New("cache: read-only")

// StateDir 返回 <root>/.photofix。
func StateDir(root string) string {
	return filepath.Join(root, StateDirName)
}

// Entry 是一个目标文件的内容摘要；Size/ModUnixNano 任一变化即视为失效。
type Entry struct {
	Size        int64  `json:"size"`
	ModUnixNano int64  `json:"mtime_ns"`
	Algo        string `json:"algo"`
	Sum         string `json:"sum"`
}

// Store 缓存目标目录中已有文件的内容哈希（<root>/.photofix/hashes.json）。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）；内存中的新条目不会落盘
// - apply：Save 原子写回
// - 并发安全
type Store struct {
	Root     string
	ReadOnly bool

	mu      sync.Mutex
	entries map[string]Entry
	dirty   bool
}

// Open 读取 root 下的哈希缓存。文件不存在或损坏都从空缓存开始（缓存只是加速，不是事实来源）。
func Open(root string, readOnly bool) *Store {
	s := &Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
		entries:  map[string]Entry{},
	}
	b, err := os.ReadFile(s.Path())
	if err != nil {
		return s
	}
	var m map[string]Entry
	if err := json.Unmarshal(b, &m); err != nil {
		return s
	}
	for k, v := range m {
		s.entries[k] = v
	}
	return s
}

// Path 返回缓存文件的绝对路径。
func (s *Store) Path() string {
	return filepath.Join(StateDir(s.Root), hashesFile)
}

func (s *Store) key(path string) string {
	if rel, err := filepath.Rel(s.Root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(filepath.Clean(path))
}

// Get 返回仍然有效的摘要。
func (s *Store) Get(path string, size, modUnixNano int64, algo string) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[s.key(path)]
	if !ok || e.Size != size || e.ModUnixNano != modUnixNano || e.Algo != algo {
		return "", false
	}
	return e.Sum, true
}

func (s *Store) Put(path string, size, modUnixNano int64, algo, sum string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = map[string]Entry{}
	}
	s.entries[s.key(path)] = Entry{Size: size, ModUnixNano: modUnixNano, Algo: algo, Sum: sum}
	s.dirty = true
}

// Forget 删除 path 的条目（文件被替换或删除时调用）。
func (s *Store) Forget(path string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[s.key(path)]; ok {
		delete(s.entries, s.key(path))
		s.dirty = true
	}
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Save 把缓存原子写回磁盘；没有变化时不写。
func (s *Store) Save() error {
	if s == nil {
		return nil
	}
	if s.ReadOnly {
		return ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	// encoding/json 按 key 排序输出 map，文件内容稳定。
	b, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}
	if err := fsx.WriteFileAtomicReplace(StateDir(s.Root), hashesFile, append(b, '\n')); err != nil {
		return err
	}
	s.dirty = false
	return nil
}
