package organize

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/cespare/xxhash"
	blake2b "github.com/minio/blake2b-simd"
	"github.com/zeebo/blake3"
)

// ContentPolicy 决定“同名同大小”时如何判断内容是否相同。
type ContentPolicy string

const (
	CompareXXHash  ContentPolicy = "xxhash"
	CompareBlake3  ContentPolicy = "blake3"
	CompareBlake2b ContentPolicy = "blake2b"
	CompareBytes   ContentPolicy = "bytes"
)

// ParseContentPolicy 解析配置值；空字符串取默认（xxhash）。
func ParseContentPolicy(s string) (ContentPolicy, error) {
	switch p := ContentPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return CompareXXHash, nil
	case CompareXXHash, CompareBlake3, CompareBlake2b, CompareBytes:
		return p, nil
	default:
		return "", fmt.Errorf("非法 duplicate_check：%q（可选 xxhash/blake3/blake2b/bytes）", s)
	}
}

func (p ContentPolicy) orDefault() ContentPolicy {
	if p == "" {
		return CompareXXHash
	}
	return p
}

func (p ContentPolicy) newHash() hash.Hash {
	switch p.orDefault() {
	case CompareBlake3:
		return blake3.New()
	case CompareBlake2b:
		return blake2b.New256()
	default:
		return xxhash.New()
	}
}

func hashFile(p ContentPolicy, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := p.newHash()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

const compareChunk = 64 << 10

func equalBytes(a, b string) (bool, error) {
	fa, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	ba := make([]byte, compareChunk)
	bb := make([]byte, compareChunk)
	for {
		na, ea := io.ReadFull(fa, ba)
		nb, eb := io.ReadFull(fb, bb)
		if na != nb || !bytes.Equal(ba[:na], bb[:nb]) {
			return false, nil
		}
		aDone := ea == io.EOF || ea == io.ErrUnexpectedEOF
		bDone := eb == io.EOF || eb == io.ErrUnexpectedEOF
		if ea != nil && !aDone {
			return false, ea
		}
		if eb != nil && !bDone {
			return false, eb
		}
		if aDone || bDone {
			return aDone == bDone, nil
		}
	}
}

// sameContent 判断 candidate 与 existing 内容是否完全相同。
// existing 位于目标目录下，其摘要可以走哈希缓存。
func (o *Organizer) sameContent(candidate, existing string) (bool, error) {
	return o.compare(candidate, existing, true)
}

// sameFiles 比较两个都不在目标目录下的文件（dry-run 中同批次的源文件），不碰缓存。
func (o *Organizer) sameFiles(a, b string) (bool, error) {
	return o.compare(a, b, false)
}

func (o *Organizer) compare(candidate, existing string, cached bool) (bool, error) {
	ci, err := os.Stat(candidate)
	if err != nil {
		return false, err
	}
	ei, err := os.Stat(existing)
	if err != nil {
		return false, err
	}
	if ci.Size() != ei.Size() {
		return false, nil
	}

	policy := o.Compare.orDefault()
	if policy == CompareBytes {
		return equalBytes(candidate, existing)
	}

	cs, err := hashFile(policy, candidate)
	if err != nil {
		return false, err
	}
	var es string
	if cached {
		es, err = o.cachedHash(policy, existing, ei)
	} else {
		es, err = hashFile(policy, existing)
	}
	if err != nil {
		return false, err
	}
	return cs == es, nil
}

func (o *Organizer) cachedHash(policy ContentPolicy, path string, fi os.FileInfo) (string, error) {
	algo := string(policy)
	mt := fi.ModTime().UnixNano()
	if sum, ok := o.Hashes.Get(path, fi.Size(), mt, algo); ok {
		return sum, nil
	}
	sum, err := hashFile(policy, path)
	if err != nil {
		return "", err
	}
	o.Hashes.Put(path, fi.Size(), mt, algo, sum)
	return sum, nil
}
