package app

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/photofix/internal/domain"
	"github.com/John-Robertt/photofix/internal/sidecar"
)

const supplementalSuffix = ".supplemental-metadata"

// Takeout 截断长文件名时保留的最短字符数（46/47/51 均见于实际导出）。
const minTruncatedStem = 46

var (
	dupIndexRE = regexp.MustCompile(`^(.*)\((\d+)\)$`)
	editedRE   = regexp.MustCompile(`(?i)^(.*)-edited$`)
)

// PairSidecars 为每个媒体文件找到同目录下的侧车，返回与 media 同序的 Pair。
//
// 规则（按顺序，命中即止）：
// - name-edited.ext 与 name.ext 共享侧车
// - name(N).ext ↔ name.ext(N).json / name.ext.supplemental-metadata(N).json
// - name.ext.json / name.ext.supplemental-metadata.json
// - 被截断的侧车名（name.ext.supplemental-met….json 或 46+ 字符的名字前缀）
// - name.json（同目录内只有一个媒体叫 name 时）
// - 侧车 JSON 的 title 字段
//
// 任何一步出现多个候选都视为歧义：不配对，而不是猜一个。
func PairSidecars(media []domain.MediaFile, sidecars []string) []domain.Pair {
	dirs := make(map[string]*dirIndex, 16)
	for _, s := range sidecars {
		d := filepath.Dir(s)
		di, ok := dirs[d]
		if !ok {
			di = &dirIndex{byName: map[string][]string{}}
			dirs[d] = di
		}
		di.add(s)
	}

	bases := make(map[string]int, len(media))
	for _, m := range media {
		bases[baseKey(m)]++
	}

	pairs := make([]domain.Pair, len(media))
	for i, m := range media {
		pairs[i].Media = m
		di := dirs[filepath.Dir(m.AbsPath)]
		if di == nil {
			continue
		}
		pairs[i].SidecarPath = di.resolve(m.Name(), bases[baseKey(m)] == 1)
	}

	for i := range pairs {
		if pairs[i].SidecarPath != "" {
			continue
		}
		di := dirs[filepath.Dir(pairs[i].Media.AbsPath)]
		if di == nil {
			continue
		}
		pairs[i].SidecarPath = di.byTitle(pairs[i].Media.Name())
	}
	return pairs
}

func baseKey(m domain.MediaFile) string {
	return filepath.Join(filepath.Dir(m.AbsPath), strings.ToLower(m.Base))
}

type dirIndex struct {
	paths  []string
	byName map[string][]string // 小写文件名 -> 路径

	titles map[string][]string // 懒加载：小写 title -> 路径
}

func (d *dirIndex) add(path string) {
	d.paths = append(d.paths, path)
	k := strings.ToLower(filepath.Base(path))
	d.byName[k] = append(d.byName[k], path)
}

// first 按顺序查找候选名；命中多个（仅大小写不同）视为歧义，返回 ""。
func (d *dirIndex) first(names ...string) (string, bool) {
	for _, n := range names {
		ps := d.byName[strings.ToLower(n)]
		switch len(ps) {
		case 0:
			continue
		case 1:
			return ps[0], true
		default:
			return "", true
		}
	}
	return "", false
}

func (d *dirIndex) resolve(name string, allowBareBase bool) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	if m := editedRE.FindStringSubmatch(base); m != nil {
		base = m[1]
		name = base + ext
	}

	if m := dupIndexRE.FindStringSubmatch(base); m != nil {
		orig, n := m[1], m[2]
		p, _ := d.first(
			orig+ext+"("+n+").json",
			orig+ext+supplementalSuffix+"("+n+").json",
		)
		return p
	}

	if p, hit := d.first(name+".json", name+supplementalSuffix+".json"); hit {
		return p
	}
	if p, hit := d.truncated(name); hit {
		return p
	}
	if allowBareBase {
		p, _ := d.first(base + ".json")
		return p
	}
	return ""
}

// truncated 匹配被 Takeout 截断的侧车名。
func (d *dirIndex) truncated(name string) (string, bool) {
	lname := strings.ToLower(name)
	target := lname + strings.ToLower(supplementalSuffix)

	var hits []string
	for _, p := range d.paths {
		stem := strings.ToLower(strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)))
		switch {
		case len(stem) > len(lname)+1 && strings.HasPrefix(target, stem):
			hits = append(hits, p)
		case len(stem) < len(lname) && utf8.RuneCountInString(stem) >= minTruncatedStem && strings.HasPrefix(lname, stem):
			hits = append(hits, p)
		}
	}
	switch len(hits) {
	case 0:
		return "", false
	case 1:
		return hits[0], true
	default:
		return "", true
	}
}

// byTitle 用侧车 JSON 的 title 字段兜底配对（只在前面的规则都未命中时使用）。
func (d *dirIndex) byTitle(name string) string {
	if d.titles == nil {
		d.titles = map[string][]string{}
		for _, p := range d.paths {
			b, err := os.ReadFile(p)
			if err != nil {
				continue
			}
			rec, err := sidecar.Parse(b)
			if err != nil || rec.Title == "" {
				continue
			}
			k := strings.ToLower(rec.Title)
			d.titles[k] = append(d.titles[k], p)
		}
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if m := editedRE.FindStringSubmatch(base); m != nil {
		name = m[1] + ext
	}
	if ps := d.titles[strings.ToLower(name)]; len(ps) == 1 {
		return ps[0]
	}
	return ""
}
