package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maruel/natural"

	"github.com/John-Robertt/photofix/internal/config"
	"github.com/John-Robertt/photofix/internal/domain"
	"github.com/John-Robertt/photofix/internal/infra/cache"
)

// Result 是一次扫描的结果：媒体文件与侧车候选（.json）分开收集，配对由上层完成。
type Result struct {
	Media    []domain.MediaFile
	Sidecars []string
}

// ScanMedia 扫描 root 下的媒体文件与侧车，并应用目录排除规则。
//
// 规则（硬约束）：
// - 永久排除：<root>/.photofix/ 与 <dest>/.photofix/
// - dest 嵌套在 root 内（且不等于 root）时整体排除
// - excludeDirs：来自配置文件，均视为相对 root 的路径（若是绝对路径，则按绝对路径处理）
// - 跳过本工具遗留的临时文件（.name.tmp-*）
// - root 下的本工具配置文件（photofix.json 等）不是侧车
//
// 注意：扫描阶段只做 stat（DirEntry.Info），不读文件内容。
func ScanMedia(root, dest string, excludeDirs []string) (Result, error) {
	root = filepath.Clean(root)
	excluded := buildExcluded(root, dest, excludeDirs)

	var res Result
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		// 统一的排除判断：目录用 SkipDir，文件则直接跳过。
		if isExcluded(path, excluded) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		name := d.Name()
		if isTempName(name) || isOwnConfig(root, path, name) {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext == ".json" {
			res.Sidecars = append(res.Sidecars, path)
			return nil
		}
		kind, ok := kindOf(ext)
		if !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		res.Media = append(res.Media, domain.MediaFile{
			AbsPath: path,
			RelPath: rel,
			Base:    strings.TrimSuffix(name, filepath.Ext(name)),
			Ext:     ext,
			Kind:    kind,
			Size:    info.Size(),
			ModUnix: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	// 强制稳定输出（自然序：IMG_2 在 IMG_10 之前）。
	sort.SliceStable(res.Media, func(i, j int) bool { return natural.Less(res.Media[i].RelPath, res.Media[j].RelPath) })
	sort.SliceStable(res.Sidecars, func(i, j int) bool { return natural.Less(res.Sidecars[i], res.Sidecars[j]) })
	return res, nil
}

func isOwnConfig(root, path, name string) bool {
	if filepath.Dir(path) != root {
		return false
	}
	for _, n := range config.FileNames {
		if name == n {
			return true
		}
	}
	return false
}

func kindOf(ext string) (domain.MediaKind, bool) {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".heic", ".heif", ".gif", ".webp", ".tif", ".tiff":
		return domain.KindImage, true
	case ".mp4", ".mov", ".m4v", ".3gp", ".avi", ".mkv":
		return domain.KindVideo, true
	default:
		return "", false
	}
}

func isTempName(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, ".tmp-")
}

func buildExcluded(root, dest string, excludeDirs []string) []string {
	excluded := []string{filepath.Join(root, cache.StateDirName)}

	if dest = strings.TrimSpace(dest); dest != "" {
		dest = filepath.Clean(dest)
		excluded = append(excluded, filepath.Join(dest, cache.StateDirName))
		if dest != root && isUnder(dest, root) {
			excluded = append(excluded, dest)
		}
	}

	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		// x 是相对路径：相对 root。
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}

	// 排除列表排序后，isExcluded 的行为更可预测（且便于测试）。
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
