package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/slidaway/internal/domain"
)

// Expand 把输入路径展开为待处理的视频列表。
//
// 规则：
// - 文件：原样接受（不检查扩展名）；保持输入顺序
// - 目录：递归扫描视频文件（见 ScanVideos），目录内结果排序
// - 不存在的路径不报错：保留为 Size=0 的条目，由打开阶段报告 source_open_failed
// - 同一文件（按 AbsPath）只保留第一次出现
//
// 只有目录遍历本身失败时才返回错误。
func Expand(cwd string, paths []string, saveDir string, excludeDirs []string) ([]domain.VideoFile, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return nil, err
	}

	out := make([]domain.VideoFile, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	add := func(v domain.VideoFile) {
		if _, ok := seen[v.AbsPath]; ok {
			return
		}
		seen[v.AbsPath] = struct{}{}
		out = append(out, v)
	}

	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(cwdAbs, abs)
		}
		abs = filepath.Clean(abs)

		info, err := os.Stat(abs)
		if err != nil {
			add(newVideoFile(abs, nil))
			continue
		}
		if !info.IsDir() {
			add(newVideoFile(abs, info))
			continue
		}

		// 输出根目录位于扫描目录之下时一并排除。
		excludes := append([]string{saveDir}, excludeDirs...)
		files, err := ScanVideos(abs, excludes)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			add(f)
		}
	}
	return out, nil
}

// ScanVideos 扫描 root 下的视频文件（.mp4/.mkv，不区分大小写），并应用目录排除规则。
//
// excludeDirs 均视为相对 root 的路径（若是绝对路径，则按绝对路径处理）。
// 包含 root 的排除目录（例如输出根目录就是 root）被忽略，只排除 root 之下的目录。
//
// 注意：扫描阶段只做 stat（DirEntry.Info），不读文件内容。
func ScanVideos(root string, excludeDirs []string) ([]domain.VideoFile, error) {
	root = filepath.Clean(root)
	excluded := buildExcluded(root, excludeDirs)

	files := make([]domain.VideoFile, 0, 32)
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

		if d.IsDir() {
			return nil
		}

		if !isVideoExt(strings.ToLower(filepath.Ext(d.Name()))) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, newVideoFile(path, info))
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].AbsPath < files[j].AbsPath })
	return files, nil
}

func newVideoFile(abs string, info fs.FileInfo) domain.VideoFile {
	name := filepath.Base(abs)
	v := domain.VideoFile{
		AbsPath: abs,
		Base:    strings.TrimSuffix(name, filepath.Ext(name)),
		Ext:     strings.ToLower(filepath.Ext(name)),
	}
	if info != nil {
		v.Size = info.Size()
		v.ModUnix = info.ModTime().Unix()
	}
	return v
}

func isVideoExt(ext string) bool {
	switch ext {
	case ".mp4", ".mkv":
		return true
	default:
		return false
	}
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, len(excludeDirs))
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		// x 是相对路径：相对 root。
		if !filepath.IsAbs(x) {
			x = filepath.Join(root, x)
		}
		x = filepath.Clean(x)
		if isUnder(root, x) {
			continue
		}
		excluded = append(excluded, x)
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
