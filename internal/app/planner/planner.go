package planner

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/slidaway/internal/domain"
)

// Conflict 是无法分配输出目录的视频（与先前的视频同名）。
type Conflict struct {
	Video  domain.VideoFile
	OutDir string
	// Owner 是已占用该目录的视频（AbsPath）。
	Owner string
}

func (c Conflict) Error() string {
	return fmt.Sprintf("输出目录 %q 已被 %q 使用", c.OutDir, c.Owner)
}

// PlanVideos 为每个视频分配输出目录 <saveDir>/<Base>（不做任何写入）。
//
// - 保持输入顺序（确定性）
// - 目录按 clean 后的路径比较；大小写不敏感的文件系统上 "Talk" 与 "talk" 也视为冲突
// - 同一目录只分配给第一个视频，其余进入 conflicts
func PlanVideos(saveDir string, videos []domain.VideoFile) (plans []domain.VideoPlan, conflicts []Conflict) {
	plans = make([]domain.VideoPlan, 0, len(videos))
	owner := make(map[string]string, len(videos))

	for _, v := range videos {
		outDir := filepath.Join(saveDir, outName(v))
		key := strings.ToLower(filepath.Clean(outDir))
		if prev, ok := owner[key]; ok {
			conflicts = append(conflicts, Conflict{Video: v, OutDir: outDir, Owner: prev})
			continue
		}
		owner[key] = v.AbsPath
		plans = append(plans, domain.VideoPlan{Video: v, OutDir: outDir})
	}
	return plans, conflicts
}

// outName 返回输出子目录名；Base 为空（例如 ".mp4"）时退回完整文件名。
func outName(v domain.VideoFile) string {
	if strings.TrimSpace(v.Base) != "" {
		return v.Base
	}
	return filepath.Base(v.AbsPath)
}
