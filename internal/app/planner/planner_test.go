package planner

import (
	"path/filepath"
	"testing"

	"github.com/John-Robertt/slidaway/internal/domain"
)

func vf(abs string) domain.VideoFile {
	name := filepath.Base(abs)
	ext := filepath.Ext(name)
	return domain.VideoFile{AbsPath: abs, Base: name[:len(name)-len(ext)], Ext: ext}
}

func TestPlanVideos_OutDirFromBaseName(t *testing.T) {
	save := filepath.FromSlash("/out")
	plans, conflicts := PlanVideos(save, []domain.VideoFile{
		vf(filepath.FromSlash("/in/b.mp4")),
		vf(filepath.FromSlash("/in/a.mkv")),
	})
	if len(conflicts) != 0 {
		t.Fatalf("不期望冲突：%+v", conflicts)
	}
	if len(plans) != 2 {
		t.Fatalf("期望 2 个计划，实际 %d", len(plans))
	}
	// 保持输入顺序。
	if plans[0].OutDir != filepath.Join(save, "b") || plans[1].OutDir != filepath.Join(save, "a") {
		t.Fatalf("输出目录不符合预期：%+v", plans)
	}
}

func TestPlanVideos_SameBaseConflicts(t *testing.T) {
	save := filepath.FromSlash("/out")
	first := vf(filepath.FromSlash("/x/talk.mp4"))
	plans, conflicts := PlanVideos(save, []domain.VideoFile{
		first,
		vf(filepath.FromSlash("/y/talk.mkv")),
		vf(filepath.FromSlash("/z/TALK.mp4")),
	})
	if len(plans) != 1 || plans[0].Video.AbsPath != first.AbsPath {
		t.Fatalf("只应保留第一个：%+v", plans)
	}
	if len(conflicts) != 2 {
		t.Fatalf("期望 2 个冲突，实际 %d", len(conflicts))
	}
	for _, c := range conflicts {
		if c.Owner != first.AbsPath {
			t.Fatalf("owner=%q", c.Owner)
		}
		if c.Error() == "" {
			t.Fatalf("冲突应有错误信息")
		}
	}
}

func TestPlanVideos_EmptyBase(t *testing.T) {
	v := domain.VideoFile{AbsPath: filepath.FromSlash("/in/.mp4"), Base: "", Ext: ".mp4"}
	plans, _ := PlanVideos(filepath.FromSlash("/out"), []domain.VideoFile{v})
	if len(plans) != 1 || plans[0].OutDir != filepath.Join(filepath.FromSlash("/out"), ".mp4") {
		t.Fatalf("plans=%+v", plans)
	}
}
