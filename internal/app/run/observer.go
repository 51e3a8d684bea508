package run

import (
	"time"

	"github.com/John-Robertt/slidaway/internal/config"
	"github.com/John-Robertt/slidaway/internal/domain"
)

// Observer 用于把“运行进度/阶段/视频结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：事件可能来自多个 goroutine。
type Observer interface {
	// OnStart 在 Execute 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束/就绪时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnVideoStart 在视频打开成功、开始采样前调用（文件名、总帧数、帧率）。
	OnVideoStart(v domain.VideoFile, info domain.VideoInfo)
	// OnSample 在单个视频的每次采样尝试后调用；total 为 0 表示总数未知。
	OnSample(v domain.VideoFile, done, total int)
	// OnVideoDone 在某个视频处理完成（成功或失败）时调用。
	OnVideoDone(idx, total int, res domain.VideoResult, dur time.Duration)
	// OnProgress 用于 keepalive（通常由 CLI 自己 ticker 触发；run 层不强制调用）。
	OnProgress(done, total, ok, fail, active int, activeNames []string, elapsed time.Duration)
}
