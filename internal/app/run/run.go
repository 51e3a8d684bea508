package run

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/slidaway/internal/app/planner"
	"github.com/John-Robertt/slidaway/internal/config"
	"github.com/John-Robertt/slidaway/internal/domain"
	"github.com/John-Robertt/slidaway/internal/imghash"
	"github.com/John-Robertt/slidaway/internal/infra/fsx"
	"github.com/John-Robertt/slidaway/internal/scan"
	"github.com/John-Robertt/slidaway/internal/slides"
)

// Opener 为单个视频打开一个 FrameSource。
type Opener interface {
	Open(path string) (slides.FrameSource, error)
}

// OpenerFunc 让普通函数满足 Opener。
type OpenerFunc func(path string) (slides.FrameSource, error)

func (f OpenerFunc) Open(path string) (slides.FrameSource, error) { return f(path) }

// Options 是 Execute 的依赖注入点。
type Options struct {
	// Cwd 是相对输入路径的基准目录；为空时使用进程当前目录。
	Cwd string
	// Opener 必填。
	Opener   Opener
	Observer Observer
	Logger   *zap.Logger
	// Hash 为 nil 时使用 pHash。
	Hash imghash.Func
}

// Execute 对 inputs（视频文件或目录）逐个提取 slide，并返回对外稳定的 RunReport。
//
// 单个视频的失败只会体现为该视频的 failed 条目，不影响其他视频。
// ctx 取消后不再派发新的视频（已开始的视频会处理完），未派发的视频记为 canceled。
func Execute(ctx context.Context, eff config.EffectiveConfig, inputs []string, opts Options) domain.RunReport {
	started := time.Now().UTC()
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	obs := opts.Observer

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		SaveDir:   eff.SaveDir,
		Interval:  eff.Interval,
		Threshold: eff.Threshold,
		Format:    string(eff.Format),
		StartedAt: started,
		Items:     make([]domain.VideoResult, 0, len(inputs)),
	}

	cwd := opts.Cwd
	if cwd == "" {
		cwd = "."
	}

	scanStarted := time.Now()
	videos, err := scan.Expand(cwd, inputs, eff.SaveDir, eff.ExcludeDirs)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("扫描失败：%v", err)))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}
	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{
			"inputs": len(inputs),
			"videos": len(videos),
		}, time.Since(scanStarted))
	}

	planStarted := time.Now()
	plans, conflicts := planner.PlanVideos(eff.SaveDir, videos)
	for _, c := range conflicts {
		rr.Items = append(rr.Items, failResult(baseResult(domain.VideoPlan{Video: c.Video, OutDir: c.OutDir}), domain.ErrCodeOutputWrite, c.Error()))
	}
	if obs != nil {
		obs.OnPhaseDone("plan", map[string]any{
			"videos":    len(plans),
			"conflicts": len(conflicts),
		}, time.Since(planStarted))
	}

	// 执行阶段：按视频并发（worker pool），视频内串行。
	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}
	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"workers":      workers,
			"total_videos": len(plans),
		}, 0)
	}

	type execResult struct {
		res domain.VideoResult
		dur time.Duration
	}

	jobs := make(chan domain.VideoPlan)
	results := make(chan execResult, len(plans))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					results <- execResult{res: canceledResult(j)}
					continue
				}
				oneStarted := time.Now()
				r := execOne(eff, j, opts, log)
				results <- execResult{res: r, dur: time.Since(oneStarted)}
			}
		}()
	}

	go func() {
		defer func() {
			close(jobs)
			wg.Wait()
			close(results)
		}()
		for i, j := range plans {
			select {
			case <-ctx.Done():
				for _, rest := range plans[i:] {
					results <- execResult{res: canceledResult(rest)}
				}
				return
			case jobs <- j:
			}
		}
	}()

	done := 0
	for it := range results {
		done++
		rr.Items = append(rr.Items, it.res)
		if obs != nil {
			obs.OnVideoDone(done, len(plans), it.res, it.dur)
		}
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

// execOne 处理单个视频：打开 -> 提取 -> 关闭。解码器在所有退出路径上都会被释放。
func execOne(eff config.EffectiveConfig, j domain.VideoPlan, opts Options, log *zap.Logger) domain.VideoResult {
	v := j.Video
	res := baseResult(j)
	log = log.With(zap.String("video", v.AbsPath))

	if opts.Opener == nil {
		return failResult(res, domain.ErrCodeSourceOpen, "未配置视频解码器")
	}
	src, err := opts.Opener.Open(v.AbsPath)
	if err != nil {
		log.Warn("open failed", zap.Error(err))
		return failResult(res, domain.ErrCodeSourceOpen, fmt.Sprintf("无法打开视频：%v", err))
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
	}()

	res.FrameCount = src.FrameCount()
	res.FPS = src.FPS()
	res.Step = domain.SampleStep(res.FPS, eff.Interval)
	log.Debug("opened",
		zap.Int("frames", res.FrameCount),
		zap.Float64("fps", res.FPS),
		zap.Int("step", res.Step),
	)

	if obs := opts.Observer; obs != nil {
		obs.OnVideoStart(v, domain.VideoInfo{
			Name:       filepath.Base(v.AbsPath),
			FrameCount: res.FrameCount,
			FPS:        res.FPS,
			Step:       res.Step,
			OutDir:     j.OutDir,
		})
	}

	ex := slides.Extractor{
		Config: slides.Config{Interval: eff.Interval, Threshold: eff.Threshold},
		Hash:   opts.Hash,
		Logger: log,
	}
	if obs := opts.Observer; obs != nil {
		ex.Progress = func(done, total int) { obs.OnSample(v, done, total) }
	}

	r, err := ex.Run(src, slides.DirSink{Dir: j.OutDir, Format: eff.Format})
	res.FrameCount = r.FrameCount
	res.FPS = r.FPS
	res.Step = r.Step
	res.Samples = r.Samples
	res.SkippedSamples = r.Skipped
	res.Slides = r.Slides
	if err != nil {
		code := string(slides.KindOf(err))
		if code == "" {
			code = domain.ErrCodeIOFailed
		}
		log.Warn("extract failed", zap.String("error_code", code), zap.Error(err))
		msg := err.Error()
		if fsx.IsPathTypeConflict(err) {
			msg = fmt.Sprintf("输出目录 %q 已被同名文件占用", j.OutDir)
		}
		return failResult(res, code, msg)
	}
	if r.Skipped > 0 {
		log.Warn("samples skipped",
			zap.String("error_code", string(slides.KindSampleDecode)),
			zap.Int("skipped", r.Skipped),
			zap.Int("samples", r.Samples),
		)
	}
	return res
}

func baseResult(p domain.VideoPlan) domain.VideoResult {
	return domain.VideoResult{
		Video:  p.Video.AbsPath,
		Name:   p.Video.Base,
		OutDir: p.OutDir,
		Status: domain.StatusProcessed, // 失败时覆盖
		Slides: []domain.Slide{},
	}
}

func failResult(res domain.VideoResult, code, msg string) domain.VideoResult {
	res.Status = domain.StatusFailed
	res.ErrorCode = code
	res.ErrorMsg = msg
	return res
}

func canceledResult(j domain.VideoPlan) domain.VideoResult {
	return failResult(baseResult(j), domain.ErrCodeCanceled, "运行已取消，未处理")
}

func syntheticFailed(code, msg string) domain.VideoResult {
	return domain.VideoResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
		Slides:    []domain.Slide{},
	}
}
