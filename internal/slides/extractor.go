// Package slides 实现“按固定间隔采样 + 感知哈希去重”的 slide 提取。
//
// 单个视频内的处理严格串行：首帧 -> 递增的采样帧；距离只与“上一张已保存的 slide”比较。
// 不同视频之间没有共享状态，可由上层并发处理。
package slides

import (
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/John-Robertt/slidaway/internal/domain"
	"github.com/John-Robertt/slidaway/internal/imghash"
)

// Config 是单次提取的采样参数。
type Config struct {
	// Interval 是采样间隔（秒）。换算出的步长小于 1 时按 1 处理。
	Interval int
	// Threshold 是 Hamming 距离阈值：距离严格大于阈值才保存。
	// 负数表示保存每一个成功解码的采样帧（不去重）。
	Threshold int
}

// Result 是单次提取的统计与产物。即使返回错误，Result 也包含失败前已写出的 slide。
type Result struct {
	FrameCount int
	FPS        float64
	Step       int

	Samples int // 首帧之后尝试解码的次数
	Skipped int // 其中解码失败被跳过的次数
	Slides  []domain.Slide
}

// Extractor 驱动采样循环。零值可用（使用 pHash、不输出日志）。
type Extractor struct {
	Config Config

	// Hash 计算帧哈希；nil 时使用 imghash.Perceptual。
	Hash imghash.Func
	// Logger 记录被跳过的采样等诊断信息；nil 时不输出。
	Logger *zap.Logger
	// Progress 在每次采样尝试后调用；total 为 0 表示总数未知。
	Progress func(done, total int)
}

// SampleTotal 返回首帧之后的采样次数，即满足 k*step < frameCount 的正整数 k 的个数。
// frameCount 未知时返回 0。
func SampleTotal(frameCount, step int) int {
	if frameCount <= 1 || step < 1 {
		return 0
	}
	return (frameCount - 1) / step
}

// Run 对 src 执行一次完整提取，把 slide 写入 sink。
//
// Run 不关闭 src：打开与关闭由调用方负责（保证所有退出路径都能释放解码器）。
//
// 失败语义：
// - 首帧解码失败：返回 KindFirstFrame
// - 某个采样帧解码失败：跳过，计入 Result.Skipped，不更新 previous hash
// - 写出失败：返回 KindOutputWrite（不做部分恢复）
func (e *Extractor) Run(src FrameSource, sink Sink) (Result, error) {
	log := e.Logger
	if log == nil {
		log = zap.NewNop()
	}
	hash := e.Hash
	if hash == nil {
		hash = imghash.Perceptual
	}

	res := Result{
		FrameCount: src.FrameCount(),
		FPS:        src.FPS(),
		Slides:     make([]domain.Slide, 0, 16),
	}
	if res.FrameCount < 0 {
		res.FrameCount = 0
	}
	res.Step = domain.SampleStep(res.FPS, e.Config.Interval)
	total := SampleTotal(res.FrameCount, res.Step)

	if err := sink.Prepare(); err != nil {
		return res, &Error{Kind: KindOutputWrite, Frame: -1, Err: err}
	}

	first, err := src.SeekAndDecode(0)
	if err != nil {
		return res, &Error{Kind: KindFirstFrame, Frame: 0, Err: err}
	}
	prev, err := hash(first.Image)
	if err != nil {
		return res, &Error{Kind: KindFirstFrame, Frame: 0, Err: err}
	}

	// 首帧是锚点：无条件保存，且固定命名为 0000000。
	name, err := sink.Write(0, first.Image)
	if err != nil {
		return res, &Error{Kind: KindOutputWrite, Frame: 0, Err: err}
	}
	res.Slides = append(res.Slides, domain.Slide{Frame: 0, Seconds: 0, File: name})
	last := 0

	for i := res.Step; i > 0 && (res.FrameCount == 0 || i < res.FrameCount); i = advance(i, res.Step) {
		fr, err := src.SeekAndDecode(i)
		if errors.Is(err, ErrEndOfStream) {
			// 帧数是估计值时可能提前到达末尾：正常结束。
			break
		}
		res.Samples++
		if err != nil {
			res.Skipped++
			e.skip(log, i, err)
			e.progress(res.Samples, total)
			continue
		}

		h, err := hash(fr.Image)
		if err != nil {
			res.Skipped++
			e.skip(log, i, err)
			e.progress(res.Samples, total)
			continue
		}

		dist := h.Distance(prev)
		if e.Config.Threshold < 0 || dist > e.Config.Threshold {
			idx := trueIndex(fr.Index, i, last)
			name, err := sink.Write(idx, fr.Image)
			if err != nil {
				return res, &Error{Kind: KindOutputWrite, Frame: idx, Err: err}
			}
			res.Slides = append(res.Slides, domain.Slide{
				Frame:    idx,
				Seconds:  domain.FrameSeconds(idx, res.FPS),
				File:     name,
				Distance: dist,
			})
			log.Debug("slide", zap.Int("frame", idx), zap.Int("distance", dist))
			// previous hash 只在保存时更新。
			prev = h
			last = idx
		}
		e.progress(res.Samples, total)
	}

	return res, nil
}

// skip 记录一次被跳过的采样；采样失败只计数，不终止提取。
func (e *Extractor) skip(log *zap.Logger, frame int, err error) {
	se := &Error{Kind: KindSampleDecode, Frame: frame, Err: err}
	log.Debug("skip sample",
		zap.String("error_code", string(se.Kind)),
		zap.Int("frame", frame),
		zap.Error(se),
	)
}

func (e *Extractor) progress(done, total int) {
	if e.Progress != nil {
		e.Progress(done, total)
	}
}

// advance 返回下一个采样帧号；溢出时返回 -1 结束循环。
func advance(i, step int) int {
	if i > math.MaxInt-step {
		return -1
	}
	return i + step
}

// trueIndex 选择 slide 的文件名帧号：优先使用解码器报告的位置；
// 若该位置不晚于上一张 slide（seek 不精确导致回退），退回到请求的帧号，保证文件名严格递增。
func trueIndex(reported, requested, last int) int {
	if reported > last {
		return reported
	}
	if requested > last {
		return requested
	}
	return last + 1
}
