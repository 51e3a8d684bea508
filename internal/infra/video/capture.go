// Package video 基于 OpenCV（gocv）实现 slides.FrameSource。
package video

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/John-Robertt/slidaway/internal/slides"
)

// Capture 是单个视频文件的解码上下文。
//
// seek 精度取决于容器与编码格式：OpenCV 在部分格式上会落到附近的关键帧，
// SeekAndDecode 返回的 Frame.Index 取自解码后的实际位置，而不是请求值。
type Capture struct {
	path string
	vc   reader
	mat  gocv.Mat

	frameCount int
	fps        float64
	closed     bool
}

var _ slides.FrameSource = (*Capture)(nil)

// reader 是 Capture 用到的 *gocv.VideoCapture 方法子集。
type reader interface {
	Set(prop gocv.VideoCaptureProperties, param float64)
	Get(prop gocv.VideoCaptureProperties) float64
	Read(m *gocv.Mat) bool
	Close() error
}

var _ reader = (*gocv.VideoCapture)(nil)

// Opener 打开视频并在需要时用 ffprobe 补全流信息。
type Opener struct {
	// Probe 为 true 时，若 OpenCV 报告的帧数或帧率为 0，则调用 ffprobe 补全。
	Probe  bool
	Logger *zap.Logger
}

// Open 打开 path。文件无法打开、或没有可解码的视频流时返回错误。
func (o Opener) Open(path string) (slides.FrameSource, error) {
	c, err := Open(path)
	if err != nil {
		return nil, err
	}
	if o.Probe && (c.frameCount == 0 || c.fps == 0) {
		info, err := Probe(path)
		if err != nil {
			// ffprobe 不可用不影响提取：帧数未知时按“读到末尾为止”处理。
			o.logger().Warn("ffprobe failed", zap.String("video", path), zap.Error(err))
		} else {
			c.frameCount, c.fps = refine(c.frameCount, c.fps, info)
		}
	}
	return c, nil
}

func (o Opener) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Open 直接用 OpenCV 打开 path（不做 ffprobe 补全）。
func Open(path string) (*Capture, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, err
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("无法打开视频：%q", path)
	}

	return newCapture(path, vc), nil
}

func newCapture(path string, vc reader) *Capture {
	return &Capture{
		path:       path,
		vc:         vc,
		mat:        gocv.NewMat(),
		frameCount: sanitizeCount(vc.Get(gocv.VideoCaptureFrameCount)),
		fps:        sanitizeRate(vc.Get(gocv.VideoCaptureFPS)),
	}
}

func (c *Capture) FrameCount() int { return c.frameCount }

func (c *Capture) FPS() float64 { return c.fps }

// SeekAndDecode 把读头移到 index 并解码一帧。
//
// - 帧数已知且 index 超出：返回 slides.ErrEndOfStream
// - 帧数未知且读取失败：视为到达末尾，返回 slides.ErrEndOfStream
// - 其它读取失败：返回普通错误（由上层跳过该采样）
func (c *Capture) SeekAndDecode(index int) (slides.Frame, error) {
	if c.closed {
		return slides.Frame{}, errors.New("capture 已关闭")
	}
	if index < 0 {
		return slides.Frame{}, fmt.Errorf("非法帧号：%d", index)
	}
	if c.frameCount > 0 && index >= c.frameCount {
		return slides.Frame{}, slides.ErrEndOfStream
	}

	c.vc.Set(gocv.VideoCapturePosFrames, float64(index))
	if !c.vc.Read(&c.mat) || c.mat.Empty() {
		if c.frameCount == 0 {
			return slides.Frame{}, slides.ErrEndOfStream
		}
		return slides.Frame{}, fmt.Errorf("解码帧 %d 失败", index)
	}

	// Read 之后 POS_FRAMES 指向下一帧。
	pos := int(c.vc.Get(gocv.VideoCapturePosFrames)) - 1
	if pos < 0 {
		pos = index
	}

	img, err := c.mat.ToImage()
	if err != nil {
		return slides.Frame{}, fmt.Errorf("转换帧 %d 失败：%w", index, err)
	}
	return slides.Frame{Index: pos, Image: img}, nil
}

// Close 释放解码器资源。重复调用是安全的。
func (c *Capture) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.mat.Close()
	return c.vc.Close()
}

func sanitizeCount(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 1 {
		return 0
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

func sanitizeRate(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return v
}
