package slides

import (
	"errors"
	"image"
)

// ErrEndOfStream 表示请求的帧号超出了视频末尾。这不是错误：采样循环据此正常结束。
var ErrEndOfStream = errors.New("slides: end of stream")

// Frame 是解码得到的一帧。
//
// Index 是解码器报告的真实帧号：部分编码格式的 seek 不是逐帧精确的，
// 它可能与请求的帧号略有差异。
type Frame struct {
	Index int
	Image image.Image
}

// FrameSource 封装单个视频文件的随机访问解码。
//
// 约束：
// - FrameCount/FPS 在打开时读取一次；允许为 0（未知/估计失败）
// - FrameCount==0 表示“长度未知”：调用方持续采样，直到 SeekAndDecode 返回 ErrEndOfStream
// - SeekAndDecode 超出末尾必须返回 ErrEndOfStream；其它错误视为该帧解码失败
// - Close 必须幂等
type FrameSource interface {
	FrameCount() int
	FPS() float64
	SeekAndDecode(index int) (Frame, error)
	Close() error
}
