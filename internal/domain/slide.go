package domain

import (
	"fmt"
	"math"
)

const (
	// DefaultInterval 是采样间隔（秒）的内置默认值。
	DefaultInterval = 3
	// DefaultThreshold 是 Hamming 距离阈值的内置默认值（bit）。
	DefaultThreshold = 5
)

// slideIndexWidth 是 slide 文件名中帧号的固定宽度。
const slideIndexWidth = 7

// maxStep 防止 fps*interval 溢出 int 后出现负步长。
const maxStep = math.MaxInt32

// SampleStep 计算采样步长：max(1, round(fps * interval))。
//
// fps 为 0/负数/NaN、interval 为 0 或负数时都退化为 1，保证采样循环一定前进。
func SampleStep(fps float64, interval int) int {
	v := math.Round(fps * float64(interval))
	if math.IsNaN(v) || v < 1 {
		return 1
	}
	if v > maxStep {
		return maxStep
	}
	return int(v)
}

// SlideName 返回帧号对应的 slide 文件名，例如 (90, ".png") => "0000090.png"。
func SlideName(index int, ext string) string {
	return fmt.Sprintf("%0*d%s", slideIndexWidth, index, ext)
}

// Slide 记录一张已写出的 slide。
type Slide struct {
	Frame    int     `json:"frame"`
	Seconds  float64 `json:"seconds"`
	File     string  `json:"file"`
	Distance int     `json:"distance"` // 相对上一张已保存 slide 的距离；首帧恒为 0
}

// FrameSeconds 把帧号换算为时间偏移；fps 未知时返回 0。
func FrameSeconds(index int, fps float64) float64 {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return 0
	}
	return float64(index) / fps
}
