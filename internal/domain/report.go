package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

const (
	ErrCodeSourceOpen   = "source_open_failed"
	ErrCodeFirstFrame   = "first_frame_failed"
	ErrCodeSampleDecode = "sample_decode_failed"
	ErrCodeOutputWrite  = "output_write_failed"
	ErrCodeIOFailed     = "io_failed"
	ErrCodeCanceled     = "canceled"

	ErrCodeConfigNotFound = "config_not_found"
	ErrCodeConfigInvalid  = "config_invalid"
)

// RunReport 是对外稳定输出（--report 文件 / stdout JSON）的结构。
type RunReport struct {
	SaveDir   string `json:"save_dir"`
	Interval  int    `json:"interval"`
	Threshold int    `json:"threshold"`
	Format    string `json:"format"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []VideoResult `json:"items"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Slides    int `json:"slides"`
}

// VideoResult 是单个视频的处理结果。失败只影响该条目，不影响其他视频。
type VideoResult struct {
	Video  string `json:"video"`
	Name   string `json:"name"`
	OutDir string `json:"out_dir"`

	FrameCount int     `json:"frame_count"`
	FPS        float64 `json:"fps"`
	Step       int     `json:"step"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	// Samples 是首帧之后尝试解码的采样次数；SkippedSamples 是其中解码失败被跳过的次数。
	Samples        int     `json:"samples"`
	SkippedSamples int     `json:"skipped_samples"`
	Slides         []Slide `json:"slides"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 video 路径字典序；video=="" 的合成条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Video
		b := r.Items[j].Video
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusFailed:
			s.Failed++
		}
		s.Slides += len(it.Slides)
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性：nil 切片统一输出为 []。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	a := Alias(r)
	// 复制一份，避免修改调用方持有的 items。
	a.Items = append(make([]VideoResult, 0, len(r.Items)), r.Items...)
	for i := range a.Items {
		if a.Items[i].Slides == nil {
			a.Items[i].Slides = []Slide{}
		}
	}
	return json.Marshal(a)
}
