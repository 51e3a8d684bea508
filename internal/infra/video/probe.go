package video

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// StreamInfo 是 ffprobe 报告的首个视频流信息。字段为 0 表示未知。
type StreamInfo struct {
	FrameCount int
	FPS        float64
}

// 通过可替换的函数指针，让测试不依赖本机 ffprobe。
var probeFunc = func(path string) (string, error) {
	return ffmpeg.Probe(path)
}

// Probe 调用 ffprobe 读取 path 的视频流信息。
func Probe(path string) (StreamInfo, error) {
	out, err := probeFunc(path)
	if err != nil {
		return StreamInfo{}, err
	}
	return parseProbe([]byte(out))
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		NbFrames     string `json:"nb_frames"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbe(b []byte) (StreamInfo, error) {
	var po probeOutput
	if err := json.Unmarshal(b, &po); err != nil {
		return StreamInfo{}, err
	}

	for _, s := range po.Streams {
		if s.CodecType != "video" {
			continue
		}

		fps := parseRate(s.AvgFrameRate)
		if fps == 0 {
			fps = parseRate(s.RFrameRate)
		}

		count, _ := strconv.Atoi(strings.TrimSpace(s.NbFrames))
		if count <= 0 {
			// 部分容器（例如 mkv）不提供 nb_frames：用时长估算。
			dur := parseFloat(s.Duration)
			if dur == 0 {
				dur = parseFloat(po.Format.Duration)
			}
			count = int(math.Round(dur * fps))
		}
		if count < 0 {
			count = 0
		}
		return StreamInfo{FrameCount: count, FPS: fps}, nil
	}
	return StreamInfo{}, errors.New("ffprobe 未报告视频流")
}

// parseRate 解析 "30000/1001" 或 "25" 形式的帧率；无法解析或分母为 0 时返回 0。
func parseRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return sanitizeRate(parseFloat(num))
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return sanitizeRate(n / d)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// refine 只用 ffprobe 的结果补全 OpenCV 未提供（为 0）的字段，已有值保持不变。
func refine(frameCount int, fps float64, info StreamInfo) (int, float64) {
	if frameCount == 0 && info.FrameCount > 0 {
		frameCount = info.FrameCount
	}
	if fps == 0 && info.FPS > 0 {
		fps = info.FPS
	}
	return frameCount, fps
}
