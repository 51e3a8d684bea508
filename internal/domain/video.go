package domain

// VideoFile 描述一个待处理的视频输入（只做 stat，不读内容）。
//
// 不变量（实现必须遵守）：
// - AbsPath 必须是 clean + absolute
// - Base 是去掉扩展名的文件名，同时也是该视频的输出子目录名
type VideoFile struct {
	AbsPath string
	Base    string // filename without ext
	Ext     string // ".mp4"
	Size    int64
	ModUnix int64
}

// VideoInfo 是打开视频后读到的流信息（用于处理前的摘要输出）。
// FrameCount/FPS 可能为 0：表示容器未提供或解码器无法估计。
type VideoInfo struct {
	Name       string
	FrameCount int
	FPS        float64
	Step       int
	OutDir     string
}

// VideoPlan 是单个视频的执行计划：输入文件与分配到的输出目录。
type VideoPlan struct {
	Video  VideoFile
	OutDir string
}
