package slides

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/John-Robertt/slidaway/internal/imghash"
	"github.com/John-Robertt/slidaway/internal/infra/imgx"
)

// hashedImage 携带预设的哈希值，配合 fakeHash 精确控制每一帧的距离。
type hashedImage struct {
	*image.Gray
	h imghash.Hash
}

func fakeHash(img image.Image) (imghash.Hash, error) {
	hi, ok := img.(hashedImage)
	if !ok {
		return 0, errors.New("unexpected image type")
	}
	return hi.h, nil
}

// fakeSource 是内存中的 FrameSource。
//
// - count：报告的帧数（可以与真实可解码帧数不同，用于模拟估计值）
// - last：真实可解码的最大帧号；超出返回 ErrEndOfStream
// - hashes：帧号 -> 哈希；未列出的帧使用最近的前一个已列出帧的哈希
// - failAt：这些帧号解码失败
// - shift：seek 不精确时报告的帧号偏移
type fakeSource struct {
	count  int
	fps    float64
	last   int
	hashes map[int]imghash.Hash
	failAt map[int]bool
	shift  map[int]int

	seeks  []int
	closed int
}

func (s *fakeSource) FrameCount() int { return s.count }
func (s *fakeSource) FPS() float64    { return s.fps }
func (s *fakeSource) Close() error    { s.closed++; return nil }

func (s *fakeSource) SeekAndDecode(index int) (Frame, error) {
	s.seeks = append(s.seeks, index)
	if index > s.last {
		return Frame{}, ErrEndOfStream
	}
	if s.failAt[index] {
		return Frame{}, errors.New("decode failed")
	}
	return Frame{
		Index: index + s.shift[index],
		Image: hashedImage{Gray: image.NewGray(image.Rect(0, 0, 4, 4)), h: s.hashAt(index)},
	}, nil
}

func (s *fakeSource) hashAt(index int) imghash.Hash {
	keys := make([]int, 0, len(s.hashes))
	for k := range s.hashes {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	var h imghash.Hash
	for _, k := range keys {
		if k > index {
			break
		}
		h = s.hashes[k]
	}
	return h
}

type memSink struct {
	prepared int
	written  []int
	failAt   int // >0 时写该帧号失败
}

func (m *memSink) Prepare() error {
	m.prepared++
	return nil
}

func (m *memSink) Write(index int, img image.Image) (string, error) {
	if m.failAt > 0 && index == m.failAt {
		return "", errors.New("disk full")
	}
	m.written = append(m.written, index)
	return "", nil
}

func frames(res Result) []int {
	out := make([]int, 0, len(res.Slides))
	for _, s := range res.Slides {
		out = append(out, s.Frame)
	}
	return out
}

func TestRun_ComparesAgainstLastEmittedSlide(t *testing.T) {
	// fps=30, interval=3 => step=90；N=271 => 采样 90/180/270。
	// 距离依次为 3（相对帧 0）、9（相对帧 0）、4（相对帧 180）。
	// 帧 270 相对帧 0 的距离是 13：若错误地与首帧比较会被保存。
	src := &fakeSource{
		count: 271,
		fps:   30,
		last:  270,
		hashes: map[int]imghash.Hash{
			0:   0,
			90:  0x7,
			180: 0x1FF,
			270: 0x1FF ^ 0xF000,
		},
	}
	sink := &memSink{}
	e := &Extractor{Config: Config{Interval: 3, Threshold: 5}, Hash: fakeHash}

	res, err := e.Run(src, sink)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	if !reflect.DeepEqual(src.seeks, []int{0, 90, 180, 270}) {
		t.Fatalf("解码顺序不符合预期：%v", src.seeks)
	}
	if res.Step != 90 || res.Samples != 3 || res.Skipped != 0 {
		t.Fatalf("统计不符合预期：%+v", res)
	}
	if got := frames(res); !reflect.DeepEqual(got, []int{0, 180}) {
		t.Fatalf("保存的帧不符合预期：%v", got)
	}
	if !reflect.DeepEqual(sink.written, []int{0, 180}) {
		t.Fatalf("写出的帧不符合预期：%v", sink.written)
	}
	if res.Slides[1].Distance != 9 || res.Slides[1].Seconds != 6 {
		t.Fatalf("slide 元数据不符合预期：%+v", res.Slides[1])
	}
	if sink.prepared != 1 {
		t.Fatalf("Prepare 应调用 1 次，实际 %d", sink.prepared)
	}
	if src.closed != 0 {
		t.Fatalf("Run 不应关闭 source")
	}
}

func TestRun_EqualToThresholdIsUnchanged(t *testing.T) {
	src := &fakeSource{
		count:  3,
		fps:    1,
		last:   2,
		hashes: map[int]imghash.Hash{0: 0, 1: 0x1F, 2: 0x3F},
	}
	e := &Extractor{Config: Config{Interval: 1, Threshold: 5}, Hash: fakeHash}

	res, err := e.Run(src, &memSink{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	// 帧 1 距离 5（== 阈值）不保存；帧 2 距离 6 保存。
	if got := frames(res); !reflect.DeepEqual(got, []int{0, 2}) {
		t.Fatalf("保存的帧不符合预期：%v", got)
	}
}

func TestRun_GradualDriftAccumulates(t *testing.T) {
	// 每个采样相对前一个采样只变化 3 bit（< 阈值 5），
	// 但相对上一张 slide 的漂移会累积：每两个采样触发一次保存。
	hashes := map[int]imghash.Hash{}
	var h imghash.Hash
	for i := 0; i <= 6; i++ {
		hashes[i] = h
		h = h<<3 | 0x7
	}
	src := &fakeSource{count: 7, fps: 1, last: 6, hashes: hashes}
	e := &Extractor{Config: Config{Interval: 1, Threshold: 5}, Hash: fakeHash}

	res, err := e.Run(src, &memSink{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := frames(res); !reflect.DeepEqual(got, []int{0, 2, 4, 6}) {
		t.Fatalf("保存的帧不符合预期：%v", got)
	}
}

func TestRun_NegativeThresholdKeepsEverySample(t *testing.T) {
	// 所有帧哈希相同：只有“不去重”模式才会保存。
	src := &fakeSource{
		count:  10,
		fps:    2,
		last:   9,
		failAt: map[int]bool{4: true},
	}
	e := &Extractor{Config: Config{Interval: 1, Threshold: -1}, Hash: fakeHash}

	res, err := e.Run(src, &memSink{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	// step=2 => 采样 2/4/6/8；帧 4 解码失败。
	if got := frames(res); !reflect.DeepEqual(got, []int{0, 2, 6, 8}) {
		t.Fatalf("保存的帧不符合预期：%v", got)
	}
	if len(res.Slides) != 1+res.Samples-res.Skipped {
		t.Fatalf("不去重模式下 slide 数应为 1 + 成功采样数：%+v", res)
	}
}

func TestRun_SampleDecodeFailureIsSkippedWithoutHashUpdate(t *testing.T) {
	src := &fakeSource{
		count:  4,
		fps:    1,
		last:   3,
		hashes: map[int]imghash.Hash{0: 0, 1: 0xFF, 2: 0x3, 3: 0xFF},
		failAt: map[int]bool{1: true},
	}
	e := &Extractor{Config: Config{Interval: 1, Threshold: 5}, Hash: fakeHash}

	res, err := e.Run(src, &memSink{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Samples != 3 || res.Skipped != 1 {
		t.Fatalf("统计不符合预期：%+v", res)
	}
	// 帧 2 相对帧 0 距离 2：不保存；帧 3 相对帧 0 距离 8：保存。
	if got := frames(res); !reflect.DeepEqual(got, []int{0, 3}) {
		t.Fatalf("保存的帧不符合预期：%v", got)
	}
}

func TestRun_SkippedSampleIsLoggedWithErrorCode(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	src := &fakeSource{count: 3, fps: 1, last: 2, failAt: map[int]bool{2: true}}
	e := &Extractor{Config: Config{Interval: 1, Threshold: 5}, Hash: fakeHash, Logger: zap.New(core)}

	if _, err := e.Run(src, &memSink{}); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	entries := logs.FilterMessage("skip sample").All()
	if len(entries) != 1 {
		t.Fatalf("期望 1 条跳过日志，实际 %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["error_code"] != string(KindSampleDecode) || fields["frame"] != int64(2) {
		t.Fatalf("日志字段不符合预期：%v", fields)
	}
}

func TestRun_SampleCountMatchesStride(t *testing.T) {
	cases := []struct {
		n, fps, interval int
		wantSamples      int
	}{
		{271, 30, 3, 3},
		{270, 30, 3, 2},
		{91, 30, 3, 1},
		{90, 30, 3, 0},
		{1, 30, 3, 0},
		{10, 1, 0, 9}, // interval 0 => step 1
	}
	for _, tc := range cases {
		src := &fakeSource{count: tc.n, fps: float64(tc.fps), last: tc.n - 1}
		e := &Extractor{Config: Config{Interval: tc.interval, Threshold: 5}, Hash: fakeHash}
		res, err := e.Run(src, &memSink{})
		if err != nil {
			t.Fatalf("n=%d 不期望错误：%v", tc.n, err)
		}
		if res.Samples != tc.wantSamples {
			t.Fatalf("n=%d fps=%d interval=%d：采样 %d 次，期望 %d", tc.n, tc.fps, tc.interval, res.Samples, tc.wantSamples)
		}
		if want := SampleTotal(tc.n, res.Step); want != tc.wantSamples {
			t.Fatalf("SampleTotal(%d, %d)=%d，期望 %d", tc.n, res.Step, want, tc.wantSamples)
		}
	}
}

func TestRun_StepBeyondLengthEmitsOnlyFirstFrame(t *testing.T) {
	src := &fakeSource{count: 100, fps: 30, last: 99, hashes: map[int]imghash.Hash{0: 0, 1: ^imghash.Hash(0)}}
	e := &Extractor{Config: Config{Interval: 60, Threshold: -1}, Hash: fakeHash}

	res, err := e.Run(src, &memSink{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := frames(res); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("期望只有首帧：%v", got)
	}
}

func TestRun_UnknownLengthStopsAtEndOfStream(t *testing.T) {
	src := &fakeSource{count: 0, fps: 0, last: 4, hashes: map[int]imghash.Hash{0: 0, 3: 0xFFFF}}
	e := &Extractor{Config: Config{Interval: 3, Threshold: 5}, Hash: fakeHash}

	res, err := e.Run(src, &memSink{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	// fps=0 => step=1；帧 5 返回 EOS 后结束。
	if !reflect.DeepEqual(src.seeks, []int{0, 1, 2, 3, 4, 5}) {
		t.Fatalf("解码顺序不符合预期：%v", src.seeks)
	}
	if res.Samples != 4 {
		t.Fatalf("EOS 不应计入采样：%+v", res)
	}
	if got := frames(res); !reflect.DeepEqual(got, []int{0, 3}) {
		t.Fatalf("保存的帧不符合预期：%v", got)
	}
}

func TestRun_OverestimatedFrameCountStopsAtEndOfStream(t *testing.T) {
	src := &fakeSource{count: 1000, fps: 1, last: 25}
	e := &Extractor{Config: Config{Interval: 10, Threshold: 5}, Hash: fakeHash}

	_, err := e.Run(src, &memSink{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !reflect.DeepEqual(src.seeks, []int{0, 10, 20, 30}) {
		t.Fatalf("解码顺序不符合预期：%v", src.seeks)
	}
}

func TestRun_FirstFrameFailureIsFatal(t *testing.T) {
	src := &fakeSource{count: 100, fps: 30, last: 99, failAt: map[int]bool{0: true}}
	sink := &memSink{}
	e := &Extractor{Config: Config{Interval: 3, Threshold: -1}, Hash: fakeHash}

	res, err := e.Run(src, sink)
	if KindOf(err) != KindFirstFrame {
		t.Fatalf("期望 %q，实际 %v", KindFirstFrame, err)
	}
	if len(res.Slides) != 0 || len(sink.written) != 0 {
		t.Fatalf("首帧失败时不应写出任何 slide：%+v", res)
	}
	if !reflect.DeepEqual(src.seeks, []int{0}) {
		t.Fatalf("首帧失败后不应继续解码：%v", src.seeks)
	}
}

func TestRun_EmptyVideoIsFirstFrameFailure(t *testing.T) {
	src := &fakeSource{count: 0, fps: 0, last: -1}
	e := &Extractor{Config: Config{Interval: 3, Threshold: 5}, Hash: fakeHash}

	_, err := e.Run(src, &memSink{})
	if KindOf(err) != KindFirstFrame || !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("期望首帧失败并包装 ErrEndOfStream，实际 %v", err)
	}
}

func TestRun_WriteFailureIsFatal(t *testing.T) {
	src := &fakeSource{count: 300, fps: 1, last: 299}
	sink := &memSink{failAt: 20}
	e := &Extractor{Config: Config{Interval: 10, Threshold: -1}, Hash: fakeHash}

	res, err := e.Run(src, sink)
	if KindOf(err) != KindOutputWrite {
		t.Fatalf("期望 %q，实际 %v", KindOutputWrite, err)
	}
	if got := frames(res); !reflect.DeepEqual(got, []int{0, 10}) {
		t.Fatalf("失败前已写出的 slide 应保留在结果中：%v", got)
	}
	if src.seeks[len(src.seeks)-1] != 20 {
		t.Fatalf("写出失败后不应继续采样：%v", src.seeks)
	}
}

func TestRun_UsesDecoderReportedIndex(t *testing.T) {
	src := &fakeSource{
		count:  40,
		fps:    1,
		last:   39,
		hashes: map[int]imghash.Hash{0: 0, 10: 0xFF, 20: 0xFFFF, 30: 0xFFFFFF},
		// 帧 10 实际落在 12；帧 20 回退到 11（早于上一张 slide）。
		shift: map[int]int{10: 2, 20: -9},
	}
	e := &Extractor{Config: Config{Interval: 10, Threshold: 5}, Hash: fakeHash}

	res, err := e.Run(src, &memSink{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := frames(res); !reflect.DeepEqual(got, []int{0, 12, 20, 30}) {
		t.Fatalf("slide 帧号不符合预期：%v", got)
	}
}

func TestRun_Deterministic(t *testing.T) {
	mk := func() *fakeSource {
		return &fakeSource{
			count:  50,
			fps:    1,
			last:   49,
			hashes: map[int]imghash.Hash{0: 0, 5: 0x3, 10: 0xFF, 25: 0xF0F0, 40: 0xF0F3},
			failAt: map[int]bool{15: true},
		}
	}
	e := &Extractor{Config: Config{Interval: 5, Threshold: 3}, Hash: fakeHash}

	a, err := e.Run(mk(), &memSink{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, err := e.Run(mk(), &memSink{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("相同输入应得到相同结果：\na=%+v\nb=%+v", a, b)
	}
}

func TestRun_ProgressReportsEverySample(t *testing.T) {
	src := &fakeSource{count: 31, fps: 1, last: 30, failAt: map[int]bool{20: true}}
	var calls [][2]int
	e := &Extractor{
		Config:   Config{Interval: 10, Threshold: 5},
		Hash:     fakeHash,
		Progress: func(done, total int) { calls = append(calls, [2]int{done, total}) },
	}

	if _, err := e.Run(src, &memSink{}); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := [][2]int{{1, 3}, {2, 3}, {3, 3}}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("进度回调不符合预期：got=%v want=%v", calls, want)
	}
}

func TestDirSink_ClearsStaleSlidesAndIsIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "talk")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	// 上一次运行残留的 slide，以及用户自己的文件。
	for _, name := range []string{"0000999.png", "readme.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("写入文件失败：%v", err)
		}
	}

	run := func() []string {
		src := &fakeSource{
			count:  30,
			fps:    1,
			last:   29,
			hashes: map[int]imghash.Hash{0: 0, 10: 0xFFFF},
		}
		e := &Extractor{Config: Config{Interval: 10, Threshold: 5}, Hash: fakeHash}
		if _, err := e.Run(src, DirSink{Dir: dir, Format: imgx.PNG}); err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("ReadDir 失败：%v", err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		return names
	}

	want := []string{"0000000.png", "0000010.png", "readme.txt"}
	if got := run(); !reflect.DeepEqual(got, want) {
		t.Fatalf("首次运行结果不符合预期：got=%v want=%v", got, want)
	}
	if got := run(); !reflect.DeepEqual(got, want) {
		t.Fatalf("重复运行结果不符合预期：got=%v want=%v", got, want)
	}
}
