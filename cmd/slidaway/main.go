package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/message"

	"github.com/John-Robertt/slidaway/internal/app/run"
	"github.com/John-Robertt/slidaway/internal/config"
	"github.com/John-Robertt/slidaway/internal/domain"
	"github.com/John-Robertt/slidaway/internal/i18n"
	"github.com/John-Robertt/slidaway/internal/infra/fsx"
	"github.com/John-Robertt/slidaway/internal/infra/video"
	"github.com/John-Robertt/slidaway/internal/meeting"
)

// version 在发布构建时通过 -ldflags "-X main.version=..." 注入。
var version = "dev"

func main() {
	os.Exit(execute(newApp(), os.Args[1:]))
}

// app 汇总 CLI 的外部依赖；测试中替换为内存实现。
type app struct {
	stdout io.Writer
	stderr io.Writer
	getwd  func() (string, error)
	getenv func(string) string
	// newOpener 根据生效配置构造视频解码器。
	newOpener func(eff config.EffectiveConfig, log *zap.Logger) run.Opener
}

func newApp() *app {
	return &app{
		stdout: os.Stdout,
		stderr: os.Stderr,
		getwd:  os.Getwd,
		getenv: os.Getenv,
		newOpener: func(eff config.EffectiveConfig, log *zap.Logger) run.Opener {
			return video.Opener{Probe: eff.Probe, Logger: log}
		},
	}
}

// exitError 携带进程退出码（已经输出过的失败不再重复打印）。
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit %d", e.code) }

// execute 运行 CLI 并返回退出码：0 成功；1 有视频失败或运行错误；2 参数错误。
func execute(a *app, args []string) int {
	root := a.newRootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.Execute()
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// 参数错误发生在解析 --lang 之前：只按环境变量选择语言。
	pr := i18n.NewPrinter(i18n.Resolve("", a.getenv))
	fmt.Fprintln(a.stderr, pr.Sprintf(i18n.MsgUsageError, err))
	fmt.Fprintln(a.stderr)
	fmt.Fprintln(a.stderr, pr.Sprintf(i18n.MsgUsageHint))
	return 2
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "slidaway",
		Short: "从屏幕共享录像中提取幻灯片",
		Long: `slidaway 按固定时间间隔对录像采样，用感知哈希（pHash）与上一张已保存的幻灯片比较，
只保存变化足够大的帧（无损图片，文件名为 7 位补零的帧号）。

每个视频的输出目录为 <savedir>/<视频文件名（不含扩展名）>/。`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("slidaway {{.Version}}\n")

	root.AddCommand(a.newExtractCmd(), a.newPageCmd(), a.newVersionCmd())
	return root
}

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "slidaway %s\n", version)
		},
	}
}

type extractFlags struct {
	interval    int
	threshold   int
	saveDir     string
	format      string
	lang        string
	concurrency int
	configPath  string
	reportPath  string
	noProbe     bool
	verbose     bool
}

func (a *app) newExtractCmd() *cobra.Command {
	var f extractFlags
	cmd := &cobra.Command{
		Use:   "extract [paths...]",
		Short: "从视频文件（或目录中的视频）提取幻灯片",
		Example: `  slidaway extract lecture.mp4
  slidaway extract -i 2 -t 8 -s slides videos/
  slidaway extract --threshold -1 talk.mkv   # 保存每个采样帧`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fl := cmd.Flags()
			cli := config.CLIArgs{
				ConfigPath:     f.configPath,
				Interval:       f.interval,
				IntervalSet:    fl.Changed("interval"),
				Threshold:      f.threshold,
				ThresholdSet:   fl.Changed("threshold"),
				SaveDir:        f.saveDir,
				SaveDirSet:     fl.Changed("savedir"),
				Format:         f.format,
				FormatSet:      fl.Changed("format"),
				Lang:           f.lang,
				LangSet:        fl.Changed("lang"),
				Concurrency:    f.concurrency,
				ConcurrencySet: fl.Changed("concurrency"),
				NoProbe:        f.noProbe,
			}
			code := a.runExtract(cmd.Context(), args, cli, f)
			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&f.interval, "interval", "i", domain.DefaultInterval, "采样间隔（秒）")
	fl.IntVarP(&f.threshold, "threshold", "t", domain.DefaultThreshold, "Hamming 距离阈值；负数表示保存每个采样帧")
	fl.StringVarP(&f.saveDir, "savedir", "s", config.DefaultSaveDir, "输出根目录（默认为当前目录 .，不是上级目录 ..）")
	fl.StringVar(&f.format, "format", "png", "图片格式：png|tiff|bmp")
	fl.StringVar(&f.lang, "lang", "", "输出语言：en|ja|zh（默认跟随 LANG）")
	fl.IntVarP(&f.concurrency, "concurrency", "j", config.DefaultConcurrency, "同时处理的视频数")
	fl.StringVar(&f.configPath, "config", "", "配置文件路径（默认读取 ./"+config.FileName+"，可选）")
	fl.StringVar(&f.reportPath, "report", "", "把 RunReport JSON 写入该文件")
	fl.BoolVar(&f.noProbe, "no-probe", false, "不使用 ffprobe 补全帧数/帧率")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "输出调试日志到 stderr")
	return cmd
}

func (a *app) runExtract(ctx context.Context, inputs []string, cli config.CLIArgs, f extractFlags) int {
	log := newLogger(a.stderr, f.verbose)
	defer func() { _ = log.Sync() }()

	cwd, err := a.getwd()
	if err != nil {
		fmt.Fprintln(a.stderr, i18n.NewPrinter(i18n.Resolve(cli.Lang, a.getenv)).Sprintf(i18n.MsgGetwdFailed, err))
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwdAbs, cli)
	if err != nil {
		rr := reportForConfigError(cwdAbs, err)
		a.emitReport(rr, i18n.NewPrinter(i18n.Resolve(cli.Lang, a.getenv)))
		return 1
	}
	for _, k := range eff.UnknownKeys {
		log.Warn("unknown config key", zap.String("key", k), zap.String("config", eff.ConfigPath))
	}

	printer := i18n.NewPrinter(i18n.Resolve(eff.Lang, a.getenv))

	progressW, interactive := a.pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW, printer)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	rr := run.Execute(ctx, eff, inputs, run.Options{
		Cwd:      cwdAbs,
		Opener:   a.newOpener(eff, log),
		Observer: obs,
		Logger:   log,
	})
	if len(rr.Items) == 0 {
		fmt.Fprintln(a.stderr, printer.Sprintf(i18n.MsgNoInput))
	}

	if f.reportPath != "" {
		p := f.reportPath
		if !filepath.IsAbs(p) {
			p = filepath.Join(cwdAbs, p)
		}
		if err := writeReportFile(p, rr); err != nil {
			fmt.Fprintln(a.stderr, printer.Sprintf(i18n.MsgReportWrite, err))
			a.emitReport(rr, printer)
			return 1
		}
		if interactive {
			fmt.Fprintf(progressW, "report: %s\n", p)
		}
	}

	a.emitReport(rr, printer)
	if interactive {
		fmt.Fprintf(progressW, "out: %s\n", eff.SaveDir)
	}
	if rr.Summary.Failed == 0 {
		return 0
	}
	return 1
}

func (a *app) newPageCmd() *cobra.Command {
	var (
		pageURL string
		dir     string
		lang    string
	)
	cmd := &cobra.Command{
		Use:   "page <file.html>",
		Short: "解析已保存的 Zoom 录像分享页，给出视频地址与文件名",
		Long: `page 读取一个已保存到本地的 Zoom 录像分享页 HTML，解析会议主题、开始时间与 mp4 地址，
并给出 <主题>_<开始时间>.mp4 形式的文件名（与 --dir 中已有文件不冲突）。不发起任何网络请求。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pr := i18n.NewPrinter(i18n.Resolve(lang, a.getenv))
			b, err := os.ReadFile(args[0])
			if err != nil {
				fmt.Fprintln(a.stderr, pr.Sprintf(i18n.MsgPageRead, err))
				return &exitError{code: 1}
			}
			if pageURL != "" {
				if k := meeting.Classify(pageURL); k != meeting.KindZoom {
					fmt.Fprintln(a.stderr, pr.Sprintf(i18n.MsgPageNotZoom, pageURL, k))
				}
			}
			p, err := meeting.ParsePage(b, pageURL)
			if err != nil {
				fmt.Fprintln(a.stderr, pr.Sprintf(i18n.MsgPageParse, err))
				return &exitError{code: 1}
			}
			path, err := meeting.UniquePath(dir, p.FileName(), ".mp4")
			if err != nil {
				fmt.Fprintln(a.stderr, pr.Sprintf(i18n.MsgPageName, err))
				return &exitError{code: 1}
			}

			if isTTY(a.stdout) {
				fmt.Fprintln(a.stdout, pr.Sprintf(i18n.MsgPageURLKind, meeting.KindZoom))
				fmt.Fprintln(a.stdout, pr.Sprintf(i18n.MsgPageFileName, filepath.Base(path)))
				fmt.Fprintf(a.stdout, "topic: %s\nstart_time: %s\nvideo_url: %s\n", p.Topic, p.StartTime, p.VideoURL)
				return nil
			}
			return json.NewEncoder(a.stdout).Encode(pageResult{Page: p, FileName: filepath.Base(path), Path: path})
		},
	}
	cmd.Flags().StringVar(&pageURL, "url", "", "页面原始地址（用于解析相对的视频地址）")
	cmd.Flags().StringVar(&dir, "dir", ".", "视频保存目录（用于避开同名文件）")
	cmd.Flags().StringVar(&lang, "lang", "", "输出语言：en|ja|zh")
	return cmd
}

type pageResult struct {
	meeting.Page
	FileName string `json:"file_name"`
	Path     string `json:"path"`
}

func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	return zap.New(core)
}

func (a *app) emitReport(rr domain.RunReport, p *message.Printer) {
	summary := p.Sprintf(i18n.MsgSummary, rr.Summary.Processed, rr.Summary.Failed, rr.Summary.Slides)
	if isTTY(a.stdout) {
		fmt.Fprintln(a.stdout, summary)
		if rr.Summary.Failed > 0 {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed {
					continue
				}
				key := it.Video
				if key == "" {
					key = "<config>"
				}
				fmt.Fprintf(a.stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(a.stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(a.stderr, summary)
}

func reportForConfigError(cwdAbs string, err error) domain.RunReport {
	now := time.Now().UTC()
	code := config.Code(err)
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	rr := domain.RunReport{
		SaveDir:    cwdAbs,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.VideoResult{{
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
			Slides:    []domain.Slide{},
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(path string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if err := fsx.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b)
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func (a *app) pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(a.stderr) {
		return a.stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(a.stdout) {
		return a.stdout, true
	}
	return nil, false
}
