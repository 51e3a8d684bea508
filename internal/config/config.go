package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/John-Robertt/slidaway/internal/domain"
	"github.com/John-Robertt/slidaway/internal/infra/imgx"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
)

// FileName 是 cwd 下自动发现的配置文件名。
const FileName = "slidaway.toml"

const (
	// DefaultSaveDir 是输出根目录的内置默认值。
	DefaultSaveDir = "."
	// DefaultConcurrency 是并发的内置默认值：一次处理一个视频。
	DefaultConcurrency = 1
	// MaxConcurrency 是并发上限；超出截断。
	MaxConcurrency = 32
)

// CLIArgs 是 CLI 入口参数，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 -t 0 必须能覆盖 threshold = 5。
type CLIArgs struct {
	// ConfigPath 非空时必须存在；为空时尝试读取 <cwd>/slidaway.toml（可选）。
	ConfigPath string

	Interval    int
	IntervalSet bool

	Threshold    int
	ThresholdSet bool

	SaveDir    string
	SaveDirSet bool

	Format    string
	FormatSet bool

	Lang    string
	LangSet bool

	Concurrency    int
	ConcurrencySet bool

	// NoProbe 对应 --no-probe：只能关闭 ffprobe 补全。
	NoProbe bool
}

// FileConfig 对应 slidaway.toml 的解析结构。
//
// 数值项都是指针：nil 表示“未配置”，与显式写 0 区分。
type FileConfig struct {
	Interval    *int     `toml:"interval"`
	Threshold   *int     `toml:"threshold"`
	SaveDir     string   `toml:"savedir"`
	Format      string   `toml:"format"`
	Lang        string   `toml:"lang"`
	Concurrency *int     `toml:"concurrency"`
	Probe       *bool    `toml:"probe"`
	ExcludeDirs []string `toml:"exclude_dirs"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Interval  int
	Threshold int

	// SaveDir 是 clean + absolute 的输出根目录。
	SaveDir string
	Format  imgx.Format
	Lang    string

	Concurrency int
	Probe       bool
	// ExcludeDirs 是 clean + absolute 的排除目录（目录输入扫描时跳过）。
	ExcludeDirs []string

	// ConfigPath 是实际读取的配置文件；未读取时为空。
	ConfigPath string
	// UnknownKeys 是配置文件中无法识别的键（不报错，由上层提示）。
	UnknownKeys []string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在
// 2) 否则尝试读取 <cwd>/slidaway.toml（可选）
//
// 覆盖优先级（固定）：CLI（仅显式指定的项）> 配置文件 > 内置默认值。
// exclude_dirs 仅由配置文件控制（CLI 不暴露）。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	required := false
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		required = true
	}

	fc, undecoded, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		if required {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
		cfgPath = ""
	}

	eff, err := merge(cwdAbs, cli, fc, cfgPath)
	if err != nil {
		return EffectiveConfig{}, err
	}
	eff.UnknownKeys = undecoded
	return eff, nil
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	// 错误里没有文件时，用 "<cli>" 标记来源。
	src := cfgPath
	if src == "" {
		src = "<cli>"
	}

	interval := domain.DefaultInterval
	if cli.IntervalSet {
		interval = cli.Interval
	} else if fc.Interval != nil {
		interval = *fc.Interval
	}

	threshold := domain.DefaultThreshold
	if cli.ThresholdSet {
		threshold = cli.Threshold
	} else if fc.Threshold != nil {
		threshold = *fc.Threshold
	}

	saveDir := DefaultSaveDir
	if cli.SaveDirSet {
		saveDir = cli.SaveDir
	} else if strings.TrimSpace(fc.SaveDir) != "" {
		saveDir = fc.SaveDir
	}
	if strings.TrimSpace(saveDir) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: src, Err: errors.New("savedir 不能为空")}
	}

	format := imgx.DefaultFormat
	rawFormat := ""
	if cli.FormatSet {
		rawFormat = cli.Format
	} else if strings.TrimSpace(fc.Format) != "" {
		rawFormat = fc.Format
	}
	if cli.FormatSet || rawFormat != "" {
		f, err := imgx.ParseFormat(rawFormat)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: src, Err: err}
		}
		format = f
	}

	lang := fc.Lang
	if cli.LangSet {
		lang = cli.Lang
	}
	lang = strings.ToLower(strings.TrimSpace(lang))
	if err := validateLang(lang); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: src, Err: err}
	}

	concurrency := DefaultConcurrency
	if cli.ConcurrencySet {
		concurrency = cli.Concurrency
	} else if fc.Concurrency != nil {
		concurrency = *fc.Concurrency
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}

	probe := true
	if fc.Probe != nil {
		probe = *fc.Probe
	}
	if cli.NoProbe {
		probe = false
	}

	var excludes []string
	for _, d := range fc.ExcludeDirs {
		if strings.TrimSpace(d) == "" {
			continue
		}
		excludes = append(excludes, absCleanFrom(cwdAbs, d))
	}

	return EffectiveConfig{
		Interval:    interval,
		Threshold:   threshold,
		SaveDir:     absCleanFrom(cwdAbs, saveDir),
		Format:      format,
		Lang:        lang,
		Concurrency: concurrency,
		Probe:       probe,
		ExcludeDirs: excludes,
		ConfigPath:  cfgPath,
	}, nil
}

func validateLang(l string) error {
	switch l {
	case "", "en", "ja", "zh":
		return nil
	default:
		return fmt.Errorf("lang 只能是 en、ja 或 zh，实际是 %q", l)
	}
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 TOML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）；undecoded 是未识别的键（已排序）。
func readFileConfig(path string) (fc FileConfig, undecoded []string, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil, false, nil
		}
		return FileConfig{}, nil, false, err
	}
	md, err := toml.Decode(string(b), &fc)
	if err != nil {
		return FileConfig{}, nil, true, err
	}
	for _, k := range md.Undecoded() {
		undecoded = append(undecoded, k.String())
	}
	sort.Strings(undecoded)
	return fc, undecoded, true, nil
}
