// Package i18n 提供 CLI 输出的消息目录（en/ja/zh）。
//
// 消息以英文格式串为 key；未翻译的 key 回落为英文原文。
package i18n

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// 消息 key（同时也是英文文案）。
const (
	MsgStart        = "Start extracting the slides: %d video(s)"
	MsgVideoInfo    = "File name: %s  Total number of frames: %d  FPS: %.2f"
	MsgVideoDone    = "Extraction finished: %s (%d slides)"
	MsgVideoFailed  = "Extraction failed: %s (%s)"
	MsgSummary      = "Processed %d, failed %d, slides %d"
	MsgNoInput      = "No video files found"
	MsgPageFileName = "File name: %s"
	MsgPageURLKind  = "Source: %s"

	MsgConfig      = "Effective config:"
	MsgKeepAll     = "%d (keep every sample)"
	MsgPhaseScan   = "Scan: inputs=%d videos=%d (%s)"
	MsgPhasePlan   = "Plan: videos=%d conflicts=%d (%s)"
	MsgProgress    = "Progress: done=%d/%d ok=%d fail=%d active=%d elapsed=%s%s"
	MsgSkipped     = "skipped=%d"
	MsgUsageError  = "Invalid arguments: %v"
	MsgUsageHint   = `Run "slidaway --help" for usage.`
	MsgGetwdFailed = "Cannot read the current directory: %v"
	MsgReportWrite = "Cannot write the report: %v"
	MsgPageRead    = "Cannot read the page: %v"
	MsgPageNotZoom = "Warning: %q is not a Zoom URL (%s)"
	MsgPageParse   = "Cannot parse the page: %v"
	MsgPageName    = "Cannot choose a file name: %v"
)

// Supported 是支持的语言，顺序即匹配优先级（第一个是默认值）。
var Supported = []language.Tag{
	language.English,
	language.Japanese,
	language.Chinese,
}

var translations = map[language.Tag]map[string]string{
	language.Japanese: {
		MsgStart:        "スライドの抽出を開始します: %d 件",
		MsgVideoInfo:    "ファイル名: %s  総フレーム数: %d  FPS: %.2f",
		MsgVideoDone:    "抽出完了: %s（%d 枚）",
		MsgVideoFailed:  "抽出失敗: %s（%s）",
		MsgSummary:      "処理 %d 件、失敗 %d 件、スライド %d 枚",
		MsgNoInput:      "ファイルがありません",
		MsgPageFileName: "ファイル名: %s",
		MsgPageURLKind:  "ソース: %s",
		MsgConfig:       "有効な設定:",
		MsgKeepAll:      "%d（すべての採取フレームを保存）",
		MsgPhaseScan:    "スキャン: inputs=%d videos=%d (%s)",
		MsgPhasePlan:    "計画: videos=%d conflicts=%d (%s)",
		MsgProgress:     "進捗: done=%d/%d ok=%d fail=%d active=%d elapsed=%s%s",
		MsgSkipped:      "スキップ=%d",
		MsgUsageError:   "引数エラー: %v",
		MsgUsageHint:    `詳しくは "slidaway --help" を参照してください。`,
		MsgGetwdFailed:  "カレントディレクトリを取得できません: %v",
		MsgReportWrite:  "レポートを書き込めません: %v",
		MsgPageRead:     "ページを読み込めません: %v",
		MsgPageNotZoom:  "警告: %q は Zoom の URL ではありません（%s）",
		MsgPageParse:    "ページを解析できません: %v",
		MsgPageName:     "ファイル名を決められません: %v",
	},
	language.Chinese: {
		MsgStart:        "开始提取幻灯片：%d 个视频",
		MsgVideoInfo:    "文件名：%s  总帧数：%d  FPS：%.2f",
		MsgVideoDone:    "提取完成：%s（%d 张）",
		MsgVideoFailed:  "提取失败：%s（%s）",
		MsgSummary:      "已处理 %d，失败 %d，幻灯片 %d",
		MsgNoInput:      "没有找到视频文件",
		MsgPageFileName: "文件名：%s",
		MsgPageURLKind:  "来源：%s",
		MsgConfig:       "配置（生效）:",
		MsgKeepAll:      "%d（保存每个采样帧）",
		MsgPhaseScan:    "扫描: inputs=%d videos=%d (%s)",
		MsgPhasePlan:    "规划: videos=%d conflicts=%d (%s)",
		MsgProgress:     "进度: done=%d/%d ok=%d fail=%d active=%d elapsed=%s%s",
		MsgSkipped:      "跳过=%d",
		MsgUsageError:   "参数错误：%v",
		MsgUsageHint:    `使用 "slidaway --help" 查看详细说明。`,
		MsgGetwdFailed:  "读取当前目录失败：%v",
		MsgReportWrite:  "写入 report 失败：%v",
		MsgPageRead:     "读取页面失败：%v",
		MsgPageNotZoom:  "警告：%q 不是 Zoom 地址（%s）",
		MsgPageParse:    "解析页面失败：%v",
		MsgPageName:     "生成文件名失败：%v",
	},
}

var (
	cat     = buildCatalog()
	matcher = language.NewMatcher(Supported)
)

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range translations {
		for key, msg := range msgs {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// Resolve 选择输出语言：显式配置优先，其次是 LC_ALL / LC_MESSAGES / LANG 环境变量；都无法匹配时为英文。
func Resolve(lang string, getenv func(string) string) language.Tag {
	candidates := []string{lang}
	if getenv != nil {
		candidates = append(candidates, getenv("LC_ALL"), getenv("LC_MESSAGES"), getenv("LANG"))
	}
	for _, c := range candidates {
		c = normalizeLocale(c)
		if c == "" {
			continue
		}
		t, err := language.Parse(c)
		if err != nil {
			continue
		}
		_, idx, conf := matcher.Match(t)
		if conf == language.No {
			continue
		}
		return Supported[idx]
	}
	return language.English
}

// normalizeLocale 把 POSIX locale（ja_JP.UTF-8、zh_CN@pinyin）转成 BCP 47 形式。
func normalizeLocale(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	if s == "C" || s == "POSIX" {
		return ""
	}
	return strings.ReplaceAll(s, "_", "-")
}

// NewPrinter 返回绑定 tag 与内置消息目录的 printer。
func NewPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(cat))
}
