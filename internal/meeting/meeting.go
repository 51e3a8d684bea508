// Package meeting 处理会议录像来源：URL 分类、已保存的 Zoom 分享页解析、视频文件命名。
//
// 这里只做离线解析，不发起任何 HTTP 请求。
package meeting

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Kind 是录像来源的类别。
type Kind string

const (
	KindStream  Kind = "stream"
	KindZoom    Kind = "zoom"
	KindUnknown Kind = "unknown"
)

// Classify 按 URL 中的域名片段判断来源。
func Classify(rawURL string) Kind {
	s := strings.ToLower(strings.TrimSpace(rawURL))
	switch {
	case strings.Contains(s, "microsoftstream.com/"):
		return KindStream
	case strings.Contains(s, "zoom.us/"):
		return KindZoom
	default:
		return KindUnknown
	}
}

// Page 是从 Zoom 录像分享页中解析出的最小信息。
type Page struct {
	Topic     string `json:"topic"`
	StartTime string `json:"start_time"`
	VideoURL  string `json:"video_url"`
}

// ParsePage 解析已保存的 Zoom 录像分享页 HTML。
// pageURL 可为空；非空时用于把相对的视频地址解析为绝对地址。
func ParsePage(html []byte, pageURL string) (Page, error) {
	if len(bytes.TrimSpace(html)) == 0 {
		return Page{}, errors.New("html 为空")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Page{}, err
	}

	src, _ := doc.Find(`source[type="video/mp4"]`).First().Attr("src")
	src = strings.TrimSpace(src)
	if src == "" {
		return Page{}, errors.New("未找到 mp4 视频地址（疑似不是录像分享页）")
	}

	topic := normSpace(doc.Find(".meeting-topic").First().Text())
	if topic == "" {
		return Page{}, errors.New("未找到会议主题")
	}

	start, _ := doc.Find("#r_meeting_start_time").First().Attr("value")

	return Page{
		Topic:     topic,
		StartTime: trimClock(normSpace(start)),
		VideoURL:  resolveURL(pageURL, src),
	}, nil
}

// FileName 返回不含扩展名的视频文件名：<topic>_<start time>。
// 开始时间中的空格替换为 '_'，':' 与 ',' 被删除；路径分隔符等非法字符替换为 '_'。
func (p Page) FileName() string {
	name := sanitize(p.Topic)
	if st := p.StartTime; st != "" {
		st = strings.ReplaceAll(st, " ", "_")
		st = strings.ReplaceAll(st, ":", "")
		st = strings.ReplaceAll(st, ",", "")
		name += "_" + sanitize(st)
	}
	return name
}

// UniquePath 在 dir 下为 name+ext 选择一个尚不存在的路径：
// name.ext、name_1.ext、name_2.ext……
func UniquePath(dir, name, ext string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("文件名不能为空")
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	p := filepath.Join(dir, name+ext)
	for i := 1; ; i++ {
		_, err := os.Lstat(p)
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		if err != nil {
			return "", err
		}
		if i > 10000 {
			return "", fmt.Errorf("同名文件过多：%q", name)
		}
		p = filepath.Join(dir, fmt.Sprintf("%s_%d%s", name, i, ext))
	}
}

// trimClock 截掉 "AM"/"PM" 之后的内容（页面里的值可能带时区等后缀）。
func trimClock(s string) string {
	i := strings.LastIndex(s, "AM")
	if j := strings.LastIndex(s, "PM"); j > i {
		i = j
	}
	if i < 0 {
		return s
	}
	return strings.TrimSpace(s[:i+2])
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.TrimSpace(base) == "" {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
