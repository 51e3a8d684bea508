package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format 是 slide 的输出格式。只允许无损格式：slide 需要保留文字边缘细节。
type Format string

const (
	PNG  Format = "png"
	TIFF Format = "tiff"
	BMP  Format = "bmp"
)

// DefaultFormat 是输出格式的内置默认值。
const DefaultFormat = PNG

// ParseFormat 解析格式名（不区分大小写，允许 "tif" 与前导 '.'）。
func ParseFormat(s string) (Format, error) {
	v := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	switch v {
	case "png":
		return PNG, nil
	case "tiff", "tif":
		return TIFF, nil
	case "bmp":
		return BMP, nil
	case "":
		return "", errors.New("格式不能为空")
	default:
		return "", fmt.Errorf("格式只能是 png、tiff 或 bmp，实际是 %q", s)
	}
}

// Ext 返回带 '.' 的文件扩展名。
func (f Format) Ext() string {
	return "." + string(f)
}

// Encode 把 img 编码为 f 格式。
//
// 约束：
// - PNG 使用 BestSpeed：slide 的体积主要由分辨率决定，压缩级别影响不大，但对吞吐影响明显
// - TIFF 使用 Deflate + Predictor（仍然无损）
func Encode(img image.Image, f Format) ([]byte, error) {
	if img == nil {
		return nil, errors.New("图像为空")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}

	var out bytes.Buffer
	var err error
	switch f {
	case PNG:
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		err = enc.Encode(&out, img)
	case TIFF:
		err = tiff.Encode(&out, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case BMP:
		err = bmp.Encode(&out, img)
	default:
		return nil, fmt.Errorf("不支持的格式：%q", string(f))
	}
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
