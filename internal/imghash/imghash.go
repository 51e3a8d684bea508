// Package imghash 提供 slide 去重使用的感知哈希（pHash）。
package imghash

import (
	"errors"
	"image"
	"math/bits"

	"github.com/corona10/goimagehash"
)

// Bits 是哈希长度，也是 Distance 的上界。
const Bits = 64

// Hash 是 64 位 DCT 感知哈希。视觉相似的帧 Hamming 距离小。
type Hash uint64

// Distance 返回两个哈希不同 bit 的个数，范围 [0, Bits]。
func (h Hash) Distance(other Hash) int {
	return bits.OnesCount64(uint64(h ^ other))
}

// Func 是计算帧哈希的函数签名（便于测试时替换）。
type Func func(img image.Image) (Hash, error)

// Perceptual 计算 img 的 pHash：缩放到 32x32 灰度后做 DCT，取左上 8x8 低频分量与中位数比较。
func Perceptual(img image.Image) (Hash, error) {
	if img == nil {
		return 0, errors.New("图像为空")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return 0, errors.New("图像尺寸无效")
	}
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, err
	}
	return Hash(h.GetHash()), nil
}
