package slides

import (
	"image"

	"github.com/John-Robertt/slidaway/internal/domain"
	"github.com/John-Robertt/slidaway/internal/infra/fsx"
	"github.com/John-Robertt/slidaway/internal/infra/imgx"
)

// Sink 接收被判定为 slide 的帧。
type Sink interface {
	// Prepare 在首帧写出之前调用一次。
	Prepare() error
	// Write 写出帧号为 index 的 slide，返回写出的文件名。
	Write(index int, img image.Image) (string, error)
}

// DirSink 把 slide 写到一个目录里，文件名为 7 位补零的帧号。
type DirSink struct {
	Dir    string
	Format imgx.Format
}

var _ Sink = DirSink{}

// Prepare 创建目录，并清理目录中已有的同扩展名图片。
func (s DirSink) Prepare() error {
	if err := fsx.EnsureDir(s.Dir); err != nil {
		return err
	}
	_, err := fsx.ClearFiles(s.Dir, s.format().Ext())
	return err
}

func (s DirSink) Write(index int, img image.Image) (string, error) {
	f := s.format()
	b, err := imgx.Encode(img, f)
	if err != nil {
		return "", err
	}
	name := domain.SlideName(index, f.Ext())
	if err := fsx.WriteFileAtomicReplace(s.Dir, name, b); err != nil {
		return "", err
	}
	return name, nil
}

func (s DirSink) format() imgx.Format {
	if s.Format == "" {
		return imgx.DefaultFormat
	}
	return s.Format
}
