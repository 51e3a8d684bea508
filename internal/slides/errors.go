package slides

import (
	"errors"
	"fmt"

	"github.com/John-Robertt/slidaway/internal/domain"
)

// Kind 区分失败类别；取值与 report 的 error_code 一致。
// KindSampleDecode 只出现在日志中：单帧采样失败会被跳过并计数，不会让 Run 返回错误。
type Kind string

const (
	KindSourceOpen   Kind = domain.ErrCodeSourceOpen
	KindFirstFrame   Kind = domain.ErrCodeFirstFrame
	KindSampleDecode Kind = domain.ErrCodeSampleDecode
	KindOutputWrite  Kind = domain.ErrCodeOutputWrite
)

// Error 是提取阶段的结构化错误。Frame 为 -1 表示与具体帧无关。
type Error struct {
	Kind  Kind
	Frame int
	Err   error
}

func (e *Error) Error() string {
	if e.Frame >= 0 {
		return fmt.Sprintf("%s（frame=%d）：%v", e.Kind, e.Frame, e.Err)
	}
	return fmt.Sprintf("%s：%v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf 从 error 中提取 Kind；若不是 *Error 则返回空串。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
