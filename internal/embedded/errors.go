package embedded

import (
	"fmt"

	"github.com/pkg/errors"
)

// UnsupportedFormatError 表示容器不受支持、结构损坏，或字段无法被安全写入。
// 上层映射为 error_kind=unsupported_format；遇到它时绝不做部分写入。
type UnsupportedFormatError struct {
	Path   string
	Format Format
	Reason string
	Err    error
}

func (e *UnsupportedFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("不支持的容器（%s）：%q：%s：%v", e.Format, e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("不支持的容器（%s）：%q：%s", e.Format, e.Path, e.Reason)
}

func (e *UnsupportedFormatError) Unwrap() error { return e.Err }

// IsUnsupported 判断 err 链上是否存在 UnsupportedFormatError。
func IsUnsupported(err error) bool {
	var e *UnsupportedFormatError
	return errors.As(err, &e)
}

func unsupported(path string, f Format, reason string, err error) error {
	return &UnsupportedFormatError{Path: path, Format: f, Reason: reason, Err: err}
}
