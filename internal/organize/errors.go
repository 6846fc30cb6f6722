package organize

import (
	"errors"
	"fmt"

	"github.com/John-Robertt/photofix/internal/domain"
)

// ConflictError 表示目标位置无法安全落盘：路径类型冲突，或重名候选已用尽。
type ConflictError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("目标冲突：%q：%s：%v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("目标冲突：%q：%s", e.Path, e.Reason)
}

func (e *ConflictError) Unwrap() error { return e.Err }

func (e *ConflictError) Kind() domain.ErrorKind { return domain.ErrDestinationConflict }

func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}
