package run

import (
	"errors"

	"github.com/John-Robertt/photofix/internal/domain"
	"github.com/John-Robertt/photofix/internal/embedded"
	"github.com/John-Robertt/photofix/internal/infra/fsx"
	"github.com/John-Robertt/photofix/internal/organize"
	"github.com/John-Robertt/photofix/internal/reconcile"
	"github.com/John-Robertt/photofix/internal/sidecar"
)

// classify 把各包的类型化错误映射到报告里的 error_kind。未识别的错误一律视为 io_failure。
func classify(err error) domain.ErrorKind {
	if err == nil {
		return ""
	}

	var se *sidecar.Error
	if errors.As(err, &se) {
		return domain.ErrSidecarUnreadable
	}
	var ue *embedded.UnsupportedFormatError
	if errors.As(err, &ue) {
		return domain.ErrUnsupportedFormat
	}
	var ne *reconcile.NoTimestampError
	if errors.As(err, &ne) {
		return domain.ErrNoTimestampAvailable
	}
	var ce *organize.ConflictError
	if errors.As(err, &ce) {
		return domain.ErrDestinationConflict
	}
	if fsx.IsPathTypeConflict(err) {
		return domain.ErrDestinationConflict
	}
	return domain.ErrIOFailure
}
