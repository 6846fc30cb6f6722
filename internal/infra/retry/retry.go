package retry

import (
	"errors"
	"syscall"
	"time"
)

// DefaultAttempts 是默认的最大重试次数（不含首次尝试）。
const DefaultAttempts = 2

// Policy 把“存储操作的有界重试”固化为统一策略，与时间戳仲裁逻辑完全隔离。
//
// 只对瞬时错误重试（EINTR/EAGAIN/EBUSY）；权限、磁盘满、不存在等错误立即返回。
type Policy struct {
	// Attempts 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	Attempts int
	// Backoff 是两次尝试之间的等待（线性递增）。零值表示不等待。
	Backoff time.Duration

	// sleep 可替换，便于测试。
	sleep func(time.Duration)
}

// New 构造一个重试策略；attempts<0 视为 0。
func New(attempts int, backoff time.Duration) Policy {
	if attempts < 0 {
		attempts = 0
	}
	return Policy{Attempts: attempts, Backoff: backoff}
}

// Do 执行 fn，遇到瞬时错误时按策略重试，返回最后一次的错误。
func (p Policy) Do(fn func() error) error {
	max := p.Attempts
	if max < 0 {
		max = 0
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsTransient(err) {
			return err
		}
		if attempt < max && p.Backoff > 0 {
			sleep(p.Backoff * time.Duration(attempt+1))
		}
	}
	return lastErr
}

// IsTransient 判断 err 是否属于值得重试的瞬时 I/O 错误。
func IsTransient(err error) bool {
	return errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EBUSY)
}
