package retry

import (
	"errors"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	p := New(2, time.Millisecond)
	var slept []time.Duration
	p.sleep = func(d time.Duration) { slept = append(slept, d) }

	calls := 0
	err := p.Do(func() error {
		calls++
		if calls < 3 {
			return &os.PathError{Op: "rename", Path: "/x", Err: syscall.EBUSY}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if calls != 3 {
		t.Fatalf("期望 3 次尝试，实际 %d", calls)
	}
	if len(slept) != 2 || slept[0] != time.Millisecond || slept[1] != 2*time.Millisecond {
		t.Fatalf("退避不符合预期：%v", slept)
	}
}

func TestDo_BoundedAttempts(t *testing.T) {
	p := New(1, 0)
	calls := 0
	err := p.Do(func() error {
		calls++
		return syscall.EAGAIN
	})
	if !errors.Is(err, syscall.EAGAIN) {
		t.Fatalf("期望返回最后一次错误，实际：%v", err)
	}
	if calls != 2 {
		t.Fatalf("期望最多 2 次尝试，实际 %d", calls)
	}
}

func TestDo_PermanentErrorNoRetry(t *testing.T) {
	p := New(5, 0)
	calls := 0
	err := p.Do(func() error {
		calls++
		return os.ErrPermission
	})
	if !errors.Is(err, os.ErrPermission) {
		t.Fatalf("期望 ErrPermission，实际：%v", err)
	}
	if calls != 1 {
		t.Fatalf("非瞬时错误不应重试，实际尝试 %d 次", calls)
	}
}
