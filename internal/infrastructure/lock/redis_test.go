package lock

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"CryptoNewsAnalyzer/internal/domain"
)

func TestNewRedisLockRejectsBadURL(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisLock("not a url", "", nil); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestAcquireReportsUnreachableRedis(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	l, err := NewRedisLock("redis://"+addr+"/0", "test-lock", nil)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	release, acquired, err := l.Acquire(ctx, time.Minute)
	if err == nil || acquired || release != nil {
		t.Fatalf("expected an error from an unreachable server, got acquired=%t err=%v", acquired, err)
	}
}

func TestDefaultKey(t *testing.T) {
	t.Parallel()

	l, err := NewRedisLock("redis://127.0.0.1:6379/0", "", nil)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	defer l.Close()
	if l.key != defaultKey {
		t.Fatalf("key = %q", l.key)
	}
}
