package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/incuisenix/backend/internal/pkg/logger"
)

func newTestLock(t *testing.T) (*Lock, *miniredis.Miniredis) {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(log, rdb), mr
}

func TestAcquireRelease(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "index:audio_transcript:abc", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatalf("first acquire should succeed")
	}

	ok, err = lock.Acquire(ctx, "index:audio_transcript:abc", time.Minute)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatalf("held lock should not be re-acquirable")
	}

	if err := lock.Release(ctx, "index:audio_transcript:abc"); err != nil {
		t.Fatalf("release: %v", err)
	}

	ok, err = lock.Acquire(ctx, "index:audio_transcript:abc", time.Minute)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	if !ok {
		t.Fatalf("released lock should be acquirable again")
	}
}

func TestLocksAreIndependentByName(t *testing.T) {
	lock, _ := newTestLock(t)
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx, "index:audio_transcript:a", time.Minute); !ok {
		t.Fatalf("acquire a failed")
	}
	if ok, _ := lock.Acquire(ctx, "index:audio_transcript:b", time.Minute); !ok {
		t.Fatalf("lock a must not block lock b")
	}
}

func TestReleaseOnlyByOwner(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	mr := miniredis.RunT(t)

	rdbA := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	rdbB := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdbA.Close(); _ = rdbB.Close() })

	holder := New(log, rdbA)
	intruder := New(log, rdbB)
	ctx := context.Background()

	if ok, _ := holder.Acquire(ctx, "index:ocr:xyz", time.Minute); !ok {
		t.Fatalf("holder acquire failed")
	}

	// The intruder's release is a no-op against someone else's lock.
	if err := intruder.Release(ctx, "index:ocr:xyz"); err != nil {
		t.Fatalf("foreign release should not error: %v", err)
	}
	if ok, _ := intruder.Acquire(ctx, "index:ocr:xyz", time.Minute); ok {
		t.Fatalf("lock must still be held by its owner")
	}
}

func TestAcquireAfterExpiry(t *testing.T) {
	lock, mr := newTestLock(t)
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx, "index:note:u:v", time.Second); !ok {
		t.Fatalf("acquire failed")
	}

	mr.FastForward(2 * time.Second)

	ok, err := lock.Acquire(ctx, "index:note:u:v", time.Second)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	if !ok {
		t.Fatalf("expired lock should be acquirable")
	}
}

func TestExtend(t *testing.T) {
	lock, mr := newTestLock(t)
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx, "index:audio_transcript:ext", time.Second); !ok {
		t.Fatalf("acquire failed")
	}
	if err := lock.Extend(ctx, "index:audio_transcript:ext", time.Minute); err != nil {
		t.Fatalf("extend: %v", err)
	}

	// Past the original TTL but inside the extension.
	mr.FastForward(2 * time.Second)
	if ok, _ := lock.Acquire(ctx, "index:audio_transcript:ext", time.Second); ok {
		t.Fatalf("extended lock should still be held")
	}

	if err := lock.Extend(ctx, "index:audio_transcript:never-held", time.Minute); err == nil {
		t.Fatalf("extending an unheld lock should error")
	}
}
