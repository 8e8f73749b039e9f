package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const lockSuffix = ".lock"

// ChapterLock serializes writers of one chapter folder. Goroutines in this
// process share a keyed mutex; other processes are held off by a file lock
// on "<chapter-dir>.lock" next to the folder.
type ChapterLock struct {
	mu    sync.Mutex
	inuse map[string]*keyedMutex
	retry time.Duration
}

type keyedMutex struct {
	mu   sync.Mutex
	refs int
}

func NewChapterLock() *ChapterLock {
	return &ChapterLock{inuse: make(map[string]*keyedMutex), retry: 50 * time.Millisecond}
}

// Lock acquires the lock for dir and returns its release function.
func (c *ChapterLock) Lock(ctx context.Context, dir string) (func(), error) {
	km := c.acquire(dir)
	km.mu.Lock()

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		km.mu.Unlock()
		c.release(dir, km)
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	fl := flock.New(filepath.Clean(dir) + lockSuffix)
	locked, err := fl.TryLockContext(ctx, c.retry)
	if err != nil || !locked {
		km.mu.Unlock()
		c.release(dir, km)
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("lock chapter: %w", err)
	}
	return func() {
		_ = fl.Unlock()
		km.mu.Unlock()
		c.release(dir, km)
	}, nil
}

func (c *ChapterLock) acquire(key string) *keyedMutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	km, ok := c.inuse[key]
	if !ok {
		km = &keyedMutex{}
		c.inuse[key] = km
	}
	km.refs++
	return km
}

func (c *ChapterLock) release(key string, km *keyedMutex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	km.refs--
	if km.refs == 0 {
		delete(c.inuse, key)
	}
}
