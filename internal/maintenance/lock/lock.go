package lock

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrUnavailable means another process holds the maintenance lock.
var ErrUnavailable = errors.New("maintenance_lock_unavailable")

const (
	ModeAdvisory = "advisory"
	ModeFile     = "file"
	ModeNone     = "none"
)

// GlobalLock serializes maintenance runs across processes. On postgres it
// uses a session advisory lock keyed by the lock name; elsewhere it falls
// back to a PID lock file.
type GlobalLock struct {
	db       *gorm.DB
	log      *zap.Logger
	name     string
	filePath string

	mode string
}

func New(db *gorm.DB, log *zap.Logger, name, filePath string) *GlobalLock {
	return &GlobalLock{
		db:       db,
		log:      log.Named("maintenance.lock"),
		name:     name,
		filePath: filePath,
	}
}

// Acquire takes the global lock, preferring the advisory lock and falling
// back to the lock file when the database cannot provide one. Returns
// ErrUnavailable when another holder is alive.
func (l *GlobalLock) Acquire(ctx context.Context) (string, error) {
	if l.db != nil && l.db.Dialector.Name() == "postgres" {
		acquired, err := l.tryAdvisory(ctx)
		if err != nil {
			l.log.Warn("advisory lock query failed, falling back to lock file", zap.Error(err))
		} else if !acquired {
			return ModeAdvisory, fmt.Errorf("advisory lock %q held elsewhere: %w", l.name, ErrUnavailable)
		} else {
			l.mode = ModeAdvisory
			return ModeAdvisory, nil
		}
	}

	if err := l.tryFile(); err != nil {
		return ModeFile, err
	}
	l.mode = ModeFile
	return ModeFile, nil
}

// Release drops whatever Acquire took. Safe to call when nothing is held.
func (l *GlobalLock) Release(ctx context.Context) {
	switch l.mode {
	case ModeAdvisory:
		var unlocked bool
		err := l.db.WithContext(ctx).
			Raw(`SELECT pg_advisory_unlock(?)`, l.advisoryKey()).
			Scan(&unlocked).Error
		if err != nil {
			l.log.Warn("advisory unlock failed", zap.Error(err))
		}
	case ModeFile:
		if err := os.Remove(l.filePath); err != nil && !os.IsNotExist(err) {
			l.log.Warn("lock file removal failed",
				zap.String("path", l.filePath), zap.Error(err))
		}
	}
	l.mode = ""
}

func (l *GlobalLock) tryAdvisory(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.WithContext(ctx).
		Raw(`SELECT pg_try_advisory_lock(?)`, l.advisoryKey()).
		Scan(&acquired).Error
	return acquired, err
}

// advisoryKey hashes the lock name into the int64 keyspace that postgres
// advisory locks use.
func (l *GlobalLock) advisoryKey() int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(l.name))
	return int64(h.Sum64())
}

func (l *GlobalLock) tryFile() error {
	if err := l.createFile(); err == nil {
		return nil
	} else if !os.IsExist(err) {
		return fmt.Errorf("create lock file %s: %w", l.filePath, err)
	}

	holder, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return l.createFile()
		}
		return fmt.Errorf("read lock file %s: %w", l.filePath, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(holder)))
	if err == nil && processAlive(pid) {
		return fmt.Errorf("lock file %s held by pid %d: %w", l.filePath, pid, ErrUnavailable)
	}

	// Holder is gone; reclaim the stale file.
	l.log.Warn("reclaiming stale lock file",
		zap.String("path", l.filePath), zap.String("holder", strings.TrimSpace(string(holder))))
	if err := os.Remove(l.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale lock file %s: %w", l.filePath, err)
	}
	return l.createFile()
}

func (l *GlobalLock) createFile() error {
	f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d\n", os.Getpid())
	return err
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
