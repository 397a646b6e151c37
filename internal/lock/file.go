package lock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// FileLocker implements Locker with O_EXCL lock files in a shared directory.
// Each file records its creation time, host, pid and a random token. A lock is
// stale once it is older than staleAfter, or when it was taken on this host by
// a process that no longer exists. Pids from other hosts are never checked.
type FileLocker struct {
	dir          string
	host         string
	pollInterval time.Duration
	staleAfter   time.Duration
}

// NewFileLocker returns a locker keeping its lock files in dir.
func NewFileLocker(dir string, pollInterval, staleAfter time.Duration) *FileLocker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	host, _ := os.Hostname()
	return &FileLocker{dir: dir, host: host, pollInterval: pollInterval, staleAfter: staleAfter}
}

// Acquire blocks until the named lock file is created by this process.
func (l *FileLocker) Acquire(ctx context.Context, name string) (Release, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock dir: %w", err)
	}
	path := l.Path(name)
	return poll(ctx, name, l.pollInterval, func(ctx context.Context) (func() error, bool, error) {
		for {
			f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
			if err == nil {
				content := []byte(fmt.Sprintf("%s %s %d %s", time.Now().Format(time.RFC3339), hostField(l.host), os.Getpid(), uuid.NewString()))
				if _, err := f.Write(content); err != nil {
					f.Close()
					os.Remove(path)
					return nil, false, fmt.Errorf("failed to write lock file: %w", err)
				}
				f.Close()
				return func() error { return l.release(path, name, content) }, true, nil
			}
			if !os.IsExist(err) {
				return nil, false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
			}
			if !l.removeIfStale(path, name) {
				return nil, false, nil
			}
			// stale lock removed, try again right away
		}
	})
}

// Path returns the lock file used for name.
func (l *FileLocker) Path(name string) string {
	return filepath.Join(l.dir, SafeName(name)+".lock")
}

// release removes the lock file only while it still carries our content.
func (l *FileLocker) release(path, name string, content []byte) error {
	current, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !bytes.Equal(current, content) {
		slog.Warn("Lock was taken over by another holder, leaving it in place.", "lock", name)
		return nil
	}
	if !removeExact(path, content) {
		slog.Warn("Lock was taken over by another holder, leaving it in place.", "lock", name)
	}
	return nil
}

// holder is the parsed content of a lock file. Two-field files written by
// older versions carry no host and are judged by age only.
type holder struct {
	acquired time.Time
	host     string
	pid      int
}

func parseHolder(content []byte) (holder, bool) {
	parts := strings.Fields(string(content))
	var h holder
	var err error
	switch len(parts) {
	case 2:
		h.pid, err = strconv.Atoi(parts[1])
	case 4:
		h.host = parts[1]
		h.pid, err = strconv.Atoi(parts[2])
	default:
		return h, false
	}
	if err != nil {
		return h, false
	}
	if h.acquired, err = time.Parse(time.RFC3339, parts[0]); err != nil {
		return h, false
	}
	return h, true
}

func (l *FileLocker) removeIfStale(path, name string) bool {
	content, err := os.ReadFile(path)
	if err != nil {
		// vanished between create and read
		return os.IsNotExist(err)
	}

	h, ok := parseHolder(content)
	if !ok {
		// a writer may be between create and write; only age decides
		info, err := os.Stat(path)
		if err != nil || time.Since(info.ModTime()) < l.staleAfter {
			return false
		}
		return l.breakStale(path, name, content, time.Since(info.ModTime()))
	}

	age := time.Since(h.acquired)
	local := l.host != "" && h.host == hostField(l.host)
	if age > l.staleAfter || (local && !isPidAlive(h.pid)) {
		return l.breakStale(path, name, content, age)
	}
	return false
}

func (l *FileLocker) breakStale(path, name string, content []byte, age time.Duration) bool {
	if !removeExact(path, content) {
		return false
	}
	logStaleBreak(name, age)
	return true
}

func logStaleBreak(name string, age time.Duration) {
	slog.Warn("Broke stale lock.", "lock", name, "age", age.String())
}

// removeExact deletes path only if it still holds content. The file is first
// renamed aside so that no other writer can slip in between the check and the
// delete; a file that turns out to be someone else's is linked back.
func removeExact(path string, content []byte) bool {
	tomb := path + "." + uuid.NewString() + ".stale"
	if err := os.Rename(path, tomb); err != nil {
		// already gone: the caller may retry the create
		return os.IsNotExist(err)
	}
	defer os.Remove(tomb)

	got, err := os.ReadFile(tomb)
	if err == nil && bytes.Equal(got, content) {
		return true
	}
	if err := os.Link(tomb, path); err != nil {
		slog.Error("Failed to restore a live lock file moved aside.", "path", path, "error", err)
	}
	return false
}

// hostField keeps the lock content whitespace-separated.
func hostField(host string) string {
	if host == "" {
		return "-"
	}
	return strings.Join(strings.Fields(host), "_")
}

func isPidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone) {
		return false
	}
	// EPERM: the process exists but belongs to someone else.
	return true
}
