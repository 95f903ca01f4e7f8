// Package tail follows a live log file, surfacing only complete lines
// appended after the tailer attached. Rotation and truncation are detected
// by polling the file's identity and size.
package tail

import (
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultPollInterval is how often the tailer checks for new data.
	DefaultPollInterval = 500 * time.Millisecond

	// missingFileRetry is the wait before re-probing an absent file.
	missingFileRetry = time.Second

	readChunkSize = 64 * 1024
)

// Tailer follows one file. Construct with NewTailer, consume Lines, and run
// the polling loop with Run.
type Tailer struct {
	path     string
	interval time.Duration
	logger   *zap.Logger

	lines chan string
	stop  chan struct{}

	file    *os.File
	offset  int64
	partial []byte
}

// NewTailer builds a tailer for path. A non-positive interval falls back to
// the default.
func NewTailer(path string, interval time.Duration, logger *zap.Logger) *Tailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Tailer{
		path:     path,
		interval: interval,
		logger:   logger,
		lines:    make(chan string, 256),
		stop:     make(chan struct{}),
	}
}

// Lines returns the channel of complete lines. It is closed when Run exits.
func (t *Tailer) Lines() <-chan string {
	return t.lines
}

// Stop makes Run exit promptly. Safe to call more than once.
func (t *Tailer) Stop() {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
}

// Run polls the file until ctx is cancelled or Stop is called. A missing
// file is waited for, never fatal. The file handle is released before Run
// returns.
func (t *Tailer) Run(ctx context.Context) {
	defer close(t.lines)
	defer t.closeFile()

	t.logger.Info("tailing file",
		zap.String("path", t.path), zap.Duration("interval", t.interval))

	for {
		wait := t.interval
		if t.file == nil {
			if !t.open() {
				wait = missingFileRetry
			}
		} else {
			t.poll(ctx)
		}

		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-time.After(wait):
		}
	}
}

// open attaches to the file and seeks to its end so only new data is ever
// surfaced.
func (t *Tailer) open() bool {
	f, err := os.Open(t.path)
	if err != nil {
		return false
	}
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return false
	}
	t.file = f
	t.offset = end
	t.partial = nil
	t.logger.Debug("file opened", zap.Int64("offset", end))
	return true
}

// poll performs one cycle: detect rotation or truncation, then drain new
// complete lines.
func (t *Tailer) poll(ctx context.Context) {
	if t.rotated() {
		t.logger.Info("file rotated, reattaching", zap.String("path", t.path))
		t.closeFile()
		return
	}
	t.drain(ctx)
}

// rotated reports whether the path now names a different file than the open
// handle, or the file shrank below the read offset.
func (t *Tailer) rotated() bool {
	diskInfo, err := os.Stat(t.path)
	if err != nil {
		return true
	}
	handleInfo, err := t.file.Stat()
	if err != nil {
		return true
	}
	if !os.SameFile(diskInfo, handleInfo) {
		return true
	}
	return diskInfo.Size() < t.offset
}

// drain reads everything appended since the last poll and emits complete
// lines. A trailing fragment without a newline is buffered for the next
// cycle.
func (t *Tailer) drain(ctx context.Context) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := t.file.Read(buf)
		if n > 0 {
			t.offset += int64(n)
			t.partial = append(t.partial, buf[:n]...)
		}
		if err != nil {
			break
		}
	}

	for {
		idx := bytes.IndexByte(t.partial, '\n')
		if idx < 0 {
			return
		}
		line := string(bytes.TrimRight(t.partial[:idx], "\r"))
		t.partial = t.partial[idx+1:]

		select {
		case t.lines <- line:
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		}
	}
}

func (t *Tailer) closeFile() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
	}
	t.partial = nil
	t.offset = 0
}
