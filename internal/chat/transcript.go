package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Transcript entry kinds.
const (
	KindQuestion       = "question"
	KindAnswer         = "answer"
	KindRoutineRequest = "routine_request"
	KindRoutine        = "routine"
)

// TranscriptEntry is one line of a user's chat transcript.
type TranscriptEntry struct {
	Time    time.Time `json:"time"`
	UserID  string    `json:"user_id"`
	Kind    string    `json:"kind"`
	Content string    `json:"content"`
	Failed  bool      `json:"failed,omitempty"`
}

// TranscriptLogger records chat turns. Record must not block the caller.
type TranscriptLogger interface {
	Record(e TranscriptEntry)
	Close() error
}

type noopTranscript struct{}

func (noopTranscript) Record(TranscriptEntry) {}
func (noopTranscript) Close() error           { return nil }

// TranscriptConfig configures NewTranscriptLogger.
type TranscriptConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// FileTranscript appends entries as NDJSON to <dir>/<user_id>.ndjson from a
// background goroutine. Entries are dropped when the queue is full.
type FileTranscript struct {
	dir    string
	queue  chan TranscriptEntry
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewTranscriptLogger returns a FileTranscript, or a no-op logger when
// disabled.
func NewTranscriptLogger(cfg TranscriptConfig, logger *slog.Logger) (TranscriptLogger, error) {
	if !cfg.Enabled {
		return noopTranscript{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &FileTranscript{
		dir:    cfg.Dir,
		queue:  make(chan TranscriptEntry, cfg.QueueSize),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	t.wg.Add(1)
	go t.run()
	return t, nil
}

// Record queues e for writing.
func (t *FileTranscript) Record(e TranscriptEntry) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	select {
	case <-t.ctx.Done():
		return
	default:
	}
	select {
	case t.queue <- e:
	default:
		t.logger.Warn("Transcript queue full, dropping entry", "user_id", e.UserID, "kind", e.Kind)
	}
}

// Close flushes queued entries and stops the writer.
func (t *FileTranscript) Close() error {
	t.once.Do(func() {
		t.cancel()
		t.wg.Wait()
	})
	return nil
}

func (t *FileTranscript) run() {
	defer t.wg.Done()
	for {
		select {
		case e := <-t.queue:
			t.write(e)
		case <-t.ctx.Done():
			for {
				select {
				case e := <-t.queue:
					t.write(e)
				default:
					return
				}
			}
		}
	}
}

func (t *FileTranscript) write(e TranscriptEntry) {
	line, err := json.Marshal(e)
	if err != nil {
		t.logger.Error("Failed to encode transcript entry", "error", err)
		return
	}

	path := filepath.Join(t.dir, transcriptFileName(e.UserID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.logger.Error("Failed to open transcript file", "path", path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		t.logger.Error("Failed to write transcript entry", "path", path, "error", err)
	}
}

func transcriptFileName(userID string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, userID)
	if name == "" {
		name = "unknown"
	}
	return name + ".ndjson"
}
