// Package audit persists the activity stream as a JSON-lines file.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"agent-foundry/internal/domain"
	"agent-foundry/internal/infra/tracer"
)

// Retention bounds the log. Zero fields are unlimited.
type Retention struct {
	MaxAge  time.Duration
	MaxSize int64
}

// FileLog appends activity events to a file, one JSON object per line.
type FileLog struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	retention Retention
	logger    *slog.Logger
}

// Open opens (or creates with 0600) the log at path.
func Open(path string, retention Retention, logger *slog.Logger) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileLog{file: f, path: path, retention: retention, logger: logger}, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
}

// Attach subscribes the log to every event on bus. Write failures are
// logged, never returned to publishers.
func (l *FileLog) Attach(bus domain.EventBus) func() {
	return bus.SubscribeAll(func(ctx context.Context, e domain.Event) {
		if err := l.Write(ctx, e); err != nil {
			l.logger.Error("audit write failed", "event", string(e.Type), "error", err)
		}
	})
}

// Write appends one event and mirrors it onto the active span, if any.
func (l *FileLog) Write(ctx context.Context, e domain.Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	l.mu.Lock()
	_, err = l.file.Write(append(data, '\n'))
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		attrs := []attribute.KeyValue{tracer.StringAttr("audit.agent_id", e.AgentID)}
		for k, v := range e.Detail {
			attrs = append(attrs, tracer.StringAttr("audit."+k, v))
		}
		span.AddEvent("audit."+string(e.Type), trace.WithAttributes(attrs...))
	}
	return nil
}

// Close closes the file.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Compact drops entries older than MaxAge, then the oldest entries until
// the file fits MaxSize. It rewrites the file through a temp file and
// reports how many entries were dropped.
func (l *FileLog) Compact(now time.Time) (removed int, err error) {
	if l.retention == (Retention{}) {
		return 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.retention.MaxAge == 0 {
		info, err := os.Stat(l.path)
		if err != nil {
			return 0, fmt.Errorf("stat audit log: %w", err)
		}
		if info.Size() <= l.retention.MaxSize {
			return 0, nil
		}
	}

	if err := l.file.Close(); err != nil {
		return 0, fmt.Errorf("close for compaction: %w", err)
	}
	defer func() {
		f, openErr := openAppend(l.path)
		if openErr != nil && err == nil {
			err = fmt.Errorf("reopen audit log: %w", openErr)
		}
		l.file = f
	}()

	kept, removed, err := l.filter(now)
	if err != nil {
		return 0, err
	}

	tmp := l.path + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	w := bufio.NewWriter(out)
	for _, line := range kept {
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		out.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("write temp file: %w", err)
	}
	out.Close()
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("replace audit log: %w", err)
	}
	return removed, nil
}

func (l *FileLog) filter(now time.Time) (kept [][]byte, removed int, err error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, 0, fmt.Errorf("open for compaction: %w", err)
	}
	defer f.Close()

	var cutoff time.Time
	if l.retention.MaxAge > 0 {
		cutoff = now.Add(-l.retention.MaxAge)
	}

	var size int64
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if !cutoff.IsZero() {
			var entry struct {
				Timestamp time.Time `json:"timestamp"`
			}
			if json.Unmarshal(line, &entry) == nil && entry.Timestamp.Before(cutoff) {
				removed++
				continue
			}
		}
		kept = append(kept, append([]byte(nil), line...))
		size += int64(len(line)) + 1
	}
	if err := sc.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan audit log: %w", err)
	}

	if limit := l.retention.MaxSize; limit > 0 {
		for len(kept) > 0 && size > limit {
			size -= int64(len(kept[0])) + 1
			kept = kept[1:]
			removed++
		}
	}
	return kept, removed, nil
}

// ParseSize parses sizes such as "512KB", "100MB" or "1GB". Empty is zero.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	mult := int64(1)
	for _, u := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(s, u.suffix) {
			mult = u.mult
			s = strings.TrimSuffix(s, u.suffix)
			break
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	return n * mult, nil
}
