// Package filesource is a watcher.Source that tails one newline-delimited
// JSON file per channel, standing in for the real per-platform event-log
// API in environments (dev, CI, the reference daemon) that have no
// Windows Event Log or syslog endpoint to attach to. No library in the
// teacher's dependency pack models OS log tailing, so this uses
// bufio/os directly rather than reaching for a third-party tailer.
package filesource

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/iff-guardian/hostguard/internal/domain"
	"github.com/iff-guardian/hostguard/pkg/logger"
)

// record is the on-disk shape one line of a channel file decodes into.
type record struct {
	ID       string    `json:"id"`
	EventID  int       `json:"event_id"`
	Provider string    `json:"provider"`
	Level    string    `json:"level"`
	Time     time.Time `json:"time"`
	Host     string    `json:"host"`
	User     string    `json:"user"`
	Message  string    `json:"message"`
	XML      string    `json:"xml"`
}

// Source tails baseDir/<channel>.ndjson, polling for appended lines.
type Source struct {
	baseDir      string
	pollInterval time.Duration
	log          logger.Logger
}

// New builds a Source rooted at baseDir. pollInterval controls how often
// each channel file is checked for growth; zero selects 500ms.
func New(baseDir string, pollInterval time.Duration, log logger.Logger) *Source {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Source{baseDir: baseDir, pollInterval: pollInterval, log: log}
}

// Subscribe opens channel's file and emits every record appearing after
// the one whose id matches afterBookmark (the watcher always bookmarks a
// committed record's own id — see watcher.Watcher.advance). A nil or
// not-found afterBookmark means "start from the file's current end",
// matching the bookmark store's documented tail-start fallback.
func (s *Source) Subscribe(ctx context.Context, channel string, afterBookmark []byte) (<-chan domain.RawRecord, error) {
	path := filepath.Join(s.baseDir, channel+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open channel file %s: %w", path, err)
	}

	offset, err := s.resumeOffset(f, afterBookmark)
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(offset, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek channel file %s: %w", path, err)
	}

	out := make(chan domain.RawRecord, 16)
	go s.run(ctx, f, channel, out)
	return out, nil
}

// resumeOffset scans f from the start looking for the line whose decoded
// id equals afterBookmark, returning the byte offset immediately after
// that line. If afterBookmark is empty or never found, it returns the
// file's current size (start from the tail).
func (s *Source) resumeOffset(f *os.File, afterBookmark []byte) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if len(afterBookmark) == 0 {
		return info.Size(), nil
	}
	target := string(afterBookmark)

	reader := bufio.NewReader(f)
	var offset int64
	for {
		line, err := reader.ReadBytes('\n')
		offset += int64(len(line))
		if len(line) > 0 {
			var rec record
			if jerr := json.Unmarshal(line, &rec); jerr == nil && rec.ID == target {
				return offset, nil
			}
		}
		if err != nil {
			break
		}
	}
	return info.Size(), nil
}

func (s *Source) run(ctx context.Context, f *os.File, channel string, out chan<- domain.RawRecord) {
	defer close(out)
	defer f.Close()

	reader := bufio.NewReader(f)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		for {
			line, err := reader.ReadBytes('\n')
			if len(line) > 0 {
				if r, ok := s.decode(channel, line); ok {
					select {
					case out <- r:
					case <-ctx.Done():
						return
					}
				}
			}
			if err != nil {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Source) decode(channel string, line []byte) (domain.RawRecord, bool) {
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		if s.log != nil {
			s.log.Warn("failed to decode channel record", "channel", channel, "error", err)
		}
		return domain.RawRecord{}, false
	}
	return domain.RawRecord{
		ID:       rec.ID,
		Channel:  channel,
		EventID:  rec.EventID,
		Provider: rec.Provider,
		Level:    rec.Level,
		Time:     rec.Time,
		Host:     rec.Host,
		User:     rec.User,
		Message:  rec.Message,
		XML:      rec.XML,
	}, true
}
