package supervisor

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const stampLayout = "2006-01-02 15:04:05"

// LogSink is an append-only log file. Each line is stamped with the time it
// was captured and the name of its producer.
type LogSink struct {
	name string
	path string
	now  func() time.Time

	mu sync.Mutex
	f  *os.File
}

func OpenLogSink(path, name string) (*LogSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return &LogSink{name: name, path: path, now: time.Now, f: f}, nil
}

func (s *LogSink) Name() string { return s.name }
func (s *LogSink) Path() string { return s.path }

// WriteLine appends one stamped line. stream, when set, is appended to the
// producer name (for example "Error" for stderr).
func (s *LogSink) WriteLine(stream, line string) error {
	label := s.name
	if stream != "" {
		label += " " + stream
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	_, err := fmt.Fprintf(s.f, "[%s] %s: %s\n", s.now().Format(stampLayout), label, line)
	return err
}

// Writer returns an io.Writer that splits its input into lines and stamps
// each one as it completes.
func (s *LogSink) Writer(stream string) io.Writer {
	return &lineWriter{sink: s, stream: stream}
}

// Tail returns up to n of the most recent lines, newest first.
func (s *LogSink) Tail(n int) ([]string, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, nil
}

// Clear truncates the log. Later writes start from an empty file.
func (s *LogSink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.Truncate(s.path, 0)
	}
	return s.f.Truncate(0)
}

func (s *LogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

type lineWriter struct {
	sink   *LogSink
	stream string

	mu  sync.Mutex
	buf []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(w.buf[:i]), "\r")
		w.buf = w.buf[i+1:]
		if err := w.sink.WriteLine(w.stream, line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}
