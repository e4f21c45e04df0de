package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"newspipe/pkg/config"
	"newspipe/pkg/model"
)

// RequestLogger is the logger instance for HTTP requests.
var RequestLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var (
	runLogPath string
	runLogMu   sync.Mutex
)

// Init initializes the logging system based on configuration.
// It returns a cleanup function to close log files.
func Init(cfg *config.LogConfig) (func(), error) {
	rotatePaths(cfg.Pipeline.Path, cfg.Requests.Path, cfg.LLM.Path)
	SetRunLogPath(cfg.Runs.Path)

	var closers []io.Closer

	pipelineHandler, file1, err := setupHandler(cfg.Pipeline.Path, cfg.Pipeline.Level, true)
	if err != nil {
		return nil, fmt.Errorf("failed to setup pipeline logger: %w", err)
	}
	closers = append(closers, file1)
	slog.SetDefault(slog.New(pipelineHandler))

	requestHandler, file2, err := setupHandler(cfg.Requests.Path, cfg.Requests.Level, false)
	if err != nil {
		file1.Close()
		return nil, fmt.Errorf("failed to setup requests logger: %w", err)
	}
	closers = append(closers, file2)
	RequestLogger = slog.New(requestHandler)

	return func() {
		for _, c := range closers {
			c.Close()
		}
	}, nil
}

// ParseLevel maps a config level string to a slog level. Unknown values map to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func setupHandler(path, levelStr string, stdout bool) (handler slog.Handler, file *os.File, err error) {
	level := ParseLevel(levelStr)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}
	fileHandler := slog.NewTextHandler(file, opts)
	if !stdout {
		return fileHandler, file, nil
	}

	// Console stays at INFO or above even when the file is at DEBUG.
	consoleHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: max(level, slog.LevelInfo),
	})
	return &multiHandler{handlers: []slog.Handler{fileHandler, consoleHandler}}, file, nil
}

type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler
// nolint:gocritic // r must be passed by value to implement slog.Handler
func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: hs}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: hs}
}

// rotatePaths renames existing log files to .old so each run starts fresh.
func rotatePaths(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			oldPath := p + ".old"
			_ = os.Remove(oldPath)
			_ = os.Rename(p, oldPath)
		}
	}
}

// SetRunLogPath configures the path of the run history file. Empty disables it.
func SetRunLogPath(path string) {
	runLogMu.Lock()
	defer runLogMu.Unlock()
	runLogPath = path
}

// FormatRun renders a pipeline run as a single history line.
func FormatRun(run *model.PipelineRun) string {
	line := fmt.Sprintf("[%s] [%s] run=%s processed=%d skipped=%d failed=%d duration=%s",
		run.StartedAt.UTC().Format("2006-01-02 15:04:05"), run.Stage, run.ID,
		run.Processed, run.Skipped, run.Failed, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	if run.TimedOut {
		line += " timed_out"
	}
	if run.DryRun {
		line += " dry_run"
	}
	return line
}

// LogRun appends a finished stage run to the run history file.
// The run history is never rotated.
func LogRun(run *model.PipelineRun) {
	runLogMu.Lock()
	defer runLogMu.Unlock()

	if runLogPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(runLogPath), 0o755); err != nil {
		slog.Error("failed to create run log directory", "error", err)
		return
	}
	f, err := os.OpenFile(runLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Error("failed to open run log", "error", err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(FormatRun(run) + "\n"); err != nil {
		slog.Error("failed to write run log", "error", err)
	}
}
