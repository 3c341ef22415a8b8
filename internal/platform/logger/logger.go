package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/phrazzld/duffel/internal/config"
)

// logKeys are the configuration keys the sink set is derived from.
var logKeys = []string{"log.level", "log.file"}

// Builder owns the process logger and rebuilds its sinks when the log
// section changes. It is constructed from the static configuration
// before the runtime store exists, so the store itself has a logger;
// Attach connects the two afterwards.
type Builder struct {
	statics config.LogConfig
	store   *config.Store
	handler *Handler
	logger  *slog.Logger
	stdout  io.Writer

	// file is the current rotating sink. Rebuilds close it before
	// replacing it; lumberjack reopens on write, so a straggling
	// record on the old handler is still appended, not lost.
	file *lumberjack.Logger
}

// NewBuilder builds the initial logger from the static configuration.
func NewBuilder(statics config.LogConfig) *Builder {
	return newBuilder(statics, os.Stdout)
}

func newBuilder(statics config.LogConfig, stdout io.Writer) *Builder {
	b := &Builder{statics: statics, stdout: stdout}
	level, err := parseLevel(statics.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	b.handler = NewHandler(b.buildSinks(level, statics.File))
	b.logger = slog.New(b.handler)
	return b
}

// Logger returns the swappable process logger.
func (b *Builder) Logger() *slog.Logger {
	return b.logger
}

// Attach registers the log defaults on the runtime store and makes
// Rebuild read from it. The static values become the defaults, so an
// untouched store reproduces the startup logger.
func (b *Builder) Attach(store *config.Store) {
	store.RegisterDefault("log", "level", b.statics.Level)
	store.RegisterDefault("log", "file", b.statics.File)
	b.store = store
}

// Keys returns the configuration keys the builder reacts to.
func (b *Builder) Keys() []string {
	return logKeys
}

// Rebuild recomputes the sink set from the store and swaps it in.
// Rebuilds are serialized by the store's change turn, so the sink
// bookkeeping needs no extra locking.
func (b *Builder) Rebuild() error {
	if b.store == nil {
		return fmt.Errorf("logger: rebuild before Attach")
	}
	level, err := parseLevel(b.store.GetString("log", "level"))
	if err != nil {
		return err
	}
	b.handler.Swap(b.buildSinks(level, b.store.GetString("log", "file")))
	return nil
}

// buildSinks assembles the stdout handler plus, when a file is
// configured, a rotating file handler fanned out beside it.
func (b *Builder) buildSinks(level slog.Level, file string) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	stdout := slog.NewJSONHandler(b.stdout, opts)

	if prev := b.file; prev != nil {
		b.file = nil
		_ = prev.Close()
	}
	if file == "" {
		return stdout
	}

	b.file = &lumberjack.Logger{
		Filename:   file,
		MaxSize:    100, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	return slogmulti.Fanout(stdout, slog.NewJSONHandler(b.file, opts))
}

// parseLevel maps the textual level names onto slog levels. An empty
// value means info.
func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
