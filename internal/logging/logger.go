// Package logging は構造化ロガーを提供する
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config はログ出力の設定
type Config struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	Output string `yaml:"output"` // stdout, stderr
}

// DefaultConfig はデフォルトのログ設定を返す
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Output: "stdout",
	}
}

// Logger は slog.Logger にコンポーネント情報を付与するラッパー
type Logger struct {
	*slog.Logger
}

// New は設定から新しいLoggerを作成する
func New(cfg Config) *Logger {
	var writer io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		writer = os.Stderr
	default:
		writer = os.Stdout
	}
	return NewWithWriter(cfg, writer)
}

// NewWithWriter は出力先を指定してLoggerを作成する
func NewWithWriter(cfg Config, writer io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("timestamp", a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Discard は何も出力しないLoggerを返す（テスト用）
func Discard() *Logger {
	return NewWithWriter(Config{Level: "error"}, io.Discard)
}

// ParseLevel はログレベル文字列を slog.Level に変換する
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent はコンポーネント名付きのLoggerを返す
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component)}
}

// Writer はLoggerにinfoレベルで書き込む io.Writer を返す（gin のアクセスログ用）
func (l *Logger) Writer() io.Writer {
	return &lineWriter{logger: l}
}

type lineWriter struct {
	logger *Logger
}

func (w *lineWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		w.logger.Info(msg)
	}
	return len(p), nil
}
