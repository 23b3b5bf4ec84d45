// Package logging wires zap to a rotated log file under the storage directory.
// Interactive output never goes through here; only diagnostics do.
package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	// Dir is the directory that holds ayudapo.log.
	Dir       string
	MaxSizeMB int
	// Verbose tees debug output to stderr in console format.
	Verbose bool
}

type Logger struct {
	sugar    *zap.SugaredLogger
	filePath string
}

func New(opts Options) (*Logger, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, fmt.Errorf("log dir is empty")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 20
	}
	path := filepath.Join(opts.Dir, "ayudapo.log")
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), zap.InfoLevel),
	}
	if opts.Verbose {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(os.Stderr),
			zap.DebugLevel,
		))
	}
	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{sugar: l.Sugar(), filePath: path}, nil
}

// Nop returns a logger that drops everything; used by tests and library callers.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// Named scopes the logger to a module, e.g. "retrieval" or "devops".
func (l *Logger) Named(module string) *Logger {
	if l == nil {
		return Nop()
	}
	return &Logger{sugar: l.sugar.With("module", module), filePath: l.filePath}
}

func (l *Logger) With(keysAndValues ...any) *Logger {
	if l == nil {
		return Nop()
	}
	return &Logger{sugar: l.sugar.With(sanitizeKVs(keysAndValues)...), filePath: l.filePath}
}

func (l *Logger) Debug(msg string, keysAndValues ...any) {
	if l == nil {
		return
	}
	l.sugar.Debugw(msg, sanitizeKVs(keysAndValues)...)
}

func (l *Logger) Info(msg string, keysAndValues ...any) {
	if l == nil {
		return
	}
	l.sugar.Infow(msg, sanitizeKVs(keysAndValues)...)
}

func (l *Logger) Warn(msg string, keysAndValues ...any) {
	if l == nil {
		return
	}
	l.sugar.Warnw(msg, sanitizeKVs(keysAndValues)...)
}

func (l *Logger) Error(msg string, keysAndValues ...any) {
	if l == nil {
		return
	}
	l.sugar.Errorw(msg, sanitizeKVs(keysAndValues)...)
}

func (l *Logger) Sync() {
	if l == nil {
		return
	}
	_ = l.sugar.Sync()
}

// Path returns the active log file, or "" for a Nop logger.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

type Entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Module    string `json:"module,omitempty"`
}

// Tail returns the last n entries of the current log file, oldest first.
func (l *Logger) Tail(n int) ([]Entry, error) {
	if l == nil || l.filePath == "" || n <= 0 {
		return nil, nil
	}
	f, err := os.Open(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	ring := make([]Entry, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, e)
	}
	return ring, scanner.Err()
}

func sanitizeKVs(kv []any) []any {
	if len(kv) == 0 {
		return kv
	}
	out := make([]any, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := strings.ToLower(strings.TrimSpace(fmt.Sprint(kv[i])))
		if isRedactKey(key) {
			out = append(out, kv[i], "[REDACTED]")
			continue
		}
		out = append(out, kv[i], kv[i+1])
	}
	return out
}

func isRedactKey(key string) bool {
	// "pat" only as an exact key; as a substring it would hit "path".
	if key == "pat" {
		return true
	}
	for _, marker := range []string{"token", "authorization", "password", "secret", "api_key", "apikey"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}
