package gologger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/sirupsen/logrus"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ParseLevel maps a level name onto logrus. Unknown names fall back to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// LogrusLogger adapts a logrus entry to the glog contracts. Variadic args are
// read as key/value pairs.
type LogrusLogger struct {
	entry *logrus.Entry
}

func NewLogrusLogger(level string, out io.Writer) *LogrusLogger {
	logger := logrus.New()
	logger.SetLevel(ParseLevel(level))
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if out == nil {
		out = os.Stdout
	}
	logger.SetOutput(out)
	return &LogrusLogger{entry: logrus.NewEntry(logger)}
}

// SetLevel changes the level of the shared sink, so child loggers follow it.
func (l *LogrusLogger) SetLevel(level string) {
	l.entry.Logger.SetLevel(ParseLevel(level))
}

func (l *LogrusLogger) Trace(msg string, args ...any) { l.with(args).Trace(msg) }
func (l *LogrusLogger) Debug(msg string, args ...any) { l.with(args).Debug(msg) }
func (l *LogrusLogger) Info(msg string, args ...any)  { l.with(args).Info(msg) }
func (l *LogrusLogger) Warn(msg string, args ...any)  { l.with(args).Warn(msg) }
func (l *LogrusLogger) Error(msg string, args ...any) { l.with(args).Error(msg) }
func (l *LogrusLogger) Fatal(msg string, args ...any) { l.with(args).Fatal(msg) }

func (l *LogrusLogger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		return l
	}
	return &LogrusLogger{entry: l.entry.WithContext(ctx)}
}

func (l *LogrusLogger) WithFields(fields map[string]any) glog.Logger {
	if len(fields) == 0 {
		return l
	}
	return &LogrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *LogrusLogger) with(args []any) *logrus.Entry {
	if len(args) == 0 {
		return l.entry
	}
	fields := make(logrus.Fields, len(args)/2+1)
	for index := 0; index < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			key = fmt.Sprint(args[index])
		}
		if index+1 >= len(args) {
			fields["!BADKEY"] = key
			break
		}
		fields[key] = args[index+1]
	}
	return l.entry.WithFields(fields)
}

// LogrusProvider hands out child loggers tagged with a logger name.
type LogrusProvider struct {
	root *LogrusLogger
}

func NewLogrusProvider(root *LogrusLogger) *LogrusProvider {
	if root == nil {
		root = NewLogrusLogger("", nil)
	}
	return &LogrusProvider{root: root}
}

func (p *LogrusProvider) GetLogger(name string) glog.Logger {
	name = strings.TrimSpace(name)
	if name == "" {
		return p.root
	}
	return &LogrusLogger{entry: p.root.entry.WithField("logger", name)}
}

var (
	_ glog.Logger         = (*LogrusLogger)(nil)
	_ glog.FieldsLogger   = (*LogrusLogger)(nil)
	_ glog.LoggerProvider = (*LogrusProvider)(nil)
)
