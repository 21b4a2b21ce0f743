package logging

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"evalconsole/domain/entities"

	"github.com/sirupsen/logrus"
)

const (
	FieldFrame  = "frame"
	FieldCaller = "caller"

	timeLayout = "15:04:05"
)

// NewLogger - creates the host process logger
func NewLogger(level string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	if out != nil {
		logger.SetOutput(out)
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return logger
}

// FrameFormatter writes lines tagged with a logical frame id and caller name:
//
//	WorkArena - <caller> - <frame>: [HH:MM:SS] <msg>
//
// The caller segment is dropped when empty and the frame defaults to "top".
type FrameFormatter struct {
	Prefix string
}

func (f *FrameFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	prefix := f.Prefix
	if prefix == "" {
		prefix = "WorkArena"
	}

	frame := fieldString(entry, FieldFrame)
	if frame == "" {
		frame = entities.TopFrameID
	}
	caller := fieldString(entry, FieldCaller)

	var b bytes.Buffer
	b.WriteString(prefix)
	if caller != "" {
		b.WriteString(" - ")
		b.WriteString(caller)
	}
	fmt.Fprintf(&b, " - %s: [%s] %s", frame, entry.Time.Format(timeLayout), entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k == FieldFrame || k == FieldCaller {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')

	return b.Bytes(), nil
}

func fieldString(entry *logrus.Entry, key string) string {
	v, ok := entry.Data[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprint(v)
	}
	return s
}

// ForFrame - entry tagged with frame and caller
func ForFrame(logger *logrus.Logger, frame, caller string) *logrus.Entry {
	fields := logrus.Fields{FieldFrame: frame}
	if caller != "" {
		fields[FieldCaller] = caller
	}
	return logger.WithFields(fields)
}

// NewFrameLogger - logger writing FrameFormatter lines
func NewFrameLogger(level string, out io.Writer) *logrus.Logger {
	logger := NewLogger(level, out)
	logger.SetFormatter(&FrameFormatter{})
	return logger
}

// ConsoleLevel - maps a browser console message type to a log level
func ConsoleLevel(msgType string) logrus.Level {
	switch strings.ToLower(msgType) {
	case "error", "assert":
		return logrus.ErrorLevel
	case "warning", "warn":
		return logrus.WarnLevel
	case "debug", "trace":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// Relay - forwards a browser console line into the logger
func Relay(logger *logrus.Logger, frame, msgType, text string) {
	ForFrame(logger, frame, "console").Log(ConsoleLevel(msgType), text)
}
