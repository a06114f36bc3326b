package obs

import (
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
)

var (
	loggerMu sync.RWMutex
	logger   = newLogger(LogConfig{Level: "info", Format: "json"}, os.Stdout)
)

// LogConfig selects the level and output format of the shared logger.
type LogConfig struct {
	Level  string
	Format string // json | text | logfmt
}

func newLogger(cfg LogConfig, w io.Writer) *charmlog.Logger {
	level, err := charmlog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = charmlog.InfoLevel
	}
	formatter := charmlog.JSONFormatter
	switch strings.ToLower(cfg.Format) {
	case "text":
		formatter = charmlog.TextFormatter
	case "logfmt":
		formatter = charmlog.LogfmtFormatter
	}
	return charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339Nano,
		Level:           level,
		Formatter:       formatter,
	})
}

// Logger returns the shared structured logger used across the service.
func Logger() *charmlog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// Configure replaces the shared logger. Output defaults to stdout.
func Configure(cfg LogConfig, w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	l := newLogger(cfg, w)
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

// LogRequest emits one structured line with common HTTP fields.
func LogRequest(entry map[string]any) {
	keys := make([]string, 0, len(entry))
	for k := range entry {
		if k == "msg" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	keyvals := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		keyvals = append(keyvals, k, entry[k])
	}
	msg, _ := entry["msg"].(string)
	if msg == "" {
		msg = "http_request"
	}
	Logger().Info(msg, keyvals...)
}
