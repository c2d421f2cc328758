package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

var logLevels = map[string]int{
	"DEBUG": 0,
	"INFO":  1,
	"WARN":  2,
	"ERROR": 3,
}

// ProductionLogger writes structured log lines, JSON for aggregation or
// text for local development.
//
// Child loggers created with WithComponent share the parent's writer and
// lock, so concurrent writes from different components never interleave.
type ProductionLogger struct {
	level       string
	format      string
	serviceName string
	component   string

	mu     *sync.Mutex
	output io.Writer
}

// NewProductionLogger creates a logger from logging configuration.
// Output "stderr" writes to standard error; anything else writes to stdout.
func NewProductionLogger(cfg LoggingConfig, serviceName string) Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return newProductionLogger(cfg, serviceName, out)
}

// NewLogger builds the service logger from cfg, applying development
// settings on top of cfg.Logging. A nil w behaves like NewProductionLogger.
func NewLogger(cfg *Config, w io.Writer) Logger {
	logging := cfg.Logging
	if cfg.Development.Enabled {
		logging.Level = "debug"
	}
	if cfg.Development.PrettyLogs {
		logging.Format = "text"
	}
	if w == nil {
		return NewProductionLogger(logging, cfg.ServiceName)
	}
	return newProductionLogger(logging, cfg.ServiceName, w)
}

// NewProductionLoggerWithWriter is NewProductionLogger with an explicit writer.
func NewProductionLoggerWithWriter(cfg LoggingConfig, serviceName string, w io.Writer) Logger {
	return newProductionLogger(cfg, serviceName, w)
}

func newProductionLogger(cfg LoggingConfig, serviceName string, w io.Writer) *ProductionLogger {
	level := strings.ToUpper(cfg.Level)
	if _, ok := logLevels[level]; !ok {
		level = "INFO"
	}
	format := strings.ToLower(cfg.Format)
	if format != "json" {
		format = "text"
	}
	return &ProductionLogger{
		level:       level,
		format:      format,
		serviceName: serviceName,
		component:   "pathforge",
		mu:          &sync.Mutex{},
		output:      w,
	}
}

// WithComponent returns a child logger attributed to component.
func (l *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{
		level:       l.level,
		format:      l.format,
		serviceName: l.serviceName,
		component:   component,
		mu:          l.mu,
		output:      l.output,
	}
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, fields)
}

func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, fields)
}

func (l *ProductionLogger) log(level, msg string, fields map[string]interface{}) {
	if logLevels[level] < logLevels[l.level] {
		return
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.format == "json" {
		l.logJSON(timestamp, level, msg, fields)
		return
	}
	l.logText(timestamp, level, msg, fields)
}

func (l *ProductionLogger) logJSON(timestamp, level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level,
		"service":   l.serviceName,
		"component": l.component,
		"message":   msg,
	}
	for k, v := range fields {
		// Avoid overwriting core fields
		if _, reserved := entry[k]; reserved {
			continue
		}
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[k] = v
	}
	data, err := json.Marshal(entry)
	if err != nil {
		data, _ = json.Marshal(map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   l.serviceName,
			"component": l.component,
			"message":   msg,
			"log_error": err.Error(),
		})
	}
	fmt.Fprintln(l.output, string(data))
}

func (l *ProductionLogger) logText(timestamp, level, msg string, fields map[string]interface{}) {
	var b strings.Builder
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	fmt.Fprintf(l.output, "%s [%s] [%s:%s] %s%s\n",
		timestamp, level, l.serviceName, l.component, msg, b.String())
}
