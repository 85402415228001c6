package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// ProductionLogger is the default logger for the engine binaries.
//
// Output format follows the runtime environment: JSON when running inside
// Kubernetes (for log aggregation), human-readable text otherwise. Level and
// format can be overridden with A8N_LOG_LEVEL / A8N_LOG_FORMAT. Error logs
// are rate limited to one per interval to prevent flooding when a
// dependency (Redis, the orchestrator) is down.
type ProductionLogger struct {
	level     string
	debug     bool
	service   string
	component string
	format    string
	output    io.Writer
	mu        sync.Mutex

	errorEvery time.Duration
	lastError  time.Time
}

// NewProductionLogger creates a logger configured from the environment.
func NewProductionLogger(service string) *ProductionLogger {
	level := os.Getenv("A8N_LOG_LEVEL")
	if level == "" {
		level = "INFO"
	}

	debug := os.Getenv("A8N_DEBUG") == "true" || strings.EqualFold(level, "DEBUG")

	format := "text"
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		format = "json"
	}
	if envFormat := os.Getenv("A8N_LOG_FORMAT"); envFormat != "" {
		format = envFormat
	}

	return &ProductionLogger{
		level:      strings.ToUpper(level),
		debug:      debug,
		service:    service,
		format:     format,
		output:     os.Stdout,
		errorEvery: time.Second,
	}
}

// WithComponent returns a child logger tagged with the component name.
func (l *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{
		level:      l.level,
		debug:      l.debug,
		service:    l.service,
		component:  component,
		format:     l.format,
		output:     l.output,
		errorEvery: l.errorEvery,
	}
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.mu.Lock()
	if time.Since(l.lastError) < l.errorEvery {
		l.mu.Unlock()
		return
	}
	l.lastError = time.Now()
	l.mu.Unlock()

	l.log("ERROR", msg, fields)
}

func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log("DEBUG", msg, fields)
}

func (l *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Info(msg, l.withTrace(ctx, fields))
}

func (l *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Error(msg, l.withTrace(ctx, fields))
}

func (l *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Warn(msg, l.withTrace(ctx, fields))
}

func (l *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Debug(msg, l.withTrace(ctx, fields))
}

// withTrace annotates fields with trace/span ids when a recording span is
// present on the context.
func (l *ProductionLogger) withTrace(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	span := trace.SpanContextFromContext(ctx)
	if !span.IsValid() {
		return fields
	}

	out := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out["trace_id"] = span.TraceID().String()
	out["span_id"] = span.SpanID().String()
	return out
}

func (l *ProductionLogger) log(level, msg string, fields map[string]interface{}) {
	if !l.shouldLog(level) {
		return
	}

	timestamp := time.Now().Format(time.RFC3339)

	if l.format == "json" {
		l.logJSON(timestamp, level, msg, fields)
	} else {
		l.logText(timestamp, level, msg, fields)
	}
}

func (l *ProductionLogger) shouldLog(level string) bool {
	rank := map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}
	min, ok := rank[l.level]
	if !ok {
		min = 1
	}
	return rank[level] >= min
}

func (l *ProductionLogger) logJSON(timestamp, level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level,
		"service":   l.service,
		"message":   msg,
	}
	if l.component != "" {
		entry["component"] = l.component
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			entry[k] = err.Error()
			continue
		}
		entry[k] = v
	}

	data, err := json.Marshal(entry)
	if err != nil {
		// Fall back to text so the record is not lost
		l.logText(timestamp, level, msg, fields)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.output, string(data))
}

func (l *ProductionLogger) logText(timestamp, level, msg string, fields map[string]interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", timestamp, level, msg)
	if l.component != "" {
		fmt.Fprintf(&b, " component=%s", l.component)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.output, b.String())
}

// SetOutput redirects log output, primarily for tests.
func (l *ProductionLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// Compile-time interface compliance checks
var (
	_ Logger               = (*ProductionLogger)(nil)
	_ ComponentAwareLogger = (*ProductionLogger)(nil)
	_ Logger               = (*NoOpLogger)(nil)
)
