package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// LogSink persists one log record of a run.
type LogSink interface {
	InsertLog(ctx context.Context, runID uuid.UUID, ts time.Time, level, message string, metadata []byte) error
}

// DBLogHandler is a slog.Handler that writes records of one run to the
// database and passes them on to Next.
type DBLogHandler struct {
	Sink  LogSink
	RunID uuid.UUID
	Next  slog.Handler

	attrs []slog.Attr
	group string
}

func NewDBLogHandler(sink LogSink, runID uuid.UUID, next slog.Handler) *DBLogHandler {
	return &DBLogHandler{Sink: sink, RunID: runID, Next: next}
}

func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]interface{}, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = attrValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		attrs[key] = attrValue(a.Value)
		return true
	})

	metaJSON, err := json.Marshal(attrs)
	if err != nil {
		metaJSON = []byte("{}")
	}

	// Logs outlive the request that started the run.
	err = h.Sink.InsertLog(context.WithoutCancel(ctx), h.RunID, r.Time, r.Level.String(), r.Message, metaJSON)
	if h.Next != nil && h.Next.Enabled(ctx, r.Level) {
		if nextErr := h.Next.Handle(ctx, r); nextErr != nil && err == nil {
			err = nextErr
		}
	}
	return err
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	if h.Next != nil {
		next.Next = h.Next.WithAttrs(attrs)
	}
	return &next
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = name
	if h.group != "" {
		next.group = h.group + "." + name
	}
	if h.Next != nil {
		next.Next = h.Next.WithGroup(name)
	}
	return &next
}

// attrValue keeps errors readable in JSON metadata.
func attrValue(v slog.Value) interface{} {
	v = v.Resolve()
	if err, ok := v.Any().(error); ok {
		return err.Error()
	}
	return v.Any()
}
