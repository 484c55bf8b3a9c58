package logging

import (
	"context"
	"encoding/json"
	"io"
	stdlog "log"
	"log/slog"
	"sync"

	"github.com/fatih/color"
)

type PrettyHandlerOptions struct {
	SlogOpts *slog.HandlerOptions
}

// PrettyHandler prints one coloured line per record, attributes as indented JSON.
type PrettyHandler struct {
	slog.Handler
	l     *stdlog.Logger
	mu    *sync.Mutex
	attrs map[string]any
	group string // Key prefix of the open groups, "a.b."
}

func (opts PrettyHandlerOptions) NewPrettyHandler(out io.Writer) *PrettyHandler {
	return &PrettyHandler{
		Handler: slog.NewJSONHandler(out, opts.SlogOpts),
		l:       stdlog.New(out, "", 0),
		mu:      &sync.Mutex{},
	}
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String() + ":"

	switch r.Level {
	case slog.LevelDebug:
		level = color.MagentaString(level)
	case slog.LevelInfo:
		level = color.BlueString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	}

	fields := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for k, v := range h.attrs {
		fields[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[h.group+a.Key] = attrValue(a.Value)
		return true
	})

	var b []byte
	if len(fields) > 0 {
		var err error
		b, err = json.MarshalIndent(fields, "", "  ")
		if err != nil {
			return err
		}
	}

	timeStr := r.Time.Format("[15:04:05.000]")
	msg := color.CyanString(r.Message)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.l.Println(timeStr, level, msg, color.WhiteString(string(b)))
	return nil
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make(map[string]any, len(h.attrs)+len(attrs))
	for k, v := range h.attrs {
		merged[k] = v
	}
	for _, a := range attrs {
		merged[h.group+a.Key] = attrValue(a.Value)
	}
	return &PrettyHandler{Handler: h.Handler.WithAttrs(attrs), l: h.l, mu: h.mu, attrs: merged, group: h.group}
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &PrettyHandler{Handler: h.Handler.WithGroup(name), l: h.l, mu: h.mu, attrs: h.attrs, group: h.group + name + "."}
}

// attrValue keeps errors readable, json would print them as {}.
func attrValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		group := make(map[string]any, len(v.Group()))
		for _, a := range v.Group() {
			group[a.Key] = attrValue(a.Value)
		}
		return group
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}
