// Package slogpretty provides a colorized slog.Handler for local
// development, used when config.Config.Env is "local" instead of the
// JSON handler used in dev/prod.
package slogpretty

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
)

// PrettyHandlerOptions wraps the stdlib slog.HandlerOptions used to
// construct a pretty handler.
type PrettyHandlerOptions struct {
	SlogOpts *slog.HandlerOptions
}

// PrettyHandler renders one colorized line per record plus a pretty-
// printed JSON block of its attributes, for readability during local
// development.
type PrettyHandler struct {
	slog.Handler
	attrs []slog.Attr
	out   io.Writer
}

// NewPrettyHandler builds a PrettyHandler writing to out.
func (o PrettyHandlerOptions) NewPrettyHandler(out io.Writer) *PrettyHandler {
	h := &PrettyHandler{
		Handler: slog.NewJSONHandler(out, o.SlogOpts),
		out:     out,
	}
	return h
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

	fields := make(map[string]any, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Any()
	}

	var b []byte
	if len(fields) > 0 {
		var err error
		b, err = json.MarshalIndent(fields, "", "  ")
		if err != nil {
			return err
		}
	}

	timeStr := r.Time.Format("15:04:05.000")
	msg := color.CyanString(r.Message)

	if len(b) > 0 {
		fmt.Fprintln(h.out, timeStr, level, msg, string(b))
	} else {
		fmt.Fprintln(h.out, timeStr, level, msg)
	}

	return nil
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &PrettyHandler{
		Handler: h.Handler.WithAttrs(attrs),
		attrs:   append(h.attrs, attrs...),
		out:     h.out,
	}
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	return &PrettyHandler{
		Handler: h.Handler.WithGroup(name),
		attrs:   h.attrs,
		out:     h.out,
	}
}
