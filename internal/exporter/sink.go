package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/feta/internal/checksum"
	"github.com/starford/feta/internal/models"
)

// Writer persists a payload at a vault-relative path.
type Writer interface {
	Write(path string, content []byte) error
}

// Outcome is the persistence result of one export. It travels separately
// from the in-memory export: a failed save does not fail the export.
type Outcome struct {
	Destination string
	Count       int
	Bytes       int
	Checksum    string
	Err         error
	At          time.Time
}

// Saved reports whether the export reached its destination.
func (o Outcome) Saved() bool { return o.Err == nil }

// Sink serializes exports to JSON and writes them through a Writer.
type Sink struct {
	w      Writer
	pretty bool
	logger *slog.Logger
}

// NewSink creates a Sink. pretty selects two-space indented output.
func NewSink(w Writer, pretty bool, logger *slog.Logger) *Sink {
	return &Sink{w: w, pretty: pretty, logger: logger}
}

// Save serializes export and writes it to destination. Failures are logged
// and returned inside the Outcome, never as an error.
func (s *Sink) Save(ctx context.Context, export *models.JSONExport, destination string) Outcome {
	out := Outcome{Destination: destination, Count: export.Count()}
	out.Err = s.save(ctx, export, destination, &out)
	out.At = time.Now().UTC()

	if out.Err != nil {
		s.logger.Error("export: save failed",
			slog.String("destination", destination),
			slog.Int("notes", out.Count),
			slog.String("error", out.Err.Error()))
	} else {
		s.logger.Info("export: saved",
			slog.String("destination", destination),
			slog.Int("notes", out.Count),
			slog.Int("bytes", out.Bytes))
	}
	return out
}

func (s *Sink) save(ctx context.Context, export *models.JSONExport, destination string, out *Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if s.pretty {
		data, err = json.MarshalIndent(export, "", "  ")
	} else {
		data, err = json.Marshal(export)
	}
	if err != nil {
		return fmt.Errorf("exporter: marshal: %w", err)
	}
	if err := s.w.Write(destination, data); err != nil {
		return fmt.Errorf("exporter: write %s: %w", destination, err)
	}
	out.Bytes = len(data)
	out.Checksum = checksum.Sum(data)
	return nil
}
