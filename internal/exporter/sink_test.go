package exporter

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/starford/feta/internal/checksum"
	"github.com/starford/feta/internal/models"
)

type memWriter struct {
	files map[string][]byte
}

func (m *memWriter) Write(path string, content []byte) error {
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[path] = content
	return nil
}

func sampleExport() *models.JSONExport {
	e := models.NewJSONExport()
	e.Add(models.ExportedNote{
		Meta:    models.NoteMeta{Title: "a.md", Slug: "a-md", Frontmatter: map[string]any{}, Tags: []string{}, Path: "a.md"},
		Content: "Hello",
	})
	return e
}

func TestSink_Compact(t *testing.T) {
	w := &memWriter{}
	out := NewSink(w, false, discardLogger()).Save(context.Background(), sampleExport(), "x.json")

	if !out.Saved() || out.Count != 1 || out.Destination != "x.json" {
		t.Fatalf("outcome = %+v", out)
	}
	data := w.files["x.json"]
	if bytes.Contains(data, []byte("\n")) {
		t.Errorf("compact output has newlines: %s", data)
	}
	if out.Bytes != len(data) || out.Checksum != checksum.Sum(data) {
		t.Errorf("bytes/checksum mismatch: %+v", out)
	}
	if out.At.IsZero() {
		t.Error("outcome time not set")
	}
}

func TestSink_Pretty(t *testing.T) {
	w := &memWriter{}
	NewSink(w, true, discardLogger()).Save(context.Background(), sampleExport(), "x.json")
	if !bytes.Contains(w.files["x.json"], []byte("\n  \"meta\"")) {
		t.Errorf("pretty output not indented: %s", w.files["x.json"])
	}
}

func TestSink_CancelledContext(t *testing.T) {
	w := &memWriter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := NewSink(w, false, discardLogger()).Save(ctx, sampleExport(), "x.json")
	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", out.Err)
	}
	if len(w.files) != 0 {
		t.Error("cancelled save still wrote")
	}
}
