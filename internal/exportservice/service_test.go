package exportservice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/feta/internal/apperr"
	"github.com/starford/feta/internal/exporter"
	"github.com/starford/feta/internal/history"
	"github.com/starford/feta/internal/sse"
	"github.com/starford/feta/internal/testutil"
	"github.com/starford/feta/internal/vault"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) PublishExportEvent(eventType string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

var sampleNotes = map[string]string{
	"A.md":        "---\ntags: [x, shared]\n---\nHello",
	"B.md":        "World #shared",
	"C/D.md":      "---\ntags: [y]\nstatus: draft\n---\nNested",
	"C/E/F.md":    "Deep",
	".obsidian/w": "hidden",
}

func newService(t *testing.T, defaults Defaults) (string, *Service, *history.DB, *recordingPublisher) {
	t.Helper()
	dir, fs := testutil.TestVault(t, sampleNotes)
	db := testutil.TestDB(t)
	pub := &recordingPublisher{}
	sink := exporter.NewSink(fs, false, testutil.Logger())
	return dir, New(fs, sink, db, pub, defaults, testutil.Logger()), db, pub
}

func TestExport_AppliesDefaults(t *testing.T) {
	dir, svc, db, pub := newService(t, Defaults{RequiredTag: "x", Destination: "out/export.json"})

	res, err := svc.Export(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Export.Count() != 1 {
		t.Errorf("count = %d, want 1", res.Export.Count())
	}
	if !res.Outcome.Saved() || res.Outcome.Destination != "out/export.json" {
		t.Errorf("outcome = %+v", res.Outcome)
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "export.json")); err != nil {
		t.Errorf("export file: %v", err)
	}

	run, err := db.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if run.RequiredTag != "x" || run.NoteCount != 1 || !run.Saved || run.Checksum != res.Outcome.Checksum {
		t.Errorf("run = %+v", run)
	}

	got := pub.types()
	if len(got) != 2 || got[0] != sse.ExportStarted || got[1] != sse.ExportSaved {
		t.Errorf("events = %v", got)
	}
}

func TestExport_RequestOverridesDefaults(t *testing.T) {
	_, svc, _, _ := newService(t, Defaults{RequiredTag: "x"})

	res, err := svc.Export(context.Background(), Request{Root: "C", RequiredTag: ptr("y")})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Export.Count() != 1 || res.Export.Meta[0].Path != "C/D.md" {
		t.Errorf("meta = %+v", res.Export.Meta)
	}
	if res.Outcome.Destination != exporter.DefaultDestination {
		t.Errorf("destination = %q", res.Outcome.Destination)
	}
}

func ptr[T any](v T) *T { return &v }

func TestResolve_EmptyFilterClearsDefault(t *testing.T) {
	_, svc, _, _ := newService(t, Defaults{RequiredTag: "x", RequiredFrontmatterKey: "status"})

	got := svc.Resolve(Request{})
	if got.RequiredTag != "x" || got.RequiredFrontmatterKey != "status" {
		t.Errorf("defaults not applied: %+v", got)
	}
	got = svc.Resolve(Request{RequiredTag: ptr(""), RequiredFrontmatterKey: ptr("")})
	if got.RequiredTag != "" || got.RequiredFrontmatterKey != "" {
		t.Errorf("explicit empty filters ignored: %+v", got)
	}
}

func TestExport_UnfilteredOverDefaultFilter(t *testing.T) {
	_, svc, _, _ := newService(t, Defaults{RequiredTag: "x"})

	res, err := svc.Export(context.Background(), Request{RequiredTag: ptr("")})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Export.Count() != 4 {
		t.Errorf("count = %d, want 4", res.Export.Count())
	}
}

func TestExport_RejectsUnsafeDestination(t *testing.T) {
	dir, svc, db, pub := newService(t, Defaults{})

	for _, dest := range []string{"A.md", "C/D.MD", "new-note.md", "/tmp/export.json", "../export.json"} {
		_, err := svc.Export(context.Background(), Request{Destination: dest})
		if !errors.Is(err, apperr.ErrInvalidDestination) {
			t.Errorf("destination %q: err = %v, want ErrInvalidDestination", dest, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "A.md"))
	if err != nil || string(data) != sampleNotes["A.md"] {
		t.Errorf("A.md changed: %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "new-note.md")); !os.IsNotExist(err) {
		t.Errorf("new-note.md was created: %v", err)
	}
	if _, err := db.Latest(); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("rejected export reached history: %v", err)
	}
	if got := pub.types(); len(got) != 0 {
		t.Errorf("events = %v, want none", got)
	}

	res, err := svc.Export(context.Background(), Request{RequiredTag: ptr("x")})
	if err != nil || res.Export.Count() != 1 {
		t.Errorf("tagged note lost: %v", err)
	}
}

func TestResolve_RenderHTMLOverride(t *testing.T) {
	_, svc, _, _ := newService(t, Defaults{RenderHTML: true})
	if !svc.Resolve(Request{}).RenderHTML {
		t.Error("default RenderHTML not applied")
	}
	off := false
	if svc.Resolve(Request{RenderHTML: &off}).RenderHTML {
		t.Error("explicit false ignored")
	}
}

func TestExport_FailureIsPublished(t *testing.T) {
	_, svc, db, pub := newService(t, Defaults{})

	_, err := svc.Export(context.Background(), Request{Root: "missing"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	got := pub.types()
	if len(got) != 2 || got[1] != sse.ExportFailed {
		t.Errorf("events = %v", got)
	}
	if _, err := db.Latest(); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("history recorded a run that never reached the sink: %v", err)
	}
	if svc.Busy() {
		t.Error("busy flag left set")
	}
}

type blockingRenderer struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingRenderer) Render(ctx context.Context, _ string) (string, error) {
	select {
	case r.started <- struct{}{}:
	default:
	}
	select {
	case <-r.release:
		return "<p>ok</p>", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestExport_BusyWhileRunning(t *testing.T) {
	_, fs := testutil.TestVault(t, sampleNotes)
	r := &blockingRenderer{started: make(chan struct{}, 1), release: make(chan struct{})}
	sink := exporter.NewSink(fs, false, testutil.Logger())
	svc := New(fs, sink, nil, nil, Defaults{}, testutil.Logger(), exporter.WithRenderer(r))

	on := true
	done := make(chan error, 1)
	go func() {
		_, err := svc.Export(context.Background(), Request{RenderHTML: &on})
		done <- err
	}()
	<-r.started

	if _, err := svc.Export(context.Background(), Request{}); !errors.Is(err, apperr.ErrBusy) {
		t.Errorf("second export err = %v, want ErrBusy", err)
	}
	close(r.release)
	if err := <-done; err != nil {
		t.Fatalf("first export: %v", err)
	}
	if _, err := svc.Export(context.Background(), Request{}); err != nil {
		t.Errorf("export after release: %v", err)
	}
}

func TestFolders(t *testing.T) {
	_, svc, _, _ := newService(t, Defaults{})
	got, err := svc.Folders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{vault.RootPath, "C", "C/E"}
	if len(got) != len(want) {
		t.Fatalf("folders = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("folders[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTags(t *testing.T) {
	_, svc, _, _ := newService(t, Defaults{})
	got, err := svc.Tags(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []TagCount{{"shared", 2}, {"x", 1}, {"y", 1}}
	if len(got) != len(want) {
		t.Fatalf("tags = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tags[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestHistory(t *testing.T) {
	_, svc, _, _ := newService(t, Defaults{})
	if _, err := svc.Latest(context.Background()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Latest on empty history: %v", err)
	}
	for range 3 {
		if _, err := svc.Export(context.Background(), Request{}); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := svc.History(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID <= runs[1].ID {
		t.Errorf("runs = %+v", runs)
	}
	latest, err := svc.Latest(context.Background())
	if err != nil || latest.ID != runs[0].ID {
		t.Errorf("latest = %+v, %v", latest, err)
	}
}

func TestHistory_NoStore(t *testing.T) {
	_, fs := testutil.TestVault(t, nil)
	svc := New(fs, exporter.NewSink(fs, false, testutil.Logger()), nil, nil, Defaults{}, testutil.Logger())
	runs, err := svc.History(context.Background(), 10)
	if err != nil || len(runs) != 0 {
		t.Errorf("runs = %v, err = %v", runs, err)
	}
}
