package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/filestore"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/queue"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) add(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func startWatcher(t *testing.T, root string, rec *recorder) *Watcher {
	t.Helper()
	w := NewWatcher(root, []string{".txt", ".md"}, rec.add, WithDebounce(50*time.Millisecond), WithLogger(zap.NewNop()))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_DebounceAndExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "private", "tenants")
	if err := mkdirAll(sub); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	startWatcher(t, dir, rec)

	fPath := filepath.Join(sub, "manual.txt")
	for i := 0; i < 3; i++ {
		if err := writeFile(fPath, strings.Repeat("x", i+1)); err != nil {
			t.Fatal(err)
		}
	}
	if err := writeFile(filepath.Join(sub, "photo.jpg"), "jpg"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(400 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 1 || got[0] != fPath {
		t.Errorf("expected a single notification for manual.txt, got %v", got)
	}
}

func TestWatcher_NewDirectoryFilesReported(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, dir, rec)

	nested := filepath.Join(dir, "level1", "level2")
	if err := mkdirAll(nested); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "deep.txt"), "deep content"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "ignore.xyz"), "skip"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)

	found := false
	for _, p := range rec.snapshot() {
		if strings.HasSuffix(p, "deep.txt") {
			found = true
		}
		if strings.HasSuffix(p, "ignore.xyz") {
			t.Errorf("ignore.xyz should not be reported")
		}
	}
	if !found {
		t.Errorf("expected deep.txt to be reported, got %v", rec.snapshot())
	}
}

func TestWatcher_RemoveCancelsPending(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := NewWatcher(dir, nil, rec.add, WithDebounce(time.Hour))
	path := filepath.Join(dir, "gone.txt")
	w.schedule(path)
	w.cancel(path)
	w.mu.Lock()
	n := len(w.pending)
	w.mu.Unlock()
	if n != 0 {
		t.Errorf("pending = %d after cancel", n)
	}
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	w := NewWatcher(root, nil, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

type fakeDocuments map[string][]*models.KnowledgeDocument

func (f fakeDocuments) FindDocumentsByFileRef(ctx context.Context, ref string) ([]*models.KnowledgeDocument, error) {
	if ref == "broken.txt" {
		return nil, errors.New("database locked")
	}
	return f[ref], nil
}

type fakePublisher struct {
	jobs []queue.Job
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, job queue.Job) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func TestUploads_FileChanged(t *testing.T) {
	root := t.TempDir()
	files := filestore.New(root)
	manual := &models.KnowledgeDocument{ID: 4, TenantID: 2}
	docs := fakeDocuments{
		"private://tenants/2/manual.pdf": {manual},
		"private/tenants/2/manual.pdf":   {manual, {ID: 9, TenantID: 3}},
		"public/catalog.pdf":             nil,
	}
	pub := &fakePublisher{}
	u := NewUploads(files, docs, pub, zap.NewNop())

	n := u.FileChanged(context.Background(), filepath.Join(root, "private", "tenants", "2", "manual.pdf"))
	if n != 2 || len(pub.jobs) != 2 {
		t.Fatalf("queued %d jobs: %+v", n, pub.jobs)
	}
	if pub.jobs[0].DocumentID != 4 || pub.jobs[0].TenantID != 2 || pub.jobs[0].Reason != queue.ReasonChanged {
		t.Errorf("first job = %+v", pub.jobs[0])
	}
	if pub.jobs[1].DocumentID != 9 {
		t.Errorf("second job = %+v", pub.jobs[1])
	}

	if n := u.FileChanged(context.Background(), filepath.Join(root, "public", "catalog.pdf")); n != 0 {
		t.Errorf("unreferenced file queued %d jobs", n)
	}
	if n := u.FileChanged(context.Background(), filepath.Join(root, "broken.txt")); n != 0 {
		t.Errorf("lookup failure queued %d jobs", n)
	}

	pub.err = queue.ErrClosed
	if n := u.FileChanged(context.Background(), filepath.Join(root, "private", "tenants", "2", "manual.pdf")); n != 0 {
		t.Errorf("publish failure counted %d jobs", n)
	}
}

func mkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
