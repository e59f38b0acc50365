package filestore

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestStore_Resolve(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "private", "tenants", "7", "manual.pdf"))
	mustWrite(t, filepath.Join(root, "uploads", "faq.txt"))
	if err := os.MkdirAll(filepath.Join(root, "public", "dir"), 0755); err != nil {
		t.Fatal(err)
	}
	s := New(root)

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{ref: "private://tenants/7/manual.pdf", want: filepath.Join(root, "private", "tenants", "7", "manual.pdf")},
		{ref: "uploads/faq.txt", want: filepath.Join(root, "uploads", "faq.txt")},
		{ref: "private://tenants/7/missing.pdf", wantErr: true},
		{ref: "public://dir", wantErr: true},
		{ref: "s3://bucket/file.pdf", wantErr: true},
		{ref: "../etc/passwd", wantErr: true},
		{ref: "private://../../etc/passwd", wantErr: true},
		{ref: "/etc/passwd", wantErr: true},
		{ref: "  ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := s.Resolve(tt.ref)
			if tt.wantErr {
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("expected ErrNotFound, got %q, %v", got, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStore_Refs(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	got := s.Refs(filepath.Join(root, "private", "a", "b.pdf"))
	want := []string{"private://a/b.pdf", "private/a/b.pdf"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Refs = %v, want %v", got, want)
	}
	if got := s.Refs(filepath.Join(root, "x.txt")); !reflect.DeepEqual(got, []string{"x.txt"}) {
		t.Errorf("Refs = %v", got)
	}
	if got := s.Refs(filepath.Join(filepath.Dir(root), "other.txt")); got != nil {
		t.Errorf("path outside root should give nil, got %v", got)
	}
}

func mustWrite(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}
}
