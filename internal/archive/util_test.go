package archive

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"bm-go/internal/bm"
	"bm-go/internal/storage"
)

func TestTarballName(t *testing.T) {
	created := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	tests := []struct {
		name   string
		backup bm.Backup
		want   string
	}{
		{
			name:   "scheduled",
			backup: bm.Backup{Name: "nightly", CreationType: bm.CreationScheduled, CreationTime: created},
			want:   "nightly.tar.gz",
		},
		{
			name:   "manual",
			backup: bm.Backup{Name: "adhoc", CreationType: bm.CreationManual, CreationTime: created},
			want:   "adhoc-2024-03-05T14:07:09Z.tar.gz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TarballName(tt.backup); got != tt.want {
				t.Errorf("TarballName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEntryName(t *testing.T) {
	base := bm.NewLocation("/srv/data")
	tests := []struct {
		name    string
		source  bm.Location
		prefix  string
		isDir   bool
		want    string
		wantErr bool
	}{
		{name: "file", source: base.Join("a", "f.txt"), prefix: "m/b/backupdata/", want: "m/b/backupdata/a/f.txt"},
		{name: "directory", source: base.Join("a"), prefix: "m/b/backupdata/", isDir: true, want: "m/b/backupdata/a/"},
		{name: "prefix without separator", source: base.Join("f"), prefix: "p", want: "p/f"},
		{name: "empty prefix", source: base.Join("f"), prefix: "", want: "f"},
		{name: "outside base", source: bm.NewLocation("/srv/other"), prefix: "p/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EntryName(base, tt.source, tt.prefix, tt.isDir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EntryName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("EntryName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrefix(t *testing.T) {
	root := NewPrefix("m1", "b1")
	files := root.Fork(MetadataMarker)
	data := root.Fork(DataMarker)

	if got := root.String(); got != "m1/b1/" {
		t.Errorf("root = %q, want %q", got, "m1/b1/")
	}
	if got := files.String(); got != "m1/b1/backupfiles/" {
		t.Errorf("files = %q, want %q", got, "m1/b1/backupfiles/")
	}
	if got := data.String(); got != "m1/b1/backupdata/" {
		t.Errorf("data = %q, want %q", got, "m1/b1/backupdata/")
	}

	if same := root.Add("extra"); same != root {
		t.Error("Add() did not return the receiver")
	}
	if got := root.String(); got != "m1/b1/extra/" {
		t.Errorf("root after Add = %q, want %q", got, "m1/b1/extra/")
	}
	if got := files.String(); got != "m1/b1/backupfiles/" {
		t.Errorf("fork changed by Add on parent: %q", got)
	}
	if got := NewPrefix().String(); got != "" {
		t.Errorf("empty prefix = %q, want empty", got)
	}
}

// failingDeleter refuses to delete the listed locations.
type failingDeleter struct {
	bm.StorageProvider
	fail map[string]bool
}

func (f *failingDeleter) Delete(ctx context.Context, loc bm.Location) error {
	if f.fail[loc.String()] {
		return bm.NewStorageError("delete", loc, fmt.Errorf("permission denied"))
	}
	return f.StorageProvider.Delete(ctx, loc)
}

func newMemoryProvider() bm.StorageProvider {
	return storage.NewObjectStoreProvider(storage.NewMemoryObjectClient(nil), nil)
}

func seed(t *testing.T, p bm.StorageProvider, files map[string]string) {
	t.Helper()
	for name, content := range files {
		loc := bm.NewLocation(name)
		if err := p.Write(context.Background(), loc.Parent(), loc, []byte(content)); err != nil {
			t.Fatalf("Write(%s) error = %v", name, err)
		}
	}
}

func TestDeleteRecursive(t *testing.T) {
	ctx := context.Background()

	t.Run("removes everything", func(t *testing.T) {
		p := newMemoryProvider()
		seed(t, p, map[string]string{"t/a/1": "1", "t/a/b/2": "2", "t/3": "3", "keep/4": "4"})

		if err := DeleteRecursive(ctx, p, bm.NewLocation("t")); err != nil {
			t.Fatalf("DeleteRecursive() error = %v", err)
		}
		if ok, _ := p.Exists(ctx, bm.NewLocation("t")); ok {
			t.Error("target still exists")
		}
		if ok, _ := p.Exists(ctx, bm.NewLocation("keep/4")); !ok {
			t.Error("sibling removed")
		}
	})

	t.Run("missing target", func(t *testing.T) {
		if err := DeleteRecursive(ctx, newMemoryProvider(), bm.NewLocation("nope")); err != nil {
			t.Errorf("DeleteRecursive() error = %v, want nil", err)
		}
	})

	t.Run("aggregates failures", func(t *testing.T) {
		inner := newMemoryProvider()
		seed(t, inner, map[string]string{"t/x": "x", "t/d/y": "y", "t/z": "z"})
		p := &failingDeleter{StorageProvider: inner, fail: map[string]bool{"t/x": true, "t/d/y": true}}

		err := DeleteRecursive(ctx, p, bm.NewLocation("t"))
		var derr *DeleteError
		if !errors.As(err, &derr) {
			t.Fatalf("DeleteRecursive() error = %v, want *DeleteError", err)
		}

		var failed []string
		for _, loc := range derr.Failed {
			failed = append(failed, loc.String())
		}
		// Deepest first; "t" and "t/d" are non-empty because their children survived.
		want := []string{"t/d/y", "t/d", "t/x", "t"}
		if !reflect.DeepEqual(failed, want) {
			t.Errorf("Failed = %v, want %v", failed, want)
		}
		if !errors.Is(err, bm.ErrNotEmpty) {
			t.Error("aggregate error does not expose ErrNotEmpty cause")
		}
		if ok, _ := inner.Exists(ctx, bm.NewLocation("t/z")); ok {
			t.Error("deletable entry survived partial failure")
		}
	})
}

func TestWalkFiles(t *testing.T) {
	p := newMemoryProvider()
	seed(t, p, map[string]string{"r/b": "b", "r/a/c": "c", "r/a/d/e": "e"})

	files, err := WalkFiles(context.Background(), p, bm.NewLocation("r"))
	if err != nil {
		t.Fatalf("WalkFiles() error = %v", err)
	}
	var got []string
	for _, f := range files {
		got = append(got, f.String())
	}
	want := []string{"r/a/c", "r/a/d/e", "r/b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("WalkFiles() = %v, want %v", got, want)
	}
}

func TestCheckName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "plain", input: "m1", wantErr: false},
		{name: "dotted", input: "db.daily", wantErr: false},
		{name: "marker prefix", input: "backupfiles-old", wantErr: false},
		{name: "empty", input: "", wantErr: true},
		{name: "dot", input: ".", wantErr: true},
		{name: "parent", input: "..", wantErr: true},
		{name: "slash", input: "a/b", wantErr: true},
		{name: "backslash", input: `a\b`, wantErr: true},
		{name: "metadata marker", input: MetadataMarker, wantErr: true},
		{name: "data marker", input: DataMarker, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidName) {
				t.Errorf("CheckName(%q) error = %v, want ErrInvalidName", tt.input, err)
			}
		})
	}
}
