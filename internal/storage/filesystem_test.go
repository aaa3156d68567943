package storage

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"bm-go/internal/bm"
)

func TestFileSystemProvider_DummyFile(t *testing.T) {
	ctx := context.Background()

	t.Run("reserves and releases space", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "tmp")
		p := NewFileSystemProvider(nil)
		p.SetReservedSpace(bm.NewLocation(filepath.ToSlash(dir)))

		if err := p.CreateDummyFile(ctx, 4096); err != nil {
			t.Fatalf("CreateDummyFile() error = %v", err)
		}
		info, err := os.Stat(filepath.Join(dir, DummyFileName))
		if err != nil {
			t.Fatalf("placeholder not created: %v", err)
		}
		if info.Size() != 4096 {
			t.Errorf("placeholder size = %d, want 4096", info.Size())
		}

		if err := p.DeleteDummyFile(ctx); err != nil {
			t.Fatalf("DeleteDummyFile() error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, DummyFileName)); !os.IsNotExist(err) {
			t.Errorf("placeholder still present: %v", err)
		}
		if err := p.DeleteDummyFile(ctx); err != nil {
			t.Errorf("second DeleteDummyFile() error = %v, want nil", err)
		}
	})

	t.Run("requires a reserved directory", func(t *testing.T) {
		p := NewFileSystemProvider(nil)
		if err := p.CreateDummyFile(ctx, 10); !errors.Is(err, bm.ErrInvalidConfig) {
			t.Errorf("CreateDummyFile() error = %v, want ErrInvalidConfig", err)
		}
	})
}

func TestFileSystemProvider_WalkDoesNotFollowSymlinks(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	target := filepath.Join(base, "target")
	root := filepath.Join(base, "root")

	for _, d := range []string{filepath.Join(target, "inner"), root} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(target, "inner", "f.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	rootLoc := bm.NewLocation(filepath.ToSlash(root))
	locs, err := NewFileSystemProvider(nil).Walk(ctx, rootLoc, math.MaxInt, false)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if got, want := relNames(t, rootLoc, locs), []string{"", "link"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Walk() = %q, want %q", got, want)
	}
}

func TestFileSystemProvider_WriteLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	folder := bm.NewLocation(filepath.ToSlash(dir), "out")
	p := NewFileSystemProvider(nil)

	if err := p.Write(ctx, folder, folder.Join("doc.json"), []byte(`{}`)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "doc.json" {
		t.Errorf("directory entries = %v, want only doc.json", entries)
	}
}

func TestFileSystemProvider_SymlinkIsNeitherFileNorDir(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	targetDir := filepath.Join(base, "dir")
	targetFile := filepath.Join(base, "file.txt")
	if err := os.Mkdir(targetDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(targetFile, []byte("secret"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(targetDir, filepath.Join(base, "dirlink")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink(targetFile, filepath.Join(base, "filelink")); err != nil {
		t.Fatal(err)
	}

	p := NewFileSystemProvider(nil)
	for _, name := range []string{"dirlink", "filelink"} {
		t.Run(name, func(t *testing.T) {
			loc := bm.NewLocation(filepath.ToSlash(filepath.Join(base, name)))

			isDir, err := p.IsDir(ctx, loc)
			if err != nil {
				t.Fatalf("IsDir() error = %v", err)
			}
			isFile, err := p.IsFile(ctx, loc)
			if err != nil {
				t.Fatalf("IsFile() error = %v", err)
			}
			if isDir || isFile {
				t.Errorf("IsDir() = %v, IsFile() = %v, want both false", isDir, isFile)
			}

			exists, err := p.Exists(ctx, loc)
			if err != nil {
				t.Fatalf("Exists() error = %v", err)
			}
			if !exists {
				t.Error("Exists() = false, want true")
			}
		})
	}
}

func TestFileSystemProvider_OrderedWalkOldestFirst(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// Created in non-lexical order.
	names := []string{"c.txt", "a.txt", "b.txt"}
	var prev time.Time
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
		ct, err := creationTime(path)
		if err != nil {
			t.Skipf("creation time unreadable: %v", err)
		}
		if !ct.After(prev) {
			t.Skipf("filesystem timestamps too coarse to order %s", name)
		}
		prev = ct
		time.Sleep(10 * time.Millisecond)
	}

	root := bm.NewLocation(filepath.ToSlash(dir))
	locs, err := NewFileSystemProvider(nil).Walk(ctx, root, math.MaxInt, true)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	var got []string
	for _, rel := range relNames(t, root, locs) {
		if rel != "" {
			got = append(got, rel)
		}
	}
	if !reflect.DeepEqual(got, names) {
		t.Errorf("Walk(ordered) files = %q, want %q", got, names)
	}
}

func TestFileSystemProvider_OrderedWalkUnreadableSortsLast(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := map[string]time.Time{
		dir:                     base,
		filepath.Join(dir, "b"): base.Add(2 * time.Second),
		filepath.Join(dir, "c"): base.Add(time.Second),
	}
	orig := creationTimeOf
	creationTimeOf = func(path string) (time.Time, error) {
		if ct, ok := times[path]; ok {
			return ct, nil
		}
		return time.Time{}, errors.New("no birth time")
	}
	t.Cleanup(func() { creationTimeOf = orig })

	root := bm.NewLocation(filepath.ToSlash(dir))
	locs, err := NewFileSystemProvider(nil).Walk(ctx, root, math.MaxInt, true)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if got, want := relNames(t, root, locs), []string{"", "c", "b", "a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Walk(ordered) = %q, want %q", got, want)
	}
}
