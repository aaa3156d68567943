package manager

import (
	"context"
	"errors"
	"testing"

	"bm-go/internal/bm"
	"bm-go/internal/storage"
)

func newTestStore(t *testing.T) (*Store, bm.StorageProvider, bm.Location) {
	t.Helper()
	p := storage.NewObjectStoreProvider(storage.NewMemoryObjectClient(nil), nil)
	root := bm.NewLocation("managers")
	s, err := NewStore(p, root, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s, p, root
}

func put(t *testing.T, p bm.StorageProvider, loc bm.Location, content string) {
	t.Helper()
	if err := p.Write(context.Background(), loc.Parent(), loc, []byte(content)); err != nil {
		t.Fatalf("Write(%s) error = %v", loc, err)
	}
}

func TestStore_SaveGet(t *testing.T) {
	ctx := context.Background()
	s, p, root := newTestStore(t)

	m := BackupManager{ID: "db", BackupType: "INCREMENTAL", BackupDomain: "POSTGRES", Description: "primary"}
	if err := s.Save(ctx, m); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if ok, _ := p.IsFile(ctx, root.Join("db", "backupmanager.json")); !ok {
		t.Error("descriptor not written in current layout")
	}

	got, err := s.Get(ctx, "db")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if *got != m {
		t.Errorf("Get() = %+v, want %+v", *got, m)
	}

	if _, err := s.Get(ctx, "other"); !errors.Is(err, bm.ErrNotFound) {
		t.Errorf("Get(other) error = %v, want ErrNotFound", err)
	}
}

func TestStore_ListMixedLayouts(t *testing.T) {
	ctx := context.Background()
	s, p, root := newTestStore(t)

	put(t, p, root.Join("legacy.yaml"), "id: legacy\nbackup_type: FULL\nbackup_domain: FILES\n")
	put(t, p, root.Join("current", "backupmanager.json"), `{"id":"current","backupType":"FULL","backupDomain":"MYSQL"}`)
	put(t, p, root.Join("broken", "backupmanager.json"), `{"id":`)
	put(t, p, root.Join("notes.txt"), "ignored")

	docs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	got := map[string]string{}
	for _, d := range docs {
		got[d.Value.ID] = d.Version.Name
	}
	want := map[string]string{"legacy": "v0", "current": "v1", "broken": "v1"}
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for id, version := range want {
		if got[id] != version {
			t.Errorf("%s version = %q, want %q", id, got[id], version)
		}
	}

	broken, err := s.Get(ctx, "broken")
	if err != nil {
		t.Fatalf("Get(broken) error = %v", err)
	}
	if broken.BackupType != DefaultBackupType || broken.BackupDomain != DefaultBackupDomain {
		t.Errorf("recovered descriptor = %+v, want defaults", *broken)
	}
}

func TestStore_SaveUpgradesLegacy(t *testing.T) {
	ctx := context.Background()
	s, p, root := newTestStore(t)
	put(t, p, root.Join("old.yaml"), "id: old\nbackup_type: FULL\nbackup_domain: FILES\n")

	m, err := s.Get(ctx, "old")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	m.Description = "migrated"
	if err := s.Save(ctx, *m); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if ok, _ := p.Exists(ctx, root.Join("old.yaml")); ok {
		t.Error("legacy descriptor still present")
	}
	docs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(docs) != 1 || docs[0].Version != VersionJSON || docs[0].Value.Description != "migrated" {
		t.Errorf("List() after upgrade = %+v", docs)
	}
}

func TestBackupManager_Validate(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{id: "ok-id", wantErr: false},
		{id: "", wantErr: true},
		{id: "..", wantErr: true},
		{id: "a/b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := BackupManager{ID: tt.id}.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIDFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "managers/db.yaml", want: "db"},
		{path: "managers/db/backupmanager.json", want: "db"},
	}
	for _, tt := range tests {
		if got := IDFromPath(bm.NewLocation(tt.path)); got != tt.want {
			t.Errorf("IDFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
