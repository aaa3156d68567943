package app

import (
	"bm-go/internal/archive"
	"bm-go/internal/bm"
)

// Storage layout below the configured storage root:
//
//	managers/                                  backup-manager descriptors
//	backups/<manager>/<backup>/backupfiles/    metadata document(s)
//	backups/<manager>/<backup>/backupdata/     payload tree
//	<export dir>/<manager>/<tarball>           exported archives
//	catalog/bm.db                              catalog snapshot
const (
	managersDir     = "managers"
	backupsDir      = "backups"
	catalogDir      = "catalog"
	catalogSnapshot = "bm.db"

	// MetadataFileName is the metadata document stored for every backup.
	MetadataFileName = "backup.json"

	encryptedSuffix = ".age"
)

type layout struct {
	root      bm.Location
	exportDir string
}

func (l layout) managers() bm.Location {
	return l.root.Join(managersDir)
}

func (l layout) backup(managerID, backupName string) bm.Location {
	return l.root.Join(backupsDir, managerID, backupName)
}

func (l layout) metadataDir(managerID, backupName string) bm.Location {
	return l.backup(managerID, backupName).Join(archive.MetadataMarker)
}

func (l layout) metadataFile(managerID, backupName string) bm.Location {
	return l.metadataDir(managerID, backupName).Join(MetadataFileName)
}

func (l layout) dataDir(managerID, backupName string) bm.Location {
	return l.backup(managerID, backupName).Join(archive.DataMarker)
}

func (l layout) exports(managerID string) bm.Location {
	return l.root.Join(l.exportDir, managerID)
}

func (l layout) catalog() bm.Location {
	return l.root.Join(catalogDir, catalogSnapshot)
}
