package bm

import "time"

// CreationType records how a backup was triggered.
type CreationType string

const (
	CreationManual    CreationType = "MANUAL"
	CreationScheduled CreationType = "SCHEDULED"
)

// Backup is the part of a backup descriptor the archive layer needs for
// naming exported tarballs.
type Backup struct {
	Name         string
	CreationType CreationType
	CreationTime time.Time
}
