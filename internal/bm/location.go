package bm

import (
	"path"
	"strings"
)

// Location is an abstract hierarchical storage path understood identically by
// every StorageProvider. It is stored as a cleaned, slash-separated path.
// The filesystem backend maps it 1:1 onto a native path; the object-store
// backend maps it onto an object key (segments joined with "/").
type Location struct {
	p string
}

// NewLocation joins the given parts into a Location.
// A leading "/" on the first part makes the location absolute.
func NewLocation(parts ...string) Location {
	joined := path.Join(parts...)
	if joined == "" || joined == "." {
		return Location{}
	}
	return Location{p: joined}
}

// ParseLocation converts a raw user-supplied path into a Location.
// Native separators are not translated; callers on the filesystem backend
// should use filepath.ToSlash first.
func ParseLocation(raw string) Location {
	return NewLocation(raw)
}

// String returns the slash-separated form of the location.
func (l Location) String() string {
	return l.p
}

// IsZero reports whether the location is empty (the root of a relative keyspace).
func (l Location) IsZero() bool {
	return l.p == ""
}

// IsAbs reports whether the location is rooted.
func (l Location) IsAbs() bool {
	return strings.HasPrefix(l.p, "/")
}

// Key returns the object-store key for the location: its segments joined with "/".
func (l Location) Key() string {
	return strings.Join(l.Segments(), "/")
}

// Segments returns the non-empty path segments.
func (l Location) Segments() []string {
	trimmed := strings.Trim(l.p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Depth returns the number of segments in the location.
func (l Location) Depth() int {
	return len(l.Segments())
}

// Base returns the last segment, or "" for a root or zero location.
func (l Location) Base() string {
	segs := l.Segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// Join appends parts to the location.
func (l Location) Join(parts ...string) Location {
	return NewLocation(append([]string{l.p}, parts...)...)
}

// Parent returns the location one segment up. The parent of a single-segment
// relative location is the zero location; the parent of "/" is "/".
func (l Location) Parent() Location {
	if l.p == "" || l.p == "/" {
		return l
	}
	dir := path.Dir(l.p)
	if dir == "." {
		return Location{}
	}
	return Location{p: dir}
}

// Equal reports whether both locations name the same place.
func (l Location) Equal(other Location) bool {
	return l.p == other.p
}

// Contains reports whether other is l itself or lies below l, comparing
// whole segments (so "/a/b" does not contain "/a/bc").
func (l Location) Contains(other Location) bool {
	if l.IsAbs() != other.IsAbs() && !l.IsZero() {
		return false
	}
	mine := l.Segments()
	theirs := other.Segments()
	if len(theirs) < len(mine) {
		return false
	}
	for i, s := range mine {
		if theirs[i] != s {
			return false
		}
	}
	return true
}

// Rel returns the segments of target below l. ok is false if target is not
// contained in l.
func (l Location) Rel(target Location) (rel string, ok bool) {
	if !l.Contains(target) {
		return "", false
	}
	segs := target.Segments()[l.Depth():]
	return strings.Join(segs, "/"), true
}

// Compare orders locations segment by segment. Sorting with Compare yields a
// pre-order depth-first traversal with lexically ordered siblings.
func (l Location) Compare(other Location) int {
	a := l.Segments()
	b := other.Segments()
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
