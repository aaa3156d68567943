package bm

import (
	"sort"
	"testing"
)

func TestNewLocation(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  string
		depth int
	}{
		{name: "absolute", parts: []string{"/tmp", "a", "b"}, want: "/tmp/a/b", depth: 3},
		{name: "relative", parts: []string{"m1", "b1"}, want: "m1/b1", depth: 2},
		{name: "cleans dots and slashes", parts: []string{"a//b/./c/"}, want: "a/b/c", depth: 3},
		{name: "empty is zero", parts: nil, want: "", depth: 0},
		{name: "dot is zero", parts: []string{"."}, want: "", depth: 0},
		{name: "root", parts: []string{"/"}, want: "/", depth: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewLocation(tt.parts...)
			if got.String() != tt.want {
				t.Errorf("String() = %q, want %q", got.String(), tt.want)
			}
			if got.Depth() != tt.depth {
				t.Errorf("Depth() = %d, want %d", got.Depth(), tt.depth)
			}
		})
	}
}

func TestLocation_Key(t *testing.T) {
	if got := NewLocation("/a/b/c").Key(); got != "a/b/c" {
		t.Errorf("Key() = %q, want %q", got, "a/b/c")
	}
	if got := NewLocation("a/b").Key(); got != "a/b" {
		t.Errorf("Key() = %q, want %q", got, "a/b")
	}
	if got := (Location{}).Key(); got != "" {
		t.Errorf("Key() = %q, want empty", got)
	}
}

func TestLocation_Parent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/a/b", "/a"},
		{"/a", "/"},
		{"/", "/"},
		{"a/b", "a"},
		{"a", ""},
	}
	for _, tt := range tests {
		if got := NewLocation(tt.in).Parent().String(); got != tt.want {
			t.Errorf("Parent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLocation_Contains(t *testing.T) {
	tests := []struct {
		name   string
		parent string
		child  string
		want   bool
	}{
		{name: "self", parent: "/a/b", child: "/a/b", want: true},
		{name: "descendant", parent: "/a", child: "/a/b/c", want: true},
		{name: "sibling with shared prefix", parent: "/a/b", child: "/a/bc", want: false},
		{name: "ancestor", parent: "/a/b", child: "/a", want: false},
		{name: "relative", parent: "m1", child: "m1/b1", want: true},
		{name: "zero contains relative", parent: "", child: "x/y", want: true},
		{name: "absolute vs relative", parent: "/a", child: "a/b", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewLocation(tt.parent).Contains(NewLocation(tt.child))
			if got != tt.want {
				t.Errorf("Contains() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocation_Rel(t *testing.T) {
	rel, ok := NewLocation("/data").Rel(NewLocation("/data/x/y.txt"))
	if !ok || rel != "x/y.txt" {
		t.Errorf("Rel() = %q, %v, want %q, true", rel, ok, "x/y.txt")
	}
	rel, ok = NewLocation("/data").Rel(NewLocation("/data"))
	if !ok || rel != "" {
		t.Errorf("Rel(self) = %q, %v, want empty, true", rel, ok)
	}
	if _, ok := NewLocation("/data").Rel(NewLocation("/other")); ok {
		t.Error("Rel() on unrelated location ok = true, want false")
	}
}

func TestLocation_CompareIsPreOrder(t *testing.T) {
	locs := []Location{
		NewLocation("r/b"),
		NewLocation("r/a/z"),
		NewLocation("r"),
		NewLocation("r/a"),
		NewLocation("r/a-b"),
		NewLocation("r/a/c"),
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i].Compare(locs[j]) < 0 })

	want := []string{"r", "r/a", "r/a/c", "r/a/z", "r/a-b", "r/b"}
	for i, w := range want {
		if locs[i].String() != w {
			t.Errorf("locs[%d] = %q, want %q", i, locs[i], w)
		}
	}
}
