package transaction

import "strings"

// Marker suffixes appended to a real path while an update is staged.
// A target tree must not contain legitimate files ending in these suffixes.
const (
	AddSuffix = ".add"
	DelSuffix = ".del"
)

// Marker is the staged state of a real path.
type Marker int

const (
	// MarkerNone marks a directory created by staging; it carries no suffix.
	MarkerNone Marker = iota
	// MarkerAdd marks new content waiting in <path>.add.
	MarkerAdd
	// MarkerDel marks previous content parked in <path>.del.
	MarkerDel
)

func (m Marker) String() string {
	switch m {
	case MarkerAdd:
		return "add"
	case MarkerDel:
		return "del"
	default:
		return "none"
	}
}

// Suffix returns the on-disk suffix for m.
func (m Marker) Suffix() string {
	switch m {
	case MarkerAdd:
		return AddSuffix
	case MarkerDel:
		return DelSuffix
	default:
		return ""
	}
}

// StagedEntry records one path touched by Stage.
type StagedEntry struct {
	Path   string
	Marker Marker
}

// MarkerPath returns the on-disk path holding the staged state.
func (e StagedEntry) MarkerPath() string {
	return e.Path + e.Marker.Suffix()
}

// MarkerOf returns the marker carried by path and the real path it belongs to.
func MarkerOf(path string) (Marker, string) {
	switch {
	case strings.HasSuffix(path, AddSuffix) && len(path) > len(AddSuffix):
		return MarkerAdd, strings.TrimSuffix(path, AddSuffix)
	case strings.HasSuffix(path, DelSuffix) && len(path) > len(DelSuffix):
		return MarkerDel, strings.TrimSuffix(path, DelSuffix)
	default:
		return MarkerNone, path
	}
}
