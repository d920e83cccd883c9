package vfs

import (
	"errors"
	"regexp"
)

var (
	errNotFound   = errors.New("vfs: path not found")
	errReadOnly   = errors.New("vfs: provider is read-only")
	errExists     = errors.New("vfs: path already exists")
	errNoProvider = errors.New("vfs: drive has no mounted provider")
)

// matchFilter reports whether name satisfies filter, a shell-style wildcard
// pattern ("" matches everything). Directory listings use the same
// conversion NotifyChangeEx uses for its watch patterns (spec.md §4.7,
// §4.8).
func matchFilter(name, filter string) bool {
	if filter == "" {
		return true
	}
	re := regexp.MustCompile(WildcardToRegex(filter))
	return re.MatchString(name)
}
