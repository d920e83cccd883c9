package fileserver

import (
	"regexp"
	"sync"

	"github.com/mobcore/emu/kernel"
	"github.com/mobcore/emu/status"
	"github.com/mobcore/emu/vfs"
)

// ChangeKind is a bitmask of the mutation kinds NotifyChange/NotifyChangeEx
// can watch for (spec.md §4.8).
type ChangeKind uint32

const (
	ChangeFile ChangeKind = 1 << iota
	ChangeDir
	ChangeAttributes
	ChangeAll = ChangeFile | ChangeDir | ChangeAttributes
)

// notifyEntry is one registered watch (spec.md §4.8 "notify entries").
type notifyEntry struct {
	pattern *regexp.Regexp
	kinds   ChangeKind
	pending *kernel.PendingRequest
}

// notifyRegistry holds every live notify entry across all sessions.
type notifyRegistry struct {
	mu      sync.Mutex
	entries []*notifyEntry
}

func newNotifyRegistry() *notifyRegistry {
	return &notifyRegistry{}
}

// register converts pattern from shell wildcard form and records a watch
// that will be fired by the next matching mutation (spec.md §4.8
// NotifyChange/NotifyChangeEx).
func (r *notifyRegistry) register(pattern string, kinds ChangeKind, pr *kernel.PendingRequest) {
	re := regexp.MustCompile(vfs.WildcardToRegex(pattern))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, &notifyEntry{pattern: re, kinds: kinds, pending: pr})
}

// fire completes and removes every entry whose pattern matches path and
// whose kind mask intersects kind, per spec.md §4.8: "Subsequent filesystem
// mutations with matching kind and pattern complete all matching notify
// entries with status 0 and remove them."
func (r *notifyRegistry) fire(k *kernel.Kernel, path vfs.Path, kind ChangeKind) {
	r.mu.Lock()
	var fired []*notifyEntry
	remaining := r.entries[:0]
	for _, e := range r.entries {
		if e.kinds&kind != 0 && e.pattern.MatchString(string(path)) {
			fired = append(fired, e)
		} else {
			remaining = append(remaining, e)
		}
	}
	r.entries = remaining
	r.mu.Unlock()

	for _, e := range fired {
		k.FireNotify(e.pending, status.None)
	}
}
