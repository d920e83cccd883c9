package kernel

import (
	"github.com/mobcore/emu/handle"
	"github.com/mobcore/emu/mem"
)

// Process is a guest process (spec.md §3).
//
// Destruction frees all owned handles and chunks; it happens when the last
// owned thread exits.
type Process struct {
	ID   ProcessID
	UID  [3]uint32
	Path string
	Args []string

	LocalChunk mem.ChunkID
	Handles    *handle.Table

	Threads  []*Thread
	Sessions map[SessionID]*Session
}

// PrimaryThread returns the first thread created for the process (the one
// Run() marks runnable), or nil if the process has no threads left.
func (p *Process) PrimaryThread() *Thread {
	if len(p.Threads) == 0 {
		return nil
	}
	return p.Threads[0]
}

// aliveThreadCount reports how many of the process's threads are not dead.
func (p *Process) aliveThreadCount() int {
	n := 0
	for _, t := range p.Threads {
		if t.State != ThreadDead {
			n++
		}
	}
	return n
}
