package windowserver

import (
	"sort"

	"github.com/mobcore/emu/kernel"
	"github.com/mobcore/emu/status"
)

// Event is one entry in a client's event queue (spec.md §4.9 "Event
// delivery").
type Event struct {
	Kind    string
	Window  Handle
	Payload []byte
}

// RedrawEvent is one pending redraw, keyed so the window server can
// explicitly dequeue it when a synchronous redraw supersedes it (spec.md §5
// "deque_redraw(id)").
type RedrawEvent struct {
	ID       uint32
	Window   Handle
	Priority uint32
	seq      int // enqueue order, breaks priority ties (spec.md §4.9)
}

// Client is one session's window-server state: its object arena, its event
// and redraw queues, and the notify hooks EventReady/RedrawReady register
// (spec.md §4.9).
type Client struct {
	Session *kernel.Session

	Root    Handle
	windows map[Handle]*Window
	next    Handle

	Events  []Event
	Redraws []RedrawEvent
	redrawSeq int

	eventNotify  *kernel.PendingRequest
	redrawNotify *kernel.PendingRequest
}

// newClient creates a client with a freshly allocated root window.
func newClient(sess *kernel.Session) *Client {
	c := &Client{Session: sess, windows: make(map[Handle]*Window), next: FirstHandle}
	c.Root = c.alloc(&Window{Kind: KindRoot, Visible: true})
	return c
}

// alloc assigns w the next dense handle and stores it in the arena
// (spec.md §4.9 "Handle allocation").
func (c *Client) alloc(w *Window) Handle {
	h := c.next
	c.next++
	w.Handle = h
	c.windows[h] = w
	return h
}

// Window returns the window at h, or ok=false if h is out of range -- a
// protocol error per spec.md §4.9.
func (c *Client) Window(h Handle) (*Window, bool) {
	w, ok := c.windows[h]
	return w, ok
}

// CreateWindow allocates a new window under parent.
func (c *Client) CreateWindow(kind Kind, parent Handle, priority Priority) (Handle, bool) {
	p, ok := c.windows[parent]
	if !ok {
		return 0, false
	}
	w := &Window{Kind: kind, Parent: parent, Priority: priority}
	h := c.alloc(w)
	p.Children = append(p.Children, h)
	return h, true
}

// PostEvent appends to the event queue, firing the pending EventReady
// notify if one is registered (spec.md §4.9 "Event delivery").
func (c *Client) PostEvent(k *kernel.Kernel, ev Event) {
	c.Events = append(c.Events, ev)
	if c.eventNotify != nil {
		pr := c.eventNotify
		c.eventNotify = nil
		k.FireNotify(pr, status.None)
	}
}

// PostRedraw inserts a redraw event in priority order (descending, ties
// broken by enqueue order), firing RedrawReady if pending (spec.md §4.9
// "Redraw priority").
func (c *Client) PostRedraw(k *kernel.Kernel, win Handle) uint32 {
	c.redrawSeq++
	ev := RedrawEvent{ID: uint32(c.redrawSeq), Window: win, Priority: priorityOf(c.windows, win), seq: c.redrawSeq}
	c.Redraws = append(c.Redraws, ev)
	sort.SliceStable(c.Redraws, func(i, j int) bool {
		if c.Redraws[i].Priority != c.Redraws[j].Priority {
			return c.Redraws[i].Priority > c.Redraws[j].Priority
		}
		return c.Redraws[i].seq < c.Redraws[j].seq
	})

	if c.redrawNotify != nil {
		pr := c.redrawNotify
		c.redrawNotify = nil
		k.FireNotify(pr, status.None)
	}
	return ev.ID
}

// DequeueRedraw removes a pending redraw by id, for when a synchronous
// redraw supersedes it (spec.md §5 "Cancellation").
func (c *Client) DequeueRedraw(id uint32) {
	for i, r := range c.Redraws {
		if r.ID == id {
			c.Redraws = append(c.Redraws[:i], c.Redraws[i+1:]...)
			return
		}
	}
}
