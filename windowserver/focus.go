package windowserver

import "github.com/mobcore/emu/kernel"

// ScreenDeviceState tracks one screen's focus pointer into its
// window-group list, draw-order sorted (spec.md §4.9 "Focus").
type ScreenDeviceState struct {
	Groups     []Handle // in draw order
	FocusIndex int      // -1 if nothing currently holds focus
}

// recomputeFocus implements spec.md §4.9: "the first group in draw order
// whose can_receive_focus is set"; a change emits focus-lost to the former
// holder and focus-gained to the new one, posted onto c's event queue.
func recomputeFocus(k *kernel.Kernel, c *Client, sd *ScreenDeviceState) {
	newIndex := -1
	for i, h := range sd.Groups {
		w, ok := c.windows[h]
		if ok && w.CanReceiveFocus {
			newIndex = i
			break
		}
	}

	if newIndex == sd.FocusIndex {
		return
	}

	if sd.FocusIndex >= 0 && sd.FocusIndex < len(sd.Groups) {
		c.PostEvent(k, Event{Kind: "focus-lost", Window: sd.Groups[sd.FocusIndex]})
	}
	sd.FocusIndex = newIndex
	if newIndex >= 0 {
		c.PostEvent(k, Event{Kind: "focus-gained", Window: sd.Groups[newIndex]})
	}
}
