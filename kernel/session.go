package kernel

// Session is an authenticated connection from a process to a named server
// (spec.md §3). State carries session-local server state, such as the file
// server's per-session working directory; servers type-assert it to the
// shape they installed in their connect handler.
type Session struct {
	ID      SessionID
	Process *Process
	Server  *Server
	State   any
}
