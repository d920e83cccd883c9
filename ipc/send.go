package ipc

import (
	"context"
	"fmt"

	"github.com/jacobsa/reqtrace"

	"github.com/mobcore/emu/kernel"
)

// Send dispatches msg from th on session, wrapping the dispatch in a
// reqtrace span named after the opcode so a report tool can reconstruct the
// request/response shape of a session's traffic. The span closes as soon as
// Send returns; for an async opcode that means the span covers only the
// registration call, not the eventual notify (the notify fires from
// Kernel.FireNotify, outside any one Send).
func Send(ctx context.Context, k *kernel.Kernel, th *kernel.Thread, session *kernel.Session, msg *kernel.Message) {
	name := fmt.Sprintf("ipc.Send(opcode=%d)", msg.Opcode)

	var report reqtrace.ReportFunc
	if reqtrace.Enabled() {
		_, report = reqtrace.StartSpan(ctx, name)
	}

	k.Send(th, session, msg)

	if report != nil {
		report(nil)
	}
}
