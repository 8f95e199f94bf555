package netio

import "github.com/reactorforge/evloop/channel"

// Loop is the subset of *loop.EventLoop the netio types depend on,
// expressed as an interface to avoid an import cycle between netio and
// loop (same pattern as timer.Loop).
type Loop interface {
	channel.Owner
	RunInLoop(func())
	QueueInLoop(func())
	AssertInLoopThread()
	IsInLoopThread() bool
}
