// Command evloop-timerdemo reproduces original_source/demo_timer.cpp's
// three timer scenarios: a one-shot runAfter, a repeating runEvery, and
// a runAfter that cancels the repeating timer before the loop quits.
package main

import (
	"os"
	"time"

	flashflags "github.com/agilira/flash-flags"

	"github.com/reactorforge/evloop/internal/logx"
	"github.com/reactorforge/evloop/loop"
)

func main() {
	fs := flashflags.New("evloop-timerdemo")
	runSeconds := fs.Float64("run-seconds", 10.0, "total seconds the demo loop runs before quitting")
	if err := fs.Parse(os.Args[1:]); err != nil {
		logx.Fatalf("flag parse: %v", err)
	}

	el, err := loop.New()
	if err != nil {
		logx.Fatalf("loop.New: %v", err)
	}
	defer el.Close()

	el.RunAfter(2500*time.Millisecond, func() {
		logx.Infof("runAfter 2.5s: this runs once")
	})

	everyID := el.RunEvery(1*time.Second, func() {
		logx.Infof("runEvery 1s: this runs every second")
	})

	el.RunAfter(5500*time.Millisecond, func() {
		logx.Infof("cancelling the periodic timer")
		el.CancelTimer(everyID)
	})

	el.RunAfter(time.Duration(*runSeconds*float64(time.Second)), func() {
		logx.Infof("stopping loop")
		el.Quit()
	})

	logx.Infof("starting EventLoop")
	el.Loop()
	logx.Infof("EventLoop stopped")
}
