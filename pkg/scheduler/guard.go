//go:build linux

package scheduler

import (
	"runtime/debug"

	"github.com/ja7ad/taskscheduler/pkg/log"
)

// runGuarded invokes fn, recovering any panic so a single bad pass of a
// background loop logs and degrades rather than taking the whole kernel
// down with it (spec.md §7, "background-thread exception").
func runGuarded(loop string, fn func() bool) (ran bool) {
	defer func() {
		if r := recover(); r != nil {
			log.WithComponent("scheduler").Error().
				Str("loop", loop).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("background loop panicked; continuing degraded")
			ran = false
		}
	}()
	return fn()
}
