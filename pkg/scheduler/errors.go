//go:build linux

package scheduler

import "errors"

// ErrCmdRejected is returned by Submit when the command fails the
// whitelist/blacklist admission filter.
var ErrCmdRejected = errors.New("scheduler: command rejected by whitelist/blacklist")

// ErrQueueFull is returned by Submit when the pending queue is already at
// max_queue_size.
var ErrQueueFull = errors.New("scheduler: pending queue full")
