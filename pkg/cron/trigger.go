// Package cron implements the periodic trigger: a table of (interval,
// JobSpec) templates, each re-submitted at its own cadence. Only the
// minimal "@every <N>s" grammar is supported; anything else fails to
// parse and the caller rejects the template at configuration time.
package cron

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/ja7ad/taskscheduler/pkg/scheduler/spec"
)

var everyRe = regexp.MustCompile(`^@every\s+([0-9]+)s$`)

// Expression is a parsed cron-like expression. Only "@every <N>s" is
// supported.
type Expression struct {
	Raw      string
	Interval time.Duration
}

// ParseExpression parses expr, returning an error for anything other than
// "@every <N>s".
func ParseExpression(expr string) (Expression, error) {
	m := everyRe.FindStringSubmatch(expr)
	if m == nil {
		return Expression{}, fmt.Errorf("cron: unsupported expression %q", expr)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return Expression{}, fmt.Errorf("cron: bad interval in %q: %w", expr, err)
	}
	return Expression{Raw: expr, Interval: time.Duration(n) * time.Second}, nil
}

// NextRun returns from+Interval.
func (e Expression) NextRun(from time.Time) time.Time {
	return from.Add(e.Interval)
}

// Template is one entry in the trigger's table.
type Template struct {
	Enabled  bool
	Cron     Expression
	Spec     spec.JobSpec
	NextRun  time.Time
}

// SubmitFunc is the callback the trigger re-submits specs through. It is a
// single-producer function reference; no queueing middleware sits between
// Tick and the Kernel's own submit path.
type SubmitFunc func(spec.JobSpec)

// Trigger holds a set of templates and fires due ones on each Tick.
type Trigger struct {
	mu        sync.Mutex
	templates []Template
}

// New returns an empty Trigger.
func New() *Trigger {
	return &Trigger{}
}

// AddTemplate parses expr and, on success, adds a new enabled template for
// spec due to first fire at now+interval. Returns an error (and adds
// nothing) if expr fails to parse.
func (t *Trigger) AddTemplate(expr string, jobSpec spec.JobSpec, now time.Time) error {
	ce, err := ParseExpression(expr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.templates = append(t.templates, Template{
		Enabled: true,
		Cron:    ce,
		Spec:    jobSpec,
		NextRun: ce.NextRun(now),
	})
	return nil
}

// Tick calls cb for every enabled template whose NextRun has elapsed, and
// sets that template's NextRun to now plus its interval — even if cb rejects
// the job (e.g. the kernel's max_queue_size is hit); that tick is simply
// skipped for that template. This mirrors the reference scheduler and is
// documented as intentional in SPEC_FULL.md §9.2.
func (t *Trigger) Tick(now time.Time, cb SubmitFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.templates {
		tpl := &t.templates[i]
		if !tpl.Enabled {
			continue
		}
		if now.Before(tpl.NextRun) {
			continue
		}
		cb(tpl.Spec)
		tpl.NextRun = tpl.Cron.NextRun(now)
	}
}

// Templates returns a snapshot copy of the current template table, for
// tests and introspection.
func (t *Trigger) Templates() []Template {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Template, len(t.templates))
	copy(out, t.templates)
	return out
}
