package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/taskscheduler/pkg/scheduler/spec"
)

func TestParseExpression_Valid(t *testing.T) {
	e, err := ParseExpression("@every 30s")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, e.Interval)
}

func TestParseExpression_Invalid(t *testing.T) {
	_, err := ParseExpression("*/5 * * * *")
	assert.Error(t, err)
}

func TestTrigger_TickFiresDueTemplateAndAdvances(t *testing.T) {
	tr := New()
	now := time.Now()
	require.NoError(t, tr.AddTemplate("@every 10s", spec.JobSpec{Cmd: "echo hi"}, now))

	var fired []spec.JobSpec
	tr.Tick(now.Add(9*time.Second), func(s spec.JobSpec) { fired = append(fired, s) })
	assert.Empty(t, fired, "not due yet")

	tr.Tick(now.Add(11*time.Second), func(s spec.JobSpec) { fired = append(fired, s) })
	require.Len(t, fired, 1)
	assert.Equal(t, "echo hi", fired[0].Cmd)

	tpls := tr.Templates()
	require.Len(t, tpls, 1)
	assert.Equal(t, now.Add(21*time.Second), tpls[0].NextRun)
}

func TestTrigger_TickAdvancesEvenWhenCallbackRejects(t *testing.T) {
	tr := New()
	now := time.Now()
	require.NoError(t, tr.AddTemplate("@every 5s", spec.JobSpec{Cmd: "echo hi"}, now))

	calls := 0
	tr.Tick(now.Add(6*time.Second), func(s spec.JobSpec) {
		calls++
		// simulate the kernel rejecting the submission (e.g. queue full);
		// the trigger has no way to know and must still advance.
	})
	assert.Equal(t, 1, calls)

	tpls := tr.Templates()
	require.Len(t, tpls, 1)
	assert.Equal(t, now.Add(11*time.Second), tpls[0].NextRun)
}
