package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndSkipsNil(t *testing.T) {
	sync := &stubJob{name: thresholdSyncJobName}
	sweep := &stubJob{name: lowStockSweepJobName}
	registry, err := NewRegistry(sync, nil)
	require.NoError(t, err)
	require.NoError(t, registry.Register(nil))
	require.NoError(t, registry.Register(sweep))

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, sync, jobs[0])
	assert.Same(t, sweep, jobs[1])

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "internal slice leaked")
}

func TestRegistryRejectsDuplicateAndUnnamedJobs(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: thresholdSyncJobName}, &stubJob{name: thresholdSyncJobName})
	require.Error(t, err)

	registry, err := NewRegistry()
	require.NoError(t, err)
	assert.Error(t, registry.Register(&stubJob{}))
	assert.Empty(t, registry.Jobs())
}
