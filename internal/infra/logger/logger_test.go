package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubModulePathMatchesOutput(t *testing.T) {
	var buf bytes.Buffer
	root := NewWithWriter("nexus", "DEBUG", &buf)

	sub, ok := root.Sub("Sync").Sub("Scheduler").(*Logger)
	require.True(t, ok)
	assert.Equal(t, "nexus/Sync/Scheduler", sub.Module())

	sub.Infof("tick %d", 1)
	assert.Contains(t, buf.String(), "[nexus/Sync/Scheduler]")
	assert.Contains(t, buf.String(), "tick 1")
	assert.NotContains(t, buf.String(), "nexus.Sync")
}

func TestLevelFiltersOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("nexus", "WARN", &buf)

	l.Infof("quiet")
	assert.Zero(t, buf.Len())
	l.Warnf("loud")
	assert.Contains(t, buf.String(), "loud")
}
