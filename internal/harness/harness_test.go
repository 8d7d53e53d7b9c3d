package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmkoller/peridyn/internal/config"
)

func parseLineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(lineConfigDoc))
	require.NoError(t, err)
	return cfg
}

func TestRunLineBreakMigrate(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "line_break_migrate.yaml"))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)

	assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
	require.Len(t, result.Trace, 16)

	// One event per step per rank, ordered by step then rank.
	for i, ev := range result.Trace {
		assert.Equal(t, i/2, ev.Step)
		assert.Equal(t, i%2, ev.Rank)
	}

	assert.Equal(t, "ghosts", result.Trace[0].Op)
	assert.Equal(t, "nlocal=2 nghost=3", result.Trace[0].Note)
	assert.Equal(t, "build", result.Trace[2].Op)
	assert.Equal(t, "bonds=8 max_partner=2", result.Trace[2].Note)
	assert.Equal(t, "migrate", result.Trace[8].Op)
	assert.Equal(t, "sent=1 received=0", result.Trace[8].Note)
	assert.Equal(t, "sent=0 received=1", result.Trace[9].Note)
	assert.Equal(t, "restore", result.Trace[15].Op)
	assert.Equal(t, "restored=3", result.Trace[15].Note)
}

func TestRunReportsAssertionFailures(t *testing.T) {
	s := &Scenario{
		Name:        "bad_expectations",
		Description: "expectations the flow cannot satisfy",
		Steps:       []Step{{Op: "ghosts"}, {Op: "build"}},
		Assertions: []Assertion{
			{Type: AssertLiveBonds, Tag: 2, Count: 5},
			{Type: AssertOwner, Tag: 9, Rank: 0},
			{Type: AssertGlobalBonds, Count: 4},
		},
		Config: parseLineConfig(t),
	}

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "live_bonds: tag 2 holds 2")
	assert.Contains(t, result.Errors[1], "tag 9 is not owned")
}

func TestRunRejectsUnknownOps(t *testing.T) {
	s := &Scenario{
		Name:        "bad_op",
		Description: "an op the flow does not know",
		Steps:       []Step{{Op: "explode"}},
		Config:      parseLineConfig(t),
	}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown op "explode"`)
}

func TestRunRequiresALoadedConfig(t *testing.T) {
	s := &Scenario{
		Name:        "no_config",
		Description: "scenario assembled without loading a config",
		Steps:       []Step{{Op: "ghosts"}},
	}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no loaded config")
}
