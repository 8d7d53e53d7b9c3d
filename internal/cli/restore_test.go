package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmkoller/peridyn/internal/checkpoint"
)

// buildArchivedRun builds the ring config with a checkpoint at step 0 and
// returns the archive path and run ID.
func buildArchivedRun(t *testing.T) (string, string) {
	t.Helper()
	archivePath := filepath.Join(t.TempDir(), "runs.db")

	buf := &bytes.Buffer{}
	cmd := NewBuildCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{writeConfigFile(t, ringConfigDoc), "--archive", archivePath})
	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	runID, ok := data["run_id"].(string)
	require.True(t, ok)
	return archivePath, runID
}

func TestRestoreVerifiesACheckpoint(t *testing.T) {
	archivePath, runID := buildArchivedRun(t)

	buf := &bytes.Buffer{}
	cmd := NewRestoreCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{archivePath, "--run", runID, "--step", "0"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "✓ restored ring run "+runID+" step 0")
	assert.Contains(t, output, "partitions:   2")
	assert.Contains(t, output, "particles:    4")
	assert.Contains(t, output, "intact bonds: 8")
	assert.Contains(t, output, "max partners: 2")
}

func TestRestoreMissingRun(t *testing.T) {
	archivePath, _ := buildArchivedRun(t)

	buf := &bytes.Buffer{}
	cmd := NewRestoreCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{archivePath, "--run", "not-a-run"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "not found")
}

func TestRestoreDetectsMissingStream(t *testing.T) {
	archivePath, runID := buildArchivedRun(t)

	buf := &bytes.Buffer{}
	cmd := NewRestoreCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{archivePath, "--run", runID, "--step", "3"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "no stream for rank 0 at step 3")
}

func TestRestoreDetectsCorruptStream(t *testing.T) {
	archivePath, runID := buildArchivedRun(t)

	arch, err := checkpoint.OpenArchive(archivePath)
	require.NoError(t, err)
	require.NoError(t, arch.PutStream(context.Background(), runID, 0, 1, []byte("garbage")))
	require.NoError(t, arch.Close())

	buf := &bytes.Buffer{}
	cmd := NewRestoreCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{archivePath, "--run", runID, "--step", "0"})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "stream for rank 1 does not decode")
}
