package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "biobroker", cmd.Use)
	assert.True(t, cmd.SilenceUsage)

	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "ingest")
	assert.Contains(t, names, "export")
	assert.Contains(t, names, "version")
}

func TestIngestCommandFlags(t *testing.T) {
	cmd := NewIngestCommand()

	require.NotNil(t, cmd.Flags().Lookup("workbook"))
	require.NotNil(t, cmd.Flags().Lookup("submission"))
	require.NotNil(t, cmd.Flags().Lookup("dry-run"))
	assert.Equal(t, "false", cmd.Flags().Lookup("dry-run").DefValue)
}

func TestExportCommandFlags(t *testing.T) {
	cmd := NewExportCommand()

	require.NotNil(t, cmd.Flags().Lookup("submission"))
	require.NotNil(t, cmd.Flags().Lookup("process"))
	require.NotNil(t, cmd.Flags().Lookup("bundle"))
	require.NotNil(t, cmd.Flags().Lookup("update"))
	assert.Equal(t, "8008", cmd.Flags().Lookup("creator-uid").DefValue)
}
