package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "log_level: ERROR\nstore_path: " + filepath.Join(dir, "store") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"sync", "groups"},
		{"sync", "members"},
		{"sync", "history"},
		{"sync", "monitored"},
		{"analyze"},
		{"enrich"},
		{"queue", "list"},
		{"queue", "deploy"},
		{"queue", "archive"},
		{"stats"},
		{"costs"},
		{"pair"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.NotNil(t, cmd.RunE, path)
	}
}

func TestStatsCommand(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "stats")
	require.NoError(t, err)

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.EqualValues(t, 75, stats["threshold"])
	assert.EqualValues(t, 0, stats["contacts"])
}

func TestQueueDeployRejectsUnknownChannel(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "queue", "deploy", "entry-1", "--channel", "fax")
	assert.Error(t, err)
	channelFlag = "dm"
}

func TestAnalyzeRequiresMessageID(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "analyze")
	assert.Error(t, err)
}
