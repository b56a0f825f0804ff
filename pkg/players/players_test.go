package players

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testRoster = `players:
  - uuid: 069a79f4-44e9-4726-a5be-fca90e38aaf5
    name: Notch
    keepInventoryEnabled: true
  - uuid: 853c80ef-3c37-49fd-aa49-938b674adae6
    name: jeb_
`

func writeTree(t *testing.T, roster, properties string) string {
	t.Helper()
	dir := t.TempDir()
	if roster != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, RosterFile), []byte(roster), 0644))
	}
	if properties != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, PropertiesFile), []byte(properties), 0644))
	}
	return dir
}

func TestLoadRoster(t *testing.T) {
	dir := writeTree(t, testRoster, "")
	roster, err := LoadRoster(filepath.Join(dir, RosterFile))
	require.NoError(t, err)
	require.Len(t, roster.Players, 2)
	assert.Equal(t, "Notch", roster.Players[0].Name)
	assert.True(t, roster.Players[0].KeepInventory)
	assert.False(t, roster.Players[1].KeepInventory)
}

func TestLoadRosterMissingFileIsEmpty(t *testing.T) {
	roster, err := LoadRoster(filepath.Join(t.TempDir(), RosterFile))
	require.NoError(t, err)
	assert.Empty(t, roster.Players)
}

func TestRenderWritesWhitelist(t *testing.T) {
	dir := writeTree(t, testRoster, "motd=hello\nmax-players=3\nonline-mode=true\n")
	require.NoError(t, Renderer{Dir: dir, Logger: log.NewNopLogger()}.Render())

	b, err := os.ReadFile(filepath.Join(dir, WhitelistFile))
	require.NoError(t, err)
	var whitelist []struct {
		UUID string `json:"uuid"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(b, &whitelist))
	require.Len(t, whitelist, 2)
	assert.Equal(t, "069a79f4-44e9-4726-a5be-fca90e38aaf5", whitelist[0].UUID)
	assert.Equal(t, "jeb_", whitelist[1].Name)
}

func TestRenderRewritesMaxPlayers(t *testing.T) {
	dir := writeTree(t, testRoster, "motd=hello\nmax-players=3\nonline-mode=true\n")
	require.NoError(t, Renderer{Dir: dir, Logger: log.NewNopLogger()}.Render())

	b, err := os.ReadFile(filepath.Join(dir, PropertiesFile))
	require.NoError(t, err)
	assert.Equal(t, "motd=hello\nmax-players=2\nonline-mode=true\n", string(b))
}

func TestRenderWritesKeepInventoryList(t *testing.T) {
	dir := writeTree(t, testRoster, "max-players=3\n")
	require.NoError(t, Renderer{Dir: dir, Logger: log.NewNopLogger()}.Render())

	b, err := os.ReadFile(filepath.Join(dir, KeepInventoryFile))
	require.NoError(t, err)
	var doc struct {
		Players []string `yaml:"players"`
	}
	require.NoError(t, yaml.Unmarshal(b, &doc))
	assert.Equal(t, []string{"069a79f4-44e9-4726-a5be-fca90e38aaf5"}, doc.Players)
}

func TestRenderEmptyRosterDoesNothing(t *testing.T) {
	dir := writeTree(t, "", "max-players=3\n")
	require.NoError(t, Renderer{Dir: dir, Logger: log.NewNopLogger()}.Render())

	_, err := os.Stat(filepath.Join(dir, WhitelistFile))
	assert.True(t, os.IsNotExist(err))
}

func TestRenderToleratesMissingMaxPlayers(t *testing.T) {
	dir := writeTree(t, testRoster, "motd=hello\n")
	require.NoError(t, Renderer{Dir: dir, Logger: log.NewNopLogger()}.Render())

	// Untouched: the key is not added when absent.
	b, err := os.ReadFile(filepath.Join(dir, PropertiesFile))
	require.NoError(t, err)
	assert.Equal(t, "motd=hello\n", string(b))
}

func TestRenderToleratesMissingProperties(t *testing.T) {
	dir := writeTree(t, testRoster, "")
	require.NoError(t, Renderer{Dir: dir, Logger: log.NewNopLogger()}.Render())
}
