// Package players renders player-driven server configuration from the
// deployment repo's players.yml: the whitelist, the max-players count
// in server.properties, and the KeepInvIndividual plugin list.
package players

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Conventional locations within the deployment working tree.
const (
	RosterFile        = "players.yml"
	WhitelistFile     = "whitelist.json"
	PropertiesFile    = "server.properties"
	KeepInventoryFile = "plugins/KeepInvIndividual/keepInvList.yml"
)

// ErrNoMaxPlayers means server.properties has no max-players key to
// rewrite. The renderer warns on it rather than aborting.
var ErrNoMaxPlayers = errors.New("max-players property not found in server.properties")

// Player is one roster entry in players.yml.
type Player struct {
	UUID          string `yaml:"uuid"`
	Name          string `yaml:"name"`
	KeepInventory bool   `yaml:"keepInventoryEnabled"`
}

// Roster is the players.yml document.
type Roster struct {
	Players []Player `yaml:"players"`
}

// LoadRoster reads players.yml. A missing file is an empty roster, not
// an error.
func LoadRoster(path string) (Roster, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Roster{}, nil
	}
	if err != nil {
		return Roster{}, errors.Wrap(err, "reading roster")
	}
	var r Roster
	if err := yaml.Unmarshal(b, &r); err != nil {
		return Roster{}, errors.Wrap(err, "parsing roster")
	}
	return r, nil
}

// WriteWhitelist generates whitelist.json from the roster.
func (r Roster) WriteWhitelist(path string) error {
	type entry struct {
		UUID string `json:"uuid"`
		Name string `json:"name"`
	}
	whitelist := make([]entry, 0, len(r.Players))
	for _, p := range r.Players {
		whitelist = append(whitelist, entry{UUID: p.UUID, Name: p.Name})
	}
	b, err := json.MarshalIndent(whitelist, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0644)
}

// UpdateMaxPlayers rewrites the max-players line of server.properties
// in place to the roster size. The rest of the file is untouched; a
// file without the key is left alone and reported as ErrNoMaxPlayers.
func (r Roster) UpdateMaxPlayers(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading server.properties")
	}
	lines := strings.Split(string(b), "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "max-players=") {
			lines[i] = fmt.Sprintf("max-players=%d", len(r.Players))
			return os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644)
		}
	}
	return ErrNoMaxPlayers
}

// WriteKeepInventory writes the plugin's list of UUIDs that keep their
// inventory on death, creating the plugin directory on demand.
func (r Roster) WriteKeepInventory(path string) error {
	keep := []string{}
	for _, p := range r.Players {
		if p.KeepInventory {
			keep = append(keep, p.UUID)
		}
	}
	doc := struct {
		Players []string `yaml:"players"`
	}{Players: keep}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Renderer applies the whole roster to a deployment working tree.
type Renderer struct {
	Dir    string
	Logger log.Logger
}

// Render loads the roster and regenerates the derived configuration.
// An empty roster renders nothing; a server.properties without the
// max-players key, or no server.properties at all, is warned about and
// skipped. Both follow the original tooling this replaces.
func (re Renderer) Render() error {
	roster, err := LoadRoster(filepath.Join(re.Dir, RosterFile))
	if err != nil {
		return err
	}
	if len(roster.Players) == 0 {
		re.Logger.Log("warning", "no players in roster, nothing rendered", "dir", re.Dir)
		return nil
	}

	if err := roster.WriteWhitelist(filepath.Join(re.Dir, WhitelistFile)); err != nil {
		return errors.Wrap(err, "writing whitelist")
	}

	err = roster.UpdateMaxPlayers(filepath.Join(re.Dir, PropertiesFile))
	switch {
	case err == ErrNoMaxPlayers, os.IsNotExist(errors.Cause(err)):
		re.Logger.Log("warning", err)
	case err != nil:
		return err
	}

	if err := roster.WriteKeepInventory(filepath.Join(re.Dir, KeepInventoryFile)); err != nil {
		return errors.Wrap(err, "writing keep-inventory list")
	}

	re.Logger.Log("event", "rendered", "players", len(roster.Players))
	return nil
}
