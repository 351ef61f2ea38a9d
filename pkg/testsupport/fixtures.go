package testsupport

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-connector-cache/entity"
)

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
func LoadFixtureJSON(t *testing.T, path string, dest any) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// Console groups the entities of a connector fixture.
type Console struct {
	Assets    []entity.Asset              `json:"assets"`
	Policies  []entity.PolicyDefinition   `json:"policies"`
	Contracts []entity.ContractDefinition `json:"contracts"`
}

// Entities flattens the fixture in kind order: assets, policies, contracts.
func (c Console) Entities() []entity.Entity {
	out := make([]entity.Entity, 0, len(c.Assets)+len(c.Policies)+len(c.Contracts))
	for _, a := range c.Assets {
		out = append(out, a)
	}
	for _, p := range c.Policies {
		out = append(out, p)
	}
	for _, ct := range c.Contracts {
		out = append(out, ct)
	}
	return out
}

//go:embed testdata/console.json
var consoleFixture []byte

// ConsoleFixture returns the bundled connector fixture.
func ConsoleFixture(t testing.TB) Console {
	t.Helper()

	var c Console
	if err := json.Unmarshal(consoleFixture, &c); err != nil {
		t.Fatalf("failed to unmarshal console fixture: %v", err)
	}
	return c
}

// LoadConsole reads a connector fixture from path.
func LoadConsole(t *testing.T, path string) Console {
	t.Helper()

	var c Console
	LoadFixtureJSON(t, path, &c)
	return c
}
