package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSwarm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agents:
  - name: interpreter
    role: reads requirements
  - name: " coordinator "
  - name: cross-referencer
`), 0o644))

	sc, err := LoadSwarm(path)
	require.NoError(t, err)
	require.Len(t, sc.Agents, 3)
	require.Equal(t, "reads requirements", sc.Agents[0].Role)
	require.Equal(t, []string{"interpreter", "coordinator", "cross-referencer"}, sc.AgentNames())
}

func TestLoadSwarm_Missing(t *testing.T) {
	_, err := LoadSwarm(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "read swarm config")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseSwarm_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"malformed", "agents: [", "parse swarm config"},
		{"no agents", "agents: []", "lists no agents"},
		{"unnamed agent", "agents:\n  - role: x\n", "has no name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSwarm([]byte(tt.doc))
			require.ErrorContains(t, err, tt.want)
		})
	}
}
