package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Agent is one entry of the swarm configuration file.
type Agent struct {
	Name string `yaml:"name"`
	Role string `yaml:"role,omitempty"`
}

// SwarmConfig is the agent list shared with the swarm framework.
//
//	agents:
//	  - name: interpreter
//	  - name: coordinator
//	  - name: cross-referencer
type SwarmConfig struct {
	Agents []Agent `yaml:"agents"`
}

// LoadSwarm reads and parses the swarm configuration file at path.
func LoadSwarm(path string) (*SwarmConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read swarm config: %w", err)
	}
	return ParseSwarm(data)
}

// ParseSwarm decodes a swarm configuration document.
func ParseSwarm(data []byte) (*SwarmConfig, error) {
	var sc SwarmConfig
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("config: parse swarm config: %w", err)
	}
	for i, a := range sc.Agents {
		if strings.TrimSpace(a.Name) == "" {
			return nil, fmt.Errorf("config: swarm agent %d has no name", i)
		}
	}
	if len(sc.Agents) == 0 {
		return nil, errors.New("config: swarm config lists no agents")
	}
	return &sc, nil
}

// AgentNames returns the agent names in file order.
func (s *SwarmConfig) AgentNames() []string {
	names := make([]string, len(s.Agents))
	for i, a := range s.Agents {
		names[i] = strings.TrimSpace(a.Name)
	}
	return names
}
