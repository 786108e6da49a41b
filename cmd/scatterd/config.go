package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scatter-engine/scatter/sdist"
	"github.com/scatter-engine/scatter/snode"
	"github.com/scatter-engine/scatter/sretrieve"
	"github.com/scatter-engine/scatter/switness"
)

// NodeConfig describes one known host in the static membership list.
type NodeConfig struct {
	ID         string  `yaml:"id"`
	Address    string  `yaml:"address"`
	Region     string  `yaml:"region"`
	Reputation float64 `yaml:"reputation"`
	Capacity   uint64  `yaml:"capacity"`
	LatencyMS  float64 `yaml:"latency_ms"`
}

// Config is the scatterd configuration file.
type Config struct {
	// Listen is the host-mode listen address: "host:port" for TCP or
	// "unix:///path.sock" for a local socket.
	Listen string `yaml:"listen"`

	// NodeID is this host's identity in host mode.
	NodeID string `yaml:"node_id"`

	// DataDir holds the distribution record store.
	DataDir string `yaml:"data_dir"`

	DataFragments         int           `yaml:"data_fragments"`
	ParityFragments       int           `yaml:"parity_fragments"`
	MinWitnesses          int           `yaml:"min_witnesses"`
	AvailabilityThreshold float64       `yaml:"availability_threshold"`
	RPCTimeout            time.Duration `yaml:"rpc_timeout"`

	// ShardSize is the chunk size files are cut into before distribution.
	ShardSize int `yaml:"shard_size"`

	// Nodes is the static membership list used by client commands.
	Nodes []NodeConfig `yaml:"nodes"`
}

// DefaultConfig mirrors the reference deployment values.
func DefaultConfig() Config {
	return Config{
		Listen:                ":9520",
		NodeID:                "scatterd-host",
		DataDir:               "./scatterd-data",
		DataFragments:         8,
		ParityFragments:       2,
		MinWitnesses:          3,
		AvailabilityThreshold: 0.6,
		RPCTimeout:            10 * time.Second,
		ShardSize:             4 << 20,
	}
}

// LoadConfig reads the YAML config at path, applying defaults for anything
// left unset.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// MembershipNodes converts the configured node list into snapshots for the
// selector, stamping LastSeen with the current time since a static list has
// no gossip to refresh it.
func (c Config) MembershipNodes() []snode.Node {
	now := time.Now()
	nodes := make([]snode.Node, len(c.Nodes))
	for i, n := range c.Nodes {
		nodes[i] = snode.Node{
			ID:         n.ID,
			Address:    n.Address,
			Reputation: n.Reputation,
			Capacity:   n.Capacity,
			LastSeen:   now,
			Region:     n.Region,
			LatencyMS:  n.LatencyMS,
		}
	}
	return nodes
}

func (c Config) distributionConfig() sdist.Config {
	return sdist.Config{
		DataFragments:   c.DataFragments,
		ParityFragments: c.ParityFragments,
		RPCTimeout:      c.RPCTimeout,
	}
}

func (c Config) witnessConfig() switness.Config {
	return switness.Config{
		MinWitnesses: c.MinWitnesses,
		RPCTimeout:   c.RPCTimeout,
	}
}

func (c Config) retrievalConfig() sretrieve.Config {
	return sretrieve.Config{
		DataFragments:         c.DataFragments,
		RPCTimeout:            c.RPCTimeout,
		AvailabilityThreshold: c.AvailabilityThreshold,
	}
}

// ResolveNode maps a node ID to its configured address.
func (c Config) ResolveNode(nodeID string) (string, error) {
	for _, n := range c.Nodes {
		if n.ID == nodeID {
			return n.Address, nil
		}
	}
	return "", fmt.Errorf("node %s not in configured membership", nodeID)
}
