package sched

import (
	"fmt"
	"os"

	yaml "github.com/goccy/go-yaml"

	"llsched/internal/whitelist"
)

// Config mirrors config.yml.
type Config struct {
	SecondarySlots    int             `yaml:"secondary_slots"`      // 5 (one per secondary role)
	MaxConnections    int             `yaml:"max_connections"`      // 3
	SlotsPerMaster    int             `yaml:"slots_per_master"`     // 8 (625us slots)
	MinConnIntervalUS int             `yaml:"min_conn_interval_us"` // 30000
	MinLeadUS         int             `yaml:"min_lead_us"`          // 150
	LocalPPM          int             `yaml:"local_ppm"`            // 40
	HistorySize       int             `yaml:"history_size"`         // 64
	Whitelist         WhitelistConfig `yaml:"whitelist"`
}

// WhitelistConfig sizes the whitelist and lists its initial entries.
type WhitelistConfig struct {
	Size              int              `yaml:"size"`                // 8
	ResolvingListSize int              `yaml:"resolving_list_size"` // 0
	AdvPolicy         uint8            `yaml:"adv_policy"`
	ScanPolicy        uint8            `yaml:"scan_policy"`
	InitPolicy        uint8            `yaml:"init_policy"`
	Entries           []WhitelistEntry `yaml:"entries"`
}

// WhitelistEntry is one configured peer.
type WhitelistEntry struct {
	Address string `yaml:"address"`
	Type    string `yaml:"type"` // public or random
}

// The shortest connection interval the standard allows.
const minConnIntervalUS = 7500

// If the config file is not found, we use default values
func DefaultConfig() Config {
	return Config{
		SecondarySlots:    len(secondaryOrder),
		MaxConnections:    3,
		SlotsPerMaster:    8,
		MinConnIntervalUS: 30000,
		MinLeadUS:         150,
		LocalPPM:          40,
		HistorySize:       64,
		Whitelist: WhitelistConfig{
			Size: 8,
		},
	}
}

// Load reads YAML and overrides defaults; empty path = defaults only
func Load(path string) Config {
	cfg := DefaultConfig()

	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	if parsed, err := Parse(data); err == nil {
		cfg = parsed
	}
	return cfg
}

// Parse decodes YAML over the defaults and clamps the result.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse config: %w", err)
	}
	cfg.clamp()
	return cfg, nil
}

// sanity clamps
func (c *Config) clamp() {
	def := DefaultConfig()
	if c.SecondarySlots <= 0 || c.SecondarySlots > len(secondaryOrder) {
		c.SecondarySlots = def.SecondarySlots
	}
	if c.MaxConnections <= 0 || c.SecondarySlots+c.MaxConnections > MaxTasks {
		c.MaxConnections = def.MaxConnections
	}
	if c.SlotsPerMaster <= 0 {
		c.SlotsPerMaster = def.SlotsPerMaster
	}
	if c.MinConnIntervalUS < minConnIntervalUS {
		c.MinConnIntervalUS = minConnIntervalUS
	}
	if c.MinLeadUS <= 0 {
		c.MinLeadUS = def.MinLeadUS
	}
	if c.LocalPPM <= 0 || c.LocalPPM > 500 {
		c.LocalPPM = def.LocalPPM
	}
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	if c.Whitelist.Size <= 0 {
		c.Whitelist.Size = def.Whitelist.Size
	}
	if c.Whitelist.ResolvingListSize < 0 {
		c.Whitelist.ResolvingListSize = 0
	}
}

// BuildFilter creates the whitelist table and filter described by c.
func (c WhitelistConfig) BuildFilter() (*whitelist.Filter, error) {
	tbl := whitelist.NewSized(c.Size, c.ResolvingListSize)
	for _, e := range c.Entries {
		addr, err := whitelist.ParseAddress(e.Address)
		if err != nil {
			return nil, err
		}
		typ, err := whitelist.ParseAddrType(e.Type)
		if err != nil {
			return nil, err
		}
		if err := tbl.Add(addr, typ, whitelist.UseEntry); err != nil {
			return nil, fmt.Errorf("whitelist entry %s: %w", e.Address, err)
		}
	}
	return &whitelist.Filter{
		Table:      tbl,
		AdvPolicy:  whitelist.AdvPolicy(c.AdvPolicy),
		ScanPolicy: whitelist.ScanPolicy(c.ScanPolicy),
		InitPolicy: whitelist.InitPolicy(c.InitPolicy),
	}, nil
}
