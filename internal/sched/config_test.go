package sched

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"llsched/internal/whitelist"
)

func TestLoadDefaults(t *testing.T) {
	def := DefaultConfig()
	if got := Load(""); got.MaxConnections != def.MaxConnections || got.SlotsPerMaster != 8 {
		t.Errorf("Load(\"\") = %+v", got)
	}
	if got := Load(filepath.Join(t.TempDir(), "missing.yml")); got.SecondarySlots != def.SecondarySlots {
		t.Errorf("missing file = %+v", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	data := `secondary_slots: 2
max_connections: 4
slots_per_master: 6
min_conn_interval_us: 50000
min_lead_us: 200
local_ppm: 50
history_size: 16
whitelist:
  size: 4
  resolving_list_size: 2
  scan_policy: 1
  entries:
    - address: "C0:FF:EE:00:00:01"
      type: random
    - address: "00:11:22:33:44:55"
`
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Load(path)

	if cfg.SecondarySlots != 2 || cfg.MaxConnections != 4 || cfg.SlotsPerMaster != 6 {
		t.Errorf("pool config = %+v", cfg)
	}
	if cfg.MinConnIntervalUS != 50000 || cfg.MinLeadUS != 200 || cfg.LocalPPM != 50 || cfg.HistorySize != 16 {
		t.Errorf("timing config = %+v", cfg)
	}
	if len(cfg.Whitelist.Entries) != 2 || cfg.Whitelist.Entries[0].Type != "random" {
		t.Fatalf("whitelist entries = %+v", cfg.Whitelist.Entries)
	}

	f, err := cfg.Whitelist.BuildFilter()
	if err != nil {
		t.Fatal(err)
	}
	if f.Table.Capacity() != whitelist.Size(4, 2) {
		t.Errorf("table capacity = %d", f.Table.Capacity())
	}
	if f.ScanPolicy != whitelist.ScanWhitelistOnly {
		t.Errorf("scan policy = %d", f.ScanPolicy)
	}
	a, _ := whitelist.ParseAddress("C0:FF:EE:00:00:01")
	if !f.Table.Allows(a, whitelist.Random) {
		t.Error("configured random entry missing")
	}
	if f.Table.Allows(a, whitelist.Public) {
		t.Error("entry listed with the wrong type")
	}
}

func TestParseClamps(t *testing.T) {
	cfg, err := Parse([]byte("secondary_slots: 9\nmax_connections: -1\nmin_conn_interval_us: 1000\nmin_lead_us: 0\nlocal_ppm: 900\n"))
	if err != nil {
		t.Fatal(err)
	}
	def := DefaultConfig()
	if cfg.SecondarySlots != def.SecondarySlots {
		t.Errorf("secondary slots = %d", cfg.SecondarySlots)
	}
	if cfg.MaxConnections != def.MaxConnections {
		t.Errorf("max connections = %d", cfg.MaxConnections)
	}
	if cfg.MinConnIntervalUS != 7500 {
		t.Errorf("min interval = %d, want the 7.5ms floor", cfg.MinConnIntervalUS)
	}
	if cfg.MinLeadUS != def.MinLeadUS || cfg.LocalPPM != def.LocalPPM {
		t.Errorf("lead=%d ppm=%d", cfg.MinLeadUS, cfg.LocalPPM)
	}

	if _, err := Parse([]byte("max_connections: [1, 2")); err == nil {
		t.Error("malformed YAML accepted")
	}
}

func TestBuildFilterErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  WhitelistConfig
		want error
	}{
		{"bad address", WhitelistConfig{Size: 2, Entries: []WhitelistEntry{{Address: "nope"}}}, whitelist.ErrBadAddress},
		{"bad type", WhitelistConfig{Size: 2, Entries: []WhitelistEntry{{Address: "00:00:00:00:00:01", Type: "static"}}}, whitelist.ErrBadAddress},
		{"duplicate", WhitelistConfig{Size: 2, Entries: []WhitelistEntry{
			{Address: "00:00:00:00:00:01"}, {Address: "00:00:00:00:00:01", Type: "public"},
		}}, whitelist.ErrNoSpace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.cfg.BuildFilter(); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
