package mtr

import (
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unlimited cycles", func(c *Config) { c.Cycles = 0 }, false},
		{"negative cycles", func(c *Config) { c.Cycles = -1 }, true},
		{"size too small", func(c *Config) { c.PacketSize = MinPacketSize - 1 }, true},
		{"size too big", func(c *Config) { c.PacketSize = MaxPacketSize + 1 }, true},
		{"size upper bound", func(c *Config) { c.PacketSize = MaxPacketSize }, false},
		{"zero interval", func(c *Config) { c.Interval = 0 }, true},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
