package main

import (
	"flag"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/kstaniek/go-canfd-server/internal/socketcan"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("canfd-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func validConfig() *appConfig {
	c := defaultConfig()
	c.canIDs = []uint32{0x10}
	return c
}

func TestConfigValidate_OK(t *testing.T) {
	if err := validConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_EmptyIDs(t *testing.T) {
	for _, mode := range []socketcan.Mode{socketcan.ReadWrite, socketcan.ReadOnly} {
		c := defaultConfig()
		c.mode = mode
		if err := c.validate(); err == nil {
			t.Fatalf("%s: expected error for empty can-ids", mode)
		}
	}
	c := defaultConfig()
	c.mode = socketcan.WriteOnly
	if err := c.validate(); err != nil {
		t.Fatalf("write-only without ids: %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"emptyIf", func(c *appConfig) { c.canIf = "" }},
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badPolicy", func(c *appConfig) { c.hubPolicy = "x" }},
		{"badHubBuf", func(c *appConfig) { c.hubBuffer = 0 }},
		{"badHandshakeTO", func(c *appConfig) { c.handshakeTO = 0 }},
		{"badClientReadTO", func(c *appConfig) { c.clientReadTO = 0 }},
		{"badMaxClients", func(c *appConfig) { c.maxClients = -1 }},
		{"badMetricsInterval", func(c *appConfig) { c.logMetricsEvery = -time.Second }},
		{"mqttNoTopic", func(c *appConfig) { c.mqttBroker = "tcp://x:1883"; c.mqttTopic = "" }},
	}
	for _, tc := range tests {
		base := validConfig()
		tc.mod(base)
		if err := base.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestParseIDs(t *testing.T) {
	tests := []struct {
		in   string
		want []uint32
		err  bool
	}{
		{"", nil, false},
		{"0x100", []uint32{0x100}, false},
		{"0x01, 2 ,0x1FFFFFFF", []uint32{1, 2, 0x1FFFFFFF}, false},
		{"1,,3", []uint32{1, 3}, false},
		{"0xZZ", nil, true},
		{"-1", nil, true},
	}
	for _, tc := range tests {
		got, err := parseIDs(tc.in)
		if (err != nil) != tc.err {
			t.Fatalf("%q: err=%v want err=%v", tc.in, err, tc.err)
		}
		if !tc.err && !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%q: got %v want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseArgs(t *testing.T) {
	cfg, showVersion, err := parseArgs(newFlagSet(), []string{
		"-can-if", "vcan0", "-can-ids", "0x10,0x20", "-mode", "ro", "-brs", "-log-format", "console",
	})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if showVersion {
		t.Fatal("unexpected version request")
	}
	if cfg.canIf != "vcan0" || cfg.mode != socketcan.ReadOnly || !cfg.brs || cfg.logFormat != "console" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.canIDs, []uint32{0x10, 0x20}) {
		t.Fatalf("ids: %v", cfg.canIDs)
	}
}

func TestParseArgs_Version(t *testing.T) {
	cfg, showVersion, err := parseArgs(newFlagSet(), []string{"-version"})
	if err != nil || !showVersion || cfg != nil {
		t.Fatalf("got cfg=%v version=%v err=%v", cfg, showVersion, err)
	}
}

func TestParseArgs_Invalid(t *testing.T) {
	for _, args := range [][]string{
		{"-mode", "sideways"},
		{"-can-ids", "nope"},
		{"-hub-policy", "x"},
		{"-can-if", "vcan0"},
		{"-mode", "ro"},
	} {
		if _, _, err := parseArgs(newFlagSet(), args); err == nil {
			t.Fatalf("%v: expected error", args)
		}
	}
}
