package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/go-canfd-server/internal/socketcan"
)

const envPrefix = "CANFD_SERVER_"

type appConfig struct {
	canIf           string
	canIDs          []uint32
	mode            socketcan.Mode
	brs             bool
	listenAddr      string
	logFormat       string
	logLevel        string
	metricsAddr     string
	hubBuffer       int
	hubPolicy       string
	logMetricsEvery time.Duration
	maxClients      int
	handshakeTO     time.Duration
	clientReadTO    time.Duration
	mdnsEnable      bool
	mdnsName        string
	mqttBroker      string
	mqttTopic       string
	mqttClientID    string
}

func defaultConfig() *appConfig {
	return &appConfig{
		canIf:        "can0",
		mode:         socketcan.ReadWrite,
		listenAddr:   ":20000",
		logFormat:    "text",
		logLevel:     "info",
		hubBuffer:    512,
		hubPolicy:    "drop",
		handshakeTO:  3 * time.Second,
		clientReadTO: 60 * time.Second,
		mqttTopic:    "canfd",
		mqttClientID: "canfd-server",
	}
}

func parseFlags() (*appConfig, bool) {
	cfg, showVersion, err := parseArgs(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return nil, showVersion
	}
	return cfg, showVersion
}

// parseArgs fills a config from args, then environment, then validates it.
func parseArgs(fs *flag.FlagSet, args []string) (*appConfig, bool, error) {
	cfg := defaultConfig()
	var ids, mode string
	fs.StringVar(&cfg.canIf, "can-if", cfg.canIf, "SocketCAN interface")
	fs.StringVar(&ids, "can-ids", "", "Comma separated receive IDs (hex 0x.. or decimal); each admits id|0x05. Required unless -mode wo")
	fs.StringVar(&mode, "mode", "rw", "Channel mode: rw|ro|wo")
	fs.BoolVar(&cfg.brs, "brs", false, "Transmit every frame with bit rate switching")
	fs.StringVar(&cfg.listenAddr, "listen", cfg.listenAddr, "TCP listen address")
	fs.StringVar(&cfg.logFormat, "log-format", cfg.logFormat, "Log format: text|json|console")
	fs.StringVar(&cfg.logLevel, "log-level", cfg.logLevel, "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	fs.IntVar(&cfg.hubBuffer, "hub-buffer", cfg.hubBuffer, "Per-client hub buffer (frames)")
	fs.StringVar(&cfg.hubPolicy, "hub-policy", cfg.hubPolicy, "Backpressure policy: drop|kick")
	fs.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", 0, "If >0, periodically log metrics counters")
	fs.IntVar(&cfg.maxClients, "max-clients", 0, "Maximum simultaneous TCP clients (0 = unlimited)")
	fs.DurationVar(&cfg.handshakeTO, "handshake-timeout", cfg.handshakeTO, "Client handshake timeout")
	fs.DurationVar(&cfg.clientReadTO, "client-read-timeout", cfg.clientReadTO, "Per-connection read deadline")
	fs.BoolVar(&cfg.mdnsEnable, "mdns-enable", false, "Enable mDNS advertisement")
	fs.StringVar(&cfg.mdnsName, "mdns-name", "", "mDNS instance name (default canfd-server-<hostname>)")
	fs.StringVar(&cfg.mqttBroker, "mqtt-broker", "", "MQTT broker URL (e.g., tcp://localhost:1883); empty disables")
	fs.StringVar(&cfg.mqttTopic, "mqtt-topic", cfg.mqttTopic, "MQTT base topic")
	fs.StringVar(&cfg.mqttClientID, "mqtt-client-id", cfg.mqttClientID, "MQTT client ID")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	if *showVersion {
		return nil, true, nil
	}

	// Flags set explicitly win over the environment.
	set := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = struct{}{} })
	if _, ok := set["can-ids"]; !ok {
		if v, ok := lookupEnv("can-ids"); ok {
			ids = v
		}
	}
	if _, ok := set["mode"]; !ok {
		if v, ok := lookupEnv("mode"); ok {
			mode = v
		}
	}
	if err := applyEnvOverrides(cfg, set); err != nil {
		return nil, false, fmt.Errorf("environment override: %w", err)
	}
	var err error
	if cfg.canIDs, err = parseIDs(ids); err != nil {
		return nil, false, err
	}
	if cfg.mode, err = socketcan.ParseMode(mode); err != nil {
		return nil, false, err
	}
	if err := cfg.validate(); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// parseIDs parses "0x100, 0x200,17" into IDs. Empty input yields nil.
func parseIDs(s string) ([]uint32, error) {
	var ids []uint32
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid can-ids entry %q: %w", part, err)
		}
		ids = append(ids, uint32(v))
	}
	return ids, nil
}

// validate checks values and ranges only; it opens nothing.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.canIf == "" {
		return errors.New("can-if must not be empty")
	}
	switch c.logFormat {
	case "text", "json", "console":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.hubPolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	if len(c.canIDs) == 0 && c.mode.CanRead() {
		return fmt.Errorf("can-ids must not be empty in %s mode: no filter would admit any frame", c.mode)
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	}
	if c.handshakeTO <= 0 {
		return errors.New("handshake-timeout must be > 0")
	}
	if c.clientReadTO <= 0 {
		return errors.New("client-read-timeout must be > 0")
	}
	if c.maxClients < 0 {
		return errors.New("max-clients must be >= 0")
	}
	if c.logMetricsEvery < 0 {
		return errors.New("log-metrics-interval must be >= 0")
	}
	if c.mqttBroker != "" && c.mqttTopic == "" {
		return errors.New("mqtt-topic is required with mqtt-broker")
	}
	return nil
}

// envName maps a flag name to its environment variable: can-if -> CANFD_SERVER_CAN_IF.
func envName(flagName string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func lookupEnv(flagName string) (string, bool) {
	v, ok := os.LookupEnv(envName(flagName))
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// applyEnvOverrides copies CANFD_SERVER_* variables into c for every flag not
// in set. Empty values are ignored; the first parse error is returned.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	fail := func(name string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("invalid %s: %w", envName(name), err)
		}
	}
	str := func(name string, dst *string) {
		if _, ok := set[name]; ok {
			return
		}
		if v, ok := lookupEnv(name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int, lo int) {
		if _, ok := set[name]; ok {
			return
		}
		if v, ok := lookupEnv(name); ok {
			n, err := strconv.Atoi(v)
			switch {
			case err != nil:
				fail(name, err)
			case n < lo:
				fail(name, fmt.Errorf("%d below %d", n, lo))
			default:
				*dst = n
			}
		}
	}
	dur := func(name string, dst *time.Duration) {
		if _, ok := set[name]; ok {
			return
		}
		if v, ok := lookupEnv(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				fail(name, err)
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if _, ok := set[name]; ok {
			return
		}
		if v, ok := lookupEnv(name); ok {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				*dst = true
			case "0", "false", "no", "off":
				*dst = false
			default:
				fail(name, fmt.Errorf("not a boolean: %q", v))
			}
		}
	}

	str("can-if", &c.canIf)
	boolean("brs", &c.brs)
	str("listen", &c.listenAddr)
	str("log-format", &c.logFormat)
	str("log-level", &c.logLevel)
	str("metrics-addr", &c.metricsAddr)
	num("hub-buffer", &c.hubBuffer, 1)
	str("hub-policy", &c.hubPolicy)
	dur("log-metrics-interval", &c.logMetricsEvery)
	num("max-clients", &c.maxClients, 0)
	dur("handshake-timeout", &c.handshakeTO)
	dur("client-read-timeout", &c.clientReadTO)
	boolean("mdns-enable", &c.mdnsEnable)
	str("mdns-name", &c.mdnsName)
	str("mqtt-broker", &c.mqttBroker)
	str("mqtt-topic", &c.mqttTopic)
	str("mqtt-client-id", &c.mqttClientID)
	return firstErr
}
