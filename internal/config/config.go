package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPort is used whenever the configured port is missing or invalid.
const DefaultPort = 20434

var ErrPort = errors.New("invalid port")

type Device struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    string `yaml:"port"` // kept as text; see PortOrDefault
}

type Grid struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type Capture struct {
	Source        string `yaml:"source"`  // "pattern" | "screen"
	Pattern       string `yaml:"pattern"` // "solid" | "gradient" | "sweep"
	Color         string `yaml:"color,omitempty"`
	Display       int    `yaml:"display"`
	NominalWidth  int    `yaml:"nominal_width"`
	FPS           int    `yaml:"fps"`
	WaitTimeoutMs int    `yaml:"wait_timeout_ms"`
}

type Loop struct {
	EagerReconnect bool `yaml:"eager_reconnect"`
	// MinFrameIntervalMs caps the send rate; zero disables the cap.
	MinFrameIntervalMs int `yaml:"min_frame_interval_ms"`
}

type MQTT struct {
	Broker   string `yaml:"broker,omitempty"` // host:port; empty disables
	Topic    string `yaml:"topic,omitempty"`
	ClientID string `yaml:"client_id,omitempty"`
}

type Status struct {
	Addr string `yaml:"addr"` // empty disables the HTTP status server
	MQTT MQTT   `yaml:"mqtt,omitempty"`
}

type Config struct {
	Device  Device  `yaml:"device"`
	Grid    Grid    `yaml:"grid"`
	Capture Capture `yaml:"capture"`
	Loop    Loop    `yaml:"loop"`
	Status  Status  `yaml:"status"`
}

func Default() *Config {
	return &Config{
		Device: Device{Enabled: true, Address: "127.0.0.1", Port: strconv.Itoa(DefaultPort)},
		Grid:   Grid{Width: 16, Height: 11},
		Capture: Capture{
			Source:        "pattern",
			Pattern:       "gradient",
			NominalWidth:  100,
			FPS:           30,
			WaitTimeoutMs: 100,
		},
		Status: Status{
			Addr: ":8080",
			MQTT: MQTT{Topic: "ambiled/diag", ClientID: "ambiled"},
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	// write aside and rename so a watcher never reads half a file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ParsePort accepts a decimal port in [0,65535]. Like scanf, trailing
// garbage after the leading number is ignored.
func ParsePort(s string) (int, error) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	p, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrPort, s)
	}
	if p < 0 || p > 65535 {
		return 0, fmt.Errorf("%w: %d out of range", ErrPort, p)
	}
	return p, nil
}

// PortOrDefault returns the configured port, or DefaultPort along with the
// parse error when it is unusable.
func (d Device) PortOrDefault() (int, error) {
	p, err := ParsePort(d.Port)
	if err != nil {
		return DefaultPort, err
	}
	return p, nil
}

// Changed lists the top-level setting names that differ between a and b.
func Changed(a, b *Config) []string {
	var out []string
	if a.Device.Enabled != b.Device.Enabled {
		out = append(out, "enabled")
	}
	if a.Device.Address != b.Device.Address {
		out = append(out, "address")
	}
	if a.Device.Port != b.Device.Port {
		out = append(out, "port")
	}
	if a.Grid != b.Grid {
		out = append(out, "grid")
	}
	if a.Capture != b.Capture {
		out = append(out, "capture")
	}
	if a.Loop != b.Loop {
		out = append(out, "loop")
	}
	return out
}
