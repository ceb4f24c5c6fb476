// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Application configuration: YAML file, defaults, validation and a
// thread-safe store with reload propagation.

package control

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-netmap/api"
	"github.com/momentics/hioload-netmap/core/netmap"
)

// Config describes which interface and rings to open and how to run them.
type Config struct {
	Interface  string   `yaml:"interface"`
	DevicePath string   `yaml:"device_path"`
	RxRings    []uint32 `yaml:"rx_rings"`
	TxRings    []uint32 `yaml:"tx_rings"`
	LinkCheck  bool     `yaml:"link_check"`

	// ReactorCPU pins the reactor thread; -1 leaves it unpinned.
	ReactorCPU int `yaml:"reactor_cpu"`
	MaxEvents  int `yaml:"max_events"`

	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns a configuration using ring 0 of each direction.
func DefaultConfig() Config {
	return Config{
		DevicePath: netmap.DefaultDevicePath,
		RxRings:    []uint32{0},
		TxRings:    []uint32{0},
		ReactorCPU: -1,
		MaxEvents:  128,
		LogLevel:   "info",
	}
}

// LoadConfig reads a YAML file over DefaultConfig and validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field consistency. Ring indices are checked against the
// kernel's counts only when the session is opened.
func (c Config) Validate() error {
	if _, err := netmap.EncodeName(c.Interface); err != nil {
		return err
	}
	if c.DevicePath == "" {
		return api.NewError(api.ErrCodeInvalidArgument, "device_path is empty")
	}
	if len(c.RxRings)+len(c.TxRings) == 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "no rings selected")
	}
	if c.MaxEvents <= 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "max_events must be positive").
			WithContext("max_events", c.MaxEvents)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return api.Wrap(api.ErrCodeInvalidArgument, "log_level", err)
	}
	return nil
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) { return yaml.Marshal(c) }

// ConfigStore holds the active Config and notifies listeners on change.
type ConfigStore struct {
	mu        sync.RWMutex
	config    Config
	listeners []func(Config)
}

// NewConfigStore initializes a store with cfg.
func NewConfigStore(cfg Config) *ConfigStore {
	return &ConfigStore{config: cfg}
}

// GetSnapshot returns a copy of the active config.
func (cs *ConfigStore) GetSnapshot() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	c := cs.config
	c.RxRings = append([]uint32(nil), c.RxRings...)
	c.TxRings = append([]uint32(nil), c.TxRings...)
	return c
}

// SetConfig validates and installs cfg, then runs listeners in order.
func (cs *ConfigStore) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.config = cfg
	ls := append([]func(Config){}, cs.listeners...)
	cs.mu.Unlock()
	for _, fn := range ls {
		fn(cfg)
	}
	return nil
}

// Reload re-reads path and installs the result.
func (cs *ConfigStore) Reload(path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	return cs.SetConfig(cfg)
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func(Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
