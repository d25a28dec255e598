/*
Package config reads the YAML configuration of the cell broadcast daemon.
*/
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/logging"
)

// Defaults
const (
	DefaultListen          = "127.0.0.1:8740"
	DefaultStorePath       = "cellbroadcast.db"
	DefaultBusyTimeout     = 5 * time.Second
	DefaultRetention       = 7 * 24 * time.Hour
	DefaultPruneSchedule   = "@hourly"
	DefaultDuplicateWindow = 24 * time.Hour
	DefaultMaximumWaitTime = 30 * time.Second
	DefaultGPSPollInterval = time.Second
	DefaultCellTTL         = 10 * time.Second
	DefaultNotifyRate      = 5.0
	DefaultNotifyBurst     = 10
	DefaultDeliveryTimeout = 10 * time.Second
)

// the largest maximum wait time a warning area coordinates element can encode
const maximumWaitTimeLimit = time.Duration(cb.MaximumWaitTimeNotSet-1) * time.Second

// Config is the complete configuration of the daemon.
type Config struct {
	Log      logging.Config `yaml:"log"`
	Slots    []Slot         `yaml:"slots"`
	Store    Store          `yaml:"store"`
	HTTP     HTTP           `yaml:"http"`
	Dedup    Dedup          `yaml:"dedup"`
	AreaInfo AreaInfo       `yaml:"area_info"`
	Geofence Geofence       `yaml:"geofence"`
	Delivery Delivery       `yaml:"delivery"`
}

// Slot is one radio interface with its modem.
type Slot struct {
	Index int `yaml:"index"`
	// Port is the serial device of the modem. If empty, the modem is detected.
	Port     string `yaml:"port"`
	BaudRate uint   `yaml:"baud_rate"`
	RTSCTS   bool   `yaml:"rtscts"`
	// AreaInfoChannels are the service categories that carry the area info of this slot.
	AreaInfoChannels []uint16 `yaml:"area_info_channels"`
	// GPS enables the modem's GPS receiver as location provider for geo-fencing.
	GPS     bool          `yaml:"gps"`
	CellTTL time.Duration `yaml:"cell_ttl"`
}

type Store struct {
	Path          string        `yaml:"path"`
	BusyTimeout   time.Duration `yaml:"busy_timeout"`
	Retention     time.Duration `yaml:"retention"`
	PruneSchedule string        `yaml:"prune_schedule"`
}

type HTTP struct {
	Listen string `yaml:"listen"`
}

type Dedup struct {
	Window            time.Duration `yaml:"window"`
	ResetOnPowerCycle bool          `yaml:"reset_on_power_cycle"`
}

// AreaInfo configures who is told about new area info.
type AreaInfo struct {
	Receivers []Receiver `yaml:"receivers"`
	// Rate limits the notifications per second of each receiver. Throttled notifications are delayed.
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// Receiver of area info notifications. If the URL is empty, the notification is only logged.
type Receiver struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Geofence struct {
	DefaultMaximumWaitTime time.Duration `yaml:"default_max_wait"`
	GPSPollInterval        time.Duration `yaml:"gps_poll_interval"`
}

// Delivery configures where broadcast messages are posted. If the URL is empty, messages are only logged.
type Delivery struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Store.Path = resolvePath(filepath.Dir(path), cfg.Store.Path)
	cfg.Log.File.Path = resolvePath(filepath.Dir(path), cfg.Log.File.Path)
	return cfg, nil
}

// Parse the YAML configuration, fill in the defaults and validate the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Slots) == 0 {
		c.Slots = []Slot{{Index: 0}}
	}
	for i := range c.Slots {
		if c.Slots[i].CellTTL <= 0 {
			c.Slots[i].CellTTL = DefaultCellTTL
		}
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Store.BusyTimeout <= 0 {
		c.Store.BusyTimeout = DefaultBusyTimeout
	}
	if c.Store.Retention <= 0 {
		c.Store.Retention = DefaultRetention
	}
	if c.Store.PruneSchedule == "" {
		c.Store.PruneSchedule = DefaultPruneSchedule
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = DefaultListen
	}
	if c.Dedup.Window <= 0 {
		c.Dedup.Window = DefaultDuplicateWindow
	}
	if c.AreaInfo.Rate <= 0 {
		c.AreaInfo.Rate = DefaultNotifyRate
	}
	if c.AreaInfo.Burst <= 0 {
		c.AreaInfo.Burst = DefaultNotifyBurst
	}
	if c.Geofence.DefaultMaximumWaitTime <= 0 {
		c.Geofence.DefaultMaximumWaitTime = DefaultMaximumWaitTime
	}
	if c.Geofence.GPSPollInterval <= 0 {
		c.Geofence.GPSPollInterval = DefaultGPSPollInterval
	}
	if c.Delivery.Timeout <= 0 {
		c.Delivery.Timeout = DefaultDeliveryTimeout
	}
	c.Log.ApplyDefaults()
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	var errs []error
	indexes := make(map[int]bool, len(c.Slots))
	for _, slot := range c.Slots {
		if slot.Index < 0 {
			errs = append(errs, fmt.Errorf("slot %d: index must not be negative", slot.Index))
		}
		if indexes[slot.Index] {
			errs = append(errs, fmt.Errorf("slot %d: duplicate index", slot.Index))
		}
		indexes[slot.Index] = true
	}
	if c.Geofence.DefaultMaximumWaitTime > maximumWaitTimeLimit {
		errs = append(errs, fmt.Errorf("geofence: default_max_wait exceeds %s", maximumWaitTimeLimit))
	}
	receivers := make(map[string]bool, len(c.AreaInfo.Receivers))
	for _, receiver := range c.AreaInfo.Receivers {
		name := strings.TrimSpace(receiver.Name)
		if name == "" {
			errs = append(errs, errors.New("area_info: receiver without name"))
			continue
		}
		if receivers[name] {
			errs = append(errs, fmt.Errorf("area_info: duplicate receiver %s", name))
		}
		receivers[name] = true
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlotIndexes returns the indexes of all configured slots in configuration order.
func (c *Config) SlotIndexes() []int {
	result := make([]int, 0, len(c.Slots))
	for _, slot := range c.Slots {
		result = append(result, slot.Index)
	}
	return result
}

// Slot returns the configuration of the slot with the given index.
func (c *Config) Slot(index int) (Slot, bool) {
	for _, slot := range c.Slots {
		if slot.Index == index {
			return slot, true
		}
	}
	return Slot{}, false
}

// MessageIdentifiers returns the area info channels as message identifiers.
func (s Slot) MessageIdentifiers() []cb.MessageIdentifier {
	result := make([]cb.MessageIdentifier, 0, len(s.AreaInfoChannels))
	for _, channel := range s.AreaInfoChannels {
		result = append(result, cb.MessageIdentifier(channel))
	}
	return result
}

func resolvePath(baseDir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(baseDir, p))
}
