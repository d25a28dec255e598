package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/cellbroadcast/cb"
)

const testConfig = `
log:
  level: debug
  file:
    path: logs/cbd.log
slots:
  - index: 0
    port: /dev/ttyUSB2
    area_info_channels: [50]
    gps: true
  - index: 1
    area_info_channels: [50, 221]
store:
  path: data/cb.db
  retention: 48h
http:
  listen: ":8080"
dedup:
  window: 12h
  reset_on_power_cycle: true
area_info:
  receivers:
    - name: status-bar
      url: http://localhost:9000/area-info
    - name: settings
geofence:
  default_max_wait: 45s
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(testConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []int{0, 1}, cfg.SlotIndexes())
	assert.Equal(t, "/dev/ttyUSB2", cfg.Slots[0].Port)
	assert.True(t, cfg.Slots[0].GPS)
	assert.Equal(t, []cb.MessageIdentifier{50, 221}, cfg.Slots[1].MessageIdentifiers())
	assert.Equal(t, DefaultCellTTL, cfg.Slots[1].CellTTL)
	assert.Equal(t, 48*time.Hour, cfg.Store.Retention)
	assert.Equal(t, DefaultPruneSchedule, cfg.Store.PruneSchedule)
	assert.Equal(t, ":8080", cfg.HTTP.Listen)
	assert.Equal(t, 12*time.Hour, cfg.Dedup.Window)
	assert.True(t, cfg.Dedup.ResetOnPowerCycle)
	assert.Len(t, cfg.AreaInfo.Receivers, 2)
	assert.Equal(t, 45*time.Second, cfg.Geofence.DefaultMaximumWaitTime)
	assert.Equal(t, DefaultGPSPollInterval, cfg.Geofence.GPSPollInterval)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, []int{0}, cfg.SlotIndexes())
	assert.Equal(t, DefaultStorePath, cfg.Store.Path)
	assert.Equal(t, DefaultListen, cfg.HTTP.Listen)
	assert.Equal(t, DefaultDuplicateWindow, cfg.Dedup.Window)
	assert.Equal(t, DefaultMaximumWaitTime, cfg.Geofence.DefaultMaximumWaitTime)
	assert.True(t, cfg.Log.ConsoleEnabled())
}

func TestParse_Invalid(t *testing.T) {
	tt := []struct {
		desc  string
		value string
	}{
		{"unknown field", "colour: red"},
		{"duplicate slot", "slots: [{index: 1}, {index: 1}]"},
		{"negative slot", "slots: [{index: -1}]"},
		{"receiver without name", "area_info: {receivers: [{url: http://localhost}]}"},
		{"duplicate receiver", "area_info: {receivers: [{name: a}, {name: a}]}"},
		{"max wait too long", "geofence: {default_max_wait: 5m}"},
		{"log level", "log: {level: loud}"},
		{"bad duration", "dedup: {window: forever}"},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := Parse([]byte(tc.value))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cbd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "data", "cb.db"), cfg.Store.Path)
	assert.Equal(t, filepath.Join(dir, "logs", "cbd.log"), cfg.Log.File.Path)
}

func TestManager_Settings(t *testing.T) {
	cfg, err := Parse([]byte(testConfig))
	require.NoError(t, err)
	manager := NewStaticManager(cfg)

	assert.Equal(t, []cb.MessageIdentifier{50}, manager.AreaInfoChannels(0))
	assert.Empty(t, manager.AreaInfoChannels(7))
	assert.Equal(t, []string{"status-bar", "settings"}, manager.AreaInfoReceivers())
	assert.True(t, manager.ResetDuplicateDetectionOnPowerCycle())
	assert.Equal(t, 12*time.Hour, manager.DuplicateWindow())
	assert.Equal(t, 45*time.Second, manager.DefaultMaximumWaitTime())

	url, ok := manager.ReceiverURL("status-bar")
	assert.True(t, ok)
	assert.Equal(t, "http://localhost:9000/area-info", url)
	_, ok = manager.ReceiverURL("nobody")
	assert.False(t, ok)
}

func TestManager_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cbd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dedup: {window: 1h}"), 0o600))
	manager, err := NewManager(path, zerolog.Nop())
	require.NoError(t, err)
	var published []*Config
	manager.Subscribe(func(cfg *Config) { published = append(published, cfg) })

	require.NoError(t, os.WriteFile(path, []byte("dedup: {window: 2h}"), 0o600))
	require.NoError(t, manager.Reload())
	assert.Equal(t, 2*time.Hour, manager.DuplicateWindow())
	assert.Len(t, published, 1)

	require.NoError(t, os.WriteFile(path, []byte("dedup: {window: never}"), 0o600))
	assert.Error(t, manager.Reload())
	assert.Equal(t, 2*time.Hour, manager.DuplicateWindow(), "invalid file keeps the configuration")
	assert.Len(t, published, 1)
}

func TestManager_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cbd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dedup: {window: 1h}"), 0o600))
	manager, err := NewManager(path, zerolog.Nop())
	require.NoError(t, err)
	reloaded := make(chan *Config, 4)
	manager.Subscribe(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		manager.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool {
		if os.WriteFile(path, []byte("dedup: {window: 3h}"), 0o600) != nil {
			return false
		}
		select {
		case cfg := <-reloaded:
			return cfg.Dedup.Window == 3*time.Hour
		case <-time.After(2 * reloadDebounce):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3*time.Hour, manager.DuplicateWindow())
}
