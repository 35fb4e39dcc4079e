// Package config handles loading, validating and saving the g19d configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/jmylchreest/g19d/internal/keys"
	"github.com/jmylchreest/g19d/internal/raster"
)

// Duration is a time.Duration that can be unmarshaled from human-readable strings.
// Supports formats like "5s", "100ms", "1m", or integer milliseconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: must be like '100ms', '5s', '1m' or milliseconds: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// HexColor is a colour written as "#rrggbb".
type HexColor raster.Color

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HexColor) UnmarshalText(text []byte) error {
	c, err := raster.ParseHex(string(text))
	if err != nil {
		return err
	}
	*h = HexColor(c)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (h HexColor) MarshalText() ([]byte, error) {
	return []byte(raster.Color(h).Hex()), nil
}

// Color returns the colour as a raster.Color.
func (h HexColor) Color() raster.Color {
	return raster.Color(h)
}

// Applet names accepted in display.applets.
const (
	AppletWatch     = "watch"
	AppletBacklight = "backlight"
)

// Backlight modes.
const (
	BacklightAmbient = "ambient"
	BacklightManual  = "manual"
)

// Watch modes.
const (
	WatchClock     = "clock"
	WatchStopwatch = "stopwatch"
)

// Config is the g19d configuration.
// Loaded from ~/.config/g19d/g19d.toml
type Config struct {
	Device        DeviceConfig       `toml:"device" yaml:"device"`
	Display       DisplayConfig      `toml:"display" yaml:"display"`
	Keys          KeysConfig         `toml:"keys" yaml:"keys"`
	Ambient       AmbientConfig      `toml:"ambient" yaml:"ambient"`
	Backlight     BacklightConfig    `toml:"backlight" yaml:"backlight"`
	Watch         WatchConfig        `toml:"watch" yaml:"watch"`
	Notifications NotificationConfig `toml:"notifications" yaml:"notifications"`
}

// DeviceConfig contains USB device settings.
type DeviceConfig struct {
	Reset         bool     `toml:"reset" yaml:"reset"`                   // Bus reset on open
	Brightness    int      `toml:"brightness" yaml:"brightness"`         // 0-100
	Backlight     HexColor `toml:"backlight" yaml:"backlight"`           // Colour applied at startup
	SaveBacklight bool     `toml:"save_backlight" yaml:"save_backlight"` // Also store it as the power-on colour
}

// DisplayConfig contains scheduling settings.
type DisplayConfig struct {
	Applets     []string `toml:"applets" yaml:"applets"`           // Order of applets; the first is shown at startup
	SwitcherKey string   `toml:"switcher_key" yaml:"switcher_key"` // Key opening the applet switcher from anywhere
}

// KeysConfig contains host key forwarding settings.
type KeysConfig struct {
	Forward bool              `toml:"forward" yaml:"forward"` // Forward unbound G-keys with xdotool
	Map     map[string]string `toml:"map" yaml:"map"`         // e.g. g1 = "F1"
}

// AmbientConfig contains ambient light adapter settings.
type AmbientConfig struct {
	Enabled      bool     `toml:"enabled" yaml:"enabled"`
	Listen       string   `toml:"listen" yaml:"listen"`               // TCP address of the colour socket
	Helper       string   `toml:"helper" yaml:"helper"`               // Executable started and restarted while running, empty to disable
	HelperLog    string   `toml:"helper_log" yaml:"helper_log"`       // File receiving the helper's output
	RestartDelay Duration `toml:"restart_delay" yaml:"restart_delay"` // Pause before restarting the helper
}

// BacklightConfig contains the backlight applet settings.
type BacklightConfig struct {
	Mode    string     `toml:"mode" yaml:"mode"` // "ambient" or "manual"
	Palette []HexColor `toml:"palette" yaml:"palette"`
}

// WatchConfig contains the clock applet settings.
type WatchConfig struct {
	Background string   `toml:"background" yaml:"background"` // Image path, empty for a plain background
	Color      HexColor `toml:"color" yaml:"color"`           // Band colour until an ambient sample arrives
	Alpha      float64  `toml:"alpha" yaml:"alpha"`
	Mode       string   `toml:"mode" yaml:"mode"` // "clock" or "stopwatch"
	Interval   Duration `toml:"interval" yaml:"interval"`
}

// NotificationConfig contains notification overlay settings.
type NotificationConfig struct {
	Enabled        bool     `toml:"enabled" yaml:"enabled"`
	Background     string   `toml:"background" yaml:"background"`
	Color          HexColor `toml:"color" yaml:"color"`                   // Normal urgency
	LowColor       HexColor `toml:"low_color" yaml:"low_color"`           // Low urgency
	CriticalColor  HexColor `toml:"critical_color" yaml:"critical_color"` // Critical urgency
	Alpha          float64  `toml:"alpha" yaml:"alpha"`
	DefaultTimeout Duration `toml:"default_timeout" yaml:"default_timeout"` // Used when the sender's timeout is out of range
	MinTimeout     Duration `toml:"min_timeout" yaml:"min_timeout"`
	MaxTimeout     Duration `toml:"max_timeout" yaml:"max_timeout"`
	QueueSize      int      `toml:"queue_size" yaml:"queue_size"`
	Sound          string   `toml:"sound" yaml:"sound"`   // Chime file, empty for silence
	Volume         int      `toml:"volume" yaml:"volume"` // 0-100
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Reset:      false,
			Brightness: 100,
			Backlight:  HexColor{R: 255, G: 255, B: 255},
		},
		Display: DisplayConfig{
			Applets:     []string{AppletWatch, AppletBacklight},
			SwitcherKey: "settings",
		},
		Keys: KeysConfig{
			Forward: true,
			Map:     map[string]string{},
		},
		Ambient: AmbientConfig{
			Enabled:      true,
			Listen:       ":51117",
			Helper:       "ambient_light",
			HelperLog:    filepath.Join(os.TempDir(), "ambient.log"),
			RestartDelay: Duration(time.Second),
		},
		Backlight: BacklightConfig{
			Mode: BacklightAmbient,
			Palette: []HexColor{
				{R: 255},
				{G: 255},
				{B: 255},
				{},
				{R: 255, G: 255, B: 255},
			},
		},
		Watch: WatchConfig{
			Color:    HexColor{R: 177, G: 31, B: 80},
			Alpha:    0.6,
			Mode:     WatchClock,
			Interval: Duration(100 * time.Millisecond),
		},
		Notifications: NotificationConfig{
			Enabled:        true,
			Color:          HexColor{R: 66, G: 240, B: 120},
			LowColor:       HexColor{R: 96, G: 96, B: 96},
			CriticalColor:  HexColor{R: 220, G: 40, B: 40},
			Alpha:          0.6,
			DefaultTimeout: Duration(4 * time.Second),
			MinTimeout:     Duration(2 * time.Second),
			MaxTimeout:     Duration(10 * time.Second),
			QueueSize:      16,
			Volume:         80,
		},
	}
}

// DefaultPath returns the path to the config file.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "g19d", "g19d.toml"), nil
}

// Load loads the configuration from path, or from DefaultPath if path is empty.
// If the file doesn't exist, returns the default configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse overlays TOML data onto the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path atomically via a temp file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Device.Brightness < 0 || c.Device.Brightness > 100 {
		return fmt.Errorf("brightness must be between 0 and 100, got %d", c.Device.Brightness)
	}

	if len(c.Display.Applets) == 0 {
		return errors.New("display.applets must name at least one applet")
	}
	seen := make(map[string]bool)
	for _, name := range c.Display.Applets {
		if name != AppletWatch && name != AppletBacklight {
			return fmt.Errorf("unknown applet %q, must be one of: %v", name, []string{AppletWatch, AppletBacklight})
		}
		if seen[name] {
			return fmt.Errorf("applet %q listed twice", name)
		}
		seen[name] = true
	}

	if _, err := keys.ParseKey(c.Display.SwitcherKey); err != nil {
		return fmt.Errorf("invalid display.switcher_key: %w", err)
	}
	if _, err := c.Keys.Keymap(); err != nil {
		return err
	}

	if c.Backlight.Mode != BacklightAmbient && c.Backlight.Mode != BacklightManual {
		return fmt.Errorf("invalid backlight mode %q", c.Backlight.Mode)
	}
	if len(c.Backlight.Palette) == 0 {
		return errors.New("backlight.palette must not be empty")
	}

	if c.Watch.Mode != WatchClock && c.Watch.Mode != WatchStopwatch {
		return fmt.Errorf("invalid watch mode %q", c.Watch.Mode)
	}
	for name, a := range map[string]float64{"watch.alpha": c.Watch.Alpha, "notifications.alpha": c.Notifications.Alpha} {
		if a < 0 || a > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, a)
		}
	}

	n := c.Notifications
	if n.MinTimeout > n.MaxTimeout {
		return fmt.Errorf("notifications.min_timeout %s exceeds max_timeout %s", n.MinTimeout.Duration(), n.MaxTimeout.Duration())
	}
	if n.DefaultTimeout <= 0 {
		return errors.New("notifications.default_timeout must be positive")
	}
	if n.QueueSize < 1 {
		return fmt.Errorf("notifications.queue_size must be at least 1, got %d", n.QueueSize)
	}
	if n.Volume < 0 || n.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", n.Volume)
	}
	return nil
}

// Keymap resolves keys.map into host key names, on top of the F1-F12 defaults.
func (k KeysConfig) Keymap() (map[keys.Key]string, error) {
	m := keys.DefaultKeymap()
	for name, host := range k.Map {
		key, err := keys.ParseKey(name)
		if err != nil {
			return nil, fmt.Errorf("invalid keys.map entry: %w", err)
		}
		if !key.IsG() {
			return nil, fmt.Errorf("invalid keys.map entry: %s cannot be forwarded", key)
		}
		if host == "" {
			delete(m, key)
			continue
		}
		m[key] = host
	}
	return m, nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
