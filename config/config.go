// Package config loads the settings shared by linkctl and linksim from
// defaults, an optional file and METERLINK_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/plein/meterlink/device"
	"github.com/plein/meterlink/host"
	"github.com/plein/meterlink/internal/logging"
	"github.com/plein/meterlink/link"
	"github.com/plein/meterlink/mux"
	"github.com/plein/meterlink/ppp"
	"github.com/plein/meterlink/transport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	// Transport names an entry of transport.Dialers and transport.Listeners.
	Transport string `mapstructure:"transport"`
	// Addr is the transport address. For serial it may be empty, then the
	// port is found by USB identity.
	Addr string `mapstructure:"addr"`

	Serial  SerialConfig   `mapstructure:"serial"`
	PPP     PPPConfig      `mapstructure:"ppp"`
	Host    HostConfig     `mapstructure:"host"`
	Device  DeviceConfig   `mapstructure:"device"`
	Log     logging.Config `mapstructure:"log"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
}

// USBID is a USB vendor or product id. It decodes from numbers and from
// hex strings such as "b1e1" or "0xb1e1".
type USBID uint16

func (id USBID) String() string {
	return fmt.Sprintf("%04x", uint16(id))
}

type SerialConfig struct {
	VID  USBID `mapstructure:"vid"`
	PID  USBID `mapstructure:"pid"`
	Baud int   `mapstructure:"baud"`
}

type PPPConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	MRU      int    `mapstructure:"mru"`
}

type HostConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
	Capacity   int `mapstructure:"capacity"`
	QueueLimit int `mapstructure:"queue_limit"`
	CallQueue  int `mapstructure:"call_queue"`
}

type DeviceConfig struct {
	BufferSize int           `mapstructure:"buffer_size"`
	Capacity   int           `mapstructure:"capacity"`
	OutboxSize int           `mapstructure:"outbox_size"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type MetricsConfig struct {
	// Listen is the address of the /metrics endpoint. Empty disables it.
	Listen string `mapstructure:"listen"`
}

func Default() Config {
	return Config{
		Transport: "serial",
		Serial: SerialConfig{
			VID:  transport.DefaultVID,
			PID:  transport.DefaultPID,
			Baud: transport.DefaultBaud,
		},
		PPP: PPPConfig{
			Username: "u",
			Password: "p",
			MRU:      ppp.DefaultMRU,
		},
		Host: HostConfig{
			BufferSize: link.HostBufferSize,
			Capacity:   host.DefaultCapacity,
			QueueLimit: mux.DefaultQueueLimit,
			CallQueue:  host.DefaultCallQueue,
		},
		Device: DeviceConfig{
			BufferSize: link.DeviceBufferSize,
			Capacity:   mux.DefaultCapacity,
			OutboxSize: device.DefaultOutboxSize,
			RetryDelay: device.DefaultRetryDelay,
		},
		Log: logging.Config{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads the configuration. An empty path falls back to
// $METERLINK_CONFIG, then to meterlink.{yaml,toml,json} in the working
// directory or ~/.meterlink. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("METERLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("transport", cfg.Transport)
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("serial.vid", uint16(cfg.Serial.VID))
	v.SetDefault("serial.pid", uint16(cfg.Serial.PID))
	v.SetDefault("serial.baud", cfg.Serial.Baud)
	v.SetDefault("ppp.username", cfg.PPP.Username)
	v.SetDefault("ppp.password", cfg.PPP.Password)
	v.SetDefault("ppp.mru", cfg.PPP.MRU)
	v.SetDefault("host.buffer_size", cfg.Host.BufferSize)
	v.SetDefault("host.capacity", cfg.Host.Capacity)
	v.SetDefault("host.queue_limit", cfg.Host.QueueLimit)
	v.SetDefault("host.call_queue", cfg.Host.CallQueue)
	v.SetDefault("device.buffer_size", cfg.Device.BufferSize)
	v.SetDefault("device.capacity", cfg.Device.Capacity)
	v.SetDefault("device.outbox_size", cfg.Device.OutboxSize)
	v.SetDefault("device.retry_delay", cfg.Device.RetryDelay)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.output", cfg.Log.Output)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)
	v.SetDefault("log.compress", cfg.Log.Compress)
	v.SetDefault("metrics.listen", cfg.Metrics.Listen)

	if path == "" {
		path = os.Getenv("METERLINK_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("meterlink")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".meterlink"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("config: read: %w", err)
		}
	}

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		usbIDHook,
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return cfg, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var usbIDType = reflect.TypeOf(USBID(0))

func usbIDHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != usbIDType || from.Kind() != reflect.String {
		return data, nil
	}
	s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(data.(string))), "0x")
	id, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid usb id %q", data)
	}
	return USBID(id), nil
}

func (c *Config) validate() error {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	if _, ok := transport.Dialers[c.Transport]; !ok {
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: invalid log.level: %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: invalid log.format: %q", c.Log.Format)
	}
	if len(c.PPP.Username) > 255 || len(c.PPP.Password) > 255 {
		return errors.New("config: ppp credentials longer than 255 bytes")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("config: invalid serial.baud: %d", c.Serial.Baud)
	}

	for name, n := range map[string]int{
		"ppp.mru":            c.PPP.MRU,
		"host.buffer_size":   c.Host.BufferSize,
		"host.capacity":      c.Host.Capacity,
		"host.queue_limit":   c.Host.QueueLimit,
		"host.call_queue":    c.Host.CallQueue,
		"device.buffer_size": c.Device.BufferSize,
		"device.capacity":    c.Device.Capacity,
		"device.outbox_size": c.Device.OutboxSize,
	} {
		if n <= 0 {
			return fmt.Errorf("config: %s must be positive, got %d", name, n)
		}
	}
	return nil
}

// Address returns the transport address, spelling out the USB identity
// and baud rate for a serial transport without an explicit path.
func (c Config) Address() string {
	if c.Transport != "serial" {
		return c.Addr
	}
	if c.Addr != "" {
		if strings.Contains(c.Addr, "@") {
			return c.Addr
		}
		return fmt.Sprintf("%s@%d", c.Addr, c.Serial.Baud)
	}
	return fmt.Sprintf("usb:%s:%s@%d", c.Serial.VID, c.Serial.PID, c.Serial.Baud)
}

func (c Config) PPPConfig() ppp.Config {
	return ppp.Config{
		Username: c.PPP.Username,
		Password: c.PPP.Password,
		MRU:      c.PPP.MRU,
	}
}

func (c Config) HostConfig() host.Config {
	return host.Config{
		PPP:        c.PPPConfig(),
		BufferSize: c.Host.BufferSize,
		Capacity:   c.Host.Capacity,
		QueueLimit: c.Host.QueueLimit,
		CallQueue:  c.Host.CallQueue,
	}
}

func (c Config) DeviceConfig() device.Config {
	return device.Config{
		PPP:        c.PPPConfig(),
		BufferSize: c.Device.BufferSize,
		Capacity:   c.Device.Capacity,
		OutboxSize: c.Device.OutboxSize,
		RetryDelay: c.Device.RetryDelay,
	}
}
