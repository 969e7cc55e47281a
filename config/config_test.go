package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("METERLINK_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, USBID(0xb1e1), cfg.Serial.VID)
	require.Equal(t, "usb:b1e1:0001@9600", cfg.Address())
	require.Equal(t, 256, cfg.DeviceConfig().BufferSize)
	require.Equal(t, 4096, cfg.HostConfig().BufferSize)
	require.Equal(t, "u", cfg.HostConfig().PPP.Username)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meterlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport: tcp
addr: 127.0.0.1:7000
serial:
  vid: "0x1209"
  pid: 00ff
host:
  call_queue: 8
device:
  retry_delay: 250ms
log:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "tcp", cfg.Transport)
	require.Equal(t, "127.0.0.1:7000", cfg.Address())
	require.Equal(t, USBID(0x1209), cfg.Serial.VID)
	require.Equal(t, USBID(0xff), cfg.Serial.PID)
	require.Equal(t, 8, cfg.Host.CallQueue)
	require.Equal(t, 250*time.Millisecond, cfg.Device.RetryDelay)
	require.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	require.Equal(t, 64, cfg.Host.QueueLimit)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("METERLINK_CONFIG", "")
	t.Setenv("METERLINK_TRANSPORT", "WS")
	t.Setenv("METERLINK_ADDR", "localhost:9000")
	t.Setenv("METERLINK_PPP_PASSWORD", "secret")
	t.Setenv("METERLINK_DEVICE_CAPACITY", "8")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "ws", cfg.Transport)
	require.Equal(t, "localhost:9000", cfg.Address())
	require.Equal(t, "secret", cfg.PPP.Password)
	require.Equal(t, 8, cfg.DeviceConfig().Capacity)
}

func TestSerialAddress(t *testing.T) {
	cfg := Default()
	cfg.Addr = "/dev/ttyACM0"
	require.Equal(t, "/dev/ttyACM0@9600", cfg.Address())
	cfg.Addr = "/dev/ttyACM0@115200"
	require.Equal(t, "/dev/ttyACM0@115200", cfg.Address())
}

func TestInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"transport": "transport: carrier-pigeon\n",
		"level":     "log:\n  level: loud\n",
		"format":    "log:\n  format: xml\n",
		"capacity":  "device:\n  capacity: 0\n",
		"vid":       "serial:\n  vid: nothex\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "meterlink.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}
