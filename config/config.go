// Package config loads the bridge's YAML configuration file and maps it
// onto device and server configurations.
//
// Example file:
//
//	listen: ":1723"
//	request_timeout: 1s
//	shutdown_grace: 5s
//	backoff:
//	  initial: 100ms
//	  max: 30s
//	  jitter: 0.2
//	devices:
//	  - name: r1
//	    port: /dev/ttyUSB0
//	    baud: 9600
//	    reply_terminator: "\r\n"
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lvmi/presbridge/bridge"
	"github.com/lvmi/presbridge/device"
)

// Duration wraps time.Duration with YAML unmarshalling from strings like
// "500ms" or "1.5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}

	*d = Duration(parsed)

	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Backoff holds the reconnect backoff parameters shared by all devices.
type Backoff struct {
	Initial Duration `yaml:"initial"`
	Max     Duration `yaml:"max"`
	Jitter  float64  `yaml:"jitter"`
}

// Device describes one serial transducer.
type Device struct {
	Name string `yaml:"name"`
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`

	// CommandTerminator is appended to outgoing commands. Defaults to CR/LF.
	CommandTerminator *string `yaml:"command_terminator"`

	// ReplyTerminator marks the end of a device reply. When absent, replies
	// are read until the line goes idle.
	ReplyTerminator *string `yaml:"reply_terminator"`
}

// File is the top-level configuration schema.
type File struct {
	Listen         string   `yaml:"listen"`
	RequestTimeout Duration `yaml:"request_timeout"`
	ShutdownGrace  Duration `yaml:"shutdown_grace"`
	Backoff        *Backoff `yaml:"backoff"`
	Devices        []Device `yaml:"devices"`
}

// Load reads and parses the YAML configuration at path.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	return Parse(raw)
}

// Parse parses YAML configuration bytes.
func Parse(raw []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	if f.Listen == "" {
		return nil, fmt.Errorf("config: listen address is required")
	}
	if len(f.Devices) == 0 {
		return nil, fmt.Errorf("config: at least one device is required")
	}

	return &f, nil
}

// DeviceConfigs builds the per-device configurations.
func (f *File) DeviceConfigs() ([]*device.Config, error) {
	cfgs := make([]*device.Config, 0, len(f.Devices))

	for _, d := range f.Devices {
		opts := []device.Option{}

		if d.Baud != 0 {
			opts = append(opts, device.WithBaudRate(d.Baud))
		}
		if d.CommandTerminator != nil {
			opts = append(opts, device.WithCommandTerminator(*d.CommandTerminator))
		}
		if d.ReplyTerminator != nil {
			opts = append(opts, device.WithReplyTerminator(*d.ReplyTerminator))
		}
		if f.RequestTimeout != 0 {
			opts = append(opts, device.WithExchangeTimeout(f.RequestTimeout.Std()))
		}
		if b := f.Backoff; b != nil {
			opts = append(opts, device.WithBackoff(b.Initial.Std(), b.Max.Std(), b.Jitter))
		}

		cfg, err := device.NewConfig(d.Name, d.Port, opts...)
		if err != nil {
			return nil, err
		}

		cfgs = append(cfgs, cfg)
	}

	return cfgs, nil
}

// ServerConfig builds the TCP server configuration.
func (f *File) ServerConfig(opts ...bridge.Option) (*bridge.Config, error) {
	if f.RequestTimeout != 0 {
		opts = append(opts, bridge.WithRequestTimeout(f.RequestTimeout.Std()))
	}
	if f.ShutdownGrace != 0 {
		opts = append(opts, bridge.WithShutdownGrace(f.ShutdownGrace.Std()))
	}

	return bridge.NewConfig(f.Listen, opts...)
}
