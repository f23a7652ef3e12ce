package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/ledmatrix/internal/control"
	"github.com/coreman2200/ledmatrix/internal/layout"
	"github.com/coreman2200/ledmatrix/internal/led"
)

type Geometry struct {
	LEDCount    int    `yaml:"led_count"`
	StringCount int    `yaml:"string_count"`
	WordBytes   int    `yaml:"word_bytes,omitempty"`
	ColorOrder  string `yaml:"color_order"`
}

type FPGA struct {
	RegsBase uint64 `yaml:"regs_base"`
	RegsSize int    `yaml:"regs_size"`
	FBDevice string `yaml:"fb_device"` // e.g. /dev/ledfb
	FBSize   int    `yaml:"fb_size"`
	PollUs   int    `yaml:"poll_us"`
	SettleMs int    `yaml:"settle_ms"`
}

type Sim struct {
	DrainHz   int64 `yaml:"drain_hz"` // FIFO words per second, 0 = instant
	FIFOWords int   `yaml:"fifo_words"`
	Preview   bool  `yaml:"preview"`
	// PreviewEvery shows one frame in N on the console.
	PreviewEvery int `yaml:"preview_every"`
}

type NRZ struct {
	Port    string `yaml:"port"`     // e.g. /dev/spidev0.0, "" = first
	SpeedHz int64  `yaml:"speed_hz"` // e.g. 2400000
}

type HTTP struct {
	Addr string `yaml:"addr"` // "" disables the server
}

type MQTT struct {
	Broker   string `yaml:"broker"` // "" disables, e.g. tcp://localhost:1883
	Prefix   string `yaml:"prefix"`
	ClientID string `yaml:"client_id,omitempty"`
	QoS      byte   `yaml:"qos"`
}

type Config struct {
	Driver   string `yaml:"driver"` // "fpga" | "sim" | "nrz"
	LogLevel string `yaml:"log_level"`
	Document string `yaml:"document"` // pipeline document loaded at start
	Show     string `yaml:"show,omitempty"`
	Frames   uint64 `yaml:"frames"` // 0 = run until signalled

	Geometry Geometry `yaml:"geometry"`
	FPGA     FPGA     `yaml:"fpga"`
	Sim      Sim      `yaml:"sim"`
	NRZ      NRZ      `yaml:"nrz,omitempty"`
	HTTP     HTTP     `yaml:"http"`
	MQTT     MQTT     `yaml:"mqtt,omitempty"`

	ChannelCapacity int `yaml:"channel_capacity"`
	PatternHold     int `yaml:"pattern_hold"`
}

// Default matches the production panel: 24 strings of 118 LEDs.
func Default() *Config {
	fc := led.DefaultFPGAConfig()
	return &Config{
		Driver:   "fpga",
		LogLevel: "info",
		Document: "config.json",
		Geometry: Geometry{LEDCount: 118, StringCount: 24, WordBytes: 2, ColorOrder: "BRG"},
		FPGA: FPGA{
			RegsBase: fc.RegsBase,
			RegsSize: fc.RegsSize,
			FBDevice: fc.FBDevice,
			FBSize:   fc.FBSize,
			PollUs:   int(led.DefaultPollInterval / time.Microsecond),
			SettleMs: 100,
		},
		Sim:             Sim{DrainHz: 2_000_000, FIFOWords: 0x2000, PreviewEvery: 10},
		NRZ:             NRZ{SpeedHz: 2_400_000},
		HTTP:            HTTP{Addr: ":8080"},
		MQTT:            MQTT{Prefix: "ledmatrix", QoS: 1},
		ChannelCapacity: control.DefaultCapacity,
		PatternHold:     30,
	}
}

// Load reads path over Default, so omitted keys keep their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
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
	return os.WriteFile(path, b, 0644)
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Driver {
	case "fpga", "sim", "nrz":
	default:
		errs = append(errs, fmt.Errorf("unknown driver %q", c.Driver))
	}
	if _, err := c.Layout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.ChannelCapacity < 1 {
		errs = append(errs, fmt.Errorf("channel_capacity must be positive, got %d", c.ChannelCapacity))
	}
	if c.Driver == "fpga" && c.FPGA.FBSize < c.Geometry.LEDCount*c.Geometry.StringCount*layout.BytesPerLED {
		errs = append(errs, fmt.Errorf("fpga.fb_size %#x cannot hold a frame", c.FPGA.FBSize))
	}
	if c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0..2, got %d", c.MQTT.QoS))
	}
	return errors.Join(errs...)
}

func (c *Config) Layout() (layout.Layout, error) {
	order, err := layout.ParseColorOrder(c.Geometry.ColorOrder)
	if err != nil {
		return layout.Layout{}, fmt.Errorf("geometry.color_order: %w", err)
	}
	g := layout.Geometry{
		LEDCount:    c.Geometry.LEDCount,
		StringCount: c.Geometry.StringCount,
		WordBytes:   c.Geometry.WordBytes,
	}
	if err := g.Validate(); err != nil {
		return layout.Layout{}, fmt.Errorf("geometry: %w", err)
	}
	return layout.Layout{Geometry: g, Order: order}, nil
}

func (c *Config) FPGAConfig() led.FPGAConfig {
	return led.FPGAConfig{
		RegsBase: c.FPGA.RegsBase,
		RegsSize: c.FPGA.RegsSize,
		FBDevice: c.FPGA.FBDevice,
		FBSize:   c.FPGA.FBSize,
	}
}

func (c *Config) SyncOptions() led.Options {
	return led.Options{PollInterval: time.Duration(c.FPGA.PollUs) * time.Microsecond}
}

func (c *Config) SettleTimeout() time.Duration {
	return time.Duration(c.FPGA.SettleMs) * time.Millisecond
}

// SimOptions sizes the simulated framebuffer like the FPGA one.
func (c *Config) SimOptions() led.SimOptions {
	return led.SimOptions{
		FBSize:    c.FPGA.FBSize,
		FIFOWords: c.Sim.FIFOWords,
		WordBytes: c.Geometry.WordBytes,
		Drain:     physic.Frequency(c.Sim.DrainHz) * physic.Hertz,
		ID:        0x51d,
	}
}

func (c *Config) NRZFrequency() physic.Frequency {
	return physic.Frequency(c.NRZ.SpeedHz) * physic.Hertz
}
