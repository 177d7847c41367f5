package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

func ptr[T any](v T) *T { return &v }

var (
	defaultFileConfig = &RawFileConfig{
		MeterPort:          ptr("/dev/ttyUSB0"),
		MeterBaudRate:      ptr(9600),
		ReadTimeoutSeconds: ptr(10),
		PacketCount:        ptr(5000),
		Frequency:          ptr("5.500GHZ"),
		OffsetFile:         ptr("pm_offset.dat"),
		DeviceEndpoint:     ptr(""),
		RecordDir:          ptr("records"),
		MQTTBroker:         ptr(""),
		MQTTTopic:          ptr("radiocal/records"),
		LogFile:            ptr(""),
		JWTSecret:          ptr(""),
		ListenAddr:         ptr(""),
		SweepSchedule:      ptr(""),
		SweepChannels:      nil,
		PDOutDelay:         ptr(9000),
		PDOutSamples:       ptr(32),
	}
)

// ScheduleParser parses sweepSchedule: five fields with an optional leading seconds
// field, or a descriptor such as @daily.
var ScheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Environment variables that override the file, for bench containers.
const (
	EnvDeviceEndpoint = "RADIOCAL_DEVICE_ENDPOINT"
	EnvMeterPort      = "RADIOCAL_METER_PORT"
	EnvJWTSecret      = "RADIOCAL_JWT_SECRET"
	EnvPacketCount    = "RADIOCAL_PACKET_COUNT"
)

var _ Config = &File{}

// File is a Config stored as JSON, or YAML when the path ends in .yaml or .yml.
type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

// RawFileConfig is the on-disk form. Unset fields take their defaults.
type RawFileConfig struct {
	MeterPort          *string `json:"meterPort,omitempty" yaml:"meterPort,omitempty"`
	MeterBaudRate      *int    `json:"meterBaudRate,omitempty" yaml:"meterBaudRate,omitempty"`
	ReadTimeoutSeconds *int    `json:"readTimeoutSeconds,omitempty" yaml:"readTimeoutSeconds,omitempty"`
	PacketCount        *int    `json:"packetCount,omitempty" yaml:"packetCount,omitempty"`
	Frequency          *string `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	OffsetFile         *string `json:"offsetFile,omitempty" yaml:"offsetFile,omitempty"`
	DeviceEndpoint     *string `json:"deviceEndpoint,omitempty" yaml:"deviceEndpoint,omitempty"`
	RecordDir          *string `json:"recordDir,omitempty" yaml:"recordDir,omitempty"`
	MQTTBroker         *string `json:"mqttBroker,omitempty" yaml:"mqttBroker,omitempty"`
	MQTTTopic          *string `json:"mqttTopic,omitempty" yaml:"mqttTopic,omitempty"`
	LogFile            *string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
	JWTSecret          *string `json:"jwtSecret,omitempty" yaml:"jwtSecret,omitempty"`
	ListenAddr         *string `json:"listenAddr,omitempty" yaml:"listenAddr,omitempty"`
	SweepSchedule      *string `json:"sweepSchedule,omitempty" yaml:"sweepSchedule,omitempty"`
	SweepChannels      []int   `json:"sweepChannels,omitempty" yaml:"sweepChannels,omitempty"`
	PDOutDelay         *int    `json:"pdoutDelay,omitempty" yaml:"pdoutDelay,omitempty"`
	PDOutSamples       *int    `json:"pdoutSamples,omitempty" yaml:"pdoutSamples,omitempty"`
}

// get reads one field under the read lock, falling back to its default.
func get[T any](f *File, field func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if v := field(f.c); v != nil {
		return *v
	}
	if v := field(defaultFileConfig); v != nil {
		return *v
	}
	var zero T
	return zero
}

func (f *File) MeterPort() string {
	return get(f, func(c *RawFileConfig) *string { return c.MeterPort })
}

func (f *File) MeterBaudRate() int {
	return get(f, func(c *RawFileConfig) *int { return c.MeterBaudRate })
}

func (f *File) ReadTimeout() time.Duration {
	s := get(f, func(c *RawFileConfig) *int { return c.ReadTimeoutSeconds })
	return time.Duration(s) * time.Second
}

func (f *File) PacketCount() int {
	return get(f, func(c *RawFileConfig) *int { return c.PacketCount })
}

func (f *File) Frequency() string {
	return get(f, func(c *RawFileConfig) *string { return c.Frequency })
}

func (f *File) OffsetFile() string {
	return get(f, func(c *RawFileConfig) *string { return c.OffsetFile })
}

func (f *File) DeviceEndpoint() string {
	return get(f, func(c *RawFileConfig) *string { return c.DeviceEndpoint })
}

func (f *File) RecordDir() string {
	return get(f, func(c *RawFileConfig) *string { return c.RecordDir })
}

func (f *File) MQTTBroker() string {
	return get(f, func(c *RawFileConfig) *string { return c.MQTTBroker })
}

func (f *File) MQTTTopic() string {
	return get(f, func(c *RawFileConfig) *string { return c.MQTTTopic })
}

func (f *File) LogFile() string {
	return get(f, func(c *RawFileConfig) *string { return c.LogFile })
}

func (f *File) JWTSecret() string {
	return get(f, func(c *RawFileConfig) *string { return c.JWTSecret })
}

func (f *File) ListenAddr() string {
	return get(f, func(c *RawFileConfig) *string { return c.ListenAddr })
}

func (f *File) SweepSchedule() string {
	return get(f, func(c *RawFileConfig) *string { return c.SweepSchedule })
}

func (f *File) SweepChannels() []int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return append([]int(nil), f.c.SweepChannels...)
}

func (f *File) PDOutDelay() int {
	return get(f, func(c *RawFileConfig) *int { return c.PDOutDelay })
}

func (f *File) PDOutSamples() int {
	return get(f, func(c *RawFileConfig) *int { return c.PDOutSamples })
}

func (f *File) SetPacketCount(n int) {
	if f.c == nil {
		panic("config is nil")
	}

	if n <= 0 {
		panic("packet count must be positive")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.PacketCount = &n
}

func (f *File) SetReadTimeout(d time.Duration) {
	if f.c == nil {
		panic("config is nil")
	}

	s := int(d.Round(time.Second) / time.Second)
	if s <= 0 {
		panic("read timeout must be at least one second")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.ReadTimeoutSeconds = &s
}

func (f *File) SetSweepSchedule(spec string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.SweepSchedule = &spec
}

func (f *File) SetSweepChannels(chs []int) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.SweepChannels = append([]int(nil), chs...)
}

// Validate checks values that would otherwise only fail at run time.
func (f *File) Validate() error {
	if n := f.PacketCount(); n <= 0 {
		return pkgerrors.Errorf("packetCount must be positive, got %d", n)
	}
	if f.ReadTimeout() <= 0 {
		return pkgerrors.New("readTimeoutSeconds must be positive")
	}
	if spec := f.SweepSchedule(); spec != "" {
		if _, err := ScheduleParser.Parse(spec); err != nil {
			return pkgerrors.Wrapf(err, "invalid sweepSchedule %q", spec)
		}
	}
	for _, ch := range f.SweepChannels() {
		if ch < 0 || ch > 34 {
			return pkgerrors.Errorf("sweep channel %d out of range [0, 34]", ch)
		}
	}
	return nil
}

func (f *File) isYAML() bool {
	switch strings.ToLower(filepath.Ext(f.filepath)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			applyEnvOverrides(f.c)
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		applyEnvOverrides(f.c)
		return nil
	}

	conf := RawFileConfig{}
	if f.isYAML() {
		err = yaml.Unmarshal(b, &conf)
	} else {
		err = json.Unmarshal(b, &conf)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	applyEnvOverrides(&conf)
	f.c = &conf

	return nil
}

func applyEnvOverrides(c *RawFileConfig) {
	if v := os.Getenv(EnvDeviceEndpoint); v != "" {
		c.DeviceEndpoint = &v
	}
	if v := os.Getenv(EnvMeterPort); v != "" {
		c.MeterPort = &v
	}
	if v := os.Getenv(EnvJWTSecret); v != "" {
		c.JWTSecret = &v
	}
	if v := os.Getenv(EnvPacketCount); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.PacketCount = &n
		} else {
			logrus.WithField(EnvPacketCount, v).Warn("ignoring invalid packet count override")
		}
	}
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	var (
		b   []byte
		err error
	)
	if f.isYAML() {
		b, err = yaml.Marshal(f.c)
	} else {
		b, err = json.MarshalIndent(f.c, "", "  ")
		b = append(b, '\n')
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config for file %s", f.filepath)
	}

	if err := os.WriteFile(f.filepath, b, 0o600); err != nil {
		return pkgerrors.Wrapf(err, "failed to write file %s", f.filepath)
	}

	return nil
}

// Path returns the file the config is loaded from and saved to.
func (f *File) Path() string {
	return f.filepath
}

// LogrusFields returns the effective configuration with secrets masked.
func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	secret := ""
	if f.JWTSecret() != "" {
		secret = "<set>"
	}

	return logrus.Fields{
		"meterPort":      f.MeterPort(),
		"meterBaudRate":  f.MeterBaudRate(),
		"readTimeout":    f.ReadTimeout(),
		"packetCount":    f.PacketCount(),
		"frequency":      f.Frequency(),
		"offsetFile":     f.OffsetFile(),
		"deviceEndpoint": f.DeviceEndpoint(),
		"recordDir":      f.RecordDir(),
		"mqttBroker":     f.MQTTBroker(),
		"mqttTopic":      f.MQTTTopic(),
		"logFile":        f.LogFile(),
		"jwtSecret":      secret,
		"listenAddr":     f.ListenAddr(),
		"sweepSchedule":  f.SweepSchedule(),
		"sweepChannels":  f.SweepChannels(),
		"pdoutDelay":     f.PDOutDelay(),
		"pdoutSamples":   f.PDOutSamples(),
	}
}

// NewRawFileConfigFromConfig snapshots the effective values of c. The JWT secret is
// left out so the result can be served to clients.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	return &RawFileConfig{
		MeterPort:          ptr(c.MeterPort()),
		MeterBaudRate:      ptr(c.MeterBaudRate()),
		ReadTimeoutSeconds: ptr(int(c.ReadTimeout() / time.Second)),
		PacketCount:        ptr(c.PacketCount()),
		Frequency:          ptr(c.Frequency()),
		OffsetFile:         ptr(c.OffsetFile()),
		DeviceEndpoint:     ptr(c.DeviceEndpoint()),
		RecordDir:          ptr(c.RecordDir()),
		MQTTBroker:         ptr(c.MQTTBroker()),
		MQTTTopic:          ptr(c.MQTTTopic()),
		LogFile:            ptr(c.LogFile()),
		ListenAddr:         ptr(c.ListenAddr()),
		SweepSchedule:      ptr(c.SweepSchedule()),
		SweepChannels:      c.SweepChannels(),
		PDOutDelay:         ptr(c.PDOutDelay()),
		PDOutSamples:       ptr(c.PDOutSamples()),
	}, nil
}
