package config

import "time"

// Config is the runtime configuration shared by the daemon and the CLI.
type Config interface {
	MeterPort() string
	MeterBaudRate() int
	ReadTimeout() time.Duration
	PacketCount() int
	Frequency() string
	OffsetFile() string
	// DeviceEndpoint is the bench bridge URL. Empty selects the simulator.
	DeviceEndpoint() string
	RecordDir() string
	MQTTBroker() string
	MQTTTopic() string
	LogFile() string
	JWTSecret() string
	// ListenAddr is the optional TCP address served in addition to the unix socket.
	ListenAddr() string
	SweepSchedule() string
	SweepChannels() []int
	PDOutDelay() int
	PDOutSamples() int

	SetPacketCount(int)
	SetReadTimeout(time.Duration)
	SetSweepSchedule(string)
	SetSweepChannels([]int)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
