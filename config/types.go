package config

// Logging selects the log sink settings of the daemon.
type Logging struct {
	Service string `toml:"Service"`
	Env     string `toml:"Env"`
	Level   string `toml:"Level"`
	// File tees the log stream into a rotating file when set.
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry exports traces and metrics over OTLP/HTTP. An empty endpoint
// disables export.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	// Headers uses the OTEL list format, key=value,foo=bar.
	Headers string `toml:"Headers"`
	Traces  bool   `toml:"Traces"`
	Metrics bool   `toml:"Metrics"`
}

// Server configures the HTTP gateway and the snapshot store.
type Server struct {
	ListenAddress string `toml:"ListenAddress"`
	// DataDir holds the LevelDB snapshot store. Empty keeps state in memory.
	DataDir string `toml:"DataDir"`
	// RateLimit is the sustained number of mutating requests per second
	// allowed per client. Zero disables limiting.
	RateLimit float64 `toml:"RateLimit"`
	Burst     int     `toml:"Burst"`
	// ReadTimeoutSeconds bounds how long the server waits for a request.
	ReadTimeoutSeconds uint64 `toml:"ReadTimeoutSeconds"`
}

// Gauge describes the single liquidity gauge served by the daemon.
type Gauge struct {
	Address                string `toml:"Address"`
	Admin                  string `toml:"Admin"`
	TokenlessProductionPct uint64 `toml:"TokenlessProductionPct"`
}

// Distributor sets the emission schedule. Amounts are decimal strings in
// base units.
type Distributor struct {
	Admin                string `toml:"Admin"`
	Proxy                string `toml:"Proxy"`
	InitialRate          string `toml:"InitialRate"`
	EpochDurationSeconds uint64 `toml:"EpochDurationSeconds"`
	InitialDelaySeconds  uint64 `toml:"InitialDelaySeconds"`
	// DeployedAt anchors the epoch schedule and the seeded controller
	// weights. Zero uses the daemon's start time.
	DeployedAt uint64 `toml:"DeployedAt"`
}

// GaugeType seeds a controller type.
type GaugeType struct {
	Name   string `toml:"Name"`
	Weight string `toml:"Weight"`
}

// GaugeWeight seeds a controller gauge under the type at index Type.
type GaugeWeight struct {
	Address string `toml:"Address"`
	Type    int    `toml:"Type"`
	Weight  string `toml:"Weight"`
}

// Controller seeds the weight controller.
type Controller struct {
	Admin  string        `toml:"Admin"`
	Types  []GaugeType   `toml:"Types"`
	Gauges []GaugeWeight `toml:"Gauges"`
}

// Escrow configures the vote-locking contract used for boosts.
type Escrow struct {
	MaxLockSeconds uint64 `toml:"MaxLockSeconds"`
}

// Auth protects the admin routes with HMAC-signed bearer tokens. An empty
// secret leaves the admin routes refusing every request.
type Auth struct {
	HMACSecret string `toml:"HMACSecret"`
	Issuer     string `toml:"Issuer"`
	Audience   string `toml:"Audience"`
}

// Pauses starts modules halted.
type Pauses struct {
	Gauge  bool `toml:"Gauge"`
	Minter bool `toml:"Minter"`
}
