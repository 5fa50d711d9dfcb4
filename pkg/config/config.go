package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the file name looked up when no path is given.
const DefaultConfigFile = "inanna.yaml"

// Config represents the main configuration for the companion core.
type Config struct {
	General    GeneralConfig    `yaml:"general"`
	Updates    UpdatesConfig    `yaml:"updates"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	EventLog   EventLogConfig   `yaml:"event_log"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	Simulation SimulationConfig `yaml:"simulation"`
	Speech     SpeechConfig     `yaml:"speech"`
	NATS       NATSConfig       `yaml:"nats"`
	Redis      RedisConfig      `yaml:"redis"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	HotReload  HotReloadConfig  `yaml:"hot_reload"`
}

// GeneralConfig holds identity and logging settings
type GeneralConfig struct {
	CreatorName string `yaml:"creator_name"`
	BirthDate   string `yaml:"birth_date"`  // YYYY-MM-DD
	MaxHistory  int    `yaml:"max_history"` // Logical turns (user + reply)
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"` // Empty disables file output
}

// UpdatesConfig configures the built-in periodic tasks.
// A zero interval disables the task.
type UpdatesConfig struct {
	KnowledgeInterval time.Duration `yaml:"knowledge_interval"`
	WellbeingInterval time.Duration `yaml:"wellbeing_interval"`
	WellbeingAnchor   string        `yaml:"wellbeing_anchor"` // ":15", "MM:SS" or "HH:MM" for daily jobs
	FactSourceURL     string        `yaml:"fact_source_url"`
	FactTimeout       time.Duration `yaml:"fact_timeout"`
}

// SchedulerConfig controls the periodic task loop timing
type SchedulerConfig struct {
	MaxIdle      time.Duration `yaml:"max_idle"`
	EmptyWait    time.Duration `yaml:"empty_wait"`
	ErrorBackoff time.Duration `yaml:"error_backoff"`
	StopTimeout  time.Duration `yaml:"stop_timeout"`
}

// DispatcherConfig controls the inbound queue and its consumer
type DispatcherConfig struct {
	QueueCapacity int           `yaml:"queue_capacity"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	ErrorPause    time.Duration `yaml:"error_pause"`
	StopTimeout   time.Duration `yaml:"stop_timeout"`
}

// EventLogConfig configures the JSONL event log
type EventLogConfig struct {
	Path      string `yaml:"path"` // Empty keeps events in memory only
	MaxMemory int    `yaml:"max_memory"`
}

// KnowledgeConfig configures the JSON knowledge base
type KnowledgeConfig struct {
	Path       string `yaml:"path"`
	MaxUpdates int    `yaml:"max_updates"`
}

// SimulationConfig tunes the simulated collaborators
type SimulationConfig struct {
	InitialIntegrity        int           `yaml:"initial_integrity"`
	ShieldEnabled           bool          `yaml:"shield_enabled"`
	NegativityFilter        bool          `yaml:"negativity_filter"`
	IntegrityCheckInterval  time.Duration `yaml:"integrity_check_interval"`
	ConnectionCheckInterval time.Duration `yaml:"connection_check_interval"`
	ConnectionLossChance    float64       `yaml:"connection_loss_chance"`
}

// SpeechConfig configures text-to-speech and capture throttling
type SpeechConfig struct {
	TTSEnabled      bool          `yaml:"tts_enabled"`
	CaptureInterval time.Duration `yaml:"capture_interval"` // Minimum time between captures
}

// NATSConfig configures the optional NATS bridge
type NATSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxSessions   int           `yaml:"max_sessions"` // Remote sessions remembered for replies
	SessionTTL    time.Duration `yaml:"session_ttl"`
}

// RedisConfig configures the optional Redis response sink
type RedisConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	ResponsePrefix string `yaml:"response_prefix"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TelemetryConfig configures OpenTelemetry tracing
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// HotReloadConfig enables reconfiguration when the config file changes
type HotReloadConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// LoadConfigFromFile loads configuration from a YAML file at the specified path.
// Values missing from the file keep their defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g. ${NATS_URL}) before parsing YAML
	expanded := os.ExpandEnv(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return config, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			CreatorName: "El Principal",
			BirthDate:   "2000-01-01",
			MaxHistory:  30,
			LogLevel:    "info",
		},
		Updates: UpdatesConfig{
			KnowledgeInterval: 6 * time.Hour,
			WellbeingInterval: 2 * time.Hour,
			FactSourceURL:     "http://numbersapi.com/random/date?json",
			FactTimeout:       8 * time.Second,
		},
		Scheduler: SchedulerConfig{
			MaxIdle:      60 * time.Second,
			EmptyWait:    5 * time.Minute,
			ErrorBackoff: 60 * time.Second,
			StopTimeout:  3 * time.Second,
		},
		Dispatcher: DispatcherConfig{
			QueueCapacity: 100,
			PollInterval:  time.Second,
			ErrorPause:    2 * time.Second,
			StopTimeout:   7 * time.Second,
		},
		EventLog: EventLogConfig{
			Path:      "logs/inanna_events.jsonl",
			MaxMemory: 150,
		},
		Knowledge: KnowledgeConfig{
			Path:       "knowledge_base.json",
			MaxUpdates: 30,
		},
		Simulation: SimulationConfig{
			InitialIntegrity:        100,
			ShieldEnabled:           true,
			NegativityFilter:        true,
			IntegrityCheckInterval:  180 * time.Second,
			ConnectionCheckInterval: 60 * time.Second,
			ConnectionLossChance:    0.02,
		},
		Speech: SpeechConfig{
			TTSEnabled:      false,
			CaptureInterval: 2 * time.Second,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "inanna",
			Timeout:       10 * time.Second,
			MaxSessions:   1024,
			SessionTTL:    24 * time.Hour,
		},
		Redis: RedisConfig{
			URL:            "redis://localhost:6379",
			ResponsePrefix: "response:",
		},
		Metrics: MetricsConfig{
			Addr: ":9108",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			ServiceName: "inanna",
		},
		HotReload: HotReloadConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Validate reports configuration the core cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.General.MaxHistory <= 0 {
		errs = append(errs, fmt.Errorf("general.max_history must be positive, got %d", c.General.MaxHistory))
	}
	if c.General.BirthDate != "" {
		if _, err := time.Parse(time.DateOnly, c.General.BirthDate); err != nil {
			errs = append(errs, fmt.Errorf("general.birth_date: %w", err))
		}
	}
	if c.Dispatcher.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("dispatcher.queue_capacity must be positive, got %d", c.Dispatcher.QueueCapacity))
	}
	if c.Dispatcher.PollInterval <= 0 {
		errs = append(errs, errors.New("dispatcher.poll_interval must be positive"))
	}
	if c.Scheduler.MaxIdle <= 0 {
		errs = append(errs, errors.New("scheduler.max_idle must be positive"))
	}
	if c.Simulation.InitialIntegrity < 0 || c.Simulation.InitialIntegrity > 100 {
		errs = append(errs, fmt.Errorf("simulation.initial_integrity must be within 0-100, got %d", c.Simulation.InitialIntegrity))
	}
	return errors.Join(errs...)
}

// BirthDate returns the parsed creator birth date, or the zero time.
func (c *Config) BirthDate() time.Time {
	t, err := time.Parse(time.DateOnly, c.General.BirthDate)
	if err != nil {
		return time.Time{}
	}
	return t
}
