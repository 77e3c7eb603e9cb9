// Package config loads the service configuration (configs/config.yml), the
// plant tuning file (configs/plant.ini) and the command line.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"desalination_plant/internal/logger"
	"desalination_plant/internal/plant"
	"desalination_plant/internal/publish"

	"github.com/pborman/getopt/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile = "configs/config.yml"
	envPrefix         = "DESAL"
)

type DBConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type ScanConfig struct {
	Period        time.Duration `mapstructure:"period" yaml:"period"`
	PersistEvery  int           `mapstructure:"persist_every" yaml:"persist_every"`
	CommLossScans int           `mapstructure:"comm_loss_scans" yaml:"comm_loss_scans"`
	CommandQueue  int           `mapstructure:"command_queue" yaml:"command_queue"`
}

type SimulationConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Tick    time.Duration `mapstructure:"tick" yaml:"tick"`
}

type AuthConfig struct {
	SigningKey string `mapstructure:"signing_key" yaml:"-"`
}

// Config is the effective service configuration.
type Config struct {
	Port       string              `mapstructure:"port" yaml:"port"`
	LogLevel   string              `mapstructure:"log_level" yaml:"log_level"`
	DB         DBConfig            `mapstructure:"db" yaml:"db"`
	Scan       ScanConfig          `mapstructure:"scan" yaml:"scan"`
	Simulation SimulationConfig    `mapstructure:"simulation" yaml:"simulation"`
	MQTT       publish.MQTTConfig  `mapstructure:"mqtt" yaml:"mqtt"`
	Kafka      publish.KafkaConfig `mapstructure:"kafka" yaml:"kafka"`
	Auth       AuthConfig          `mapstructure:"auth" yaml:"auth"`
	PlantFile  string              `mapstructure:"plant_file" yaml:"plant_file"`

	Plant plant.Config `mapstructure:"-" yaml:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", logger.InfoLevel)
	v.SetDefault("db.path", "plant.db")
	v.SetDefault("scan.period", "100ms")
	v.SetDefault("scan.persist_every", 10)
	v.SetDefault("scan.comm_loss_scans", 3)
	v.SetDefault("scan.command_queue", 16)
	v.SetDefault("simulation.enabled", true)
	v.SetDefault("simulation.tick", "100ms")
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "desalination-plant")
	v.SetDefault("mqtt.prefix", "desal")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "desal.plant.events")
	v.SetDefault("kafka.queue", 256)
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("plant_file", "configs/plant.ini")
}

// Flags are the command line options.
type Flags struct {
	ConfigFile string
	PlantFile  string
	LogLevel   string
	Help       bool
}

// ParseFlags parses args (args[0] is the program name).
func ParseFlags(args []string, usage io.Writer) (Flags, error) {
	f := Flags{ConfigFile: DefaultConfigFile}
	set := getopt.New()
	set.FlagLong(&f.ConfigFile, "config", 'c', "config file pathname")
	set.FlagLong(&f.PlantFile, "plant", 'p', "plant tuning file (ini), overrides plant_file")
	set.FlagLong(&f.LogLevel, "log-level", 'l', "log levels: debug, info, warn, error")
	set.FlagLong(&f.Help, "help", 'h', "display help")

	if err := set.Getopt(args, nil); err != nil {
		set.PrintUsage(usage)
		return f, err
	}
	if f.Help {
		set.PrintUsage(usage)
	}
	return f, nil
}

// Load reads the service config named by f, applies environment overrides
// (DESAL_PORT, DESAL_AUTH_SIGNING_KEY, ...) and loads the plant file.
// A missing default config file is not an error.
func Load(f Flags) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := f.ConfigFile
	if path == "" {
		path = DefaultConfigFile
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !(errors.Is(err, os.ErrNotExist) && path == DefaultConfigFile) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.PlantFile != "" {
		cfg.PlantFile = f.PlantFile
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	pc, err := LoadPlant(cfg.PlantFile)
	if err != nil {
		return nil, err
	}
	cfg.Plant = pc
	return &cfg, nil
}

func (c *Config) validate() error {
	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.Scan.Period <= 0 {
		return fmt.Errorf("scan.period must be > 0, got %s", c.Scan.Period)
	}
	if c.Simulation.Enabled && c.Simulation.Tick <= 0 {
		return fmt.Errorf("simulation.tick must be > 0, got %s", c.Simulation.Tick)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	return nil
}

// Dump logs the effective config at debug level. Secrets are not printed.
func (c *Config) Dump(log *logger.Logger) {
	d, err := yaml.Marshal(c)
	if err != nil {
		log.Warnw("config dump failed", "err", err)
		return
	}
	log.Debugf("--- Config ---\n%s", string(d))
	log.Debugw("plant config",
		"setpoints", c.Plant.Setpoints,
		"limits", c.Plant.Limits,
		"interlocks", c.Plant.Interlocks,
		"feed_units", c.Plant.FeedPumps.Units,
		"hp_units", c.Plant.HPPumps.Units)
}
