package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`

	Log     LogConfig     `mapstructure:"log"`
	Signal  SignalConfig  `mapstructure:"signal"`
	Token   TokenConfig   `mapstructure:"token"`
	Storage StorageConfig `mapstructure:"storage"`
	Device  DeviceConfig  `mapstructure:"device"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type SignalConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	JoinLimit  int           `mapstructure:"join_limit"`
	JoinWindow time.Duration `mapstructure:"join_window"`
	ICEServers []string      `mapstructure:"ice_servers"`
}

type TokenConfig struct {
	AppID       string        `mapstructure:"app_id"`
	Certificate string        `mapstructure:"certificate"`
	TTL         time.Duration `mapstructure:"ttl"`
}

type StorageConfig struct {
	Backend string        `mapstructure:"backend"`
	URLTTL  time.Duration `mapstructure:"url_ttl"`
	Local   LocalStorage  `mapstructure:"local"`
	S3      S3Storage     `mapstructure:"s3"`
	GCS     GCSStorage    `mapstructure:"gcs"`
	Azure   AzureStorage  `mapstructure:"azure"`
	B2      B2Storage     `mapstructure:"b2"`
}

type LocalStorage struct {
	Root    string `mapstructure:"root"`
	BaseURL string `mapstructure:"base_url"`
}

type S3Storage struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type GCSStorage struct {
	Bucket          string `mapstructure:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AzureStorage struct {
	ConnectionString string `mapstructure:"connection_string"`
	Container        string `mapstructure:"container"`
}

type B2Storage struct {
	Account string `mapstructure:"account"`
	Key     string `mapstructure:"key"`
	Bucket  string `mapstructure:"bucket"`
}

// DeviceConfig drives cmd/babyfoon.
type DeviceConfig struct {
	Server        string        `mapstructure:"server"`
	Transport     string        `mapstructure:"transport"`
	ChunkInterval time.Duration `mapstructure:"chunk_interval"`
	MaxMisses     int           `mapstructure:"max_misses"`
	SampleRate    int           `mapstructure:"sample_rate"`
	LoudThreshold float64       `mapstructure:"loud_threshold"`
	AlertDebounce time.Duration `mapstructure:"alert_debounce"`
	ClaimAttempts int           `mapstructure:"claim_attempts"`
}

const (
	TransportRTC     = "rtc"
	TransportChunked = "chunked"
)

var (
	modes     = []string{"debug", "release", "test"}
	backends  = []string{"local", "s3", "gcs", "azure", "b2"}
	transport = []string{TransportRTC, TransportChunked}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("signal.read_limit", 32768)
	v.SetDefault("signal.ping_period", "54s")
	v.SetDefault("signal.join_limit", 10)
	v.SetDefault("signal.join_window", "1m")
	v.SetDefault("signal.ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("token.app_id", "")
	v.SetDefault("token.certificate", "")
	v.SetDefault("token.ttl", "1h")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.url_ttl", "15m")
	v.SetDefault("storage.local.root", "./data/audio-streams")
	v.SetDefault("storage.local.base_url", "/media")
	for _, k := range []string{
		"s3.bucket", "s3.region", "s3.endpoint", "s3.access_key", "s3.secret_key",
		"gcs.bucket", "gcs.credentials_file",
		"azure.connection_string", "azure.container",
		"b2.account", "b2.key", "b2.bucket",
	} {
		v.SetDefault("storage."+k, "")
	}

	v.SetDefault("device.server", "http://localhost:8080")
	v.SetDefault("device.transport", TransportRTC)
	v.SetDefault("device.chunk_interval", "3s")
	v.SetDefault("device.max_misses", 3)
	v.SetDefault("device.sample_rate", 8000)
	v.SetDefault("device.loud_threshold", 0.65)
	v.SetDefault("device.alert_debounce", "10s")
	v.SetDefault("device.claim_attempts", 5)
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). Every key can be
// overridden from the environment, e.g. BABYFOON_TOKEN_APP_ID.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("BABYFOON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if !slices.Contains(modes, c.Mode) {
		return fmt.Errorf("config: mode %q not in %v", c.Mode, modes)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if !slices.Contains(backends, c.Storage.Backend) {
		return fmt.Errorf("config: storage backend %q not in %v", c.Storage.Backend, backends)
	}
	if !slices.Contains(transport, c.Device.Transport) {
		return fmt.Errorf("config: device transport %q not in %v", c.Device.Transport, transport)
	}
	if c.Device.LoudThreshold <= 0 || c.Device.LoudThreshold > 1 {
		return fmt.Errorf("config: loud threshold %v must be in (0,1]", c.Device.LoudThreshold)
	}
	if c.Device.ChunkInterval <= 0 {
		return fmt.Errorf("config: chunk interval must be positive")
	}
	return nil
}
