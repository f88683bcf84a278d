package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Settings are the process-level bootstrap settings, read once at
// startup from ARCHURA_* environment variables. Everything dynamic
// lives in GlobalConfig and arrives from the configuration server.
type Settings struct {
	ListenAddress string `envconfig:"LISTEN_ADDRESS" default:":8080"`
	AdminAddress  string `envconfig:"ADMIN_ADDRESS" default:":9090"`

	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile       string `envconfig:"LOG_FILE"`
	LogMaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"100"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"5"`

	ConfigurationServerURL               string            `envconfig:"CONFIGURATION_SERVER_URL" default:"http://localhost:9010"`
	ConfigurationServerRequestHeaders    map[string]string `envconfig:"CONFIGURATION_SERVER_REQUEST_HEADERS"`
	ConfigurationServerConnectionTimeout int64             `envconfig:"CONFIGURATION_SERVER_CONNECTION_TIMEOUT" default:"10000"`
	ConfigurationServerRetryInterval     int64             `envconfig:"CONFIGURATION_SERVER_RETRY_INTERVAL" default:"10000"`

	NotificationServerURL               string            `envconfig:"NOTIFICATION_SERVER_URL" default:"ws://localhost:9000"`
	NotificationServerRequestHeaders    map[string]string `envconfig:"NOTIFICATION_SERVER_REQUEST_HEADERS"`
	NotificationServerConnectionTimeout int64             `envconfig:"NOTIFICATION_SERVER_CONNECTION_TIMEOUT" default:"10000"`
	NotificationServerRetryInterval     int64             `envconfig:"NOTIFICATION_SERVER_RETRY_INTERVAL" default:"10000"`

	DownstreamConnectionTimeout int64 `envconfig:"DOWNSTREAM_CONNECTION_TIMEOUT" default:"10000"`
}

// LoadSettings reads the bootstrap settings from the environment.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("archura", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Bootstrap builds the initial GlobalConfig seeded from the settings;
// the synchronizer replaces it once the first fetch succeeds.
func (s *Settings) Bootstrap() *GlobalConfig {
	return &GlobalConfig{
		ConfigurationServerURL:               s.ConfigurationServerURL,
		ConfigurationServerRequestHeaders:    s.ConfigurationServerRequestHeaders,
		ConfigurationServerConnectionTimeout: s.ConfigurationServerConnectionTimeout,
		ConfigurationServerRetryInterval:     s.ConfigurationServerRetryInterval,
		NotificationServerURL:                s.NotificationServerURL,
		NotificationServerRequestHeaders:     s.NotificationServerRequestHeaders,
		NotificationServerConnectionTimeout:  s.NotificationServerConnectionTimeout,
		NotificationServerRetryInterval:      s.NotificationServerRetryInterval,
		Domains:                              map[string]*DomainConfig{},
	}
}
