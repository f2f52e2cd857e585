package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/oilsync/internal/paths"
	"github.com/mesh-intelligence/oilsync/internal/remote"
	"github.com/mesh-intelligence/oilsync/internal/syncer"
)

// Config keys in config.yaml. Each can also be set from the environment
// as OILSYNC_<KEY>.
const (
	keyAPIURL         = "api_url"
	keyDataDir        = "data_dir"
	keyOwnerID        = "owner_id"
	keyToken          = "token"
	keyCacheMaxAge    = "cache_max_age"
	keyRequestTimeout = "request_timeout"
	keySyncInterval   = "sync_interval"
	keyProbeURL       = "probe_url"
	keyMetricsAddr    = "metrics_addr"
	keyLogLevel       = "log_level"
	keyLogFormat      = "log_format"
)

const envPrefix = "OILSYNC"

// configFile is the structure init writes to config.yaml.
type configFile struct {
	APIURL         string `yaml:"api_url"`
	DataDir        string `yaml:"data_dir,omitempty"`
	OwnerID        int64  `yaml:"owner_id,omitempty"`
	CacheMaxAge    string `yaml:"cache_max_age"`
	RequestTimeout string `yaml:"request_timeout"`
	SyncInterval   string `yaml:"sync_interval"`
	ProbeURL       string `yaml:"probe_url,omitempty"`
	LogLevel       string `yaml:"log_level"`
}

// settings is the effective configuration after flags, environment and
// config.yaml have been merged.
type settings struct {
	ConfigDir      string
	DataDir        string
	APIURL         string
	OwnerID        int64
	Token          string
	CacheMaxAge    time.Duration
	RequestTimeout time.Duration
	SyncInterval   time.Duration
	ProbeURL       string
	MetricsAddr    string
	LogLevel       string
	LogFormat      string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyCacheMaxAge, syncer.DefaultMaxAge)
	v.SetDefault(keyRequestTimeout, remote.DefaultTimeout)
	v.SetDefault(keySyncInterval, syncer.DefaultSyncInterval)
	v.SetDefault(keyLogLevel, "warn")
	v.SetDefault(keyLogFormat, "console")
}

// loadSettings reads config.yaml from configDir, the OILSYNC_ environment
// and the bound flags. A missing config.yaml is not an error.
func loadSettings(configDir string, fs *pflag.FlagSet) (settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(paths.ConfigFile(configDir))
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	// data_dir is resolved by paths, which gives config.yaml priority
	// over the environment.
	fileDataDir := v.GetString(keyDataDir)

	v.SetEnvPrefix(envPrefix)
	for _, key := range []string{
		keyAPIURL, keyOwnerID, keyToken, keyCacheMaxAge, keyRequestTimeout,
		keySyncInterval, keyProbeURL, keyMetricsAddr, keyLogLevel, keyLogFormat,
	} {
		if err := v.BindEnv(key); err != nil {
			return settings{}, err
		}
	}
	for key, flag := range map[string]string{
		keyAPIURL:   "api-url",
		keyOwnerID:  "owner",
		keyToken:    "token",
		keyLogLevel: "log-level",
	} {
		if f := fs.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return settings{}, err
			}
		}
	}

	dataFlag := ""
	if f := fs.Lookup("data-dir"); f != nil {
		dataFlag = f.Value.String()
	}
	dataDir, err := paths.ResolveDataDir(dataFlag, fileDataDir)
	if err != nil {
		return settings{}, fmt.Errorf("resolve data dir: %w", err)
	}

	return settings{
		ConfigDir:      configDir,
		DataDir:        dataDir,
		APIURL:         v.GetString(keyAPIURL),
		OwnerID:        v.GetInt64(keyOwnerID),
		Token:          v.GetString(keyToken),
		CacheMaxAge:    v.GetDuration(keyCacheMaxAge),
		RequestTimeout: v.GetDuration(keyRequestTimeout),
		SyncInterval:   v.GetDuration(keySyncInterval),
		ProbeURL:       v.GetString(keyProbeURL),
		MetricsAddr:    v.GetString(keyMetricsAddr),
		LogLevel:       v.GetString(keyLogLevel),
		LogFormat:      v.GetString(keyLogFormat),
	}, nil
}

// writeConfigIfMissing creates config.yaml with defaults. An existing file
// is left alone.
func writeConfigIfMissing(path string, cfg configFile) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return false, err
	}
	return true, nil
}

func defaultConfigFile(apiURL, dataDir string, ownerID int64) configFile {
	return configFile{
		APIURL:         apiURL,
		DataDir:        dataDir,
		OwnerID:        ownerID,
		CacheMaxAge:    syncer.DefaultMaxAge.String(),
		RequestTimeout: remote.DefaultTimeout.String(),
		SyncInterval:   syncer.DefaultSyncInterval.String(),
		LogLevel:       "warn",
	}
}
