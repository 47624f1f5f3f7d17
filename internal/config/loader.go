package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads and decodes the TOML configuration file, injecting defaults and
// running validation before handing the result to the caller.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyDefaults(&cfg)
	normalizePrefixes(&cfg.Storage)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Backend == BackendFS {
		abs, err := filepath.Abs(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("resolve storage path: %w", err)
		}
		cfg.Storage.Path = abs
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 6543)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("Fallback", FallbackNone)
	v.SetDefault("AlwaysShowUpstream", false)
	v.SetDefault("FallbackURL", "https://pypi.org/simple")
	v.SetDefault("PackageMaxAge", "0s")
	v.SetDefault("StreamFiles", false)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("Storage.Backend", BackendFS)
	v.SetDefault("Storage.Path", "./storage")
	v.SetDefault("Storage.PrependHash", true)
	v.SetDefault("Storage.RedirectURLs", true)
	v.SetDefault("Storage.SignedURLExpiry", "24h")
}

func applyDefaults(cfg *Config) {
	if cfg.Global.ListenPort == 0 {
		cfg.Global.ListenPort = 6543
	}
	if cfg.Global.Fallback == "" {
		cfg.Global.Fallback = FallbackNone
	}
	cfg.Global.Fallback = strings.ToLower(strings.TrimSpace(cfg.Global.Fallback))
	if cfg.Global.UpstreamTimeout.DurationValue() == 0 {
		cfg.Global.UpstreamTimeout = Duration(30 * time.Second)
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendFS
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.SignedURLExpiry.DurationValue() == 0 {
		cfg.Storage.SignedURLExpiry = Duration(24 * time.Hour)
	}
}

// normalizePrefixes trims prefix separators and drops an upload prefix that is
// identical to the bucket prefix. With identical prefixes there would be no way
// to tell uploaded and cached objects apart, and a full reload from storage
// would process every package twice.
func normalizePrefixes(storage *StorageConfig) {
	storage.Prefix = strings.Trim(storage.Prefix, "/")
	storage.UploadPrefix = strings.Trim(storage.UploadPrefix, "/")
	if storage.UploadPrefix == storage.Prefix {
		storage.UploadPrefix = ""
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			var d Duration
			if err := d.UnmarshalText([]byte(v)); err != nil {
				return nil, err
			}
			return d, nil
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int32:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v) * time.Second), nil
		default:
			return nil, fmt.Errorf("unsupported duration type %T (%s)", data, strconv.Quote(fmt.Sprint(data)))
		}
	}
}
