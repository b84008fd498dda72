package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	AuthEnable     bool          `mapstructure:"AUTH_ENABLE"`
	AuthKey        string        `mapstructure:"AUTH_KEY"`
	MaxWorkers     int           `mapstructure:"MAX_WORKERS"`
	PollInterval   time.Duration `mapstructure:"POLL_INTERVAL"`
	JPEGQuality    int           `mapstructure:"JPEG_QUALITY"`
	DefaultOptions string        `mapstructure:"DEFAULT_OPTIONS"`
	MaxInputSize   int64         `mapstructure:"MAX_INPUT_SIZE"`
	ThrottleCPU    float64       `mapstructure:"THROTTLE_CPU"`
	ThrottleMem    int64         `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleDisk   int64         `mapstructure:"THROTTLE_FREEDISK"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
}

// stringToDurationHookFunc parses Go duration strings from config values.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc parses human-readable sizes ("200MB") into int64s.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(data.(string))); err != nil {
			// Not a size string, let other parsers handle it.
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	vp := viper.New()

	// Defaults are strings where a decode hook interprets them.
	vp.SetDefault("PORT", "8080")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "123456")
	vp.SetDefault("MAX_WORKERS", 0) // 0 = derive from hardware concurrency
	vp.SetDefault("POLL_INTERVAL", "100ms")
	vp.SetDefault("JPEG_QUALITY", 90)
	vp.SetDefault("DEFAULT_OPTIONS", "")
	vp.SetDefault("MAX_INPUT_SIZE", "200MB")
	vp.SetDefault("THROTTLE_CPU", 0.0)
	vp.SetDefault("THROTTLE_FREEMEM", "0")
	vp.SetDefault("THROTTLE_FREEDISK", "0")
	vp.SetDefault("LOG_LEVEL", "info")

	vp.SetConfigName("imgbatch_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/imgbatch/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("IMGBATCH")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
