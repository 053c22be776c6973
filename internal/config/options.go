package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by LoadOptions.
const (
	EnvAddr         = "SLIDEPI_ADDR"
	EnvConfigDir    = "SLIDEPI_CONFIG_DIR"
	EnvMediaDir     = "SLIDEPI_MEDIA_DIR"
	EnvStore        = "SLIDEPI_STORE"
	EnvLockPassword = "SLIDEPI_LOCK_PASSWORD"
	EnvSerialPort   = "SLIDEPI_SERIAL_PORT"
)

// Options are the daemon settings read from the options YAML file. They are
// distinct from the user-editable slideshow Settings kept in the Store.
type Options struct {
	Server      ServerOptions      `yaml:"server"`
	Storage     StorageOptions     `yaml:"storage"`
	Lock        LockOptions        `yaml:"lock"`
	Media       MediaOptions       `yaml:"media"`
	Remote      RemoteOptions      `yaml:"remote"`
	Zeroconf    ZeroconfOptions    `yaml:"zeroconf"`
	Screensaver ScreensaverOptions `yaml:"screensaver"`
	Backup      BackupOptions      `yaml:"backup"`
}

// ServerOptions configures the HTTP listener.
type ServerOptions struct {
	Addr string `yaml:"addr" default:":8080" validate:"required"`
}

// StorageOptions selects where and how the snapshot is kept.
type StorageOptions struct {
	ConfigDir string `yaml:"config_dir"`
	MediaDir  string `yaml:"media_dir"`
	Backend   string `yaml:"backend" default:"json" validate:"oneof=json bolt"`
}

// LockOptions seeds the lock gate.
type LockOptions struct {
	// Password is only used when no credential has been stored yet.
	Password    string `yaml:"password"`
	StartLocked bool   `yaml:"start_locked"`
}

// MediaOptions limits uploads.
type MediaOptions struct {
	MaxUploadMB   int `yaml:"max_upload_mb" default:"20" validate:"gte=1,lte=512"`
	MaxMegapixels int `yaml:"max_megapixels" default:"50" validate:"gte=1,lte=200"`
	MinFreeMB     int `yaml:"min_free_mb" default:"50" validate:"gte=0"`
	ThumbWidth    int `yaml:"thumb_width" default:"320" validate:"gte=32,lte=1920"`
}

// RemoteOptions configures the serial remote. An empty port disables it.
type RemoteOptions struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud" default:"9600" validate:"oneof=1200 2400 4800 9600 19200 38400 57600 115200"`
}

// ZeroconfOptions configures mDNS advertisement.
type ZeroconfOptions struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Name    string `yaml:"name"`
}

// ScreensaverOptions configures the D-Bus screensaver inhibitor.
type ScreensaverOptions struct {
	Inhibit bool `yaml:"inhibit" default:"true"`
}

// BackupOptions configures the daily snapshot backups.
type BackupOptions struct {
	Enabled bool `yaml:"enabled" default:"true"`
	Keep    int  `yaml:"keep" default:"7" validate:"gte=1,lte=365"`
}

var optionsValidator = validator.New()

// DefaultOptions returns Options with every default applied.
func DefaultOptions() Options {
	var o Options
	_ = defaults.Set(&o)
	return o
}

// LoadOptions reads the options file at path. An empty path uses defaults
// only. Environment variables, including those from envFile when it exists,
// take precedence over file values.
func LoadOptions(path, envFile string) (*Options, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}

	// Defaults first so YAML can switch boolean defaults off.
	var o Options
	if err := defaults.Set(&o); err != nil {
		return nil, fmt.Errorf("config: applying defaults: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading options: %w", err)
		}
		if err := yaml.Unmarshal(data, &o); err != nil {
			return nil, fmt.Errorf("config: parsing options: %w", err)
		}
	}

	if err := o.overrideFromEnv(); err != nil {
		return nil, err
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &o, nil
}

// Validate checks the options against their validate tags.
func (o *Options) Validate() error {
	if err := optionsValidator.Struct(o); err != nil {
		return fmt.Errorf("config: invalid options: %w", err)
	}
	return nil
}

func (o *Options) overrideFromEnv() error {
	if v := os.Getenv(EnvAddr); v != "" {
		o.Server.Addr = v
	}
	if v := os.Getenv(EnvConfigDir); v != "" {
		o.Storage.ConfigDir = v
	}
	if v := os.Getenv(EnvMediaDir); v != "" {
		o.Storage.MediaDir = v
	}
	if v := os.Getenv(EnvStore); v != "" {
		o.Storage.Backend = v
	}
	if v := os.Getenv(EnvLockPassword); v != "" {
		o.Lock.Password = v
	}
	if v := os.Getenv(EnvSerialPort); v != "" {
		o.Remote.Port = v
	}
	if v := os.Getenv("SLIDEPI_SERIAL_BAUD"); v != "" {
		baud, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: SLIDEPI_SERIAL_BAUD: %w", err)
		}
		o.Remote.Baud = baud
	}
	return nil
}

// OpenStore returns the Store selected by o.Storage.Backend rooted at
// configDir.
func (o *Options) OpenStore(configDir string) (Store, error) {
	switch o.Storage.Backend {
	case "bolt":
		return NewBoltStore(configDir)
	case "json", "":
		return NewJSONStore(configDir), nil
	default:
		return nil, fmt.Errorf("config: unknown store backend %q", o.Storage.Backend)
	}
}
