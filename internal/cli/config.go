package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/vetlab/internal/server"
	"github.com/mesh-intelligence/vetlab/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "VETLAB"

	cfgKeyBackend       = "backend"
	cfgKeyDataDir       = "data_dir"
	cfgKeyLogLevel      = "log_level"
	cfgKeyLogFormat     = "log_format"
	cfgKeyServerAddr    = "server.addr"
	cfgKeyAdminPassword = "admin.default_password"
)

// configFile is the structure written to config.yaml by init.
type configFile struct {
	Backend   string        `yaml:"backend"`
	DataDir   string        `yaml:"data_dir,omitempty"`
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"`
	Server    serverSection `yaml:"server"`
	Admin     adminSection  `yaml:"admin,omitempty"`
}

type serverSection struct {
	Addr string `yaml:"addr"`
}

type adminSection struct {
	DefaultPassword string `yaml:"default_password,omitempty"`
}

func defaultConfigFile(dataDir string) configFile {
	return configFile{
		Backend:   types.BackendSQLite,
		DataDir:   dataDir,
		LogLevel:  zerolog.LevelInfoValue,
		LogFormat: "console",
		Server:    serverSection{Addr: server.DefaultAddr},
	}
}

// loadConfig reads config.yaml from configDir using Viper. A missing file
// is not an error; defaults and VETLAB_* environment variables still apply.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyLogLevel, zerolog.LevelInfoValue)
	v.SetDefault(cfgKeyLogFormat, "console")
	v.SetDefault(cfgKeyServerAddr, server.DefaultAddr)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// writeConfigIfMissing creates config.yaml with default values if the file
// does not exist. It reports whether a file was written.
func writeConfigIfMissing(path, dataDir string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	cfg := defaultConfigFile(dataDir)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// newLogger builds the zerolog logger described by log_level and log_format.
func newLogger(v *viper.Viper, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(v.GetString(cfgKeyLogLevel))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log_level: %w", err)
	}
	switch format := v.GetString(cfgKeyLogFormat); format {
	case "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	default:
		return zerolog.Nop(), fmt.Errorf("log_format %q: want json or console", format)
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// storeConfig builds the backend config from the loaded settings.
func (e *env) storeConfig() (types.Config, error) {
	dir, err := e.dataDir()
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	return types.Config{
		Backend:       e.cfg.GetString(cfgKeyBackend),
		DataDir:       dir,
		AdminPassword: e.cfg.GetString(cfgKeyAdminPassword),
	}, nil
}
