package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads the YAML config file at path and unmarshals it into a
// Config, the way firestige-Otus's otus/config.Load does: point a
// fresh viper at the file's directory/name/extension, read it, then
// unmarshal via mapstructure tags.
func Load(path string) (*Config, error) {
	v := viper.New()

	dir := filepath.Dir(path)
	filename := filepath.Base(path)
	ext := filepath.Ext(filename)
	nameWithoutExt := strings.TrimSuffix(filename, ext)

	v.SetConfigName(nameWithoutExt)
	v.SetConfigType(strings.TrimPrefix(ext, "."))
	v.AddConfigPath(dir)

	v.SetEnvPrefix("XMPPAPBRIDGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DefaultLang == "" {
		cfg.DefaultLang = "en"
	}
	if cfg.UnknownLang == "" {
		cfg.UnknownLang = cfg.DefaultLang
	}
	if cfg.MaxDestToSend < 1 {
		cfg.MaxDestToSend = 1
	}
	if len(cfg.Pfix) != 4 {
		cfg.Pfix = []string{"@", "xmpp:", "!", "lang="}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}
