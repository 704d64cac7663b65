// Package config loads connection profiles for the console from a
// YAML file, with environment variable overrides and built-in
// defaults matching a stock FreeSWITCH install.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultProfile is the profile used when none is named on the
// command line.
const DefaultProfile = "default"

type Config struct {
	Profiles map[string]Profile `mapstructure:"profiles"`
}

// Profile holds the resolved settings for one target server.
type Profile struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	User        string        `mapstructure:"user"`
	Debug       int           `mapstructure:"debug"`
	Color       string        `mapstructure:"color"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Retry       bool          `mapstructure:"retry"`
	Reconnect   bool          `mapstructure:"reconnect"`
	Events      []string      `mapstructure:"events"`
	HistoryFile string        `mapstructure:"history_file"`
	LogLevel    string        `mapstructure:"log_level"`
	Quiet       bool          `mapstructure:"quiet"`
}

// Default returns the built-in profile values.
func Default() Profile {
	p := Profile{
		Host:     "localhost",
		Port:     8021,
		Password: "ClueCon",
		Color:    "line",
		Timeout:  2 * time.Second,
		LogLevel: "debug",
	}
	if home, err := os.UserHomeDir(); err == nil {
		p.HistoryFile = filepath.Join(home, ".fscli_history")
	}
	return p
}

// Load reads profiles from file if given, otherwise from the standard
// search paths. A missing config file is not an error: the built-in
// defaults apply and a starter file is written on first run.
func Load(file string) (*Config, error) {
	viper.SetConfigType("yaml")
	if file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.SetConfigName("fscli")
		viper.AddConfigPath("$HOME/.config")
		viper.AddConfigPath("$HOME")
		viper.AddConfigPath("/etc/freeswitch")
	}

	// Environment variable overrides
	viper.SetEnvPrefix("FSCLI")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if file == "" {
			writeStarterFile()
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if config.Profiles == nil {
		config.Profiles = map[string]Profile{}
	}
	if _, ok := config.Profiles[DefaultProfile]; !ok {
		config.Profiles[DefaultProfile] = Profile{}
	}

	return &config, nil
}

// Profile resolves the named profile, filling unset fields from the
// built-in defaults. Naming a profile the config file does not define
// is an error; the implicit default profile always resolves.
func (c *Config) Profile(name string) (Profile, error) {
	p, ok := c.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile %q not found in config", name)
	}
	return fillDefaults(p), nil
}

// Names lists the defined profile names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func fillDefaults(p Profile) Profile {
	def := Default()
	if p.Host == "" {
		p.Host = def.Host
	}
	if p.Port == 0 {
		p.Port = def.Port
	}
	if p.Password == "" {
		p.Password = def.Password
	}
	if p.Color == "" {
		p.Color = def.Color
	}
	if p.Timeout == 0 {
		p.Timeout = def.Timeout
	}
	if p.HistoryFile == "" {
		p.HistoryFile = def.HistoryFile
	}
	if p.LogLevel == "" {
		p.LogLevel = def.LogLevel
	}
	return p
}

// writeStarterFile drops a commented default config on first run so
// users have something to edit. Failures are ignored.
func writeStarterFile() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	dir := filepath.Join(home, ".config")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	path := filepath.Join(dir, "fscli.yaml")
	if _, err := os.Stat(path); err == nil {
		return
	}
	def := Default()
	content := fmt.Sprintf(`profiles:
  default:
    host: %s
    port: %d
    password: %s
    color: %s
    timeout: %s
    log_level: %s
`, def.Host, def.Port, def.Password, def.Color, def.Timeout, def.LogLevel)
	_ = os.WriteFile(path, []byte(content), 0o600)
}
