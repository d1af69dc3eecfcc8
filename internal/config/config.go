// Package config defines the data structures related to configuration and
// includes functions for loading and validating the config.
package config

import (
	"fmt"

	"github.com/avidalv/mortgage-tracker/pkg/constants"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for mortgage-tracker.
type Configuration struct {
	Server   ServerConfig   `yaml:"server,omitempty"`
	Database DatabaseConfig `yaml:"database,omitempty"`
	Redis    RedisConfig    `yaml:"redis,omitempty"`
	Auth     AuthConfig     `yaml:"auth,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Output   OutputConfig   `yaml:"output,omitempty"`
}

// ServerConfig holds HTTP API options.
type ServerConfig struct {
	Address string `yaml:"address,omitempty"`
	// RequestLimit is the number of requests allowed per client per minute.
	RequestLimit int `yaml:"requestLimit,omitempty"`
}

// DatabaseConfig holds the PostgreSQL connection options.
type DatabaseConfig struct {
	URL string `yaml:"url,omitempty"`
}

// RedisConfig holds the optional schedule-cache backend options. When Address
// is empty the application falls back to an in-process cache.
type RedisConfig struct {
	Address  string `yaml:"address,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// AuthConfig lists the users allowed to sign in to the API.
type AuthConfig struct {
	Users []UserConfig `yaml:"users,omitempty"`
}

// UserConfig is one configured account.
type UserConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	// Role apportions mortgage shares: lender or borrower.
	Role string `yaml:"role,omitempty"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`      // debug, info, warn, error
	Format     string `yaml:"format,omitempty"`     // json, console
	OutputFile string `yaml:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty"` // pretty, csv, pdf
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there.
func LoadConfiguration(configPath string) (*Configuration, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()

	viper.SetConfigType("yml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}

	var configuration Configuration
	err := viper.Unmarshal(&configuration)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}

	configuration.applyDefaults()
	return &configuration, nil
}

func (c *Configuration) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = constants.DefaultServerAddress
	}
	if c.Server.RequestLimit <= 0 {
		c.Server.RequestLimit = constants.DefaultRequestLimit
	}
}

// ValidateConfiguration performs general validation of the configuration and
// returns warnings rather than failing hard; only the database URL is
// strictly required to run.
func (c *Configuration) ValidateConfiguration() []string {
	var warnings []string

	if c.Database.URL == "" {
		warnings = append(warnings, "database.url is not set; persistence is unavailable")
	}
	if c.Redis.Address == "" {
		warnings = append(warnings, "redis.address is not set; using in-process schedule cache")
	}
	if len(c.Auth.Users) == 0 {
		warnings = append(warnings, "auth.users is empty; nobody can sign in to the API")
	}
	for i, u := range c.Auth.Users {
		if u.Email == "" || u.Password == "" {
			warnings = append(warnings, fmt.Sprintf("auth.users[%d] is missing email or password", i))
		}
	}

	return warnings
}
