package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the diagnostic client configuration.
type Config struct {
	Host        string        `mapstructure:"host"`
	User        string        `mapstructure:"user"`
	Pass        string        `mapstructure:"pass"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Insecure    bool          `mapstructure:"insecure"`
	CIMClasses  []string      `mapstructure:"cim_classes"`
	SkipCIM     bool          `mapstructure:"skip_cim"`
	SkipMetrics bool          `mapstructure:"skip_metrics"`
	Output      string        `mapstructure:"output"`
	Format      string        `mapstructure:"format"`
	LogLevel    string        `mapstructure:"log_level"`
	LogFormat   string        `mapstructure:"log_format"`
}

// Load reads configuration from file and environment. Environment variables
// use the CONDIAG_ prefix, e.g. CONDIAG_HOST.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("condiag")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/vmware-condiag")
	}

	v.SetDefault("host", "")
	v.SetDefault("user", "")
	v.SetDefault("pass", "")
	v.SetDefault("timeout", "60s")
	v.SetDefault("insecure", true)
	v.SetDefault("cim_classes", []string{"CIM_NumericSensor"})
	v.SetDefault("skip_cim", false)
	v.SetDefault("skip_metrics", false)
	v.SetDefault("output", "")
	v.SetDefault("format", "json")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetEnvPrefix("CONDIAG")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate reports the first missing connection setting.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return errors.New("host is required")
	case c.User == "":
		return errors.New("user is required")
	case c.Pass == "":
		return errors.New("pass is required")
	case c.Timeout < 0:
		return fmt.Errorf("timeout %s is negative", c.Timeout)
	}
	return nil
}
