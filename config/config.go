package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	HubBase     string
	HubAPIToken string
	VerifySSL   bool

	RequestTimeout time.Duration

	ListenHost string
	ListenPort int
}

func NewFromViper(cfg *viper.Viper) (*Config, error) {
	cfg.SetDefault("jupyterhub.verify_ssl", true)

	c := &Config{
		HubBase:     cfg.GetString("jupyterhub.base"),
		HubAPIToken: cfg.GetString("jupyterhub.api_token"),
		VerifySSL:   cfg.GetBool("jupyterhub.verify_ssl"),

		RequestTimeout: time.Duration(cfg.GetInt("jupyterhub.request_timeout_seconds")) * time.Second,

		ListenHost: cfg.GetString("listen.host"),
		ListenPort: cfg.GetInt("listen.port"),
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.ListenPort <= 0 {
		c.ListenPort = 8080
	}

	err := c.Validate()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errorkeys []string

	if c.HubBase == "" {
		errorkeys = append(errorkeys, "jupyterhub.base")
	}
	if c.HubAPIToken == "" {
		errorkeys = append(errorkeys, "jupyterhub.api_token")
	}

	// ListenHost can be the empty string (bind all interfaces)

	if len(errorkeys) > 0 {
		return errors.Errorf("Configuration keys must be set: %s", strings.Join(errorkeys, ", "))
	}
	return nil
}
