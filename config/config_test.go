package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func viperFromYAML(t *testing.T, yml string) *viper.Viper {
	t.Helper()
	cfg := viper.New()
	cfg.SetConfigType("yaml")
	if err := cfg.ReadConfig(strings.NewReader(yml)); err != nil {
		t.Fatalf("failed reading test config: %v", err)
	}
	return cfg
}

func TestNewFromViper(t *testing.T) {
	cfg := viperFromYAML(t, `
jupyterhub:
  base: https://hub.example.org
  api_token: sekret
  verify_ssl: false
  request_timeout_seconds: 10
listen:
  host: 127.0.0.1
  port: 9090
`)

	c, err := NewFromViper(cfg)
	if err != nil {
		t.Fatalf("NewFromViper failed: %v", err)
	}

	if c.HubBase != "https://hub.example.org" {
		t.Errorf("HubBase = %q", c.HubBase)
	}
	if c.VerifySSL {
		t.Error("VerifySSL = true, want false")
	}
	if c.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", c.RequestTimeout)
	}
	if c.ListenHost != "127.0.0.1" || c.ListenPort != 9090 {
		t.Errorf("listen = %s:%d", c.ListenHost, c.ListenPort)
	}
}

func TestDefaults(t *testing.T) {
	cfg := viperFromYAML(t, `
jupyterhub:
  base: https://hub.example.org
  api_token: sekret
`)

	c, err := NewFromViper(cfg)
	if err != nil {
		t.Fatalf("NewFromViper failed: %v", err)
	}

	if !c.VerifySSL {
		t.Error("VerifySSL should default to true")
	}
	if c.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want the 30s default", c.RequestTimeout)
	}
	if c.ListenPort != 8080 {
		t.Errorf("ListenPort = %d, want the 8080 default", c.ListenPort)
	}
}

func TestValidateNamesMissingKeys(t *testing.T) {
	cfg := viperFromYAML(t, `
listen:
  port: 9090
`)

	_, err := NewFromViper(cfg)
	if err == nil {
		t.Fatal("expected an error for missing keys")
	}
	for _, key := range []string{"jupyterhub.base", "jupyterhub.api_token"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err.Error(), key)
		}
	}
}
