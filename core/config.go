package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
)

const (
	// CallbackVerificationHMAC checks a hex HMAC-SHA256 of the raw
	// delivery body against the signature header.
	CallbackVerificationHMAC = "hmac"
	// CallbackVerificationSharedHeader compares the configured secret
	// against the registered header value on each delivery.
	CallbackVerificationSharedHeader = "shared_header"
)

type CallbackConfig struct {
	URL          string `koanf:"url" mapstructure:"url"`
	Header       string `koanf:"header" mapstructure:"header"`
	Secret       string `koanf:"secret" mapstructure:"secret"`
	Verification string `koanf:"verification" mapstructure:"verification"`
}

type Config struct {
	BaseURL            string         `koanf:"base_url" mapstructure:"base_url"`
	OrganizationID     string         `koanf:"organization_id" mapstructure:"organization_id"`
	ClientID           string         `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret       string         `koanf:"client_secret" mapstructure:"client_secret"`
	ApplicationID      string         `koanf:"application_id" mapstructure:"application_id"`
	ApplicationVersion string         `koanf:"application_version" mapstructure:"application_version"`
	RequestTimeout     time.Duration  `koanf:"request_timeout" mapstructure:"request_timeout"`
	TokenSafetyMargin  time.Duration  `koanf:"token_safety_margin" mapstructure:"token_safety_margin"`
	MaxAttempts        int            `koanf:"max_attempts" mapstructure:"max_attempts"`
	Callback           CallbackConfig `koanf:"callback" mapstructure:"callback"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:            "https://api.origo.hidglobal.com",
		ApplicationID:      "acme-mobile-access",
		ApplicationVersion: "1.0.0",
		RequestTimeout:     30 * time.Second,
		TokenSafetyMargin:  60 * time.Second,
		MaxAttempts:        4,
		Callback: CallbackConfig{
			Header:       "X-Access-Signature",
			Verification: CallbackVerificationHMAC,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("core: base_url is required")
	}
	if strings.TrimSpace(c.OrganizationID) == "" {
		return fmt.Errorf("core: organization_id is required")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("core: client_id is required")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return fmt.Errorf("core: client_secret is required")
	}
	switch strings.TrimSpace(c.Callback.Verification) {
	case "", CallbackVerificationHMAC, CallbackVerificationSharedHeader:
	default:
		return fmt.Errorf("core: callback verification %q is not supported", c.Callback.Verification)
	}
	return nil
}

// TokenURL is the OAuth2 client-credentials endpoint for the
// configured organization.
func (c Config) TokenURL() string {
	return fmt.Sprintf(
		"%s/authentication/customer/%s/token",
		strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"),
		strings.TrimSpace(c.OrganizationID),
	)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}
