package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/ratelimit"
	"github.com/spf13/viper"
)

const (
	envPrefix            = "SHADI"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "shadi-relay.db"
	defaultLogLevel      = "info"
	defaultTokenIssuer   = "shadi-auth"
	defaultTokenAudience = "shadi-relay"
)

// AppConfig captures runtime configuration for the relay server.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	SigningSecret string
	TokenIssuer   string
	TokenAudience string

	TypingCooldown time.Duration
	SweepInterval  time.Duration
	StoreTimeout   time.Duration

	PushEndpoint string
	PushAPIKey   string
	PushTimeout  time.Duration

	NotificationLimits map[string]ratelimit.Rule
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.audience", defaultTokenAudience)

	configViper.SetDefault("typing.cooldown_ms", 1000)
	configViper.SetDefault("limits.sweep_interval_s", 600)
	configViper.SetDefault("store.timeout_ms", 3000)

	configViper.SetDefault("push.endpoint", "")
	configViper.SetDefault("push.timeout_ms", 5000)

	configViper.SetDefault("limits.chat_message.max", 100)
	configViper.SetDefault("limits.chat_message.window_s", 3600)
	configViper.SetDefault("limits.match_interest.max", 10)
	configViper.SetDefault("limits.match_interest.window_s", 3600)
	configViper.SetDefault("limits.profile_view.max", 50)
	configViper.SetDefault("limits.profile_view.window_s", 3600)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		TokenIssuer:   configViper.GetString("auth.issuer"),
		TokenAudience: configViper.GetString("auth.audience"),

		TypingCooldown: time.Duration(configViper.GetInt("typing.cooldown_ms")) * time.Millisecond,
		SweepInterval:  time.Duration(configViper.GetInt("limits.sweep_interval_s")) * time.Second,
		StoreTimeout:   time.Duration(configViper.GetInt("store.timeout_ms")) * time.Millisecond,

		PushEndpoint: configViper.GetString("push.endpoint"),
		PushAPIKey:   configViper.GetString("push.api_key"),
		PushTimeout:  time.Duration(configViper.GetInt("push.timeout_ms")) * time.Millisecond,

		NotificationLimits: map[string]ratelimit.Rule{
			ratelimit.EventChatMessage:   ruleFrom(configViper, "limits.chat_message"),
			ratelimit.EventMatchInterest: ruleFrom(configViper, "limits.match_interest"),
			ratelimit.EventProfileView:   ruleFrom(configViper, "limits.profile_view"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func ruleFrom(configViper *viper.Viper, prefix string) ratelimit.Rule {
	return ratelimit.Rule{
		Max:    configViper.GetInt(prefix + ".max"),
		Window: time.Duration(configViper.GetInt(prefix+".window_s")) * time.Second,
	}
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TypingCooldown <= 0 {
		return fmt.Errorf("typing.cooldown_ms must be positive")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store.timeout_ms must be positive")
	}
	for eventType, rule := range c.NotificationLimits {
		if rule.Max < 0 || rule.Window < 0 {
			return fmt.Errorf("limits.%s must not be negative", eventType)
		}
	}
	return nil
}
