package config

import (
	"testing"
	"time"

	"github.com/pushp314/chhattisgarhshadi-backend-sub000/internal/ratelimit"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	if cfg.HTTPAddress != "0.0.0.0:8080" {
		t.Fatalf("unexpected http address %s", cfg.HTTPAddress)
	}
	if cfg.TypingCooldown != time.Second {
		t.Fatalf("unexpected typing cooldown %v", cfg.TypingCooldown)
	}
	if cfg.StoreTimeout != 3*time.Second {
		t.Fatalf("unexpected store timeout %v", cfg.StoreTimeout)
	}
	if cfg.PushTimeout != 5*time.Second {
		t.Fatalf("unexpected push timeout %v", cfg.PushTimeout)
	}

	chat := cfg.NotificationLimits[ratelimit.EventChatMessage]
	if chat.Max != 100 || chat.Window != time.Hour {
		t.Fatalf("unexpected chat limit %+v", chat)
	}
	interest := cfg.NotificationLimits[ratelimit.EventMatchInterest]
	if interest.Max != 10 || interest.Window != time.Hour {
		t.Fatalf("unexpected match interest limit %+v", interest)
	}
	view := cfg.NotificationLimits[ratelimit.EventProfileView]
	if view.Max != 50 || view.Window != time.Hour {
		t.Fatalf("unexpected profile view limit %+v", view)
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	configViper := NewViper()
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected error for missing signing secret")
	}
}

func TestLoadRejectsNonPositiveCooldown(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("typing.cooldown_ms", 0)
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected error for zero cooldown")
	}
}

func TestLoadHonorsOverrides(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("limits.chat_message.max", 5)
	configViper.Set("limits.chat_message.window_s", 60)

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	chat := cfg.NotificationLimits[ratelimit.EventChatMessage]
	if chat.Max != 5 || chat.Window != time.Minute {
		t.Fatalf("unexpected overridden chat limit %+v", chat)
	}
}
