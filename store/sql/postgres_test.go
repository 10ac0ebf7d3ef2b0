package sqlstore

import (
	"testing"
	"time"
)

func TestNewPostgresFactory_RequiresDSN(t *testing.T) {
	if _, _, err := NewPostgresFactory(PostgresConfig{DSN: "  "}); err == nil {
		t.Fatalf("expected blank dsn to fail")
	}
}

func TestPostgresConfig_Defaults(t *testing.T) {
	cfg := PostgresConfig{DSN: "postgres://localhost/access"}
	if cfg.GetDriver() != "postgres" {
		t.Fatalf("expected postgres driver, got %q", cfg.GetDriver())
	}
	if cfg.GetPingTimeout() != 5*time.Second {
		t.Fatalf("expected default ping timeout, got %v", cfg.GetPingTimeout())
	}
	cfg.PingTimeout = time.Second
	if cfg.GetPingTimeout() != time.Second {
		t.Fatalf("expected explicit ping timeout, got %v", cfg.GetPingTimeout())
	}
}
