package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr() != "0.0.0.0:50051" {
		t.Fatalf("GRPCAddr = %q", cfg.GRPCAddr())
	}
	if cfg.StorageDriver != "postgres" || cfg.Notify.Driver != "log" || cfg.Payment.Driver != "log" {
		t.Fatalf("drivers = %s/%s/%s", cfg.StorageDriver, cfg.Notify.Driver, cfg.Payment.Driver)
	}
	if cfg.Scheduling.DefaultUTCOffset != "+05:00" {
		t.Fatalf("default offset = %q", cfg.Scheduling.DefaultUTCOffset)
	}
	if cfg.Scheduling.PaymentWindow != 24*time.Hour || cfg.Scheduling.ConfirmationGrace != time.Hour {
		t.Fatalf("scheduling = %+v", cfg.Scheduling)
	}
	if cfg.Sweeper.ConfirmationInterval != 5*time.Minute || cfg.Sweeper.PaymentInterval != time.Hour || cfg.Sweeper.BatchSize != 100 {
		t.Fatalf("sweeper = %+v", cfg.Sweeper)
	}
	if cfg.EffectsTimeout != 5*time.Second || cfg.IdentityTTL != time.Minute {
		t.Fatalf("effects timeout = %s, identity ttl = %s", cfg.EffectsTimeout, cfg.IdentityTTL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SESSIONBOOK_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("SESSIONBOOK_STORAGE_DRIVER", "Memory")
	t.Setenv("SESSIONBOOK_SWEEPER_PAYMENT_INTERVAL", "15m")
	t.Setenv("SESSIONBOOK_NOTIFY_DRIVER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DATABASE_URL", "postgres://other/db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr() != "127.0.0.1:6000" {
		t.Fatalf("GRPCAddr = %q", cfg.GRPCAddr())
	}
	if cfg.StorageDriver != "memory" {
		t.Fatalf("storage driver = %q", cfg.StorageDriver)
	}
	if cfg.Sweeper.PaymentInterval != 15*time.Minute {
		t.Fatalf("payment interval = %s", cfg.Sweeper.PaymentInterval)
	}
	if cfg.Notify.KafkaBrokers != "k1:9092,k2:9092" || cfg.DatabaseURL != "postgres://other/db" {
		t.Fatalf("brokers = %q db = %q", cfg.Notify.KafkaBrokers, cfg.DatabaseURL)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "bad duration", env: map[string]string{"SESSIONBOOK_SWEEPER_JITTER": "soon"}, want: "sweeper.jitter"},
		{name: "unknown storage", env: map[string]string{"SESSIONBOOK_STORAGE_DRIVER": "mongo"}, want: "storage.driver"},
		{name: "stripe without key", env: map[string]string{"SESSIONBOOK_PAYMENT_DRIVER": "stripe"}, want: "stripe_secret_key"},
		{name: "kafka without brokers", env: map[string]string{"SESSIONBOOK_NOTIFY_DRIVER": "kafka"}, want: "kafka_brokers"},
		{name: "zero interval", env: map[string]string{"SESSIONBOOK_SWEEPER_COMPLETION_INTERVAL": "0s"}, want: "completion_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
