package config

import "testing"

func TestDefaultValidates(t *testing.T) {
	t.Parallel()
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestValidateRejectsBothVenuesDisabled(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Kalshi.Enabled = false
	cfg.Polymarket.Enabled = false
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when both venues disabled")
	}
}

func TestValidateRejectsNonPositiveBankroll(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Risk.BankrollUsd = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero bankroll")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("BANKROLL_USD", "5000")
	t.Setenv("KALSHI_ENABLED", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Risk.BankrollUsd != 5000 {
		t.Errorf("bankroll = %v, want 5000", cfg.Risk.BankrollUsd)
	}
	if cfg.Kalshi.Enabled {
		t.Error("expected kalshi.enabled overridden to false")
	}
}
