package config

import (
	"os"
	"strconv"
)

// A handful of configuration keys are bare env vars rather than under a
// common prefix (KALSHI_ENABLED, BANKROLL_USD, ...). viper's
// AutomaticEnv only sees PMARB_-prefixed names, so these exact keys are
// re-applied by hand after Unmarshal.

func overrideString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func overrideBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func overrideFloat(key string, dst *float64) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func overrideInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}
