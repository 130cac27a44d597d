package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("REFUND_ON_REJECT", "")
	t.Setenv("DAILY_AD_CAP", "")
	t.Setenv("TRUSTED_PROXIES", "")
	t.Setenv("TOKEN_ISSUER_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.TrustedProxies)
	assert.Empty(t, cfg.TokenIssuerKey)

	assert.Equal(t, StoreRedis, cfg.StoreDriver)
	assert.Equal(t, GuardMemory, cfg.ClickGuard)
	assert.True(t, cfg.RefundOnReject)
	assert.Equal(t, 1000, cfg.DailyAdCap)
	assert.True(t, cfg.Withdrawals.MinCrypto.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, cfg.Withdrawals.MaxLocal.Equal(decimal.NewFromInt(5000)))
	assert.True(t, cfg.Withdrawals.LocalRate.Equal(decimal.NewFromInt(100)))
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MySQL")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("REFUND_ON_REJECT", "false")
	t.Setenv("WITHDRAW_MIN_CRYPTO", "1.25")
	t.Setenv("TRUSTED_PROXIES", " 10.0.0.1, ,192.168.0.0/16 ")
	t.Setenv("TOKEN_ISSUER_KEY", "issuer")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.1", "192.168.0.0/16"}, cfg.TrustedProxies)
	assert.Equal(t, "issuer", cfg.TokenIssuerKey)

	assert.Equal(t, StoreMySQL, cfg.StoreDriver)
	assert.Equal(t, 3307, cfg.MySQL.Port)
	assert.False(t, cfg.RefundOnReject)
	assert.Equal(t, "1.25", cfg.Withdrawals.MinCrypto.String())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown driver", "STORE_DRIVER", "mongo"},
		{"unknown guard", "CLICK_GUARD", "etcd"},
		{"bad int", "DAILY_AD_CAP", "many"},
		{"bad bool", "REFUND_ON_REJECT", "maybe"},
		{"bad decimal", "WITHDRAW_MAX_LOCAL", "lots"},
		{"zero rate", "LOCAL_CURRENCY_RATE", "0"},
		{"min above max", "WITHDRAW_MIN_CRYPTO", "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("HASH_SECRET", "")
	t.Setenv("JWT_SECRET", "jwt")

	_, err := Load()
	assert.ErrorContains(t, err, "HASH_SECRET")

	t.Setenv("HASH_SECRET", "hash")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
