package config

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publicKeyB64(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return base64.StdEncoding.EncodeToString(pemBytes), key
}

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_DefaultsWithoutLaunchDarkly(t *testing.T) {
	pub, key := publicKeyB64(t)

	cfg, err := Load(envFrom(map[string]string{
		"RSA_PUBLIC_KEY_BASE64": pub,
	}))
	require.NoError(t, err)

	assert.Equal(t, DefaultAppName, cfg.AppName)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, key.PublicKey.N, cfg.RSAPublicKey.N)
	assert.Equal(t, DefaultTwilioFrom, cfg.LDFlag_TwilioFromPhone)
	assert.Equal(t, DefaultSendgridFrom, cfg.LDFlag_SendgridFromEmail)
	assert.True(t, cfg.LDFlag_SendgridSandboxMode)
	assert.False(t, cfg.LDFlag_UsePostgresStore)
	assert.False(t, cfg.LDFlag_UseRedisLedger)
	assert.False(t, cfg.MessagingEnabled())
	assert.Zero(t, cfg.OfferTTL)
}

func TestLoad_BackendsFollowConfiguredAddresses(t *testing.T) {
	pub, _ := publicKeyB64(t)

	cfg, err := Load(envFrom(map[string]string{
		"ENV":                   "prod",
		"RSA_PUBLIC_KEY_BASE64": pub,
		"DB_URL":                "postgres://jobsync@localhost:5432/jobsync",
		"REDIS_ADDR":            "localhost:6379",
		"REDIS_DB":              "2",
		"NOTIFICATION_WINDOW":   "90s",
		"OFFER_TTL":             "30m",
		"TWILIO_ACCOUNT_SID":    "AC123",
		"TWILIO_AUTH_TOKEN":     "token",
		"SENDGRID_API_KEY":      "SG.key",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.LDFlag_UsePostgresStore)
	assert.True(t, cfg.LDFlag_UseRedisLedger)
	assert.True(t, cfg.LDFlag_CORSHighSecurity)
	assert.False(t, cfg.LDFlag_SendgridSandboxMode)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 90*time.Second, cfg.NotificationWindow)
	assert.Equal(t, 30*time.Minute, cfg.OfferTTL)
	assert.True(t, cfg.MessagingEnabled())
}

func TestLoad_Rejects(t *testing.T) {
	pub, _ := publicKeyB64(t)

	cases := map[string]map[string]string{
		"missing key":  {},
		"bad key":      {"RSA_PUBLIC_KEY_BASE64": base64.StdEncoding.EncodeToString([]byte("nope"))},
		"bad redis db": {"RSA_PUBLIC_KEY_BASE64": pub, "REDIS_DB": "two"},
		"bad window":   {"RSA_PUBLIC_KEY_BASE64": pub, "FEED_DEDUPE_WINDOW": "ten minutes"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(envFrom(env))
			require.Error(t, err)
		})
	}
}
