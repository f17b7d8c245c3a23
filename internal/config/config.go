package config

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	ld "github.com/launchdarkly/go-server-sdk/v7"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

type Config struct {
	OrganizationName string
	AppName          string
	Env              string
	AppPort          string
	AppUrl           string

	// Database
	DBUrl string

	// Redis (shared idempotency ledger)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Twilio / SendGrid for job notifications
	TwilioAccountSID string
	TwilioAuthToken  string
	SendGridAPIKey   string

	// Auth
	RSAPublicKey *rsa.PublicKey

	// Engine windows; zero means the engine default
	NotificationWindow time.Duration
	FeedDedupeWindow   time.Duration
	OfferTTL           time.Duration

	// LaunchDarkly flags
	LDFlag_TwilioFromPhone     string
	LDFlag_SendgridFromEmail   string
	LDFlag_SendgridSandboxMode bool
	LDFlag_SeedDbWithTestData  bool
	LDFlag_CORSHighSecurity    bool
	LDFlag_UseRedisLedger      bool
	LDFlag_UsePostgresStore    bool
}

const (
	OrganizationName    = "Villa Operations"
	LDConnectionTimeout = 5 * time.Second

	DefaultAppName      = "jobsync-service"
	DefaultTwilioFrom   = "+10005550006"
	DefaultSendgridFrom = "no-reply@villa-ops.example"
)

// build-time overrides
var (
	AppName             string
	LDServerContextKey  = "jobsync-service"
	LDServerContextKind = "service"
)

func LoadConfig() *Config {
	cfg, err := Load(os.Getenv)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to load config")
	}
	return cfg
}

// Load builds the config from getenv and the LaunchDarkly flags. Without LD_SDK_KEY the
// LaunchDarkly client runs offline and every flag takes its default.
func Load(getenv func(string) string) (*Config, error) {
	appName := AppName
	if appName == "" {
		appName = DefaultAppName
	}
	utils.Logger.Info("Loading config for app: ", appName)

	env := getenv("ENV")
	if env == "" {
		env = utils.DevEnvironment
	}
	appPort := getenv("APP_PORT")
	if appPort == "" {
		appPort = "8080"
	}

	pubKey, err := parsePublicKey(getenv("RSA_PUBLIC_KEY_BASE64"))
	if err != nil {
		return nil, err
	}

	redisDB := 0
	if v := getenv("REDIS_DB"); v != "" {
		redisDB, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("REDIS_DB: %w", err)
		}
	}

	cfg := &Config{
		OrganizationName: OrganizationName,
		AppName:          appName,
		Env:              env,
		AppPort:          appPort,
		AppUrl:           getenv("APP_URL_FROM_ANYWHERE"),
		DBUrl:            getenv("DB_URL"),
		RedisAddr:        getenv("REDIS_ADDR"),
		RedisPassword:    getenv("REDIS_PASSWORD"),
		RedisDB:          redisDB,
		TwilioAccountSID: getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  getenv("TWILIO_AUTH_TOKEN"),
		SendGridAPIKey:   getenv("SENDGRID_API_KEY"),
		RSAPublicKey:     pubKey,
	}

	for name, dst := range map[string]*time.Duration{
		"NOTIFICATION_WINDOW": &cfg.NotificationWindow,
		"FEED_DEDUPE_WINDOW":  &cfg.FeedDedupeWindow,
		"OFFER_TTL":           &cfg.OfferTTL,
	} {
		if v := getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d < 0 {
				return nil, fmt.Errorf("%s: invalid duration %q", name, v)
			}
			*dst = d
		}
	}

	ldClient, err := newLDClient(getenv("LD_SDK_KEY"))
	if err != nil {
		return nil, err
	}
	defer ldClient.Close()

	flags := flagReader{client: ldClient, ctx: ldcontext.NewWithKind(ldcontext.Kind(LDServerContextKind), LDServerContextKey)}

	cfg.LDFlag_TwilioFromPhone = flags.str("twilio_from_phone", "")
	if cfg.LDFlag_TwilioFromPhone == "" {
		utils.Logger.Warnf("twilio_from_phone flag is empty, defaulting to %s", DefaultTwilioFrom)
		cfg.LDFlag_TwilioFromPhone = DefaultTwilioFrom
	}
	cfg.LDFlag_SendgridFromEmail = flags.str("sendgrid_from_email", "")
	if cfg.LDFlag_SendgridFromEmail == "" {
		utils.Logger.Warnf("sendgrid_from_email flag is empty, defaulting to %s", DefaultSendgridFrom)
		cfg.LDFlag_SendgridFromEmail = DefaultSendgridFrom
	}
	cfg.LDFlag_SendgridSandboxMode = flags.boolean("sendgrid_sandbox_mode", env != utils.ProdEnvironment)
	cfg.LDFlag_SeedDbWithTestData = flags.boolean("seed_db_with_test_data", false)
	cfg.LDFlag_CORSHighSecurity = flags.boolean("cors_high_security", env == utils.ProdEnvironment)
	cfg.LDFlag_UseRedisLedger = flags.boolean("use_redis_ledger", cfg.RedisAddr != "")
	cfg.LDFlag_UsePostgresStore = flags.boolean("use_postgres_store", cfg.DBUrl != "")

	if cfg.LDFlag_UsePostgresStore && cfg.DBUrl == "" {
		return nil, errors.New("use_postgres_store is on but DB_URL is missing")
	}
	if cfg.LDFlag_UseRedisLedger && cfg.RedisAddr == "" {
		return nil, errors.New("use_redis_ledger is on but REDIS_ADDR is missing")
	}
	return cfg, nil
}

// MessagingEnabled reports whether both Twilio and SendGrid credentials are present.
func (c *Config) MessagingEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.SendGridAPIKey != ""
}

func newLDClient(sdkKey string) (*ld.LDClient, error) {
	if sdkKey == "" {
		utils.Logger.Warn("LD_SDK_KEY not set; LaunchDarkly running offline with flag defaults")
		return ld.MakeCustomClient("offline", ld.Config{Offline: true}, 0)
	}
	client, err := ld.MakeClient(sdkKey, LDConnectionTimeout)
	if err != nil {
		return nil, fmt.Errorf("create LaunchDarkly client: %w", err)
	}
	if !client.Initialized() {
		client.Close()
		return nil, errors.New("LaunchDarkly client failed to initialize")
	}
	return client, nil
}

type flagReader struct {
	client *ld.LDClient
	ctx    ldcontext.Context
}

func (f flagReader) boolean(key string, def bool) bool {
	v, err := f.client.BoolVariation(key, f.ctx, def)
	if err != nil {
		utils.Logger.WithError(err).Warnf("Error retrieving %s flag, using default", key)
		return def
	}
	utils.Logger.Debugf("%s flag: %t", key, v)
	return v
}

func (f flagReader) str(key, def string) string {
	v, err := f.client.StringVariation(key, f.ctx, def)
	if err != nil {
		utils.Logger.WithError(err).Warnf("Error retrieving %s flag, using default", key)
		return def
	}
	utils.Logger.Debugf("%s flag: %s", key, v)
	return v
}

func parsePublicKey(b64 string) (*rsa.PublicKey, error) {
	if b64 == "" {
		return nil, errors.New("RSA_PUBLIC_KEY_BASE64 env var is missing")
	}
	pubPEM, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("RSA_PUBLIC_KEY_BASE64: %w", err)
	}
	if block, _ := pem.Decode(pubPEM); block == nil {
		return nil, errors.New("failed to decode PEM block for public key")
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("parse RSA public key: %w", err)
	}
	return pubKey, nil
}
