package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Addr                      string
		DebugAddr                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		Host          string
		Port          int
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	ObjectStorageConfig struct {
		Endpoint  string
		AccessKey string
		SecretKey string
		Bucket    string
		UseTLS    bool
	}

	AutosaveConfig struct {
		DebounceDelay    time.Duration
		ThrottleInterval time.Duration
		StatusResetDelay time.Duration
		SessionTTL       time.Duration
	}

	Config struct {
		Env      string
		Build    string
		AppName  string
		Debug    bool
		TestMode bool

		SecretKey                 []byte
		WorkDir                   string
		FrontendBaseURL           string
		DefaultFromEmail          mail.Address
		PasswordResetTimeoutDelta time.Duration

		RollbarToken   string
		SendgridAPIKey string

		Server        ServerConfig
		Database      DatabaseConfig
		Redis         RedisConfig
		ObjectStorage ObjectStorageConfig
		Autosave      AutosaveConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Walimu")
	v.SetDefault("secretKey", "kw3$u!pcx0d)b5mn+a(74yq=e&8_h%jz-rf9#vg1@6ts2lo^")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddr", ":8000")
	v.SetDefault("serverDebugAddr", ":4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("databaseEngine", "postgres")
	v.SetDefault("databaseName", "walimu")
	v.SetDefault("databaseHost", "localhost")
	v.SetDefault("databasePort", 5432)
	v.SetDefault("databaseUser", "walimu")
	v.SetDefault("databasePassword", "walimu")
	v.SetDefault("databaseAdminUser", "")
	v.SetDefault("databaseAdminPassword", "")
	v.SetDefault("databaseDisableTLS", true)

	v.SetDefault("redisAddr", "localhost:6379")
	v.SetDefault("redisPassword", "")
	v.SetDefault("redisDB", 0)

	v.SetDefault("objectStorageEndpoint", "localhost:9000")
	v.SetDefault("objectStorageAccessKey", "walimu")
	v.SetDefault("objectStorageSecretKey", "walimu-secret")
	v.SetDefault("objectStorageBucket", "walimu-documents")
	v.SetDefault("objectStorageUseTLS", false)

	v.SetDefault("autosaveDebounceDelay", 900*time.Millisecond)
	v.SetDefault("autosaveThrottleInterval", 2*time.Second)
	v.SetDefault("autosaveStatusResetDelay", 3*time.Second)
	v.SetDefault("autosaveSessionTTL", 30*time.Minute)

	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridAPIKey", "")

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	var testMode bool
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		testMode = true
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:      env,
		Build:    v.GetString("build"),
		AppName:  v.GetString("appName"),
		Debug:    v.GetBool("debug"),
		TestMode: testMode,

		SecretKey:                 []byte(v.GetString("secretKey")),
		WorkDir:                   Getwd(),
		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		DefaultFromEmail:          mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),

		RollbarToken:   v.GetString("rollbarToken"),
		SendgridAPIKey: v.GetString("sendgridAPIKey"),

		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			Addr:                      v.GetString("serverAddr"),
			DebugAddr:                 v.GetString("serverDebugAddr"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("databaseEngine"),
			Name:          v.GetString("databaseName"),
			Host:          v.GetString("databaseHost"),
			Port:          v.GetInt("databasePort"),
			User:          v.GetString("databaseUser"),
			Password:      v.GetString("databasePassword"),
			AdminUser:     v.GetString("databaseAdminUser"),
			AdminPassword: v.GetString("databaseAdminPassword"),
			DisableTLS:    v.GetBool("databaseDisableTLS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redisAddr"),
			Password: v.GetString("redisPassword"),
			DB:       v.GetInt("redisDB"),
		},
		ObjectStorage: ObjectStorageConfig{
			Endpoint:  v.GetString("objectStorageEndpoint"),
			AccessKey: v.GetString("objectStorageAccessKey"),
			SecretKey: v.GetString("objectStorageSecretKey"),
			Bucket:    v.GetString("objectStorageBucket"),
			UseTLS:    v.GetBool("objectStorageUseTLS"),
		},
		Autosave: AutosaveConfig{
			DebounceDelay:    v.GetDuration("autosaveDebounceDelay"),
			ThrottleInterval: v.GetDuration("autosaveThrottleInterval"),
			StatusResetDelay: v.GetDuration("autosaveStatusResetDelay"),
			SessionTTL:       v.GetDuration("autosaveSessionTTL"),
		},
	}
}
