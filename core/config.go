package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug    bool
		TestMode bool
		Env      string // DEV (default), TEST, QA, PROD
		Build    string
		AppName  string

		DefaultFromEmail mail.Address
		ReportRecipients []mail.Address
		SendgridApiKey   string
		RollbarToken     string

		Server   ServerConfig
		Database DatabaseConfig
		TTMS     TTMSConfig
	}

	ServerConfig struct {
		Host            string
		Port            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// TTMSConfig configures access to the upstream timetable web service.
	TTMSConfig struct {
		BaseURL  string
		Login    string
		Password string

		// PageSize is the fixed page size of paginated fetches.
		PageSize int
		// PacingDelay is slept between upstream requests. This is deliberate
		// backpressure toward the upstream service; do not zero it outside tests.
		PacingDelay time.Duration
		// MaxAttempts bounds re-auth retries of a failing fetch step.
		MaxAttempts int
	}
)

func (c ServerConfig) Address() string   { return c.Host + ":" + c.Port }
func (c DatabaseConfig) Address() string { return c.Host + ":" + c.Port }

func NewConfig() *Config {
	conf := viper.New()
	conf.SetTypeByDefaultValue(true)

	// defaults
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "Jadual")
	conf.SetDefault("build", "dev")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("reportRecipients", "")
	conf.SetDefault("serverHost", "0.0.0.0")
	conf.SetDefault("serverPort", "8000")
	conf.SetDefault("serverDebugHost", "0.0.0.0:4000")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)
	conf.SetDefault("databaseEngine", "postgres")
	conf.SetDefault("databaseName", "jadual")
	conf.SetDefault("databaseHost", "localhost")
	conf.SetDefault("databasePort", "5432")
	conf.SetDefault("databaseUser", "jadual")
	conf.SetDefault("databaseDisableTLS", true)
	conf.SetDefault("ttmsBaseUrl", "http://web.fc.utm.my/ttms/web_man_webservice_json.cgi")
	conf.SetDefault("ttmsPageSize", 50)
	conf.SetDefault("ttmsPacingDelay", 500*time.Millisecond)
	conf.SetDefault("ttmsMaxAttempts", 3)

	env := os.Getenv("ENV")
	var testMode bool
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		testMode = true
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Debug:            conf.GetBool("debug"),
		TestMode:         testMode,
		Env:              env,
		Build:            conf.GetString("build"),
		AppName:          conf.GetString("appName"),
		DefaultFromEmail: mail.Address{Address: conf.GetString("defaultFromEmail")},
		ReportRecipients: parseAddressList(conf.GetString("reportRecipients")),
		SendgridApiKey:   conf.GetString("sendgridApiKey"),
		RollbarToken:     conf.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:            conf.GetString("serverHost"),
			Port:            conf.GetString("serverPort"),
			DebugHost:       conf.GetString("serverDebugHost"),
			ShutdownTimeout: conf.GetDuration("serverShutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("databaseEngine"),
			Name:          conf.GetString("databaseName"),
			Host:          conf.GetString("databaseHost"),
			Port:          conf.GetString("databasePort"),
			User:          conf.GetString("databaseUser"),
			Password:      conf.GetString("databasePassword"),
			AdminUser:     conf.GetString("databaseAdminUser"),
			AdminPassword: conf.GetString("databaseAdminPassword"),
			DisableTLS:    conf.GetBool("databaseDisableTLS"),
		},
		TTMS: TTMSConfig{
			BaseURL:     conf.GetString("ttmsBaseUrl"),
			Login:       conf.GetString("ttmsLogin"),
			Password:    conf.GetString("ttmsPassword"),
			PageSize:    conf.GetInt("ttmsPageSize"),
			PacingDelay: conf.GetDuration("ttmsPacingDelay"),
			MaxAttempts: conf.GetInt("ttmsMaxAttempts"),
		},
	}
}

func parseAddressList(s string) []mail.Address {
	var addrs []mail.Address
	for _, raw := range strings.Split(s, ",") {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		if addr, err := mail.ParseAddress(raw); err == nil {
			addrs = append(addrs, *addr)
		} else {
			log.Printf("config: skipping invalid report recipient %q: %v", raw, err)
		}
	}
	return addrs
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (%s, build %s)", c.AppName, c.Env, c.Build)
}
