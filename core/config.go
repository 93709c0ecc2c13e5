package core

import (
	"log"
	"net"
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
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		WorkDir          string
		FrontendBaseURL  string
		defaultFromEmail string
		SendgridApiKey   string
		RollbarToken     string

		Server    ServerConfig
		Database  DatabaseConfig
		Redis     RedisConfig
		Firebase  FirebaseConfig
		Parent    ParentConfig
		RateLimit RateLimitConfig
		Jobs      JobsConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		LoginURL                  string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Address  string
		Password string
		DB       int
	}

	FirebaseConfig struct {
		CredentialsJSON string
	}

	ParentConfig struct {
		CodeTTL time.Duration
	}

	RateLimitRule struct {
		Limit  int
		Window time.Duration
	}

	RateLimitConfig struct {
		Enabled bool
		Login   RateLimitRule
		API     RateLimitRule
		General RateLimitRule
	}

	JobsConfig struct {
		PurgeCodesSpec string
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

// NewConfig loads the configuration of the current environment.
// Values are read from `<ENV>_<KEY>` environment variables, optionally preloaded from config/.env.<env>.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("appName", "SchoolDriver")
	v.SetDefault("secretKey", "x9#u@lq2!v_schooldriver_dev_key_8w$kz0&m4p")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("defaultFromEmail", "SchoolDriver <noreply@localhost>")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverLoginURL", "/login")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 30*24*time.Hour)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "schooldriver")
	v.SetDefault("dbUser", "schooldriver")
	v.SetDefault("dbPassword", "schooldriver")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "postgres")
	v.SetDefault("dbDisableTLS", true)

	v.SetDefault("redisAddress", "")
	v.SetDefault("redisPassword", "")
	v.SetDefault("redisDB", 0)

	v.SetDefault("firebaseCredentialsJSON", "")

	v.SetDefault("parentCodeTTL", 7*24*time.Hour)

	v.SetDefault("rateLimitEnabled", true)
	v.SetDefault("rateLimitLoginLimit", 5)
	v.SetDefault("rateLimitLoginWindow", 5*time.Minute)
	v.SetDefault("rateLimitAPILimit", 100)
	v.SetDefault("rateLimitAPIWindow", time.Minute)
	v.SetDefault("rateLimitGeneralLimit", 300)
	v.SetDefault("rateLimitGeneralWindow", time.Minute)

	v.SetDefault("jobsPurgeCodesSpec", "@daily")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		WorkDir:          wd,
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			Address:                   v.GetString("serverAddress"),
			DebugHost:                 v.GetString("serverDebugHost"),
			LoginURL:                  v.GetString("serverLoginURL"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redisAddress"),
			Password: v.GetString("redisPassword"),
			DB:       v.GetInt("redisDB"),
		},
		Firebase: FirebaseConfig{
			CredentialsJSON: v.GetString("firebaseCredentialsJSON"),
		},
		Parent: ParentConfig{
			CodeTTL: v.GetDuration("parentCodeTTL"),
		},
		RateLimit: RateLimitConfig{
			Enabled: v.GetBool("rateLimitEnabled"),
			Login:   RateLimitRule{Limit: v.GetInt("rateLimitLoginLimit"), Window: v.GetDuration("rateLimitLoginWindow")},
			API:     RateLimitRule{Limit: v.GetInt("rateLimitAPILimit"), Window: v.GetDuration("rateLimitAPIWindow")},
			General: RateLimitRule{Limit: v.GetInt("rateLimitGeneralLimit"), Window: v.GetDuration("rateLimitGeneralWindow")},
		},
		Jobs: JobsConfig{
			PurgeCodesSpec: v.GetString("jobsPurgeCodesSpec"),
		},
	}
}

// NewTestConfig returns the configuration used by test suites: no env lookup, no debug.
func NewTestConfig() *Config {
	return &Config{
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		AppName:          "SchoolDriver",
		SecretKey:        "secret",
		WorkDir:          Getwd(),
		FrontendBaseURL:  "http://localhost:8080",
		defaultFromEmail: "SchoolDriver <noreply@localhost>",
		Server: ServerConfig{
			Host:                      "localhost",
			LoginURL:                  "/login",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Parent: ParentConfig{CodeTTL: 7 * 24 * time.Hour},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Login:   RateLimitRule{Limit: 5, Window: 5 * time.Minute},
			API:     RateLimitRule{Limit: 100, Window: time.Minute},
			General: RateLimitRule{Limit: 300, Window: time.Minute},
		},
		Jobs: JobsConfig{PurgeCodesSpec: "@daily"},
	}
}

// Getwd tries to find the project root (the directory holding go.mod).
// go test changes the working directory to the package being tested.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if _, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
