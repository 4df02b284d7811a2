package config

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type DBConfig struct {
	Enabled      bool   `json:"enabled"`
	Host         string `json:"host"`
	Port         string `json:"port"`
	User         string `json:"user"`
	Password     string `json:"-"`
	Name         string `json:"name"`
	SSLMode      string `json:"ssl_mode"`
	MaxIdleConns int    `json:"max_idle_conns"`
	MaxOpenConns int    `json:"max_open_conns"`
}

type SMTPProbeConfig struct {
	Port          string        `json:"port"`
	Timeout       time.Duration `json:"timeout"`
	HeloDomain    string        `json:"helo_domain"`
	MailFrom      string        `json:"mail_from"`
	CatchAllProbe bool          `json:"catch_all_probe"`
}

type DNSConfig struct {
	Server   string        `json:"server"`
	Timeout  time.Duration `json:"timeout"`
	CacheTTL time.Duration `json:"cache_ttl"`
}

type DeliverabilityConfig struct {
	APIKey string  `json:"-"`
	APIURL string  `json:"api_url"`
	RPS    float64 `json:"rps"`
}

type SearchConfig struct {
	APIToken  string  `json:"-"`
	APIURL    string  `json:"api_url"`
	Zone      string  `json:"zone"`
	Country   string  `json:"country"`
	EngineURL string  `json:"engine_url"`
	RPS       float64 `json:"rps"`
}

type ResearchConfig struct {
	APIKey string `json:"-"`
	APIURL string `json:"api_url"`
}

type Config struct {
	Environment     string               `json:"environment"`
	ServerPort      string               `json:"server_port"`
	LogLevel        string               `json:"log_level"`
	SentryDSN       string               `json:"-"`
	JWTSecret       string               `json:"-"`
	CORSOrigins     string               `json:"cors_origins"`
	DNS             DNSConfig            `json:"dns"`
	SMTP            SMTPProbeConfig      `json:"smtp"`
	HTTPTimeout     time.Duration        `json:"http_timeout"`
	BatchWidth      int                  `json:"batch_width"`
	TaskTimeout     time.Duration        `json:"task_timeout"`
	BatchTTL        time.Duration        `json:"batch_ttl"`
	RateLimitVerify int                  `json:"rate_limit_verify"`
	Deliverability  DeliverabilityConfig `json:"deliverability"`
	Search          SearchConfig         `json:"search"`
	Research        ResearchConfig       `json:"research"`
	Redis           RedisConfig          `json:"redis"`
	DB              DBConfig             `json:"db"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:     getEnv("ENVIRONMENT", "development"),
		ServerPort:      getEnv("SERVER_PORT", "5000"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		SentryDSN:       getEnv("SENTRY_DSN", ""),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		CORSOrigins:     getEnv("CORS_ORIGINS", "*"),
		HTTPTimeout:     getEnvAsDuration("HTTP_TIMEOUT", 15*time.Second),
		BatchWidth:      getEnvAsInt("BATCH_WIDTH", 2),
		TaskTimeout:     getEnvAsDuration("TASK_TIMEOUT", 30*time.Second),
		BatchTTL:        getEnvAsDuration("BATCH_TTL", 24*time.Hour),
		RateLimitVerify: getEnvAsInt("RATE_LIMIT_VERIFY", 30),
		DNS: DNSConfig{
			Server:   getEnv("DNS_SERVER", defaultNameserver("/etc/resolv.conf")),
			Timeout:  getEnvAsDuration("DNS_TIMEOUT", 5*time.Second),
			CacheTTL: getEnvAsDuration("MX_CACHE_TTL", 10*time.Minute),
		},
		SMTP: SMTPProbeConfig{
			Port:          getEnv("SMTP_PORT", "25"),
			Timeout:       getEnvAsDuration("SMTP_TIMEOUT", 10*time.Second),
			HeloDomain:    getEnv("SMTP_HELO_DOMAIN", "probe.invalid"),
			MailFrom:      getEnv("SMTP_MAIL_FROM", "verify@probe.invalid"),
			CatchAllProbe: getEnvAsBool("SMTP_CATCHALL_PROBE", false),
		},
		Deliverability: DeliverabilityConfig{
			APIKey: getEnv("DELIVERABILITY_API_KEY", ""),
			APIURL: getEnv("DELIVERABILITY_API_URL", "https://api.kickbox.com/v2/verify"),
			RPS:    getEnvAsFloat("DELIVERABILITY_RPS", 5),
		},
		Search: SearchConfig{
			APIToken:  getEnv("SEARCH_API_TOKEN", ""),
			APIURL:    getEnv("SEARCH_API_URL", "https://api.brightdata.com/request"),
			Zone:      getEnv("SEARCH_API_ZONE", ""),
			Country:   getEnv("SEARCH_COUNTRY", "us"),
			EngineURL: getEnv("SEARCH_ENGINE_URL", "https://www.google.com/search?hl=en&q="),
			RPS:       getEnvAsFloat("SEARCH_RPS", 2),
		},
		Research: ResearchConfig{
			APIKey: getEnv("RESEARCH_API_KEY", ""),
			APIURL: getEnv("RESEARCH_API_URL", "https://deepsearch.jina.ai/v1/chat/completions"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		DB: DBConfig{
			Enabled:      getEnvAsBool("DB_ENABLED", false),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Name:         getEnv("DB_NAME", "mailscout"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
		},
	}

	if err := AppConfig.Validate(); err != nil {
		return err
	}

	logConfig()
	return nil
}

// Validate checks required settings and clamps values the engine can't run with.
func (c *Config) Validate() error {
	if c.Environment == "production" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.DB.Enabled && c.DB.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required when DB_ENABLED is set")
	}
	if c.BatchWidth < 1 {
		c.BatchWidth = 1
	}
	if c.RateLimitVerify < 1 {
		c.RateLimitVerify = 1
	}
	if c.DNS.Server == "" {
		c.DNS.Server = "1.1.1.1:53"
	}
	if _, _, err := net.SplitHostPort(c.DNS.Server); err != nil {
		c.DNS.Server = net.JoinHostPort(c.DNS.Server, "53")
	}
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil {
		return fallback
	}
	return value
}

// defaultNameserver returns the first nameserver of a resolv.conf style file.
func defaultNameserver(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return "1.1.1.1:53"
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "nameserver" {
			return net.JoinHostPort(fields[1], "53")
		}
	}
	return "1.1.1.1:53"
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("DNS: %s (timeout %s)", AppConfig.DNS.Server, AppConfig.DNS.Timeout)
	log.Printf("SMTP probe: port %s, timeout %s, catch-all probe %t",
		AppConfig.SMTP.Port, AppConfig.SMTP.Timeout, AppConfig.SMTP.CatchAllProbe)
	log.Printf("Backends: deliverability(%t), search(%t), research(%t)",
		AppConfig.Deliverability.APIKey != "",
		AppConfig.Search.APIToken != "",
		AppConfig.Research.APIKey != "")
	log.Printf("Redis(%t) Database(%t)", AppConfig.Redis.Enabled, AppConfig.DB.Enabled)
	if AppConfig.DB.Enabled {
		log.Printf("Database: %s@%s:%s/%s",
			AppConfig.DB.User,
			AppConfig.DB.Host,
			AppConfig.DB.Port,
			AppConfig.DB.Name)
	}
}
