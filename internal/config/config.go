package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ClientConfig drives the terminal chat client.
type ClientConfig struct {
	ServerURL      string
	Profile        string
	Debug          bool
	LogFile        string
	SearchDebounce time.Duration
}

// ServerConfig drives the reference chat backend.
type ServerConfig struct {
	Port               string
	Env                string
	DatabaseURL        string
	JWTSecret          string
	TokenMaxAge        time.Duration
	CORSOrigins        []string
	RedisAddr          string
	RedisChannel       string
	MediaBucket        string
	StorageEmulator    string
	UploadURLTTL       time.Duration
	MaxConnsPerIP      int
	AuthAttemptsPerMin int
}

// loadEnvFile loads a .env file if present; a missing file is ignored.
func loadEnvFile(envPath ...string) {
	envFile := ".env"
	if len(envPath) > 0 && envPath[0] != "" {
		envFile = envPath[0]
	}
	_ = godotenv.Load(envFile)
}

func LoadClient(envPath ...string) ClientConfig {
	loadEnvFile(envPath...)
	return ClientConfig{
		ServerURL:      getEnv("MEMBERCHAT_SERVER", "http://localhost:8080"),
		Profile:        getEnv("MEMBERCHAT_PROFILE", "default"),
		Debug:          getBool("MEMBERCHAT_DEBUG", false),
		LogFile:        getEnv("MEMBERCHAT_LOG_FILE", "debug.log"),
		SearchDebounce: time.Duration(getInt("SEARCH_DEBOUNCE_MS", 300)) * time.Millisecond,
	}
}

func LoadServer(envPath ...string) ServerConfig {
	loadEnvFile(envPath...)
	return ServerConfig{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("APP_ENV", "development"),
		DatabaseURL:        getEnv("DATABASE_URL", "postgres://localhost/memberchat?sslmode=disable"),
		JWTSecret:          getEnv("JWT_SECRET", "a_very_long_and_secure_default_secret_key_please_change_this"),
		TokenMaxAge:        time.Duration(getInt("TOKEN_HOURS", 72)) * time.Hour,
		CORSOrigins:        getList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisChannel:       getEnv("REDIS_CHANNEL", "memberchat-events"),
		MediaBucket:        getEnv("MEDIA_GCS_BUCKET", ""),
		StorageEmulator:    getEnv("STORAGE_EMULATOR_HOST", ""),
		UploadURLTTL:       time.Duration(getInt("UPLOAD_URL_TTL_SECONDS", 900)) * time.Second,
		MaxConnsPerIP:      getInt("MAX_CONNECTIONS_PER_IP", 10),
		AuthAttemptsPerMin: getInt("AUTH_ATTEMPTS_PER_MIN", 5),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getList(key string, fallback []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
