// internal/config/config.go
//
// Environment-backed configuration shared by the broker and the two client
// processes. Each main loads .env via godotenv autoload before reading.
package config

import (
	"os"
	"strconv"
	"time"
)

// GetEnv reads an environment variable or returns a default value.
func GetEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt parses an environment variable as integer, else a default value.
func GetEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// GetEnvBool parses an environment variable as a boolean, else a default.
func GetEnvBool(key string, def bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return v
}

// Broker holds broker process settings.
type Broker struct {
	Addr      string
	RedisAddr string
	RedisDB   int
	LogLevel  string
}

// LoadBroker reads broker settings from the environment.
func LoadBroker() Broker {
	return Broker{
		Addr:      ":" + GetEnv("PORT", "8080"),
		RedisAddr: GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:   GetEnvInt("REDIS_DB", 0),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
	}
}

// Client holds settings shared by the game server and agent processes.
type Client struct {
	BrokerURL         string
	Token             string
	APIKey            string
	Game              string
	LobbyName         string
	PlayerName        string
	RunOnce           bool
	ConnectionRetries int
	RetryDelay        time.Duration

	// Persistent keeps an agent playing new games even after an abnormal
	// finish attributed to itself.
	Persistent bool
}

// LoadClient reads client settings from the environment.
func LoadClient() Client {
	return Client{
		BrokerURL:         GetEnv("ARENA_URL", "ws://127.0.0.1:8080/arena/ws"),
		Token:             GetEnv("ARENA_TOKEN", ""),
		APIKey:            GetEnv("API_KEY", ""),
		Game:              GetEnv("GAME", "rps"),
		LobbyName:         GetEnv("LOBBY_NAME", "Some lobby"),
		PlayerName:        GetEnv("PLAYER_NAME", "Some Player"),
		RunOnce:           GetEnvBool("RUN_ONCE", false),
		ConnectionRetries: GetEnvInt("CONNECTION_RETRIES", 5),
		RetryDelay:        time.Duration(GetEnvInt("RETRY_DELAY_SECONDS", 5)) * time.Second,
		Persistent:        GetEnvBool("PERSISTENT", false),
	}
}
