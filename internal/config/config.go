// Package config loads gateway settings from the environment.
package config

import (
	"strings"
	"time"

	"pulsechat-core/pkg/env"
)

// Store backends selectable via STORE_BACKEND.
const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
)

// Config holds every environment-driven setting of the gateway.
type Config struct {
	Env      string
	Port     int
	LogLevel string

	// StoreBackend selects the shared document store: memory for local
	// development, redis or firestore for deployments.
	StoreBackend string

	RedisAddr     string
	RedisPassword string
	RedisDocTTL   time.Duration

	FirestoreProjectID       string
	FirestoreCredentialsFile string

	// ICEServers are STUN/TURN URLs handed to every peer connection.
	ICEServers []string

	// Identity is the presence identity this gateway heartbeats under
	// when BeaconEnabled is set; by default the gateway only observes.
	Identity          string
	BeaconEnabled     bool
	HeartbeatInterval time.Duration

	// AllowedOrigins restricts websocket upgrades; empty allows all.
	AllowedOrigins []string
}

// Load reads the configuration, applying development defaults.
func Load() *Config {
	return &Config{
		Env:      env.GetString("ENV", "development"),
		Port:     env.GetInt("PORT", 8084),
		LogLevel: env.GetString("LOG_LEVEL", "info"),

		StoreBackend: env.GetString("STORE_BACKEND", BackendMemory),

		RedisAddr:     env.GetString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: env.GetStringFromFile("REDIS_PASSWORD", ""),
		RedisDocTTL:   env.GetDuration("REDIS_DOC_TTL", 24*time.Hour),

		FirestoreProjectID:       env.GetString("FIRESTORE_PROJECT_ID", ""),
		FirestoreCredentialsFile: env.GetString("FIRESTORE_CREDENTIALS_FILE", ""),

		ICEServers: splitList(env.GetString("ICE_SERVERS", "stun:stun.l.google.com:19302")),

		Identity:          env.GetString("GATEWAY_IDENTITY", ""),
		BeaconEnabled:     env.GetBool("BEACON_ENABLED", false),
		HeartbeatInterval: env.GetDuration("HEARTBEAT_INTERVAL", 30*time.Second),

		AllowedOrigins: splitList(env.GetString("ALLOWED_ORIGINS", "")),
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
