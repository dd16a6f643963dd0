package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	Env    string // "dev" | "prod"
	Store  string // "memory" | "sqlite"
	DBPath string // e.g. "./data/attendo.db"

	// RedisAddr enables the shared replay guard. Empty keeps claims in
	// process memory.
	RedisAddr     string
	RedisPassword string

	KnownStations        []string
	AllowUnknownStations bool
	ClassIDs             []string
	TokenDurations       []int64
	SubmitGrace          time.Duration
	AllowedOrigins       []string

	// Heartbeat retention
	HeartbeatRetentionDays int // 0 = keep forever
	PruneIntervalHours     int // how often the pruner runs (default 6)
}

// FromEnv reads server settings, loading .env first if present.
func FromEnv() Config {
	_ = godotenv.Load()

	env := strings.ToLower(getenvDefault("ATTENDO_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	store := strings.ToLower(getenvDefault("ATTENDO_STORE", "sqlite"))
	if store != "memory" && store != "sqlite" {
		store = "sqlite"
	}

	durations := parseInt64s(splitCSV(os.Getenv("ATTENDO_TOKEN_DURATIONS")))
	if len(durations) == 0 {
		durations = []int64{15, 30, 45, 60}
	}

	return Config{
		HTTPAddr: getenvDefault("ATTENDO_HTTP_ADDR", ":8080"),
		GRPCAddr: getenvDefault("ATTENDO_GRPC_ADDR", ":9090"),
		Env:      env,
		Store:    store,
		DBPath:   getenvDefault("ATTENDO_DB_PATH", "./data/attendo.db"),

		RedisAddr:     strings.TrimSpace(os.Getenv("ATTENDO_REDIS_ADDR")),
		RedisPassword: os.Getenv("ATTENDO_REDIS_PASSWORD"),

		KnownStations:        splitCSV(os.Getenv("ATTENDO_KNOWN_STATIONS")),
		AllowUnknownStations: getenvBool("ATTENDO_ALLOW_UNKNOWN_STATIONS"),
		ClassIDs:             splitCSV(os.Getenv("ATTENDO_CLASS_IDS")),
		TokenDurations:       durations,
		SubmitGrace:          time.Duration(getenvInt("ATTENDO_SUBMIT_GRACE_SECONDS", 30)) * time.Second,
		AllowedOrigins:       splitCSV(os.Getenv("ATTENDO_ALLOWED_ORIGINS")),

		HeartbeatRetentionDays: getenvInt("ATTENDO_HEARTBEAT_RETENTION_DAYS", 30),
		PruneIntervalHours:     getenvInt("ATTENDO_PRUNE_INTERVAL_HOURS", 6),
	}
}

type ScannerConfig struct {
	Env       string
	StationID string
	StudentID string

	ServerURL string
	Transport string // "http" | "grpc"
	GRPCAddr  string
	Protobuf  bool

	DeviceGlob   string
	FlashCameras []string
	ZbarCommand  string
	TorchCommand []string // argv; empty disables torch control

	ResetDelay        time.Duration
	HeartbeatInterval time.Duration
}

// ScannerFromEnv reads scanning-station settings, loading .env first if
// present.
func ScannerFromEnv() ScannerConfig {
	_ = godotenv.Load()

	transport := strings.ToLower(getenvDefault("ATTENDO_SCANNER_TRANSPORT", "http"))
	if transport != "http" && transport != "grpc" {
		transport = "http"
	}

	return ScannerConfig{
		Env:       strings.ToLower(getenvDefault("ATTENDO_ENV", "dev")),
		StationID: strings.TrimSpace(getenvDefault("ATTENDO_SCANNER_STATION_ID", "station-dev")),
		StudentID: strings.TrimSpace(os.Getenv("ATTENDO_SCANNER_STUDENT_ID")),

		ServerURL: getenvDefault("ATTENDO_SCANNER_SERVER_URL", "http://localhost:8080"),
		Transport: transport,
		GRPCAddr:  getenvDefault("ATTENDO_SCANNER_GRPC_ADDR", "localhost:9090"),
		Protobuf:  getenvBool("ATTENDO_SCANNER_PROTOBUF"),

		DeviceGlob:   getenvDefault("ATTENDO_SCANNER_DEVICE_GLOB", "/dev/video*"),
		FlashCameras: splitCSV(os.Getenv("ATTENDO_SCANNER_FLASH_CAMERAS")),
		ZbarCommand:  getenvDefault("ATTENDO_SCANNER_ZBAR_CMD", "zbarcam"),
		TorchCommand: strings.Fields(os.Getenv("ATTENDO_SCANNER_TORCH_CMD")),

		ResetDelay:        time.Duration(getenvInt("ATTENDO_SCANNER_RESET_DELAY_MS", 3000)) * time.Millisecond,
		HeartbeatInterval: time.Duration(getenvInt("ATTENDO_SCANNER_HEARTBEAT_SECONDS", 30)) * time.Second,
	}
}

// Set builds a lookup set from ids.
func Set(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	return strings.EqualFold(v, "true") || v == "1"
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt64s(parts []string) []int64 {
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err == nil && n > 0 {
			out = append(out, n)
		}
	}
	return out
}
