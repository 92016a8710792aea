package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rafagois03/EmbarquesTMSLincros/constants"
)

// Config holds all application configuration
type Config struct {
	TMS      TMSConfig
	Workflow WorkflowConfig
	Input    InputConfig
	Journal  JournalConfig
	Server   ServerConfig
	LogLevel string
}

// TMSConfig holds the remote API location and the credential triple.
type TMSConfig struct {
	BaseURL        string
	Login          string
	Password       string
	Token          string // static bearer token; skips the login call when set
	Timeout        time.Duration
	ReauthPerPhase bool
}

// WorkflowConfig holds run policy knobs
type WorkflowConfig struct {
	WaitBase        time.Duration
	WaitPerRow      time.Duration
	WaitMax         time.Duration
	MalformedPolicy constants.MalformedPolicy
}

// InputConfig selects the workbook and how its headers are read
type InputConfig struct {
	Path        string
	Sheet       string
	ProfilePath string
}

// JournalConfig holds the run journal location. Empty DSN disables it.
type JournalConfig struct {
	DSN string
}

// ServerConfig holds upload form configuration
type ServerConfig struct {
	Addr           string
	HealthAddr     string // gRPC health endpoint; empty disables it
	MaxUploadBytes int64
	WorkDir        string
	RunTTL         time.Duration // finished uploads older than this are removed
	MaxRuns        int           // finished uploads kept at most
}

// LoadConfig loads configuration from environment variables, after merging any .env file
// found in the working directory.
func LoadConfig() *Config {
	_ = godotenv.Load()

	journalDSN := getEnv("JOURNAL_DSN", "embarques_journal.db")
	if strings.EqualFold(journalDSN, "off") {
		journalDSN = ""
	}

	return &Config{
		TMS: TMSConfig{
			BaseURL:        getEnv("TMS_BASE_URL", constants.DefaultTMSBaseURL),
			Login:          getEnv("TMS_LOGIN", ""),
			Password:       getEnv("TMS_PASSWORD", ""),
			Token:          getEnv("TMS_TOKEN", ""),
			Timeout:        getEnvAsDuration("TMS_TIMEOUT", 30*time.Second),
			ReauthPerPhase: getEnvAsBool("TMS_REAUTH_PER_PHASE", false),
		},
		Workflow: WorkflowConfig{
			WaitBase:        getEnvAsDuration("WAIT_BASE", 15*time.Second),
			WaitPerRow:      getEnvAsDuration("WAIT_PER_ROW", 0),
			WaitMax:         getEnvAsDuration("WAIT_MAX", 2*time.Minute),
			MalformedPolicy: constants.ParseMalformedPolicy(getEnv("MALFORMED_POLICY", string(constants.MalformedSkip))),
		},
		Input: InputConfig{
			Path:        getEnv("INPUT_FILE", constants.DefaultInputFile),
			Sheet:       getEnv("INPUT_SHEET", ""),
			ProfilePath: getEnv("COLUMN_PROFILE", ""),
		},
		Journal: JournalConfig{
			DSN: journalDSN,
		},
		Server: ServerConfig{
			Addr:           getEnv("HTTP_ADDR", ":8080"),
			HealthAddr:     getEnv("GRPC_HEALTH_ADDR", ""),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_MB", 20)) << 20,
			WorkDir:        getEnv("WORK_DIR", os.TempDir()),
			RunTTL:         getEnvAsDuration("RUN_TTL", 24*time.Hour),
			MaxRuns:        getEnvAsInt("MAX_RUNS", 100),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("TMS_BASE_URL", c.TMS.BaseURL, Required, AbsoluteURL)
	v.Check(c.TMS.Token != "" || (c.TMS.Login != "" && c.TMS.Password != ""),
		"TMS_TOKEN", "", "either TMS_TOKEN or TMS_LOGIN and TMS_PASSWORD are required")
	v.Field("TMS_TIMEOUT", c.TMS.Timeout, NonNegativeDuration)
	v.Field("WAIT_BASE", c.Workflow.WaitBase, NonNegativeDuration)
	v.Field("WAIT_PER_ROW", c.Workflow.WaitPerRow, NonNegativeDuration)
	v.Field("WAIT_MAX", c.Workflow.WaitMax, NonNegativeDuration)
	v.Field("LOG_LEVEL", strings.ToLower(c.LogLevel), OneOf("debug", "info", "warn", "error"))
	if err := v.Error(); err != nil {
		return NewAppError(CodeConfig, "invalid configuration", err)
	}
	return nil
}
