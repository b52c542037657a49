package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Signature SignatureConfig
	Lock      LockConfig
	Policy    PolicyConfig
	OCR       OCRConfig
	LogLevel  string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds connection pool tuning.
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// AuthConfig holds the shared-secret access code for the dashboard.
type AuthConfig struct {
	AccessCode string
}

// SignatureConfig holds shared signature storage settings.
type SignatureConfig struct {
	Dir           string
	IOTimeout     time.Duration
	SweepInterval time.Duration
}

// LockConfig bounds the per-account advisory lock wait.
type LockConfig struct {
	WaitTimeout time.Duration
}

// PolicyConfig holds tunable validation and extraction policy.
type PolicyConfig struct {
	MinBillAmount     float64
	DateFrom          string // YYYY-MM-DD, empty disables the window check
	DateTo            string
	RefNoiseThreshold int
	RefTruncateTo     int
	CoopLegalName     string
}

// OCRConfig holds recognition engine settings.
type OCRConfig struct {
	Tesseract string
	Lang      string
	WorkDir   string
}

// Load reads configuration from the environment, with .env support.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment values")
	}

	return &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Auth: AuthConfig{
			AccessCode: getEnv("ACCESS_CODE", ""),
		},
		Signature: SignatureConfig{
			Dir:           getEnv("SIGNATURE_DIR", ""),
			IOTimeout:     getEnvAsDuration("SIGNATURE_IO_TIMEOUT", 10*time.Second),
			SweepInterval: getEnvAsDuration("SIGNATURE_SWEEP_INTERVAL", time.Hour),
		},
		Lock: LockConfig{
			WaitTimeout: getEnvAsDuration("ACCOUNT_LOCK_TIMEOUT", 5*time.Second),
		},
		Policy: PolicyConfig{
			MinBillAmount:     getEnvAsFloat64("MIN_BILL_AMOUNT", 50),
			DateFrom:          getEnv("RECEIPT_DATE_FROM", ""),
			DateTo:            getEnv("RECEIPT_DATE_TO", ""),
			RefNoiseThreshold: getEnvAsInt("REF_NOISE_THRESHOLD", 20),
			RefTruncateTo:     getEnvAsInt("REF_TRUNCATE_TO", 15),
			CoopLegalName:     getEnv("COOP_LEGAL_NAME", "BENGUET ELECTRIC COOPERATIVE INC"),
		},
		OCR: OCRConfig{
			Tesseract: getEnv("TESSERACT_BIN", "tesseract"),
			Lang:      getEnv("TESSERACT_LANG", "eng"),
			WorkDir:   getEnv("OCR_WORK_DIR", os.TempDir()),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// reIPLocalPath matches a local path whose first element is a raw IPv4
// literal, e.g. "/192.168.1.20/scans" or "C:\192.168.1.20\scans". A UNC or
// double-slash network path ("\\host\share", "//host/share") does not match.
var reIPLocalPath = regexp.MustCompile(`^(?:[A-Za-z]:)?[\\/]\d{1,3}(?:\.\d{1,3}){3}(?:[\\/]|$)`)

// LooksLikeMisMappedNetworkPath reports whether p is a network path that was
// accidentally rewritten into a bogus local-disk path.
func LooksLikeMisMappedNetworkPath(p string) bool {
	if strings.HasPrefix(p, `\\`) || strings.HasPrefix(p, "//") {
		return false
	}
	return reIPLocalPath.MatchString(p)
}

// Validate checks the loaded configuration. Misconfiguration here is a fatal
// startup condition, never a per-request error.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if c.Auth.AccessCode == "" {
		return fmt.Errorf("ACCESS_CODE is required")
	}
	if c.Signature.Dir == "" {
		return fmt.Errorf("SIGNATURE_DIR is required")
	}
	if LooksLikeMisMappedNetworkPath(c.Signature.Dir) {
		return fmt.Errorf("SIGNATURE_DIR %q looks like a network path mapped to a local disk; use the UNC or mounted form", c.Signature.Dir)
	}
	if c.Policy.RefTruncateTo < 15 {
		return fmt.Errorf("REF_TRUNCATE_TO must be at least 15")
	}
	return nil
}

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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
