package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	StoreBackendFirebase = "firebase"
	StoreBackendSQLite   = "sqlite"
	StoreBackendMemory   = "memory"

	DetectorBackendONNX   = "onnx"
	DetectorBackendRemote = "remote"

	AuthVerifierCerts    = "certs"
	AuthVerifierFirebase = "firebase"
)

const (
	defaultPort                = "5000"
	defaultConfidenceThreshold = 0.2
	defaultMaxUploadMB         = 16
	defaultMaxImagePixels      = 50_000_000
	defaultListLimit           = 50
	defaultModelDir            = "models"
)

type Config struct {
	Port    string
	LogMode string

	// document store
	StoreBackend               string
	FirebaseDatabaseURL        string
	FirebaseServiceAccountJSON string
	FirebaseServiceAccountPath string
	FirebaseProjectID          string
	DatabasePath               string // sqlite file for the local backend
	InspectionListLimit        int

	// authentication
	AuthVerifier string

	// artifact storage
	UploadFolder   string // absolute path
	MaxUploadMB    int
	MaxImagePixels int64 // decoded width*height cap for uploads

	// detector
	DetectorBackend     string
	DetectorURL         string
	ModelDir            string
	ModelPath           string
	ModelURL            string
	ModelNamesPath      string
	ConfidenceThreshold float64

	CORSAllowedOrigins []string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %g. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadConfig reads the process environment. Call godotenv.Load first when a
// .env file should be honoured.
func LoadConfig() (Config, error) {
	uploads := getEnvOrDefault("UPLOAD_FOLDER", "uploads")
	absUploads, err := filepath.Abs(uploads)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for upload folder '%s': %w", uploads, err)
	}

	dbURL := getEnvOrDefault("FIREBASE_DATABASE_URL", "")
	defaultBackend := StoreBackendSQLite
	if dbURL != "" {
		defaultBackend = StoreBackendFirebase
	}

	modelDir := getEnvOrDefault("MODEL_DIR", defaultModelDir)

	cfg := Config{
		Port:                       getEnvOrDefault("PORT", defaultPort),
		LogMode:                    getEnvOrDefault("LOG_MODE", "development"),
		StoreBackend:               strings.ToLower(getEnvOrDefault("STORE_BACKEND", defaultBackend)),
		FirebaseDatabaseURL:        dbURL,
		FirebaseServiceAccountJSON: getEnvOrDefault("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		FirebaseServiceAccountPath: getEnvOrDefault("FIREBASE_SERVICE_ACCOUNT_PATH", "serviceAccountKey.json"),
		FirebaseProjectID:          getEnvOrDefault("FIREBASE_PROJECT_ID", ""),
		DatabasePath:               getEnvOrDefault("DATABASE_PATH", "inspections.db"),
		InspectionListLimit:        getEnvIntOrDefault("INSPECTION_LIST_LIMIT", defaultListLimit),
		AuthVerifier:               strings.ToLower(getEnvOrDefault("AUTH_VERIFIER", AuthVerifierCerts)),
		UploadFolder:               absUploads,
		MaxUploadMB:                getEnvIntOrDefault("MAX_UPLOAD_MB", defaultMaxUploadMB),
		MaxImagePixels:             int64(getEnvIntOrDefault("MAX_IMAGE_PIXELS", defaultMaxImagePixels)),
		DetectorBackend:            strings.ToLower(getEnvOrDefault("DETECTOR_BACKEND", DetectorBackendONNX)),
		DetectorURL:                strings.TrimRight(getEnvOrDefault("DETECTOR_URL", ""), "/"),
		ModelDir:                   modelDir,
		ModelPath:                  getEnvOrDefault("MODEL_PATH", filepath.Join(modelDir, "best.onnx")),
		ModelURL:                   getEnvOrDefault("MODEL_URL", ""),
		ModelNamesPath:             getEnvOrDefault("MODEL_NAMES_PATH", ""),
		ConfidenceThreshold:        getEnvFloatOrDefault("CONFIDENCE_THRESHOLD", defaultConfidenceThreshold),
		CORSAllowedOrigins:         splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreBackendFirebase:
		if c.FirebaseDatabaseURL == "" {
			return fmt.Errorf("FIREBASE_DATABASE_URL is required for the %s store backend", StoreBackendFirebase)
		}
	case StoreBackendSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required for the %s store backend", StoreBackendSQLite)
		}
	case StoreBackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND '%s'", c.StoreBackend)
	}

	switch c.AuthVerifier {
	case AuthVerifierCerts:
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required to verify ID tokens")
		}
	case AuthVerifierFirebase:
	default:
		return fmt.Errorf("unknown AUTH_VERIFIER '%s'", c.AuthVerifier)
	}

	switch c.DetectorBackend {
	case DetectorBackendONNX:
		if c.ModelPath == "" {
			return fmt.Errorf("MODEL_PATH is required for the %s detector", DetectorBackendONNX)
		}
	case DetectorBackendRemote:
		if c.DetectorURL == "" {
			return fmt.Errorf("DETECTOR_URL is required for the %s detector", DetectorBackendRemote)
		}
	default:
		return fmt.Errorf("unknown DETECTOR_BACKEND '%s'", c.DetectorBackend)
	}

	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold >= 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be between 0 and 1, got %g", c.ConfidenceThreshold)
	}
	return nil
}

// MaxUploadBytes is the request body limit for image uploads.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// HasServiceAccount reports whether Firebase admin credentials are available.
func (c Config) HasServiceAccount() bool {
	if c.FirebaseServiceAccountJSON != "" {
		return true
	}
	if c.FirebaseServiceAccountPath == "" {
		return false
	}
	_, err := os.Stat(c.FirebaseServiceAccountPath)
	return err == nil
}
