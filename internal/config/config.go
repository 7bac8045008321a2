package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Port         string
	DatabasePath string // SQLite file for session metadata + product catalog
	SessionsDir  string // one JSON document per session
	ManualsDir   string // root for catalog-relative manual paths

	// Assistant (external LLM responder)
	AssistantBaseURL string
	AssistantAPIKey  string
	AssistantModel   string
	AssistantTimeout time.Duration

	// Session behavior
	DuplicateWindow time.Duration // suppress identical consecutive messages inside this window
	ProductCap      int           // most recent product mentions kept per session
	CacheCapacity   int           // live session stores kept in memory

	// Extraction budgets
	ExtractMaxDuration   time.Duration
	ExtractMaxChars      int
	ExtractMinLength     int     // meaningfulness length floor per page
	ExtractLetterRatio   float64 // meaningfulness alphabetic-character ratio
	OCRResolution        int     // DPI for page rasterization
	OCREnabled           bool
	OCRLanguages         string // primary+secondary hint, e.g. "tur+eng"
	OCRFallbackLanguage  string
	ManualCacheTTL       time.Duration // caller-side cache of extracted manuals
	ManualRequestTimeout time.Duration // outer bound independent of the pipeline budget

	// Hydration
	HydrationInterval time.Duration

	// Product-of-interest inference
	CategoryKeywords []string
}

// defaultCategoryKeywords tracks the appliance categories the retailer sells.
// Overridable via the keywords YAML file.
var defaultCategoryKeywords = []string{
	"refrigerator", "fridge", "oven", "washing machine", "television", "tv",
	"microwave", "dishwasher", "vacuum", "air conditioner",
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "3001"),
		DatabasePath: getEnv("DATABASE_PATH", "./voltdesk.db"),
		SessionsDir:  getEnv("SESSIONS_DIR", "./sessions"),
		ManualsDir:   getEnv("MANUALS_DIR", "./manuals"),

		AssistantBaseURL: getEnv("ASSISTANT_BASE_URL", "http://localhost:11434/v1"),
		AssistantAPIKey:  getEnv("ASSISTANT_API_KEY", ""),
		AssistantModel:   getEnv("ASSISTANT_MODEL", "llama3:latest"),
		AssistantTimeout: getDurationEnv("ASSISTANT_TIMEOUT", 120*time.Second),

		DuplicateWindow: getDurationEnv("SESSION_DUPLICATE_WINDOW", 5*time.Second),
		ProductCap:      getIntEnv("SESSION_PRODUCT_CAP", 5),
		CacheCapacity:   getIntEnv("SESSION_CACHE_CAPACITY", 10),

		ExtractMaxDuration:   getDurationEnv("EXTRACT_MAX_DURATION", 120*time.Second),
		ExtractMaxChars:      getIntEnv("EXTRACT_MAX_CHARS", 400_000),
		ExtractMinLength:     getIntEnv("EXTRACT_MIN_LENGTH", 150),
		ExtractLetterRatio:   getFloatEnv("EXTRACT_MIN_LETTER_RATIO", 0.20),
		OCRResolution:        getIntEnv("OCR_RESOLUTION", 200),
		OCREnabled:           getBoolEnv("OCR_ENABLED", true),
		OCRLanguages:         getEnv("OCR_LANGUAGES", "tur+eng"),
		OCRFallbackLanguage:  getEnv("OCR_FALLBACK_LANGUAGE", "eng"),
		ManualCacheTTL:       getDurationEnv("MANUAL_CACHE_TTL", 30*time.Minute),
		ManualRequestTimeout: getDurationEnv("MANUAL_REQUEST_TIMEOUT", 150*time.Second),

		HydrationInterval: getDurationEnv("HYDRATION_INTERVAL", time.Hour),

		CategoryKeywords: defaultCategoryKeywords,
	}

	// Optional keyword list override (YAML)
	if path := os.Getenv("CATEGORY_KEYWORDS_FILE"); path != "" {
		keywords, err := LoadCategoryKeywords(path)
		if err == nil && len(keywords) > 0 {
			cfg.CategoryKeywords = keywords
		}
	}

	return cfg
}

// keywordsFile is the on-disk shape of the category keywords config.
type keywordsFile struct {
	Categories []string `yaml:"categories"`
}

// LoadCategoryKeywords loads the product-category keyword list from a YAML file.
func LoadCategoryKeywords(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read keywords file: %w", err)
	}

	var parsed keywordsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse keywords YAML: %w", err)
	}

	keywords := make([]string, 0, len(parsed.Categories))
	for _, k := range parsed.Categories {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
