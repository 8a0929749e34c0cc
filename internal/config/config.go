package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port        string
	Env         string
	APIUrl      string
	FrontendURL string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBTimeZone string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// JWT (tokens are issued by the identity service; we only validate)
	JWTSecret string

	// Media S3 - audio masters and cover art
	MediaS3Endpoint        string
	MediaS3Region          string
	MediaS3AccessKeyID     string
	MediaS3SecretAccessKey string
	MediaS3UsePathStyle    bool
	MediaAudioBucket       string
	MediaArtworkBucket     string

	// Local storage (preview cache)
	LocalAssetsPath string

	// Upload coordinator
	UploadWholeFileThreshold int64 // below this, single PutObject
	UploadPartSize           int64
	UploadPartConcurrency    int
	UploadMaxAudioSize       int64
	UploadMaxPerDay          int

	// Artist search collaborators
	SpotifySearchURL   string
	SpotifyAPIToken    string
	AppleSearchURL     string
	AppleAPIToken      string
	YouTubeSearchURL   string
	YouTubeAPIKey      string
	SearchResultLimit  int
	SearchDebounce     time.Duration
	SearchMinQueryLen  int
	SearchHTTPTimeout  time.Duration
	ResolverSessionTTL time.Duration

	// Plan data collaborator
	PlanServiceURL     string
	PlanServiceToken   string
	PlanCacheTTL       time.Duration
	PlanHTTPTimeout    time.Duration
	DefaultLeadTimeDay int

	// Cover art compliance collaborator
	ComplianceURL         string
	ComplianceToken       string
	ComplianceHTTPTimeout time.Duration
	CoverArtMinPixels     int
	CoverArtMaxSize       int64

	// Submission collaborator
	SubmissionURL         string
	SubmissionToken       string
	SubmissionHTTPTimeout time.Duration

	// Security
	RateLimitRequests int
	RateLimitDuration time.Duration

	// CORS
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

func New() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		APIUrl:      getEnv("API_URL", "http://localhost:8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "trackforge"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "trackforge_db"),
		DBSSLMode:  getEnv("DB_SSL_MODE", "disable"),
		DBTimeZone: getEnv("DB_TIMEZONE", "UTC"),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "your-secret-key"),

		// Media S3
		MediaS3Endpoint:        getEnv("MEDIA_S3_ENDPOINT", ""),
		MediaS3Region:          getEnv("MEDIA_S3_REGION", "us-east-1"),
		MediaS3AccessKeyID:     getEnv("MEDIA_S3_ACCESS_KEY_ID", ""),
		MediaS3SecretAccessKey: getEnv("MEDIA_S3_SECRET_ACCESS_KEY", ""),
		MediaS3UsePathStyle:    getEnv("MEDIA_S3_USE_PATH_STYLE", "true") == "true",
		MediaAudioBucket:       getEnv("MEDIA_AUDIO_BUCKET", "trackforge-audio"),
		MediaArtworkBucket:     getEnv("MEDIA_ARTWORK_BUCKET", "trackforge-artwork"),

		// Local storage
		LocalAssetsPath: getEnv("LOCAL_ASSETS_PATH", "/data/assets"),

		// Upload coordinator
		UploadWholeFileThreshold: getEnvAsInt64("UPLOAD_WHOLE_FILE_THRESHOLD", 8*1024*1024),
		UploadPartSize:           getEnvAsInt64("UPLOAD_PART_SIZE", 5*1024*1024),
		UploadPartConcurrency:    getEnvAsInt("UPLOAD_PART_CONCURRENCY", 3),
		UploadMaxAudioSize:       getEnvAsInt64("UPLOAD_MAX_AUDIO_SIZE", 500*1024*1024),
		UploadMaxPerDay:          getEnvAsInt("UPLOAD_MAX_PER_DAY", 50),

		// Artist search collaborators
		SpotifySearchURL:   getEnv("SPOTIFY_SEARCH_URL", "https://api.spotify.com/v1/search"),
		SpotifyAPIToken:    getEnv("SPOTIFY_API_TOKEN", ""),
		AppleSearchURL:     getEnv("APPLE_SEARCH_URL", "https://itunes.apple.com/search"),
		AppleAPIToken:      getEnv("APPLE_API_TOKEN", ""),
		YouTubeSearchURL:   getEnv("YOUTUBE_SEARCH_URL", "https://www.googleapis.com/youtube/v3/search"),
		YouTubeAPIKey:      getEnv("YOUTUBE_API_KEY", ""),
		SearchResultLimit:  getEnvAsInt("SEARCH_RESULT_LIMIT", 5),
		SearchDebounce:     getEnvAsDuration("SEARCH_DEBOUNCE", "350ms"),
		SearchMinQueryLen:  getEnvAsInt("SEARCH_MIN_QUERY_LEN", 2),
		SearchHTTPTimeout:  getEnvAsDuration("SEARCH_HTTP_TIMEOUT", "10s"),
		ResolverSessionTTL: getEnvAsDuration("RESOLVER_SESSION_TTL", "30m"),

		// Plan data collaborator
		PlanServiceURL:     getEnv("PLAN_SERVICE_URL", ""),
		PlanServiceToken:   getEnv("PLAN_SERVICE_TOKEN", ""),
		PlanCacheTTL:       getEnvAsDuration("PLAN_CACHE_TTL", "10m"),
		PlanHTTPTimeout:    getEnvAsDuration("PLAN_HTTP_TIMEOUT", "10s"),
		DefaultLeadTimeDay: getEnvAsInt("DEFAULT_LEAD_TIME_DAYS", 7),

		// Compliance collaborator
		ComplianceURL:         getEnv("COMPLIANCE_URL", ""),
		ComplianceToken:       getEnv("COMPLIANCE_TOKEN", ""),
		ComplianceHTTPTimeout: getEnvAsDuration("COMPLIANCE_HTTP_TIMEOUT", "30s"),
		CoverArtMinPixels:     getEnvAsInt("COVER_ART_MIN_PIXELS", 3000),
		CoverArtMaxSize:       getEnvAsInt64("COVER_ART_MAX_SIZE", 10*1024*1024),

		// Submission collaborator
		SubmissionURL:         getEnv("SUBMISSION_URL", ""),
		SubmissionToken:       getEnv("SUBMISSION_TOKEN", ""),
		SubmissionHTTPTimeout: getEnvAsDuration("SUBMISSION_HTTP_TIMEOUT", "30s"),

		// Security
		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitDuration: getEnvAsDuration("RATE_LIMIT_DURATION", "1m"),

		// CORS
		AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		AllowedMethods: getEnvAsSlice("ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		AllowedHeaders: getEnvAsSlice("ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	if duration, err := time.ParseDuration(defaultValue); err == nil {
		return duration
	}
	return time.Hour
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
