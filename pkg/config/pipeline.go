// Package config loads the document-analysis pipeline's configuration:
// YAML on disk, ${VAR} expansion, a .env file for local/dev runs, and
// built-in defaults layered underneath user overrides via mergo.
package config

// Config is the umbrella configuration object for the pipeline core.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	LLM    LLMConfig    `yaml:"llm"`
	Render RenderConfig `yaml:"rendering"`
	Cache  CacheConfig  `yaml:"evidence_cache"`
	Queue  QueueConfig  `yaml:"queue"`
	Upload UploadConfig `yaml:"upload"`
	CORS   CORSConfig   `yaml:"cors"`
}

// ServerConfig holds host/port/debug/log-level settings.
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"log_level"`
}

// AuthConfig holds JWT settings for the identity layer this core treats
// as an external collaborator; the core only needs these to validate
// tokens handed to it, never to issue them.
type AuthConfig struct {
	JWTSecretKey            string `yaml:"jwt_secret_key"`
	JWTAlgorithm            string `yaml:"jwt_algorithm"`
	AccessTokenExpireMinutes int   `yaml:"access_token_expire_minutes"`
}

// MediaResolution mirrors llmadapter.MediaResolution at the config layer,
// so the YAML document doesn't need to import the adapter package.
type MediaResolution string

const (
	MediaResolutionLow    MediaResolution = "low"
	MediaResolutionMedium MediaResolution = "medium"
	MediaResolutionHigh   MediaResolution = "high"
)

// LLMConfig holds the default models and generation knobs.
type LLMConfig struct {
	DefaultFlashModel string          `yaml:"default_flash_model"`
	DefaultProModel   string          `yaml:"default_pro_model"`
	MaxTokens         int32           `yaml:"max_tokens"`
	Temperature       float32         `yaml:"temperature"`
	TopP              float32         `yaml:"top_p"`
	MediaResolution   MediaResolution `yaml:"media_resolution"`
	ThinkingEnabled   bool            `yaml:"thinking_enabled"`
	ThinkingBudget    int32           `yaml:"thinking_budget"`
}

// RenderConfig holds the Evidence Renderer's size/threshold knobs.
type RenderConfig struct {
	PreviewMaxSide         int     `yaml:"preview_max_side"`
	ZoomPreviewMaxSide     int     `yaml:"zoom_preview_max_side"`
	AutoQuadrantsThreshold float64 `yaml:"auto_quadrants_threshold"`
	ViewportSize           int     `yaml:"viewport_size"`
	ViewportPadding        int     `yaml:"viewport_padding"`
}

// CacheConfig holds the Render Cache's on-disk location and bounds.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	MaxMB   int    `yaml:"max_mb"`
	TTLDays int    `yaml:"ttl_days"`
}

// QueueConfig holds the Request Queue's admission bounds.
type QueueConfig struct {
	MaxConcurrent  int `yaml:"max_concurrent"`
	MaxSize        int `yaml:"max_size"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// UploadConfig holds upload-surface bounds this core is handed by its
// caller; the upload/validation layer itself lives outside the core.
type UploadConfig struct {
	MaxFileSizeMB int `yaml:"max_file_size_mb"`
}

// CORSConfig holds the allowed-origins list consumed by the transport
// layer this core does not itself implement.
type CORSConfig struct {
	Origins []string `yaml:"cors_origins"`
}
