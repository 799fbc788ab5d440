package config

// Builtin returns the built-in configuration document. Load layers the
// on-disk YAML over this with mergo so an operator's config only needs to
// name the fields it overrides.
func Builtin() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			Debug:    false,
			LogLevel: "info",
		},
		Auth: AuthConfig{
			JWTAlgorithm:             "HS256",
			AccessTokenExpireMinutes: 60,
		},
		LLM: LLMConfig{
			DefaultFlashModel: "gemini-2.5-flash",
			DefaultProModel:   "gemini-2.5-pro",
			MaxTokens:         8192,
			Temperature:       0.2,
			TopP:              0.95,
			MediaResolution:   MediaResolutionMedium,
			ThinkingEnabled:   false,
			ThinkingBudget:    0,
		},
		Render: RenderConfig{
			PreviewMaxSide:         2000,
			ZoomPreviewMaxSide:     2000,
			AutoQuadrantsThreshold: 2.5,
			ViewportSize:           2048,
			ViewportPadding:        512,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     "./data/render_cache",
			MaxMB:   2000,
			TTLDays: 14,
		},
		Queue: QueueConfig{
			MaxConcurrent:  2,
			MaxSize:        50,
			TimeoutSeconds: 300,
		},
		Upload: UploadConfig{
			MaxFileSizeMB: 100,
		},
	}
}
