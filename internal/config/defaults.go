package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Workspace: "~/.mz-assistant/workspace",
			LogLevel:  "info",
			AgentName: "assistant",
		},
		Backends: map[string]BackendConfig{
			"speech": {
				Enabled: true,
				APIBase: "https://api.groq.com/openai/v1",
				Model:   "whisper-large-v3",
			},
			"vision": {
				Enabled: true,
				APIBase: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			},
			"media": {
				Enabled: true,
				APIBase: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			},
			"chat": {
				Enabled: true,
				APIBase: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			},
		},
		Channels: ChannelsConfig{
			API: APIConfig{
				Enabled: true,
				Host:    "127.0.0.1",
				Port:    8080,
			},
			Realtime: RealtimeConfig{
				Enabled: true,
				Port:    8081,
				Path:    "/ws",
			},
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
		},
		Storage: StorageConfig{
			DBPath:       "~/.mz-assistant/assistant.db",
			ArtifactDir:  "~/.mz-assistant/artifacts",
			MaxSizeBytes: 50 * 1024 * 1024,
		},
		Tasks: TasksConfig{
			Workers:          4,
			EstimatedSeconds: 30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
