package config

import (
	"strings"
)

type Config struct {
	Server    ServerConfig
	Gemini    GeminiConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	API       APIConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OllamaConfig struct {
	BaseURL   string
	ChatModel string
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	TopK        int
	MaxFeatures int
}

type APIConfig struct {
	Token string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		Ollama: OllamaConfig{
			BaseURL:   "http://localhost:11434",
			ChatModel: "llama3.1:8b",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK:        3,
			MaxFeatures: 5000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.studykit.brain) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/brain/config.json
// and secrets come from $XDG_DATA_HOME/brain/secrets.json.
//
// Environment variables (BRAIN_*) override backend values on all platforms.
// The Gemini API key is optional: without one the server runs on the local
// Ollama backend only.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret storage for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Gemini.APIKey == "" {
		if key, err := kc.Get("brain", "gemini_api_key"); err == nil && key != "" {
			cfg.Gemini.APIKey = key
		}
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// SetSecret stores a secret in the platform secret store.
func SetSecret(account, value string) error {
	return keychainSet("brain", account, value)
}
