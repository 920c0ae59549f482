package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Виды провайдеров сессии.
const (
	ProviderCloudAPI       = "cloud-api"
	ProviderLocalProxy     = "local-proxy"
	ProviderLocalInference = "local-inference"
)

// Бэкенды vision-модели для пайплайна распознавания картинок.
const (
	VisionBackendOllama = "ollama"
	VisionBackendOpenAI = "openai"
)

type Config struct {
	DebugMode bool   `env:"DEBUG_MODE"` //Режим дебага
	Provider  string `env:"PROVIDER"`   // cloud-api|local-proxy|local-inference

	Profile             string `env:"PROFILE"`              // Профиль системного промпта по умолчанию
	ResponseLanguage    string `env:"RESPONSE_LANGUAGE"`    // Язык ответов модели по умолчанию
	ProgrammingLanguage string `env:"PROGRAMMING_LANGUAGE"` // Язык программирования для решений по умолчанию
	SearchEnabled       bool   `env:"SEARCH_ENABLED"`       // Включать ли блок про поисковый инструмент

	Cloud     CloudConfig
	Proxy     ProxyConfig
	Ollama    OllamaConfig
	Vision    VisionConfig
	Pipeline  PipelineConfig
	Server    ServerConfig
	Storage   StorageConfig
	Capture   CaptureConfig
	PrefsPath string `env:"PREFERENCES_PATH"` // YAML-файл пользовательских настроек (опционально)

	NotificationSoundPath string `env:"NOTIFICATION_SOUND_PATH"` // Путь к звуковому файлу уведомления о готовом ответе
}

// CloudConfig настройки облачного OpenAI-совместимого API (DeepSeek по умолчанию).
type CloudConfig struct {
	BaseURL      string `env:"CLOUD_BASE_URL"`
	APIKey       string `env:"CLOUD_API_KEY"`
	Model        string `env:"CLOUD_MODEL"`
	NativeVision bool   `env:"CLOUD_NATIVE_VISION"` // Модель принимает картинки напрямую
	ProviderName string `env:"CLOUD_PROVIDER_NAME"` // Имя для сообщений об ошибках (DeepSeek, OpenAI...)
}

// ProxyConfig настройки локального прокси (assistant serve).
type ProxyConfig struct {
	URL string `env:"PROXY_URL"`
}

// OllamaConfig настройки локального инференс-сервера.
type OllamaConfig struct {
	URL         string  `env:"OLLAMA_URL"`
	Model       string  `env:"OLLAMA_MODEL"`
	VisionModel string  `env:"OLLAMA_VISION_MODEL"`
	Temperature float64 `env:"OLLAMA_TEMPERATURE"`
	NumPredict  int     `env:"OLLAMA_NUM_PREDICT"`
}

// VisionConfig выбор vision-модели для второго прохода пайплайна.
type VisionConfig struct {
	Backend string `env:"VISION_BACKEND"` // ollama|openai
	Model   string `env:"VISION_MODEL"`   // Для openai; для ollama берётся Ollama.VisionModel
	APIKey  string `env:"OPENAI_API_KEY"`
}

// PipelineConfig пороги распознавания изображений.
type PipelineConfig struct {
	MinImageBytes    int    `env:"MIN_IMAGE_BYTES"`     // Картинка меньше или равная этому размеру отвергается
	MinOCRTextLength int    `env:"MIN_OCR_TEXT_LENGTH"` // OCR-текст короче считается шумом
	OCRLanguage      string `env:"OCR_LANGUAGE"`        // Язык tesseract
}

// ServerConfig HTTP-сервер (локальный прокси и UI-мост).
type ServerConfig struct {
	BindAddr  string `env:"SERVER_BIND_ADDR"`
	AuthToken string `env:"SERVER_AUTH_TOKEN"` // Токен авторизации (опционально)
}

// StorageConfig хранилище сохранённых реплик.
type StorageConfig struct {
	DBPath string `env:"DB_PATH"` // Пусто — реплики не сохраняются
}

// CaptureConfig настройки снятия скриншотов.
type CaptureConfig struct {
	MaxWidth   int           `env:"CAPTURE_MAX_WIDTH"`
	Quality    int           `env:"CAPTURE_QUALITY"`
	DebugDir   string        `env:"CAPTURE_DEBUG_DIR"` // Куда сохранять кадры для отладки; пусто — не сохранять
	DebugTTL   time.Duration `env:"CAPTURE_DEBUG_TTL"`
	DefaultAsk string        `env:"CAPTURE_DEFAULT_QUESTION"`
}

// Defaults возвращает конфигурацию с предустановленными значениями по умолчанию.
// Эти значения перекрываются .env, переменными окружения и флагами CLI.
func Defaults() *Config {
	return &Config{
		DebugMode:           false,
		Provider:            ProviderCloudAPI,
		Profile:             "interview",
		ResponseLanguage:    "English",
		ProgrammingLanguage: "JavaScript",
		SearchEnabled:       false,
		Cloud: CloudConfig{
			BaseURL:      "https://api.deepseek.com",
			Model:        "deepseek-chat",
			ProviderName: "DeepSeek",
		},
		Proxy: ProxyConfig{URL: "http://localhost:3000"},
		Ollama: OllamaConfig{
			URL:         "http://localhost:11434",
			Model:       "deepseek-coder:6.7b",
			VisionModel: "llava:7b",
			Temperature: 0.1,
			NumPredict:  4000,
		},
		Vision: VisionConfig{
			Backend: VisionBackendOllama,
			Model:   "gpt-4o",
		},
		Pipeline: PipelineConfig{
			MinImageBytes:    1000,
			MinOCRTextLength: 50,
			OCRLanguage:      "eng",
		},
		Server:  ServerConfig{BindAddr: "127.0.0.1:3000"},
		Storage: StorageConfig{DBPath: "assistant.db"},
		Capture: CaptureConfig{
			MaxWidth: 1280,
			Quality:  90,
			DebugTTL: 10 * time.Minute,
		},
		NotificationSoundPath: "",
	}
}

// NewConfig загружает конфигурацию: дефолты, затем .env и окружение.
// Флаги CLI применяются отдельно через BindFlags.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// BindFlags регистрирует флаги, перекрывающие значения конфигурации.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.BoolVar(&cfg.DebugMode, "debug-mode", cfg.DebugMode, "включить режим дебага")
	fs.StringVar(&cfg.Provider, "provider", cfg.Provider, "провайдер: cloud-api|local-proxy|local-inference")
	fs.StringVar(&cfg.Profile, "profile", cfg.Profile, "профиль системного промпта")
	fs.StringVar(&cfg.ResponseLanguage, "response-language", cfg.ResponseLanguage, "язык ответов модели")
	fs.StringVar(&cfg.ProgrammingLanguage, "programming-language", cfg.ProgrammingLanguage, "язык программирования для решений")
	fs.BoolVar(&cfg.SearchEnabled, "search-enabled", cfg.SearchEnabled, "добавлять в промпт правила поискового инструмента")
	// Облачный API
	fs.StringVar(&cfg.Cloud.BaseURL, "cloud-base-url", cfg.Cloud.BaseURL, "базовый URL OpenAI-совместимого API")
	fs.StringVar(&cfg.Cloud.APIKey, "cloud-api-key", cfg.Cloud.APIKey, "API ключ облачного провайдера (перекрывает ENV)")
	fs.StringVar(&cfg.Cloud.Model, "cloud-model", cfg.Cloud.Model, "модель облачного провайдера")
	fs.BoolVar(&cfg.Cloud.NativeVision, "cloud-native-vision", cfg.Cloud.NativeVision, "модель принимает изображения напрямую")
	// Локальные провайдеры
	fs.StringVar(&cfg.Proxy.URL, "proxy-url", cfg.Proxy.URL, "адрес локального прокси")
	fs.StringVar(&cfg.Ollama.URL, "ollama-url", cfg.Ollama.URL, "адрес Ollama")
	fs.StringVar(&cfg.Ollama.Model, "ollama-model", cfg.Ollama.Model, "модель Ollama для кода и текста")
	fs.StringVar(&cfg.Ollama.VisionModel, "ollama-vision-model", cfg.Ollama.VisionModel, "vision-модель Ollama")
	fs.StringVar(&cfg.Vision.Backend, "vision-backend", cfg.Vision.Backend, "бэкенд описания картинок: ollama|openai")
	// Пайплайн
	fs.IntVar(&cfg.Pipeline.MinImageBytes, "min-image-bytes", cfg.Pipeline.MinImageBytes, "минимальный размер картинки в байтах")
	fs.IntVar(&cfg.Pipeline.MinOCRTextLength, "min-ocr-text-length", cfg.Pipeline.MinOCRTextLength, "минимальная длина OCR-текста")
	// Сервер, хранилище
	fs.StringVar(&cfg.Server.BindAddr, "bind-addr", cfg.Server.BindAddr, "адрес HTTP-сервера (напр. 127.0.0.1:3000)")
	fs.StringVar(&cfg.Storage.DBPath, "db-path", cfg.Storage.DBPath, "путь к SQLite базе реплик; пусто — не сохранять")
	fs.StringVar(&cfg.PrefsPath, "preferences", cfg.PrefsPath, "путь к YAML-файлу настроек")
	fs.StringVar(&cfg.NotificationSoundPath, "notification-sound-path", cfg.NotificationSoundPath, "путь к звуковому файлу уведомления (mp3 или wav)")
	fs.StringVar(&cfg.Capture.DebugDir, "capture-debug-dir", cfg.Capture.DebugDir, "папка для сохранения снятых кадров")
}

// Validate проверяет согласованность конфигурации после применения флагов.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case ProviderCloudAPI, ProviderLocalProxy, ProviderLocalInference:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	switch c.Vision.Backend {
	case VisionBackendOllama, VisionBackendOpenAI:
	default:
		return fmt.Errorf("unknown vision backend %q", c.Vision.Backend)
	}
	if c.Pipeline.MinImageBytes < 0 || c.Pipeline.MinOCRTextLength < 0 {
		return fmt.Errorf("pipeline thresholds must not be negative")
	}
	return nil
}
