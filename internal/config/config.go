package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrConfiguration wraps every load or validation failure.
var ErrConfiguration = errors.New("configuration error")

// Config is built once at startup and passed by pointer to constructors.
// Nothing mutates it after Load returns.
type Config struct {
	Environment string `mapstructure:"environment" validate:"oneof=development production test"`
	HTTPPort    string `mapstructure:"http_port" validate:"required,numeric"`
	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string `mapstructure:"log_format" validate:"oneof=json console"`

	StoreBackend           string        `mapstructure:"store_backend" validate:"oneof=supabase sqlite"`
	SupabaseURL            string        `mapstructure:"supabase_url" validate:"required_if=StoreBackend supabase,omitempty,url"`
	SupabaseAnonKey        string        `mapstructure:"supabase_anon_key" validate:"required_if=StoreBackend supabase"`
	SupabaseServiceRoleKey string        `mapstructure:"supabase_service_role_key"`
	SupabaseDBPassword     string        `mapstructure:"supabase_db_password"`
	SupabaseTimeout        time.Duration `mapstructure:"supabase_timeout" validate:"gt=0"`
	DatabasePath           string        `mapstructure:"database_path" validate:"required_if=StoreBackend sqlite"`

	VectorBackend     string `mapstructure:"vector_backend" validate:"oneof=pgvector none"`
	VectorDatabaseURL string `mapstructure:"vector_database_url" validate:"required_if=VectorBackend pgvector"`
	VectorCollection  string `mapstructure:"vector_collection" validate:"required"`
	RetrievalK        int    `mapstructure:"retrieval_k" validate:"min=1,max=50"`

	LLMProvider          string        `mapstructure:"llm_provider" validate:"oneof=openai gemini"`
	EmbeddingProvider    string        `mapstructure:"embedding_provider" validate:"oneof=openai gemini"`
	OpenAIAPIKey         string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL        string        `mapstructure:"openai_base_url" validate:"omitempty,url"`
	OpenAIChatModel      string        `mapstructure:"openai_chat_model" validate:"required"`
	OpenAIEmbeddingModel string        `mapstructure:"openai_embedding_model" validate:"required"`
	GeminiAPIKey         string        `mapstructure:"gemini_api_key"`
	GeminiChatModel      string        `mapstructure:"gemini_chat_model" validate:"required"`
	GeminiEmbeddingModel string        `mapstructure:"gemini_embedding_model" validate:"required"`
	LLMTemperature       float32       `mapstructure:"llm_temperature" validate:"gte=0,lte=2"`
	LLMTimeout           time.Duration `mapstructure:"llm_timeout" validate:"gt=0"`
	CompletionFallback   string        `mapstructure:"completion_fallback" validate:"required"`

	HistoryLimit      int           `mapstructure:"history_limit" validate:"gte=0"`
	TurnFanoutTimeout time.Duration `mapstructure:"turn_fanout_timeout" validate:"gt=0"`

	ElevenLabsAPIKey       string        `mapstructure:"elevenlabs_api_key" validate:"required"`
	ElevenLabsBaseURL      string        `mapstructure:"elevenlabs_base_url" validate:"required,url"`
	ElevenLabsModel        string        `mapstructure:"elevenlabs_model" validate:"required"`
	ElevenLabsDefaultVoice string        `mapstructure:"elevenlabs_default_voice" validate:"required"`
	TTSTimeout             time.Duration `mapstructure:"tts_timeout" validate:"gt=0"`

	HealthCheckInterval time.Duration `mapstructure:"health_check_interval" validate:"gt=0"`
	HealthCheckTimeout  time.Duration `mapstructure:"health_check_timeout" validate:"gt=0"`

	Persona     string `mapstructure:"persona" validate:"required"`
	PersonaFile string `mapstructure:"persona_file" validate:"omitempty,file"`

	AuthJWTSecret      string   `mapstructure:"auth_jwt_secret"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
	EnableDebugRoutes  bool     `mapstructure:"enable_debug_routes"`
	EnableMetrics      bool     `mapstructure:"enable_metrics"`
	EnableTracing      bool     `mapstructure:"enable_tracing"`
	OTLPEndpoint       string   `mapstructure:"otlp_endpoint" validate:"required_if=EnableTracing true"`
}

const (
	DefaultHTTPPort           = "8000"
	DefaultCollection         = "sports_psychology_docs"
	DefaultRetrievalK         = 4
	DefaultHistoryLimit       = 20
	DefaultVoiceID            = "EXAVITQu4vr4xnSDxMaL"
	DefaultCompletionFallback = "I'm sorry, I couldn't generate a response at this time. Please try again."
)

var defaults = map[string]any{
	"environment":               "development",
	"http_port":                 DefaultHTTPPort,
	"log_level":                 "info",
	"log_format":                "json",
	"store_backend":             "supabase",
	"supabase_url":              "",
	"supabase_anon_key":         "",
	"supabase_service_role_key": "",
	"supabase_db_password":      "",
	"supabase_timeout":          10 * time.Second,
	"database_path":             "coach.db",
	"vector_backend":            "pgvector",
	"vector_database_url":       "",
	"vector_collection":         DefaultCollection,
	"retrieval_k":               DefaultRetrievalK,
	"llm_provider":              "openai",
	"embedding_provider":        "openai",
	"openai_api_key":            "",
	"openai_base_url":           "https://api.openai.com/v1",
	"openai_chat_model":         "gpt-3.5-turbo",
	"openai_embedding_model":    "text-embedding-ada-002",
	"gemini_api_key":            "",
	"gemini_chat_model":         "gemini-1.5-flash-latest",
	"gemini_embedding_model":    "text-embedding-004",
	"llm_temperature":           0.7,
	"llm_timeout":               60 * time.Second,
	"completion_fallback":       DefaultCompletionFallback,
	"history_limit":             DefaultHistoryLimit,
	"turn_fanout_timeout":       15 * time.Second,
	"elevenlabs_api_key":        "",
	"elevenlabs_base_url":       "https://api.elevenlabs.io",
	"elevenlabs_model":          "eleven_multilingual_v2",
	"elevenlabs_default_voice":  DefaultVoiceID,
	"tts_timeout":               30 * time.Second,
	"health_check_interval":     30 * time.Second,
	"health_check_timeout":      5 * time.Second,
	"persona":                   "sports_psychologist",
	"persona_file":              "",
	"auth_jwt_secret":           "",
	"cors_allowed_origins":      "*",
	"enable_metrics":            true,
	"enable_tracing":            false,
	"otlp_endpoint":             "localhost:4317",
}

// Load reads .env (if present) and the process environment, applies
// defaults and validates the result. Any missing or malformed key fails
// the whole load.
func Load() (*Config, error) {
	// A missing .env file is fine; the environment alone is enough.
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("%w: bind %s: %v", ErrConfiguration, key, err)
		}
	}

	// Debug routes are on by default everywhere except production.
	if err := v.BindEnv("enable_debug_routes"); err != nil {
		return nil, fmt.Errorf("%w: bind enable_debug_routes: %v", ErrConfiguration, err)
	}
	v.SetDefault("enable_debug_routes", !strings.EqualFold(v.GetString("environment"), "production"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse environment: %v", ErrConfiguration, err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.StoreBackend = strings.ToLower(c.StoreBackend)
	c.VectorBackend = strings.ToLower(c.VectorBackend)
	c.LLMProvider = strings.ToLower(c.LLMProvider)
	c.EmbeddingProvider = strings.ToLower(c.EmbeddingProvider)

	origins := make([]string, 0, len(c.CORSAllowedOrigins))
	for _, o := range c.CORSAllowedOrigins {
		for _, part := range strings.Split(o, ",") {
			if part = strings.TrimSpace(part); part != "" {
				origins = append(origins, part)
			}
		}
	}
	c.CORSAllowedOrigins = origins

	if c.VectorDatabaseURL == "" && c.SupabaseURL != "" && c.SupabaseDBPassword != "" {
		c.VectorDatabaseURL = DeriveDatabaseURL(c.SupabaseURL, c.SupabaseDBPassword)
	}
}

// Validate checks struct tags plus the rules that depend on several keys.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return formatValidationError(err)
	}

	var problems []string
	needsOpenAI := c.LLMProvider == "openai" || (c.VectorBackend != "none" && c.EmbeddingProvider == "openai")
	if needsOpenAI && c.OpenAIAPIKey == "" {
		problems = append(problems, "OPENAI_API_KEY is required")
	}
	needsGemini := c.LLMProvider == "gemini" || (c.VectorBackend != "none" && c.EmbeddingProvider == "gemini")
	if needsGemini && c.GeminiAPIKey == "" {
		problems = append(problems, "GEMINI_API_KEY is required")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// SupabaseKey prefers the service role key, which bypasses row level security.
func (c *Config) SupabaseKey() string {
	if c.SupabaseServiceRoleKey != "" {
		return c.SupabaseServiceRoleKey
	}
	return c.SupabaseAnonKey
}

func (c *Config) Addr() string {
	return ":" + c.HTTPPort
}

// DeriveDatabaseURL turns https://<ref>.supabase.co into the project's
// direct Postgres connection string.
func DeriveDatabaseURL(supabaseURL, password string) string {
	u, err := url.Parse(supabaseURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword("postgres", password),
		Host:   "db." + u.Hostname() + ":5432",
		Path:   "/postgres",
	}
	return dsn.String()
}

func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatFieldError(e))
	}
	return errors.New(strings.Join(messages, "; "))
}

func formatFieldError(e validator.FieldError) string {
	key := envName(e.StructField())
	switch e.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", key)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", key, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", key)
	case "file":
		return fmt.Sprintf("%s must point to an existing file", key)
	default:
		return fmt.Sprintf("%s is invalid (%s=%s)", key, e.Tag(), e.Param())
	}
}

var configFields = func() map[string]string {
	t := reflect.TypeOf(Config{})
	fields := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		fields[f.Name] = f.Tag.Get("mapstructure")
	}
	return fields
}()

// envName maps a struct field back to the environment variable it came from.
func envName(field string) string {
	f, ok := configFields[field]
	if !ok {
		return field
	}
	return strings.ToUpper(f)
}
