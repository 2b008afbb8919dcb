package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "MINDLAKE"

// envAliases are read after MINDLAKE_<SECTION>_<KEY>, in order.
var envAliases = map[string][]string{
	"store.url":                   {"MINDLAKE_DATABASE_URL", "DATABASE_URL"},
	"store.query_timeout":         {"MINDLAKE_QUERY_TIMEOUT"},
	"store.schema_file":           {"MINDLAKE_SCHEMA_FILE"},
	"store.introspect_schema":     {"MINDLAKE_INTROSPECT_SCHEMA"},
	"index.embedding_model":       {"MINDLAKE_EMBEDDING_MODEL"},
	"index.ollama_url":            {"MINDLAKE_OLLAMA_URL"},
	"server.listen_addr":          {"MINDLAKE_LISTEN_ADDR"},
	"server.metrics_addr":         {"MINDLAKE_METRICS_ADDR"},
	"server.session_ttl":          {"MINDLAKE_SESSION_TTL"},
	"server.max_concurrent_turns": {"MINDLAKE_MAX_CONCURRENT_TURNS"},
	"server.allowed_origins":      {"MINDLAKE_ALLOWED_ORIGINS"},
}

// providerKeyEnv names the conventional API key variable of each provider.
var providerKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.max_retries", d.LLM.MaxRetries)

	v.SetDefault("store.url", d.Store.URL)
	v.SetDefault("store.query_timeout", d.Store.QueryTimeout)
	v.SetDefault("store.schema_file", d.Store.SchemaFile)
	v.SetDefault("store.introspect_schema", d.Store.IntrospectSchema)

	v.SetDefault("index.path", d.Index.Path)
	v.SetDefault("index.embedding_model", d.Index.EmbeddingModel)
	v.SetDefault("index.ollama_url", d.Index.OllamaURL)
	v.SetDefault("index.top_k", d.Index.TopK)

	v.SetDefault("memory.window", d.Memory.Window)

	v.SetDefault("sandbox.timeout", d.Sandbox.Timeout)
	v.SetDefault("sandbox.max_nodes", d.Sandbox.MaxNodes)

	v.SetDefault("server.listen_addr", d.Server.ListenAddr)
	v.SetDefault("server.metrics_addr", d.Server.MetricsAddr)
	v.SetDefault("server.session_ttl", d.Server.SessionTTL)
	v.SetDefault("server.max_concurrent_turns", d.Server.MaxConcurrentTurns)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return v, nil
}

// envNames lists the variables read for key, highest precedence first.
func envNames(key string) []string {
	canonical := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	return append([]string{canonical}, envAliases[key]...)
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then ./.env, then the environment, then the flags set in fs.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	return load(path, ".env", fs)
}

func load(path, dotenvPath string, fs *pflag.FlagSet) (Config, error) {
	v, err := newViper()
	if err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	dotenv, err := readDotenv(dotenvPath)
	if err != nil {
		return Config{}, err
	}
	if err := v.MergeConfigMap(dotenvSettings(v, dotenv)); err != nil {
		return Config{}, fmt.Errorf("failed to merge %s: %w", dotenvPath, err)
	}

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)

	if cfg.LLM.APIKey == "" {
		if name, ok := providerKeyEnv[strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))]; ok {
			cfg.LLM.APIKey = lookupEnv(name, dotenv)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// readDotenv returns the variables in the .env file at path. A missing file
// yields none.
func readDotenv(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return vars, nil
}

// dotenvSettings maps .env variables onto config keys so they layer above the
// YAML file and below the process environment.
func dotenvSettings(v *viper.Viper, vars map[string]string) map[string]any {
	out := make(map[string]any)
	if len(vars) == 0 {
		return out
	}
	for _, key := range v.AllKeys() {
		for _, name := range envNames(key) {
			if val := vars[name]; val != "" {
				setNested(out, key, val)
				break
			}
		}
	}
	return out
}

func setNested(m map[string]any, key string, val any) {
	parts := strings.Split(key, ".")
	for _, p := range parts[:len(parts)-1] {
		child, ok := m[p].(map[string]any)
		if !ok {
			child = make(map[string]any)
			m[p] = child
		}
		m = child
	}
	m[parts[len(parts)-1]] = val
}

func lookupEnv(name string, dotenv map[string]string) string {
	if val, ok := os.LookupEnv(name); ok && val != "" {
		return val
	}
	return dotenv[name]
}
