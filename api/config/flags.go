package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type flagSpec struct {
	name  string
	key   string
	usage string
}

var flagSpecs = []flagSpec{
	{"llm-provider", "llm.provider", "LLM provider (anthropic, openai, ollama)"},
	{"llm-model", "llm.model", "LLM model name (provider default when empty)"},
	{"llm-base-url", "llm.base_url", "LLM endpoint base URL"},
	{"llm-max-tokens", "llm.max_tokens", "maximum tokens per LLM response"},
	{"llm-timeout", "llm.timeout", "timeout for a single LLM call"},
	{"llm-max-retries", "llm.max_retries", "retries after a failed LLM call"},

	{"database-url", "store.url", "store URL (postgres://, duckdb://, clickhouse://)"},
	{"schema-file", "store.schema_file", "file containing the schema description given to the LLM"},
	{"introspect-schema", "store.introspect_schema", "describe the schema from the database at startup"},

	{"index-path", "index.path", "document index directory; enables retrieval when set"},
	{"embedding-model", "index.embedding_model", "Ollama embedding model for the document index"},

	{"memory-window", "memory.window", "question/answer pairs kept per session (0 keeps all)"},
	{"sandbox-timeout", "sandbox.timeout", "wall-clock limit for chart programs"},

	{"listen-addr", "server.listen_addr", "HTTP API listen address"},
	{"metrics-addr", "server.metrics_addr", "Prometheus metrics listen address (disabled when empty)"},
	{"session-ttl", "server.session_ttl", "idle time after which a session is discarded"},
	{"max-concurrent-turns", "server.max_concurrent_turns", "maximum turns processed concurrently"},
}

// RegisterFlags adds a flag for every overridable key to fs. Flag defaults
// mirror Default; only flags set on the command line take precedence.
func RegisterFlags(fs *pflag.FlagSet) {
	d := viper.New()
	setDefaults(d)
	for _, f := range flagSpecs {
		switch def := d.Get(f.key).(type) {
		case string:
			fs.String(f.name, def, f.usage)
		case int:
			fs.Int(f.name, def, f.usage)
		case bool:
			fs.Bool(f.name, def, f.usage)
		case time.Duration:
			fs.Duration(f.name, def, f.usage)
		default:
			panic(fmt.Sprintf("config: no flag type for %s (%T)", f.key, def))
		}
	}
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, f := range flagSpecs {
		flag := fs.Lookup(f.name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(f.key, flag); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", f.name, err)
		}
	}
	return nil
}
