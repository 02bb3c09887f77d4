package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "MOLSEARCH"

// newViper builds a Viper instance with YAML type, the MOLSEARCH_ env prefix
// and a "." -> "_" key replacer, so "vertex.project_id" resolves to
// MOLSEARCH_VERTEX_PROJECT_ID. Every key of Config is bound explicitly because
// AutomaticEnv alone is invisible to Unmarshal.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys(reflect.TypeOf(Config{}), "") {
		_ = v.BindEnv(key)
	}
	setBoolDefaults(v)
	return v
}

// setBoolDefaults registers defaults for switches whose default is true.
func setBoolDefaults(v *viper.Viper) {
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("server.rate_limit.enabled", true)
}

// configKeys walks the mapstructure tags of t and returns dotted leaf keys.
func configKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Time{}) {
			keys = append(keys, configKeys(f.Type, key)...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// Load reads the YAML file at configPath, merges MOLSEARCH_* overrides and
// the legacy variable names, applies defaults and validates.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from environment variables only.
//
//	MOLSEARCH_<SECTION>_<FIELD>   e.g.  MOLSEARCH_VERTEX_ENGINE_ID
//
// The variable names of the earlier deployment (VERTEX_AI_PROJECT_ID,
// DATABASE_URL, ALLOWED_ORIGINS, ...) are honoured when the MOLSEARCH_ form
// is unset.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// LoadOrEnv loads configPath when non-empty, otherwise the environment.
func LoadOrEnv(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	return Load(configPath)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	if err := applyLegacyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// applyLegacyEnv fills fields still unset from the variable names used by the
// original deployment manifests. Pool timeouts there are plain seconds.
func applyLegacyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(dst *string, name string) {
		if *dst != "" {
			return
		}
		if val, ok := lookup(name); ok && val != "" {
			*dst = val
		}
	}
	num := func(dst *int, name string) error {
		if *dst != 0 {
			return nil
		}
		val, ok := lookup(name)
		if !ok || val == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("config: %s must be an integer: %w", name, err)
		}
		*dst = n
		return nil
	}
	seconds := func(dst *time.Duration, name string) error {
		var n int
		if *dst != 0 {
			return nil
		}
		if err := num(&n, name); err != nil {
			return err
		}
		if n > 0 {
			*dst = time.Duration(n) * time.Second
		}
		return nil
	}

	str(&cfg.Vertex.ProjectID, "VERTEX_AI_PROJECT_ID")
	str(&cfg.Vertex.EngineID, "VERTEX_AI_ENGINE_ID")
	str(&cfg.Vertex.Location, "VERTEX_AI_LOCATION")
	str(&cfg.Vertex.Collection, "VERTEX_AI_COLLECTION")
	str(&cfg.Vertex.AccessToken, "GOOGLE_ACCESS_TOKEN")
	str(&cfg.Database.DSN, "DATABASE_URL")
	str(&cfg.Server.Environment, "ENVIRONMENT")

	if len(cfg.Server.AllowedOrigins) == 0 {
		if val, ok := lookup("ALLOWED_ORIGINS"); ok && val != "" {
			cfg.Server.AllowedOrigins = splitOrigins(val)
		}
	}

	if err := num(&cfg.Database.PoolSize, "DATABASE_POOL_SIZE"); err != nil {
		return err
	}
	if err := num(&cfg.Database.MaxOverflow, "DATABASE_MAX_OVERFLOW"); err != nil {
		return err
	}
	if err := seconds(&cfg.Database.PoolTimeout, "DATABASE_POOL_TIMEOUT"); err != nil {
		return err
	}
	return seconds(&cfg.Database.PoolRecycle, "DATABASE_POOL_RECYCLE")
}

func splitOrigins(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Watch re-reads configPath on every write and calls onChange with the new
// Config. Invalid files are reported through onError and otherwise ignored,
// so a bad edit never replaces a good configuration. Only settings that are
// safe to change at runtime (log level, CORS origins) should be applied by
// the callback.
func Watch(configPath string, onChange func(*Config), onError func(error)) error {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// MustLoad wraps Load and panics on error. For use in main only.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
