package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yqhp/arena/pkg/logger"
	"yqhp/arena/pkg/types"
)

// Config represents the complete configuration of an arena run.
type Config struct {
	Run          RunConfig          `yaml:"run"`
	Reasoning    ReasoningConfig    `yaml:"reasoning"`
	Runtime      RuntimeConfig      `yaml:"runtime"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	Coordination CoordinationConfig `yaml:"coordination"`
	Validation   ValidationConfig   `yaml:"validation"`
	Deploy       DeployConfig       `yaml:"deploy"`
	History      HistoryConfig      `yaml:"history"`
	Logging      logger.Config      `yaml:"logging"`
}

// RunConfig holds the per-run defaults that a Task may override.
type RunConfig struct {
	Tier            string        `yaml:"tier" env:"ARENA_RUN_TIER"`
	MaxExecution    time.Duration `yaml:"max_execution" env:"ARENA_RUN_MAX_EXECUTION"`
	PartialInterval time.Duration `yaml:"partial_interval" env:"ARENA_RUN_PARTIAL_INTERVAL"`
	Workers         int           `yaml:"workers" env:"ARENA_RUN_WORKERS"`
	WorkspaceRoot   string        `yaml:"workspace_root" env:"ARENA_RUN_WORKSPACE_ROOT"`
	Technologies    []string      `yaml:"technologies" env:"ARENA_RUN_TECHNOLOGIES"`
	Available       []string      `yaml:"available" env:"ARENA_RUN_AVAILABLE"`
	Unavailable     []string      `yaml:"unavailable" env:"ARENA_RUN_UNAVAILABLE"`
}

// ReasoningConfig selects and configures the reasoning backend.
type ReasoningConfig struct {
	Provider     string            `yaml:"provider" env:"ARENA_REASONING_PROVIDER"`
	BaseURL      string            `yaml:"base_url" env:"ARENA_REASONING_BASE_URL"`
	APIKey       string            `yaml:"api_key" env:"ARENA_REASONING_API_KEY"`
	DefaultModel string            `yaml:"default_model" env:"ARENA_REASONING_DEFAULT_MODEL"`
	Models       map[string]string `yaml:"models" env:"ARENA_REASONING_MODELS"`
	MaxTokens    int               `yaml:"max_tokens" env:"ARENA_REASONING_MAX_TOKENS"`
	CallTimeout  time.Duration     `yaml:"call_timeout" env:"ARENA_REASONING_CALL_TIMEOUT"`
}

// RuntimeConfig configures the container runtime.
type RuntimeConfig struct {
	Kind           string        `yaml:"kind" env:"ARENA_RUNTIME_KIND"`
	Project        string        `yaml:"project" env:"ARENA_RUNTIME_PROJECT"`
	Image          string        `yaml:"image" env:"ARENA_RUNTIME_IMAGE"`
	BuildContext   string        `yaml:"build_context" env:"ARENA_RUNTIME_BUILD_CONTEXT"`
	ReadyInterval  time.Duration `yaml:"ready_interval" env:"ARENA_RUNTIME_READY_INTERVAL"`
	ReadyMaxWait   time.Duration `yaml:"ready_max_wait" env:"ARENA_RUNTIME_READY_MAX_WAIT"`
	CommandTimeout time.Duration `yaml:"command_timeout" env:"ARENA_RUNTIME_COMMAND_TIMEOUT"`
}

// MonitorConfig configures the execution monitor.
type MonitorConfig struct {
	Interval    time.Duration `yaml:"interval" env:"ARENA_MONITOR_INTERVAL"`
	TickTimeout time.Duration `yaml:"tick_timeout" env:"ARENA_MONITOR_TICK_TIMEOUT"`
	Concurrency int           `yaml:"concurrency" env:"ARENA_MONITOR_CONCURRENCY"`
	Host        string        `yaml:"host" env:"ARENA_MONITOR_HOST"`
}

// CoordinationConfig describes the shared coordination store.
type CoordinationConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ARENA_COORDINATION_ENABLED"`
	Addr        string `yaml:"addr" env:"ARENA_COORDINATION_ADDR"`
	Password    string `yaml:"password" env:"ARENA_COORDINATION_PASSWORD"`
	DB          int    `yaml:"db" env:"ARENA_COORDINATION_DB"`
	Image       string `yaml:"image" env:"ARENA_COORDINATION_IMAGE"`
	ServiceName string `yaml:"service_name" env:"ARENA_COORDINATION_SERVICE_NAME"`
	Port        int    `yaml:"port" env:"ARENA_COORDINATION_PORT"`
}

// ValidationConfig configures the validation harness.
type ValidationConfig struct {
	Concurrency     int                `yaml:"concurrency" env:"ARENA_VALIDATION_CONCURRENCY"`
	CheckTimeout    time.Duration      `yaml:"check_timeout" env:"ARENA_VALIDATION_CHECK_TIMEOUT"`
	LoadRequests    int                `yaml:"load_requests" env:"ARENA_VALIDATION_LOAD_REQUESTS"`
	LoadConcurrency int                `yaml:"load_concurrency" env:"ARENA_VALIDATION_LOAD_CONCURRENCY"`
	APIPaths        []string           `yaml:"api_paths" env:"ARENA_VALIDATION_API_PATHS"`
	Scripts         map[string]string  `yaml:"scripts" env:"ARENA_VALIDATION_SCRIPTS"`
	Weights         types.ScoreWeights `yaml:"weights"`
}

// DeployConfig configures candidate publishing.
type DeployConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ARENA_DEPLOY_ENABLED"`
	Host     string        `yaml:"host" env:"ARENA_DEPLOY_HOST"`
	ServeFor time.Duration `yaml:"serve_for" env:"ARENA_DEPLOY_SERVE_FOR"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" env:"ARENA_HISTORY_ENABLED"`
	Path    string `yaml:"path" env:"ARENA_HISTORY_PATH"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			Tier:            "light",
			MaxExecution:    10 * time.Minute,
			PartialInterval: 2 * time.Minute,
			WorkspaceRoot:   ".arena/run",
			Technologies:    []string{"react", "node"},
		},
		Reasoning: ReasoningConfig{
			Provider:     "openai",
			BaseURL:      "https://api.openai.com/v1",
			DefaultModel: "gpt-4o-mini",
			Models:       make(map[string]string),
			MaxTokens:    4096,
			CallTimeout:  2 * time.Minute,
		},
		Runtime: RuntimeConfig{
			Kind:           "compose",
			Project:        "arena",
			Image:          "arena-worker:latest",
			ReadyInterval:  2 * time.Second,
			ReadyMaxWait:   60 * time.Second,
			CommandTimeout: 5 * time.Minute,
		},
		Monitor: MonitorConfig{
			Interval:    5 * time.Second,
			TickTimeout: 3 * time.Second,
			Concurrency: 4,
			Host:        "127.0.0.1",
		},
		Coordination: CoordinationConfig{
			Enabled:     true,
			Addr:        "127.0.0.1:6379",
			Image:       "redis:7-alpine",
			ServiceName: "coordination",
			Port:        6379,
		},
		Validation: ValidationConfig{
			Concurrency:     4,
			CheckTimeout:    30 * time.Second,
			LoadRequests:    200,
			LoadConcurrency: 8,
			APIPaths:        []string{"/health", "/api"},
			Scripts:         make(map[string]string),
			Weights:         types.DefaultScoreWeights(),
		},
		Deploy: DeployConfig{
			Enabled: true,
			Host:    "127.0.0.1",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    ".arena/history.db",
		},
		Logging: *logger.DefaultConfig(),
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
	cmdArgs    map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "ARENA_",
		cmdArgs:   make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix replaces the ARENA_ prefix of env tags, mainly for tests.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithCmdArgs sets dot-path overrides such as "monitor.interval" -> "10s".
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("从文件加载配置失败: %w", err)
		}
	}

	if err := l.applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("应用环境变量覆盖失败: %w", err)
	}

	for key, value := range l.cmdArgs {
		if err := setConfigValue(cfg, key, value); err != nil {
			return nil, fmt.Errorf("设置配置值 %s 失败: %w", key, err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	return nil
}

func (l *Loader) envName(tag string) string {
	if l.envPrefix == "ARENA_" {
		return tag
	}
	return l.envPrefix + strings.TrimPrefix(tag, "ARENA_")
}

// applyEnvToStruct recursively applies environment variables to struct fields.
func (l *Loader) applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := l.applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		name := l.envName(envTag)
		envValue := os.Getenv(name)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("从环境变量 %s 设置字段 %s 失败: %w", name, fieldType.Name, err)
		}
	}

	return nil
}

// setConfigValue sets a configuration value by dot-notation path.
func setConfigValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		want := strings.ReplaceAll(part, "_", "")
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, want)
		})
		if !field.IsValid() {
			return fmt.Errorf("未知的配置路径: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}

		if field.Kind() != reflect.Struct {
			return fmt.Errorf("期望 %s 是结构体，实际是 %s", part, field.Kind())
		}
		v = field
	}

	return nil
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("无法设置字段")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("无效的时间格式: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("无效的整数: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("无效的浮点数: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("无效的布尔值: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("不支持的切片类型: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		field.Set(reflect.ValueOf(out))

	case reflect.Map:
		if field.Type().Key().Kind() != reflect.String || field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("不支持的 map 类型")
		}
		m := make(map[string]string)
		for _, pair := range strings.Split(value, ",") {
			kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
			if len(kv) == 2 {
				m[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
			}
		}
		field.Set(reflect.ValueOf(m))

	default:
		return fmt.Errorf("不支持的字段类型: %s", field.Kind())
	}

	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}
