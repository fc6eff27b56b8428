package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mlespinoza1/swarm/internal/integrations/huggingface"
	"github.com/mlespinoza1/swarm/internal/integrations/swarm"
	"github.com/mlespinoza1/swarm/internal/workspace"
)

// EnvPrefix is prepended to every settings key read from the environment,
// e.g. SWARM_LLM_MODEL for llm.model.
const EnvPrefix = "SWARM"

// LLM client implementations.
const (
	LLMClientHTTP = "http"
	LLMClientSDK  = "sdk"
)

// Config represents the complete pipeline configuration
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	CodeGen CodeGenConfig `mapstructure:"codegen"`
	Swarm   SwarmSettings `mapstructure:"swarm"`
	Files   FilesConfig   `mapstructure:"files"`
	Secrets SecretsConfig `mapstructure:"secrets"`
	History HistoryConfig `mapstructure:"history"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// LLMConfig controls the two text-generation calls
type LLMConfig struct {
	// Client selects the implementation: "http" (built-in) or "sdk" (openai-go)
	Client string `mapstructure:"client"`
	// BaseURL of an OpenAI-compatible API; empty means the public endpoint
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	// Temperature is shared by both calls
	Temperature float64 `mapstructure:"temperature"`
	// RefineMaxTokens bounds the requirements refinement response
	RefineMaxTokens int `mapstructure:"refine_max_tokens"`
	// CrossReferenceMaxTokens bounds the structured request response
	CrossReferenceMaxTokens int `mapstructure:"cross_reference_max_tokens"`
	TimeoutSeconds          int `mapstructure:"timeout_seconds"`
}

// CodeGenConfig controls the code-generation endpoint
type CodeGenConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	// ResultField is a gjson path to the generated code in the response
	ResultField       string `mapstructure:"result_field"`
	MaxAttempts       int    `mapstructure:"max_attempts"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
}

// SwarmSettings locates the swarm framework and its agent list
type SwarmSettings struct {
	// Agents, when set, replaces the agent list from ConfigPath
	Agents []string `mapstructure:"agents"`
	// ConfigPath is the YAML file listing agents
	ConfigPath     string `mapstructure:"config_path"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// FilesConfig locates the documents a run reads and writes
type FilesConfig struct {
	// Dir roots all relative paths; empty means the working directory
	Dir          string `mapstructure:"dir"`
	Requirements string `mapstructure:"requirements"`
	Index        string `mapstructure:"index"`
	Output       string `mapstructure:"output"`
	Backup       string `mapstructure:"backup"`
	// Report is an optional HTML review page; empty disables it
	Report string `mapstructure:"report"`
}

// SecretsConfig supplies API credentials
type SecretsConfig struct {
	// ParamPrefix, when set, reads tokens from AWS SSM under this prefix
	// instead of the environment
	ParamPrefix       string `mapstructure:"param_prefix"`
	OpenAIAPIKey      string `mapstructure:"openai_api_key"`
	HuggingFaceAPIKey string `mapstructure:"huggingface_api_key"`
}

// HistoryConfig controls run history persistence
type HistoryConfig struct {
	// Table is the DynamoDB table; empty disables history
	Table string `mapstructure:"table"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Client:                  LLMClientHTTP,
			Model:                   "gpt-3.5-turbo",
			Temperature:             0.5,
			RefineMaxTokens:         1000,
			CrossReferenceMaxTokens: 1500,
			TimeoutSeconds:          60,
		},
		CodeGen: CodeGenConfig{
			Endpoint:          huggingface.DefaultEndpoint,
			ResultField:       huggingface.DefaultResultField,
			MaxAttempts:       huggingface.DefaultMaxAttempts,
			RetryDelaySeconds: int(huggingface.DefaultRetryDelay / time.Second),
			TimeoutSeconds:    120,
		},
		Swarm: SwarmSettings{
			ConfigPath:     "../swarm_config.yaml",
			BaseURL:        swarm.DefaultBaseURL,
			TimeoutSeconds: 30,
		},
		Files: FilesConfig{
			Requirements: workspace.DefaultRequirements,
			Index:        workspace.DefaultIndex,
			Output:       workspace.DefaultOutput,
			Backup:       workspace.DefaultBackup,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// RetryDelay returns the code-generation retry delay as a time.Duration
func (c *CodeGenConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// Timeout returns the code-generation HTTP timeout
func (c *CodeGenConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the LLM HTTP timeout
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the swarm trigger HTTP timeout
func (c *SwarmSettings) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Paths converts the file settings for the workspace
func (c *FilesConfig) Paths() workspace.Paths {
	return workspace.Paths{
		Requirements: c.Requirements,
		Index:        c.Index,
		Output:       c.Output,
		Backup:       c.Backup,
		Report:       c.Report,
	}
}

// SetDefaults registers default values and environment bindings with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("llm.client", defaults.LLM.Client)
	v.SetDefault("llm.base_url", defaults.LLM.BaseURL)
	v.SetDefault("llm.model", defaults.LLM.Model)
	v.SetDefault("llm.temperature", defaults.LLM.Temperature)
	v.SetDefault("llm.refine_max_tokens", defaults.LLM.RefineMaxTokens)
	v.SetDefault("llm.cross_reference_max_tokens", defaults.LLM.CrossReferenceMaxTokens)
	v.SetDefault("llm.timeout_seconds", defaults.LLM.TimeoutSeconds)

	v.SetDefault("codegen.endpoint", defaults.CodeGen.Endpoint)
	v.SetDefault("codegen.result_field", defaults.CodeGen.ResultField)
	v.SetDefault("codegen.max_attempts", defaults.CodeGen.MaxAttempts)
	v.SetDefault("codegen.retry_delay_seconds", defaults.CodeGen.RetryDelaySeconds)
	v.SetDefault("codegen.timeout_seconds", defaults.CodeGen.TimeoutSeconds)

	v.SetDefault("swarm.agents", []string{})
	v.SetDefault("swarm.config_path", defaults.Swarm.ConfigPath)
	v.SetDefault("swarm.base_url", defaults.Swarm.BaseURL)
	v.SetDefault("swarm.timeout_seconds", defaults.Swarm.TimeoutSeconds)

	v.SetDefault("files.dir", defaults.Files.Dir)
	v.SetDefault("files.requirements", defaults.Files.Requirements)
	v.SetDefault("files.index", defaults.Files.Index)
	v.SetDefault("files.output", defaults.Files.Output)
	v.SetDefault("files.backup", defaults.Files.Backup)
	v.SetDefault("files.report", defaults.Files.Report)

	v.SetDefault("secrets.param_prefix", "")
	v.SetDefault("secrets.openai_api_key", "")
	v.SetDefault("secrets.huggingface_api_key", "")

	v.SetDefault("history.table", "")

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)

	v.SetEnvPrefix(EnvPrefix)
	// Replace dots with underscores for nested keys in env vars
	// e.g., SWARM_CODEGEN_MAX_ATTEMPTS for codegen.max_attempts
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider keys keep their conventional unprefixed names.
	_ = v.BindEnv("secrets.openai_api_key", "OPENAI_API_KEY", EnvPrefix+"_SECRETS_OPENAI_API_KEY")
	_ = v.BindEnv("secrets.huggingface_api_key", "HUGGINGFACE_API_KEY", EnvPrefix+"_SECRETS_HUGGINGFACE_API_KEY")
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}
