package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sjawhar/ghost-interviewer/internal/call"
	"github.com/sjawhar/ghost-interviewer/internal/llm"
)

// EnvPrefix is the namespace prefix for all Ghost Interviewer environment variables.
const EnvPrefix = "GHOST_INTERVIEWER_"

const (
	BackendAgent    = "agent"
	BackendDeepgram = "deepgram"
)

// Config holds all application configuration. Secrets (API keys and tokens)
// are loaded exclusively from environment variables and never appear in the
// config file.
type Config struct {
	// Call client
	ListenAddr       string `yaml:"listen_addr"`
	APIURL           string `yaml:"api_url"`
	SessionBackend   string `yaml:"session_backend"`
	AgentURL         string `yaml:"agent_url"`
	AssistantID      string `yaml:"assistant_id"`
	WorkflowID       string `yaml:"workflow_id"`
	DeepgramModel    string `yaml:"deepgram_model"`
	DeepgramLanguage string `yaml:"deepgram_language"`
	MicSampleRate    int    `yaml:"mic_sample_rate"`
	MicSampleRates   []int  `yaml:"mic_sample_rates"`

	// Persistence backend
	APIListenAddr         string `yaml:"api_listen_addr"`
	DBPath                string `yaml:"db_path"`
	TranscriptDir         string `yaml:"transcript_dir"`
	LLMModel              string `yaml:"llm_model"`
	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`
	BackupInterval        string `yaml:"backup_interval"`

	// Secrets, env vars only.
	AgentToken      string `yaml:"-"`
	DeepgramAPIKey  string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:            ":8080",
		APIURL:                "http://localhost:8081",
		SessionBackend:        BackendAgent,
		DeepgramModel:         "nova-2",
		DeepgramLanguage:      "en-US",
		MicSampleRate:         16000,
		MicSampleRates:        []int{48000, 44100, 32000, 24000},
		APIListenAddr:         ":8081",
		DBPath:                "data/ghost-interviewer.db",
		TranscriptDir:         "data/transcripts",
		LLMModel:              "openai/gpt-4o-mini",
		GoogleCredentialsFile: "./service-account.json",
		BackupInterval:        "1h",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// Backend returns the session backend to run. An agent backend without an
// agent URL falls back to local Deepgram transcription.
func (c *Config) Backend() string {
	if c.SessionBackend == BackendDeepgram || c.AgentURL == "" {
		return BackendDeepgram
	}
	return BackendAgent
}

// Agent returns the agent identifiers handed to the call controller.
func (c *Config) Agent() call.AgentConfig {
	return call.AgentConfig{AssistantID: c.AssistantID, WorkflowID: c.WorkflowID}
}

// LLMAPIKey returns the key for the provider named in LLMModel.
func (c *Config) LLMAPIKey() string {
	provider, _, err := llm.ParseModel(c.LLMModel)
	if err != nil {
		return ""
	}
	switch provider {
	case llm.ProviderOpenAI:
		return c.OpenAIAPIKey
	case llm.ProviderAnthropic:
		return c.AnthropicAPIKey
	case llm.ProviderGemini:
		return c.GeminiAPIKey
	default:
		return ""
	}
}

// ParsedBackupInterval returns BackupInterval as a time.Duration,
// falling back to 1h if the value is invalid.
func (c *Config) ParsedBackupInterval() time.Duration {
	d, err := time.ParseDuration(c.BackupInterval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// SampleRateCandidates returns a deduplicated ordered list of sample rates
// to try: preferred rate first, then configured alternatives, then defaults.
func (c *Config) SampleRateCandidates() []int {
	hardcoded := []int{16000, 48000, 44100, 32000, 24000}

	combined := make([]int, 0, 1+len(c.MicSampleRates)+len(hardcoded))
	combined = append(combined, c.MicSampleRate)
	combined = append(combined, c.MicSampleRates...)
	combined = append(combined, hardcoded...)

	seen := make(map[int]struct{}, len(combined))
	result := make([]int, 0, len(combined))
	for _, rate := range combined {
		if rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}
	return result
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]*string{
		"LISTEN_ADDR":             &cfg.ListenAddr,
		"API_URL":                 &cfg.APIURL,
		"SESSION_BACKEND":         &cfg.SessionBackend,
		"AGENT_URL":               &cfg.AgentURL,
		"ASSISTANT_ID":            &cfg.AssistantID,
		"WORKFLOW_ID":             &cfg.WorkflowID,
		"DEEPGRAM_MODEL":          &cfg.DeepgramModel,
		"DEEPGRAM_LANGUAGE":       &cfg.DeepgramLanguage,
		"API_LISTEN_ADDR":         &cfg.APIListenAddr,
		"DB_PATH":                 &cfg.DBPath,
		"TRANSCRIPT_DIR":          &cfg.TranscriptDir,
		"LLM_MODEL":               &cfg.LLMModel,
		"GDRIVE_FOLDER_ID":        &cfg.GDriveFolderID,
		"GOOGLE_CREDENTIALS_FILE": &cfg.GoogleCredentialsFile,
		"BACKUP_INTERVAL":         &cfg.BackupInterval,
	}
	for key, dst := range overrides {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(trim(v)); err == nil && rate > 0 {
			cfg.MicSampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATES"); v != "" {
		cfg.MicSampleRates = parseSampleRates(v)
	}
}

func loadSecrets(cfg *Config) {
	cfg.AgentToken = os.Getenv(EnvPrefix + "AGENT_TOKEN")
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	switch cfg.SessionBackend {
	case BackendAgent, BackendDeepgram:
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown session_backend %q; using %q.", cfg.SessionBackend, BackendAgent))
	}
	if cfg.SessionBackend != BackendDeepgram && cfg.AgentURL == "" {
		warnings = append(warnings, "Agent URL not configured; falling back to local Deepgram transcription. Set "+EnvPrefix+"AGENT_URL.")
	}
	if cfg.Backend() == BackendDeepgram && cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured; calls cannot connect. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}
	if placeholder(cfg.AssistantID) {
		warnings = append(warnings, "Assistant ID is missing or a placeholder; generated interviews cannot start. Set "+EnvPrefix+"ASSISTANT_ID.")
	}
	if placeholder(cfg.WorkflowID) {
		warnings = append(warnings, "Workflow ID is missing or a placeholder; prepared interviews cannot start. Set "+EnvPrefix+"WORKFLOW_ID.")
	}

	if provider, _, err := llm.ParseModel(cfg.LLMModel); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid llm_model %q; feedback generation is disabled.", cfg.LLMModel))
	} else if cfg.LLMAPIKey() == "" {
		warnings = append(warnings, fmt.Sprintf("API key for LLM provider %q not configured; feedback generation is disabled.", provider))
	}

	if d, err := time.ParseDuration(cfg.BackupInterval); err != nil || d <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid backup_interval %q; using default 1h.", cfg.BackupInterval))
	}

	return warnings
}

func placeholder(id string) bool {
	id = trim(id)
	return id == "" || id == call.PlaceholderAssistantID
}

func trim(s string) string { return strings.TrimSpace(s) }

func parseSampleRates(raw string) []int {
	parts := strings.Split(raw, ",")
	seen := make(map[int]struct{}, len(parts))
	result := make([]int, 0, len(parts))

	for _, part := range parts {
		trimmed := trim(part)
		if trimmed == "" {
			continue
		}
		rate, err := strconv.Atoi(trimmed)
		if err != nil || rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}

	return result
}
