// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cloud holds the configuration model and the clients for the
// external services the narrator talks to. This file defines Config, the
// Go mirror of the TOML files under configs/. LoadConfig decodes the base
// file and then the runtime specific file over a Config produced by
// NewConfig, so any key a file leaves out keeps the default set here.
package cloud

import (
	"fmt"
	"os"
	"time"

	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"google.golang.org/genai"
)

// DefaultSafetySettings relaxes the content filters. Transcripts of arbitrary
// videos routinely trip the default thresholds and a blocked translation would
// silently degrade the narration.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// Engine names accepted in configuration.
const (
	TranscriberWhisperCLI = "whisper-cli"
	TranscriberOpenAI     = "openai"

	TranslatorGemini = "gemini"
	TranslatorGoogle = "google"

	StorageNone = "none"
	StorageGCS  = "gcs"
	StorageS3   = "s3"

	ExporterNone = "none"
	ExporterGCP  = "gcp"

	GenAIBackendVertex = "vertex"
	GenAIBackendGemini = "gemini"
)

// ModelSizes are the transcription model presets.
var ModelSizes = []string{"tiny", "base", "small", "medium", "large"}

type StoreConfig struct {
	BaseDir             string `toml:"base_dir"`              // Root of the artifact store.
	SegmentMetadataFile string `toml:"segment_metadata_file"` // Global segment export, replaced by every run.
	ResetOnStart        bool   `toml:"reset_on_start"`        // Open the store with FreshStart.
}

type PipelineConfig struct {
	WorkDir        string `toml:"work_dir"`        // Parent of the per-run workspaces.
	Workers        int    `toml:"workers"`         // Translate and synthesize pool size, 1 is sequential.
	DefaultVoice   string `toml:"default_voice"`   // Voice used when a request names none.
	RecordFailures bool   `toml:"record_failures"` // Off: a failed run leaves the record original_only. On: status failed.
	KeepWorkspace  bool   `toml:"keep_workspace"`  // Keep clips after the run so exported file paths stay valid.
}

type ToolsConfig struct {
	FFmpeg  string `toml:"ffmpeg"`
	YtDlp   string `toml:"yt_dlp"`
	Whisper string `toml:"whisper"`
}

type TimeoutsConfig struct {
	DownloadSeconds   int `toml:"download_seconds"`
	TranscodeSeconds  int `toml:"transcode_seconds"`
	TranscribeSeconds int `toml:"transcribe_seconds"`
	TranslateSeconds  int `toml:"translate_seconds"`
	SynthesizeSeconds int `toml:"synthesize_seconds"`
	MaxRetries        int `toml:"max_retries"`
	BackoffMillis     int `toml:"backoff_millis"`
}

// Policy builds the retry policy for a per-attempt timeout in seconds.
func (t TimeoutsConfig) Policy(seconds int) RetryPolicy {
	return RetryPolicy{
		Attempts: t.MaxRetries,
		Timeout:  time.Duration(seconds) * time.Second,
		Backoff:  time.Duration(t.BackoffMillis) * time.Millisecond,
	}
}

type TranscriberConfig struct {
	Engine      string `toml:"engine"`       // whisper-cli or openai.
	ModelSize   string `toml:"model_size"`   // One of ModelSizes.
	Language    string `toml:"language"`     // Spoken language of the source.
	OpenAIModel string `toml:"openai_model"` // Model name for the openai engine.
}

type TranslatorConfig struct {
	Engine string `toml:"engine"` // gemini or google.
	Model  string `toml:"model"`  // Key into agent_models for the gemini engine.
	Source string `toml:"source"`
	Target string `toml:"target"`
}

type TTSConfig struct {
	Endpoint           string  `toml:"endpoint"`
	Speed              string  `toml:"speed"`
	RequestsPerSecond  float64 `toml:"requests_per_second"`
	PollAttempts       int     `toml:"poll_attempts"`
	PollIntervalMillis int     `toml:"poll_interval_millis"`
	SampleRate         int     `toml:"sample_rate"` // Rate of the normalized clips and the composed track.
}

type VertexAiLLMModel struct {
	Model              string  `toml:"model"`               // The name of the Gemini model.
	SystemInstructions string  `toml:"system_instructions"` // The system instructions for the model.
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"` // Response MIME type, e.g. text/plain.
	RateLimit          int     `toml:"rate_limit"`    // Requests per second.
}

type PromptTemplates struct {
	TranslatePrompt string `toml:"translate"` // Go text/template rendered per segment.
	SummaryPrompt   string `toml:"summary"`   // Go text/template rendered per video.
}

type StorageConfig struct {
	Provider         string `toml:"provider"` // none, gcs or s3.
	Bucket           string `toml:"bucket"`
	Prefix           string `toml:"prefix"`
	Region           string `toml:"region"`   // S3 only.
	Endpoint         string `toml:"endpoint"` // S3 compatible endpoint, empty for AWS.
	SignedURLMinutes int    `toml:"signed_url_minutes"`
}

type BigQueryDataSource struct {
	DatasetName  string `toml:"dataset"`
	SegmentTable string `toml:"segment_table"`
}

type TopicSubscription struct {
	Name             string `toml:"name"`
	DeadLetterTopic  string `toml:"dead_letter_topic"`
	TimeoutInSeconds int    `toml:"timeout_in_seconds"`
}

type RunLogConfig struct {
	Path string `toml:"path"` // SQLite file of the run journal, empty disables it.
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"` // Rotated log file, empty logs to stdout only.
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type TelemetryConfig struct {
	Exporter string `toml:"exporter"` // gcp or none.
}

// Secrets never come from the TOML files.
type Secrets struct {
	FPTAPIKey       string
	OpenAIAPIKey    string
	GeminiAPIKey    string
	TranslateAPIKey string
	S3AccessKey     string
	S3SecretKey     string
}

// Config is the root of the narrator configuration.
type Config struct {
	Application struct {
		Name                      string `toml:"name"`
		GoogleProjectId           string `toml:"google_project_id"`
		GoogleLocation            string `toml:"location"`
		GenAIBackend              string `toml:"genai_backend"` // vertex or gemini.
		SignerServiceAccountEmail string `toml:"signer_service_account_email"`
	} `toml:"application"`
	Store              StoreConfig                  `toml:"store"`
	Pipeline           PipelineConfig               `toml:"pipeline"`
	Tools              ToolsConfig                  `toml:"tools"`
	Timeouts           TimeoutsConfig               `toml:"timeouts"`
	Transcriber        TranscriberConfig            `toml:"transcriber"`
	Translator         TranslatorConfig             `toml:"translator"`
	TTS                TTSConfig                    `toml:"tts"`
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	Storage            StorageConfig                `toml:"storage"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"`
	RunLog             RunLogConfig                 `toml:"runlog"`
	Server             ServerConfig                 `toml:"server"`
	Logging            LoggingConfig                `toml:"logging"`
	Telemetry          TelemetryConfig              `toml:"telemetry"`
	Secrets            Secrets                      `toml:"-"`
}

// NewConfig returns a Config holding the defaults.
func NewConfig() *Config {
	c := &Config{
		Store: StoreConfig{
			BaseDir:             "video_data",
			SegmentMetadataFile: "voice_segments_metadata.json",
		},
		Pipeline: PipelineConfig{
			WorkDir:        "workspaces",
			Workers:        1,
			DefaultVoice:   string(model.DefaultVoice),
			RecordFailures: false,
			KeepWorkspace:  true,
		},
		Tools: ToolsConfig{FFmpeg: "ffmpeg", YtDlp: "yt-dlp", Whisper: "whisper"},
		Timeouts: TimeoutsConfig{
			DownloadSeconds:   600,
			TranscodeSeconds:  300,
			TranscribeSeconds: 1800,
			TranslateSeconds:  30,
			SynthesizeSeconds: 60,
			MaxRetries:        3,
			BackoffMillis:     500,
		},
		Transcriber: TranscriberConfig{Engine: TranscriberWhisperCLI, ModelSize: "base", Language: "en", OpenAIModel: "whisper-1"},
		Translator:  TranslatorConfig{Engine: TranslatorGoogle, Model: "translator", Source: "en", Target: "vi"},
		TTS: TTSConfig{
			Endpoint:           "https://api.fpt.ai/hmi/tts/v5",
			Speed:              "0",
			RequestsPerSecond:  2,
			PollAttempts:       10,
			PollIntervalMillis: 2000,
			SampleRate:         24000,
		},
		AgentModels:        make(map[string]VertexAiLLMModel),
		Storage:            StorageConfig{Provider: StorageNone, SignedURLMinutes: 15},
		TopicSubscriptions: make(map[string]TopicSubscription),
		Server:             ServerConfig{Port: "8080"},
		Logging:            LoggingConfig{Level: "info", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
		Telemetry:          TelemetryConfig{Exporter: ExporterNone},
	}
	c.Application.Name = "go-media-narrator"
	c.Application.GenAIBackend = GenAIBackendVertex
	return c
}

// ResolveSecrets copies the API keys from the process environment.
func (c *Config) ResolveSecrets() {
	c.Secrets = Secrets{
		FPTAPIKey:       os.Getenv("FPT_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		TranslateAPIKey: os.Getenv("GOOGLE_TRANSLATE_API_KEY"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
	}
}

// Validate rejects settings no run could succeed with. Missing secrets are
// not checked here; each client reports them when it is built.
func (c *Config) Validate() error {
	if _, err := model.ParseVoice(c.Pipeline.DefaultVoice); err != nil {
		return err
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("%w: pipeline.workers must be at least 1, got %d", model.ErrConfiguration, c.Pipeline.Workers)
	}
	if c.Store.BaseDir == "" || c.Pipeline.WorkDir == "" {
		return fmt.Errorf("%w: store.base_dir and pipeline.work_dir are required", model.ErrConfiguration)
	}
	if c.TTS.SampleRate <= 0 {
		return fmt.Errorf("%w: tts.sample_rate must be positive", model.ErrConfiguration)
	}
	if c.Timeouts.MaxRetries < 1 {
		return fmt.Errorf("%w: timeouts.max_retries must be at least 1", model.ErrConfiguration)
	}
	if !ValidModelSize(c.Transcriber.ModelSize) {
		return fmt.Errorf("%w: unknown transcriber model size %q", model.ErrConfiguration, c.Transcriber.ModelSize)
	}
	switch c.Transcriber.Engine {
	case TranscriberWhisperCLI, TranscriberOpenAI:
	default:
		return fmt.Errorf("%w: unknown transcriber engine %q", model.ErrConfiguration, c.Transcriber.Engine)
	}
	switch c.Translator.Engine {
	case TranslatorGoogle:
	case TranslatorGemini:
		if _, ok := c.AgentModels[c.Translator.Model]; !ok {
			return fmt.Errorf("%w: translator model %q is not defined in agent_models", model.ErrConfiguration, c.Translator.Model)
		}
	default:
		return fmt.Errorf("%w: unknown translator engine %q", model.ErrConfiguration, c.Translator.Engine)
	}
	switch c.Storage.Provider {
	case StorageNone, "":
	case StorageGCS, StorageS3:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("%w: storage.bucket is required for provider %s", model.ErrConfiguration, c.Storage.Provider)
		}
	default:
		return fmt.Errorf("%w: unknown storage provider %q", model.ErrConfiguration, c.Storage.Provider)
	}
	switch c.Telemetry.Exporter {
	case ExporterNone, ExporterGCP:
	default:
		return fmt.Errorf("%w: unknown telemetry exporter %q", model.ErrConfiguration, c.Telemetry.Exporter)
	}
	return nil
}

// ValidModelSize reports whether size is one of ModelSizes.
func ValidModelSize(size string) bool {
	for _, s := range ModelSizes {
		if s == size {
			return true
		}
	}
	return false
}
