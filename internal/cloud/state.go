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
// external services the narrator talks to. This file defines ServiceClients,
// the single place where those clients are created and closed.
//
// Only the clients the configuration asks for are built: a local setup with
// the whisper CLI, Google Translate and no mirror needs no GCP project at all.
package cloud

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscredentials "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

type ServiceClients struct {
	StorageClient   *storage.Client
	PubsubClient    *pubsub.Client
	GenAIClient     *genai.Client
	BigQueryClient  *bigquery.Client
	IAMClient       *credentials.IamCredentialsClient
	S3Client        *s3.Client
	OpenAIClient    *openai.Client
	Mirror          ArtifactMirror                          // nil when storage.provider is none.
	PubSubListeners map[string]*PubSubListener              // Keyed by the topic_subscriptions name.
	AgentModels     map[string]*QuotaAwareGenerativeAIModel // Keyed by the agent_models name.
}

// Close releases every client that was created.
func (c *ServiceClients) Close() {
	if c == nil {
		return
	}
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BigQueryClient != nil {
		_ = c.BigQueryClient.Close()
	}
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
}

func needsGenAI(config *Config) bool {
	return config.Translator.Engine == TranslatorGemini || len(config.AgentModels) > 0
}

// NewCloudServiceClients creates the clients required by config. On error the
// clients created so far are closed.
func NewCloudServiceClients(ctx context.Context, config *Config) (_ *ServiceClients, err error) {
	clients := &ServiceClients{
		PubSubListeners: make(map[string]*PubSubListener),
		AgentModels:     make(map[string]*QuotaAwareGenerativeAIModel),
	}
	defer func() {
		if err != nil {
			clients.Close()
		}
	}()

	if config.Storage.Provider == StorageGCS {
		if clients.StorageClient, err = storage.NewClient(ctx); err != nil {
			return nil, err
		}
		if config.Application.SignerServiceAccountEmail != "" {
			if clients.IAMClient, err = credentials.NewIamCredentialsClient(ctx); err != nil {
				return nil, err
			}
		}
		clients.Mirror = &GCSMirror{
			StorageClient: clients.StorageClient,
			IAMClient:     clients.IAMClient,
			SignerEmail:   config.Application.SignerServiceAccountEmail,
			Bucket:        config.Storage.Bucket,
			Prefix:        config.Storage.Prefix,
		}
	}

	if config.Storage.Provider == StorageS3 {
		if clients.S3Client, err = NewS3Client(ctx, config); err != nil {
			return nil, err
		}
		clients.Mirror = &S3Mirror{Client: clients.S3Client, Bucket: config.Storage.Bucket, Prefix: config.Storage.Prefix}
	}

	if len(config.TopicSubscriptions) > 0 {
		if clients.PubsubClient, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
			return nil, err
		}
		for subKey, values := range config.TopicSubscriptions {
			listener, err := NewPubSubListener(clients.PubsubClient, values.Name, nil)
			if err != nil {
				return nil, err
			}
			clients.PubSubListeners[subKey] = listener
		}
	}

	if config.BigQueryDataSource.DatasetName != "" {
		if clients.BigQueryClient, err = bigquery.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
			return nil, err
		}
	}

	if config.Transcriber.Engine == TranscriberOpenAI {
		if config.Secrets.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is required for the openai transcriber", model.ErrConfiguration)
		}
		clients.OpenAIClient = openai.NewClient(config.Secrets.OpenAIAPIKey)
	}

	if needsGenAI(config) {
		if clients.GenAIClient, err = NewGenAIClient(ctx, config); err != nil {
			slog.Error("error creating genai client", "error", err)
			return nil, err
		}
		for amKey, values := range config.AgentModels {
			clients.AgentModels[amKey] = NewQuotaAwareModel(NewContentConfig(values), values.Model, clients.GenAIClient.Models, values.RateLimit)
		}
	}

	return clients, nil
}

// NewGenAIClient connects to Vertex AI or, with genai_backend = "gemini", to
// the Gemini API using GEMINI_API_KEY.
func NewGenAIClient(ctx context.Context, config *Config) (*genai.Client, error) {
	if config.Application.GenAIBackend == GenAIBackendGemini {
		if config.Secrets.GeminiAPIKey == "" {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY is required for the gemini backend", model.ErrConfiguration)
		}
		return genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  config.Secrets.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	})
}

// NewS3Client builds an S3 client, using static keys and a custom endpoint
// when configured (DigitalOcean Spaces, MinIO) and the default AWS chain
// otherwise.
func NewS3Client(ctx context.Context, config *Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if config.Storage.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Storage.Region))
	}
	if config.Secrets.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscredentials.NewStaticCredentialsProvider(config.Secrets.S3AccessKey, config.Secrets.S3SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Storage.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
