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

// Package tts synthesizes narration clips with the FPT.AI text-to-speech API
// (v5). A request posts the text with the voice and speed as headers; the
// service answers with an async URL where the mp3 appears once rendering is
// done, so the client polls that URL a bounded number of times.
package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaycherian/go-media-narrator/internal/cloud"
	"github.com/jaycherian/go-media-narrator/internal/core/model"
	"golang.org/x/time/rate"
)

const DefaultEndpoint = "https://api.fpt.ai/hmi/tts/v5"

// Synthesizer renders text as speech into outPath and returns the path of the
// written clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice model.Voice, outPath string) (string, error)
}

// FPTClient is safe for concurrent use; all workers share its rate limiter.
type FPTClient struct {
	Endpoint     string
	APIKey       string
	Speed        string
	HTTP         *http.Client
	Limiter      *rate.Limiter
	Policy       cloud.RetryPolicy
	PollAttempts int
	PollInterval time.Duration
}

// NewFPTClient builds a client from the tts and timeouts sections.
func NewFPTClient(config *cloud.Config) (*FPTClient, error) {
	if config.Secrets.FPTAPIKey == "" {
		return nil, fmt.Errorf("%w: FPT_API_KEY is required for speech synthesis", model.ErrConfiguration)
	}
	endpoint := config.TTS.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &FPTClient{
		Endpoint:     endpoint,
		APIKey:       config.Secrets.FPTAPIKey,
		Speed:        config.TTS.Speed,
		HTTP:         &http.Client{Timeout: time.Duration(config.Timeouts.SynthesizeSeconds) * time.Second},
		Limiter:      cloud.NewLimiter(config.TTS.RequestsPerSecond),
		Policy:       config.Timeouts.Policy(config.Timeouts.SynthesizeSeconds),
		PollAttempts: config.TTS.PollAttempts,
		PollInterval: time.Duration(config.TTS.PollIntervalMillis) * time.Millisecond,
	}, nil
}

type fptResponse struct {
	Async     string `json:"async"`
	Error     int    `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// statusError carries an HTTP status so the retry loop can tell transient
// failures from permanent ones.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("fpt.ai answered %d: %s", e.code, e.body)
}

func classify(code int, body string) error {
	err := &statusError{code: code, body: strings.TrimSpace(body)}
	if code == http.StatusTooManyRequests || code >= 500 {
		return err
	}
	return cloud.Permanent(err)
}

func (c *FPTClient) Synthesize(ctx context.Context, text string, voice model.Voice, outPath string) (string, error) {
	parsed, err := model.ParseVoice(string(voice))
	if err != nil || voice == "" {
		return "", fmt.Errorf("%w: unknown voice %q", model.ErrConfiguration, voice)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty text", model.ErrSynthesis)
	}

	var async string
	err = c.Policy.Do(ctx, func(ctx context.Context) error {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		async, err = c.request(ctx, text, parsed)
		return err
	})
	if err != nil {
		return "", c.fail(ctx, err)
	}

	if err := c.download(ctx, async, outPath); err != nil {
		return "", c.fail(ctx, err)
	}
	return outPath, nil
}

func (c *FPTClient) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", model.ErrCancelled, ctx.Err())
	}
	return fmt.Errorf("%w: %w", model.ErrSynthesis, err)
}

func (c *FPTClient) request(ctx context.Context, text string, voice model.Voice) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, strings.NewReader(text))
	if err != nil {
		return "", cloud.Permanent(err)
	}
	req.Header.Set("api-key", c.APIKey)
	req.Header.Set("voice", string(voice))
	if c.Speed != "" {
		req.Header.Set("speed", c.Speed)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", classify(resp.StatusCode, string(body))
	}

	var out fptResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", cloud.Permanent(fmt.Errorf("unreadable fpt.ai response: %w", err))
	}
	if out.Error != 0 || out.Async == "" {
		return "", cloud.Permanent(fmt.Errorf("fpt.ai rejected the request: %s (code %d)", out.Message, out.Error))
	}
	return out.Async, nil
}

var errNotReady = errors.New("audio not ready")

// download polls the async URL until the clip is served, then writes it to
// outPath through a temp file.
func (c *FPTClient) download(ctx context.Context, url string, outPath string) error {
	attempts := c.PollAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if i > 0 || c.PollInterval > 0 {
			timer := time.NewTimer(c.PollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		err := c.fetch(ctx, url, outPath)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errNotReady) {
			return err
		}
	}
	return fmt.Errorf("clip not ready after %d polls", attempts)
}

func (c *FPTClient) fetch(ctx context.Context, url string, outPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return errNotReady
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errNotReady
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".clip-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return errNotReady
	}
	return os.Rename(tmp.Name(), outPath)
}
