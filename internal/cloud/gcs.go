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
// external services the narrator talks to. This file covers the message
// formats: the narration trigger published to Pub/Sub and the GCS object
// addressing used by the mirror.
package cloud

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jaycherian/go-media-narrator/internal/core/model"
)

// TriggerMessage is the Pub/Sub payload that starts a narration run.
//
//	{"url": "https://www.youtube.com/watch?v=...", "voice": "ngoclam", "title": "optional"}
type TriggerMessage struct {
	URL   string `json:"url"`
	Voice string `json:"voice,omitempty"`
	Title string `json:"title,omitempty"`
}

// ParseTriggerMessage decodes and checks a trigger payload.
func ParseTriggerMessage(data []byte) (*model.NarrationRequest, error) {
	var msg TriggerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed trigger message: %v", model.ErrConfiguration, err)
	}
	req := &model.NarrationRequest{
		SourceURL: strings.TrimSpace(msg.URL),
		Voice:     msg.Voice,
		Title:     msg.Title,
	}
	if _, err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// GCSObject addresses one object in a bucket.
type GCSObject struct {
	Bucket   string
	Name     string
	MIMEType string
}

// URI renders the object as gs://bucket/name.
func (o GCSObject) URI() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}

// ParseGCSURI accepts gs://bucket/name and the authenticated browser form
// https://storage.mtls.cloud.google.com/bucket/name.
func ParseGCSURI(uri string) (GCSObject, error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		rest, ok = strings.CutPrefix(uri, "https://storage.mtls.cloud.google.com/")
	}
	if !ok {
		return GCSObject{}, fmt.Errorf("invalid GCS URI format: %s", uri)
	}
	bucket, name, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || name == "" {
		return GCSObject{}, fmt.Errorf("invalid GCS URI: unable to determine bucket and object from %s", uri)
	}
	return GCSObject{Bucket: bucket, Name: name}, nil
}
