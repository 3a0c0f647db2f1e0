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
// external services the narrator talks to. This file implements the artifact
// mirror: after a run completes, the narrated video is copied to a GCS or S3
// bucket and can be shared through a time limited signed URL.
package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ArtifactMirror copies local artifacts to object storage.
type ArtifactMirror interface {
	// Upload stores the file under key and returns its URI.
	Upload(ctx context.Context, localPath string, key string) (string, error)
	// SignedURL returns a GET URL for a URI returned by Upload.
	SignedURL(ctx context.Context, uri string, expires time.Duration) (string, error)
}

func objectKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

// GCSMirror mirrors to a Google Cloud Storage bucket.
type GCSMirror struct {
	StorageClient *storage.Client
	IAMClient     *credentials.IamCredentialsClient // Signs URLs when no local key is available.
	SignerEmail   string
	Bucket        string
	Prefix        string
}

func (m *GCSMirror) Upload(ctx context.Context, localPath string, key string) (string, error) {
	in, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer in.Close()

	name := objectKey(m.Prefix, key)
	w := m.StorageClient.Bucket(m.Bucket).Object(name).NewWriter(ctx)
	w.ContentType = "video/mp4"
	if _, err := io.Copy(w, in); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload gs://%s/%s: %w", m.Bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload gs://%s/%s: %w", m.Bucket, name, err)
	}
	return GCSObject{Bucket: m.Bucket, Name: name}.URI(), nil
}

// SignedURL builds a V4 signed URL, signing through the IAM credentials API
// when a signer service account is configured.
func (m *GCSMirror) SignedURL(ctx context.Context, uri string, expires time.Duration) (string, error) {
	obj, err := ParseGCSURI(uri)
	if err != nil {
		return "", err
	}
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expires),
	}
	if m.SignerEmail != "" && m.IAMClient != nil {
		opts.GoogleAccessID = m.SignerEmail
		opts.SignBytes = func(b []byte) ([]byte, error) {
			req := &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", m.SignerEmail),
				Payload: b,
			}
			resp, err := m.IAMClient.SignBlob(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		}
	}
	u, err := m.StorageClient.Bucket(obj.Bucket).SignedURL(obj.Name, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).SignedURL(%q): %w", obj.Bucket, obj.Name, err)
	}
	return u, nil
}

// S3Mirror mirrors to an S3 compatible bucket.
type S3Mirror struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

func (m *S3Mirror) Upload(ctx context.Context, localPath string, key string) (string, error) {
	in, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer in.Close()

	name := objectKey(m.Prefix, key)
	_, err = m.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.Bucket),
		Key:         aws.String(name),
		Body:        in,
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return "", fmt.Errorf("upload s3://%s/%s: %w", m.Bucket, name, err)
	}
	return fmt.Sprintf("s3://%s/%s", m.Bucket, name), nil
}

func (m *S3Mirror) SignedURL(ctx context.Context, uri string, expires time.Duration) (string, error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", fmt.Errorf("invalid S3 URI: %s", uri)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", fmt.Errorf("invalid S3 URI: %s", uri)
	}
	req, err := s3.NewPresignClient(m.Client).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", uri, err)
	}
	return req.URL, nil
}
