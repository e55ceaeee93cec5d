// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package secrets resolves the model provider API key, either from static
// configuration or from Google Cloud Secret Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// Source yields an API key.
type Source interface {
	APIKey(ctx context.Context) (string, error)
}

// Static is a key supplied directly, e.g. from ANTHROPIC_API_KEY.
type Static string

// APIKey returns the static key.
func (s Static) APIKey(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", errors.New("static api key is empty")
	}
	return string(s), nil
}

// SecretManager reads the latest version of a secret. Without explicit
// client options it authenticates with Application Default Credentials,
// looked up on first use.
type SecretManager struct {
	project string
	name    string
	opts    []option.ClientOption
}

// NewSecretManager creates a Secret Manager source for projects/<project>/secrets/<name>.
func NewSecretManager(project, name string) *SecretManager {
	return &SecretManager{project: project, name: name}
}

// WithClientOptions replaces the credentials lookup with explicit client
// options, such as an endpoint and transport.
func (s *SecretManager) WithClientOptions(opts ...option.ClientOption) *SecretManager {
	s.opts = opts
	return s
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// APIKey fetches the latest secret version and verifies its checksum.
func (s *SecretManager) APIKey(ctx context.Context) (string, error) {
	opts := s.opts
	if len(opts) == 0 {
		creds, err := google.FindDefaultCredentials(ctx, secretmanager.DefaultAuthScopes()...)
		if err != nil {
			return "", fmt.Errorf("google default credentials: %w", err)
		}
		opts = []option.ClientOption{option.WithTokenSource(creds.TokenSource)}
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("create secret manager client: %w", err)
	}
	defer client.Close()

	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: s.versionName(),
	})
	if err != nil {
		return "", fmt.Errorf("access secret %s: %w", s.name, err)
	}

	data := resp.GetPayload().GetData()
	if sum := resp.GetPayload().DataCrc32C; sum != nil {
		if int64(crc32.Checksum(data, castagnoli)) != *sum {
			return "", errors.New("secret payload checksum mismatch")
		}
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("secret %s is empty", s.name)
	}
	return key, nil
}

func (s *SecretManager) versionName() string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.project, s.name)
}

// Resolve picks the key source: a configured key wins, otherwise the
// secret is read from Secret Manager in the given project.
func Resolve(apiKey, project, secretName string) (Source, error) {
	if strings.TrimSpace(apiKey) != "" {
		return Static(apiKey), nil
	}
	if project == "" {
		return nil, errors.New("no api key configured and no Google Cloud project set for Secret Manager")
	}
	return NewSecretManager(project, secretName), nil
}
