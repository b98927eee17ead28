// SPDX-License-Identifier: MIT

package razer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamelinkhq/gamelink/internal/log"
)

// DefaultServiceURL is the production identity service endpoint.
const DefaultServiceURL = "https://nexus-prod.mobile.razer.com"

const secretPath = "/neuron/api/secret/generate"

// Secret is one single-use PIN wrapping secret issued by the identity
// service for a federated pair attempt.
type Secret struct {
	Secret string `json:"secret"`
	UUID   string `json:"uuid"`
}

// SecretClient requests pairing secrets from the identity service.
type SecretClient struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewSecretClient builds a client against baseURL, or the production
// service when baseURL is empty.
func NewSecretClient(baseURL string) *SecretClient {
	if baseURL == "" {
		baseURL = DefaultServiceURL
	}
	return &SecretClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log.WithComponent("razer"),
	}
}

// GenerateSecret exchanges the account JWT for a fresh pairing secret.
func (c *SecretClient) GenerateSecret(ctx context.Context, jwt string) (*Secret, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+secretPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build secret request: %w", err)
	}
	req.Header.Set("X-Razer-JWT", jwt)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request pairing secret: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str(log.FieldEvent, "razer.secret_rejected").
			Msg("identity service rejected secret request")
		return nil, fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read secret response: %w", err)
	}
	var secret Secret
	if err := json.Unmarshal(body, &secret); err != nil {
		return nil, fmt.Errorf("parse secret response: %w", err)
	}
	if secret.Secret == "" || secret.UUID == "" {
		return nil, fmt.Errorf("identity service returned incomplete secret")
	}
	return &secret, nil
}
