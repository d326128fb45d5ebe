package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"catalog-sync/internal/models"
	"catalog-sync/internal/util"
)

// TokenSource yields a current bearer token for an external API. AuthError
// from a provider aborts the run; any other failure is transient and the
// call is retried.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token (target API style: long-lived token
// from the environment).
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", &models.AuthError{API: "target", Status: http.StatusUnauthorized}
	}
	return string(t), nil
}

// ExchangingTokenSource trades an API key/secret pair for a short-lived
// access token and caches it until shortly before expiry (source API style).
type ExchangingTokenSource struct {
	API       string
	AuthURL   string
	APIKey    string
	APISecret string
	TTL       time.Duration
	Client    *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	logger    *zap.Logger
}

func NewExchangingTokenSource(api, authURL, apiKey, apiSecret string, ttl time.Duration, client *http.Client) *ExchangingTokenSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ExchangingTokenSource{
		API:       api,
		AuthURL:   authURL,
		APIKey:    apiKey,
		APISecret: apiSecret,
		TTL:       ttl,
		Client:    client,
		logger:    util.GetLogger(),
	}
}

func (s *ExchangingTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiresAt) {
		return s.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"api_key":      s.APIKey,
		"api_password": s.APISecret,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.AuthURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &models.AuthError{API: s.API, Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &models.ExternalAPIError{API: s.API, Status: resp.StatusCode, Attempts: 1,
			Err: fmt.Errorf("token endpoint returned %d", resp.StatusCode)}
	}

	var payload struct {
		Data []struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &models.SchemaError{API: s.API, Detail: "token response is not valid JSON"}
	}
	if len(payload.Data) == 0 || payload.Data[0].AccessToken == "" {
		return "", &models.SchemaError{API: s.API, Detail: "token response missing access_token"}
	}

	s.token = payload.Data[0].AccessToken
	// Refresh one minute early so in-flight requests never carry a token
	// that expires mid-call.
	s.expiresAt = time.Now().Add(s.TTL - time.Minute)
	s.logger.Info("Access token refreshed", zap.String("api", s.API))

	return s.token, nil
}
