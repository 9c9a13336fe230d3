// Package auth holds the Google ID-token verifier. Tokens are checked
// against the tokeninfo endpoint; signature validation happens on
// Google's side, this service only has to trust the HTTPS answer.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

var (
	ErrTokenRejected   = errors.New("google rejected the id token")
	ErrAudienceInvalid = errors.New("id token was issued for a different client")
	ErrTokenExpired    = errors.New("id token has expired")
)

type GoogleVerifier struct {
	clientID     string
	tokenInfoURL string
	httpClient   *http.Client
}

type GoogleVerifierOption func(*GoogleVerifier)

// WithTokenInfoURL overrides the verification endpoint, used by tests.
func WithTokenInfoURL(u string) GoogleVerifierOption {
	return func(v *GoogleVerifier) { v.tokenInfoURL = u }
}

func WithHTTPClient(httpClient *http.Client) GoogleVerifierOption {
	return func(v *GoogleVerifier) { v.httpClient = httpClient }
}

func NewGoogleVerifier(clientID string, opts ...GoogleVerifierOption) *GoogleVerifier {
	v := &GoogleVerifier{
		clientID:     clientID,
		tokenInfoURL: defaultTokenInfoURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type tokenInfo struct {
	Aud           string `json:"aud"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Exp           string `json:"exp"`
}

// Verify validates the token and returns the e-mail it asserts.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (string, error) {
	params := url.Values{}
	params.Set("id_token", idToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.tokenInfoURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build tokeninfo request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tokeninfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", ErrTokenRejected
	}

	var info tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("failed to decode tokeninfo response: %w", err)
	}

	if info.Aud != v.clientID {
		return "", ErrAudienceInvalid
	}
	if exp, err := strconv.ParseInt(info.Exp, 10, 64); err != nil || time.Now().Unix() >= exp {
		return "", ErrTokenExpired
	}
	if info.Email == "" {
		return "", ErrTokenRejected
	}
	return info.Email, nil
}
