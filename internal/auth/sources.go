package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTokenLifetime applies when the identity provider omits expires_in.
const DefaultTokenLifetime = time.Hour

// StaticSource hands out a pre-shared token. When the token is a JWT its exp
// claim sets the expiry, otherwise the expiry is now plus TTL.
type StaticSource struct {
	Token string
	TTL   time.Duration

	now func() time.Time
}

func NewStaticSource(token string, ttl time.Duration) *StaticSource {
	return &StaticSource{Token: token, TTL: ttl, now: time.Now}
}

func (s *StaticSource) Exchange(_ context.Context) (Credential, error) {
	if s.Token == "" {
		return Credential{}, errors.New("static token is empty")
	}
	now := s.now()
	expiresAt := now.Add(s.TTL)

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, &claims); err == nil && claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
		if !expiresAt.After(now) {
			return Credential{}, fmt.Errorf("static token expired at %s", expiresAt.UTC().Format(time.RFC3339))
		}
	}
	return Credential{Token: s.Token, ExpiresAt: expiresAt}, nil
}

// ClientCredentialsSource exchanges client id and secret for an access token
// at an OAuth2 token endpoint. Credentials travel in the form body.
type ClientCredentialsSource struct {
	cfg  clientcredentials.Config
	http *http.Client
	now  func() time.Time
}

func NewClientCredentialsSource(tokenURL, clientID, clientSecret, scope, grantType string, httpClient *http.Client) *ClientCredentialsSource {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       strings.Fields(scope),
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if grantType != "" && grantType != "client_credentials" {
		cfg.EndpointParams = url.Values{"grant_type": {grantType}}
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &ClientCredentialsSource{cfg: cfg, http: httpClient, now: time.Now}
}

func (s *ClientCredentialsSource) Exchange(ctx context.Context) (Credential, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.http)
	tok, err := s.cfg.Token(ctx)
	if err != nil {
		return Credential{}, fmt.Errorf("token endpoint %s: %w", s.cfg.TokenURL, err)
	}
	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = s.now().Add(DefaultTokenLifetime)
	}
	return Credential{Token: tok.AccessToken, ExpiresAt: expiresAt}, nil
}
