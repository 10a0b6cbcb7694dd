package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultBaseURL is the v1.0 Graph API endpoint. Override for the beta API.
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	// DefaultApplicationScope requests all application permissions granted to the app.
	DefaultApplicationScope = "https://graph.microsoft.com/.default"

	defaultAuthority = "https://login.microsoftonline.com"
)

// ErrPublicClientDisabled maps AADSTS error code 7000218: the app registration
// does not allow public client flows, which the device code grant requires.
var ErrPublicClientDisabled = errors.New(
	`graph: public client flows are not allowed; enable "Allow public client flows" on the app registration`)

// aadPublicClientCode is the AADSTS error code behind ErrPublicClientDisabled.
const aadPublicClientCode = 7000218

// Credentials identify the app registration used to acquire tokens.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// Scopes apply to the device code flow. openid and profile are needed
	// when an ID token should be issued alongside the access token.
	Scopes []string
	// Authority overrides the login endpoint, mainly for tests.
	Authority string
}

func (c Credentials) authority() string {
	if c.Authority != "" {
		return c.Authority
	}
	return defaultAuthority
}

func (c Credentials) tokenURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.authority(), c.TenantID)
}

func (c Credentials) authURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/authorize", c.authority(), c.TenantID)
}

func (c Credentials) deviceAuthURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/devicecode", c.authority(), c.TenantID)
}

func (c Credentials) validate(needSecret bool) error {
	if c.TenantID == "" {
		return errors.New("graph: credentials missing tenant id")
	}
	if c.ClientID == "" {
		return errors.New("graph: credentials missing client id")
	}
	if needSecret && c.ClientSecret == "" {
		return errors.New("graph: credentials missing client secret")
	}
	return nil
}

// ApplicationTokenSource acquires tokens with the client credentials grant
// (application permissions). The returned source refreshes transparently.
// The first token is fetched eagerly so misconfiguration fails at connect time.
func ApplicationTokenSource(ctx context.Context, creds Credentials) (oauth2.TokenSource, error) {
	if err := creds.validate(true); err != nil {
		return nil, err
	}

	cc := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.tokenURL(),
		Scopes:       []string{DefaultApplicationScope},
	}

	ts := cc.TokenSource(ctx)
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("acquire application token: %w", translateAuthError(err))
	}
	return ts, nil
}

// DeviceCodePrompt is invoked once the identity platform has issued a user
// code. Implementations show the code and verification URI to the user.
type DeviceCodePrompt func(userCode, verificationURI string, expiresAt time.Time)

// DeviceTokenSource acquires tokens with the device code grant (delegated
// permissions). It blocks while polling the token endpoint until the user
// completes sign-in, the code expires, or ctx is cancelled.
func DeviceTokenSource(ctx context.Context, creds Credentials, prompt DeviceCodePrompt) (oauth2.TokenSource, error) {
	if err := creds.validate(false); err != nil {
		return nil, err
	}

	cfg := oauth2.Config{
		ClientID: creds.ClientID,
		Scopes:   creds.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:       creds.authURL(),
			TokenURL:      creds.tokenURL(),
			DeviceAuthURL: creds.deviceAuthURL(),
		},
	}

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("request device code: %w", translateAuthError(err))
	}

	if prompt != nil {
		prompt(da.UserCode, da.VerificationURI, da.Expiry)
	}

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("exchange device code: %w", translateAuthError(err))
	}

	// With offline_access in scope the source refreshes transparently.
	return cfg.TokenSource(ctx, tok), nil
}

// StaticTokenSource wraps a raw access token, for callers that acquired one elsewhere.
func StaticTokenSource(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
}

// aadErrorBody is the identity platform error envelope.
type aadErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCodes       []int  `json:"error_codes"`
}

// translateAuthError maps well-known AADSTS failures to package errors.
func translateAuthError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return err
	}

	var body aadErrorBody
	if jsonErr := json.Unmarshal(re.Body, &body); jsonErr == nil {
		for _, code := range body.ErrorCodes {
			if code == aadPublicClientCode {
				return fmt.Errorf("%w: %s", ErrPublicClientDisabled, body.ErrorDescription)
			}
		}
	}
	return err
}
