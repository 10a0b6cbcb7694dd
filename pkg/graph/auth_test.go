package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestCredentialsValidate(t *testing.T) {
	tests := []struct {
		name       string
		creds      Credentials
		needSecret bool
		wantErr    string
	}{
		{
			name:       "complete application credentials",
			creds:      Credentials{TenantID: "tid", ClientID: "cid", ClientSecret: "sec"},
			needSecret: true,
		},
		{
			name:    "device flow without secret",
			creds:   Credentials{TenantID: "tid", ClientID: "cid"},
			wantErr: "",
		},
		{
			name:    "missing tenant",
			creds:   Credentials{ClientID: "cid"},
			wantErr: "missing tenant id",
		},
		{
			name:    "missing client id",
			creds:   Credentials{TenantID: "tid"},
			wantErr: "missing client id",
		},
		{
			name:       "missing secret for application flow",
			creds:      Credentials{TenantID: "tid", ClientID: "cid"},
			needSecret: true,
			wantErr:    "missing client secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.validate(tt.needSecret)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCredentialsEndpoints(t *testing.T) {
	creds := Credentials{TenantID: "contoso.onmicrosoft.com", ClientID: "cid"}

	assert.Equal(t,
		"https://login.microsoftonline.com/contoso.onmicrosoft.com/oauth2/v2.0/token",
		creds.tokenURL())
	assert.Equal(t,
		"https://login.microsoftonline.com/contoso.onmicrosoft.com/oauth2/v2.0/devicecode",
		creds.deviceAuthURL())

	creds.Authority = "http://127.0.0.1:9999"
	assert.Equal(t, "http://127.0.0.1:9999/contoso.onmicrosoft.com/oauth2/v2.0/token", creds.tokenURL())
}

func TestApplicationTokenSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/tid/oauth2/v2.0/token", r.URL.Path)
		assert.Equal(t, DefaultApplicationScope, r.FormValue("scope"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"app-token","token_type":"Bearer","expires_in":3600}`)
	}))
	defer server.Close()

	creds := Credentials{
		TenantID:     "tid",
		ClientID:     "cid",
		ClientSecret: "sec",
		Authority:    server.URL,
	}

	ts, err := ApplicationTokenSource(context.Background(), creds)
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "app-token", tok.AccessToken)
}

func TestApplicationTokenSourceFailsEagerly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_client","error_description":"AADSTS7000215: Invalid client secret.","error_codes":[7000215]}`)
	}))
	defer server.Close()

	creds := Credentials{TenantID: "tid", ClientID: "cid", ClientSecret: "wrong", Authority: server.URL}

	_, err := ApplicationTokenSource(context.Background(), creds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire application token")
}

func TestDeviceTokenSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/tid/oauth2/v2.0/devicecode":
			fmt.Fprint(w, `{
				"device_code": "dev-code",
				"user_code": "ABCD-1234",
				"verification_uri": "https://microsoft.com/devicelogin",
				"expires_in": 900,
				"interval": 1
			}`)
		case "/tid/oauth2/v2.0/token":
			fmt.Fprint(w, `{"access_token":"device-token","token_type":"Bearer","expires_in":3600}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	creds := Credentials{
		TenantID:  "tid",
		ClientID:  "cid",
		Scopes:    []string{"User.Read"},
		Authority: server.URL,
	}

	var promptedCode, promptedURI string
	prompt := func(userCode, verificationURI string, expiresAt time.Time) {
		promptedCode = userCode
		promptedURI = verificationURI
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ts, err := DeviceTokenSource(ctx, creds, prompt)
	require.NoError(t, err)

	assert.Equal(t, "ABCD-1234", promptedCode)
	assert.Equal(t, "https://microsoft.com/devicelogin", promptedURI)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "device-token", tok.AccessToken)
}

func TestTranslateAuthError(t *testing.T) {
	publicClientBody := []byte(`{
		"error": "invalid_client",
		"error_description": "AADSTS7000218: The request body must contain the following parameter: 'client_assertion' or 'client_secret'.",
		"error_codes": [7000218]
	}`)

	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{
			name:     "public client flows disabled",
			err:      &oauth2.RetrieveError{Response: &http.Response{StatusCode: 401}, Body: publicClientBody},
			expected: ErrPublicClientDisabled,
		},
		{
			name: "wrapped retrieve error",
			err: fmt.Errorf("exchange: %w",
				&oauth2.RetrieveError{Response: &http.Response{StatusCode: 400}, Body: publicClientBody}),
			expected: ErrPublicClientDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translateAuthError(tt.err), tt.expected)
		})
	}

	t.Run("other errors pass through", func(t *testing.T) {
		plain := errors.New("network down")
		assert.Same(t, plain, translateAuthError(plain))

		other := &oauth2.RetrieveError{
			Response: &http.Response{StatusCode: 400},
			Body:     []byte(`{"error":"invalid_grant","error_codes":[50126]}`),
		}
		assert.False(t, errors.Is(translateAuthError(other), ErrPublicClientDisabled))
	})
}
