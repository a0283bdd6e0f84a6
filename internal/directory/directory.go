// Package directory talks to the tenant directly for the few things the
// scripts cannot do for us: working out which tenant we are pointed at and
// checking that a user exists before a script is launched against it.
package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/golang-jwt/jwt/v5"

	"github.com/deixis/entractl/internal/config"
)

// GraphScope is the scope requested for every Graph token.
const GraphScope = "https://graph.microsoft.com/.default"

// Logger receives preflight diagnostics. Discarded unless replaced.
var Logger = log.New(io.Discard, "directory: ", 0)

// NewCredential returns the credential selected by the tenant config:
// the Azure CLI login (default) or an app registration secret.
func NewCredential(cfg *config.Config) (azcore.TokenCredential, error) {
	switch cfg.AuthMethod() {
	case config.AuthSecret:
		cred, err := azidentity.NewClientSecretCredential(cfg.Tenant.ID, cfg.Tenant.ClientID, cfg.Tenant.ClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("creating client secret credential: %w", err)
		}
		return cred, nil
	case config.AuthCLI:
		cred, err := azidentity.NewAzureCLICredential(&azidentity.AzureCLICredentialOptions{TenantID: cfg.Tenant.ID})
		if err != nil {
			return nil, fmt.Errorf("creating Azure CLI credential: %w", err)
		}
		return cred, nil
	}
	return nil, fmt.Errorf("invalid auth method: %s", cfg.AuthMethod())
}

// TenantID requests a Graph token and returns its tid claim.
func TenantID(ctx context.Context, cred azcore.TokenCredential) (string, error) {
	token, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{GraphScope}})
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	return TenantFromToken(token.Token)
}

// TenantFromToken reads the tid claim of an access token. The signature is
// not verified: the token was just issued to us by the identity platform
// and is never used to authenticate anyone.
func TenantFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	tid, ok := claims["tid"].(string)
	if !ok || tid == "" {
		return "", errors.New("could not find 'tid' claim in token")
	}
	return tid, nil
}

// ResolveTenant returns the configured tenant id, or detects it from a
// token when tenant.detect is set. It returns "" when neither applies.
func ResolveTenant(ctx context.Context, cfg *config.Config, cred azcore.TokenCredential) (string, error) {
	if cfg.Tenant.ID != "" {
		return cfg.Tenant.ID, nil
	}
	if !cfg.Tenant.Detect || cred == nil {
		return "", nil
	}
	return TenantID(ctx, cred)
}
