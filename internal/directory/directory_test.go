package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/golang-jwt/jwt/v5"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/deixis/entractl/internal/config"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

type fakeCredential struct {
	token  string
	err    error
	scopes []string
}

func (f *fakeCredential) GetToken(_ context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	f.scopes = opts.Scopes
	if f.err != nil {
		return azcore.AccessToken{}, f.err
	}
	return azcore.AccessToken{Token: f.token, ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func TestTenantID(t *testing.T) {
	cred := &fakeCredential{token: signedToken(t, jwt.MapClaims{"tid": "72f988bf-0000", "upn": "admin@x.com"})}

	tid, err := TenantID(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, "72f988bf-0000", tid)
	assert.Equal(t, []string{GraphScope}, cred.scopes)
}

func TestTenantID_Errors(t *testing.T) {
	_, err := TenantID(context.Background(), &fakeCredential{err: errors.New("az login required")})
	assert.ErrorContains(t, err, "az login required")

	_, err = TenantFromToken(signedToken(t, jwt.MapClaims{"oid": "x"}))
	assert.ErrorContains(t, err, "tid")

	_, err = TenantFromToken("not-a-jwt")
	assert.Error(t, err)
}

func TestResolveTenant(t *testing.T) {
	ctx := context.Background()
	cred := &fakeCredential{token: signedToken(t, jwt.MapClaims{"tid": "detected"})}

	cfg := &config.Config{Tenant: config.TenantConfig{ID: "configured", Detect: true}}
	tid, err := ResolveTenant(ctx, cfg, cred)
	require.NoError(t, err)
	assert.Equal(t, "configured", tid)

	cfg = &config.Config{Tenant: config.TenantConfig{Detect: true}}
	tid, err = ResolveTenant(ctx, cfg, cred)
	require.NoError(t, err)
	assert.Equal(t, "detected", tid)

	tid, err = ResolveTenant(ctx, &config.Config{}, cred)
	require.NoError(t, err)
	assert.Empty(t, tid)
}

func TestNewCredential_InvalidAuth(t *testing.T) {
	_, err := NewCredential(&config.Config{Tenant: config.TenantConfig{Auth: "device"}})
	assert.Error(t, err)
}

func newTestResolver(getUser func(context.Context, string) (models.Userable, error)) *GraphResolver {
	return &GraphResolver{limiter: rate.NewLimiter(rate.Inf, 1), getUser: getUser}
}

func TestLookupUser(t *testing.T) {
	g := newTestResolver(func(_ context.Context, upn string) (models.Userable, error) {
		u := models.NewUser()
		id, name := "0001", "Ada Lovelace"
		enabled := true
		u.SetId(&id)
		u.SetUserPrincipalName(&upn)
		u.SetDisplayName(&name)
		u.SetAccountEnabled(&enabled)
		return u, nil
	})

	u, err := g.LookupUser(context.Background(), "ada@x.com")
	require.NoError(t, err)
	assert.Equal(t, &User{ID: "0001", UserPrincipalName: "ada@x.com", DisplayName: "Ada Lovelace", Enabled: true}, u)
}

func TestLookupUser_NotFound(t *testing.T) {
	g := newTestResolver(func(context.Context, string) (models.Userable, error) {
		e := odataerrors.NewODataError()
		e.ResponseStatusCode = 404
		return nil, e
	})

	_, err := g.LookupUser(context.Background(), "ghost@x.com")
	assert.True(t, errors.Is(err, ErrUserNotFound), "err = %v", err)
	assert.ErrorContains(t, err, "ghost@x.com")
}

func TestLookupUser_OtherError(t *testing.T) {
	g := newTestResolver(func(context.Context, string) (models.Userable, error) {
		e := odataerrors.NewODataError()
		e.ResponseStatusCode = 403
		return nil, e
	})

	_, err := g.LookupUser(context.Background(), "a@x.com")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUserNotFound))
}

func TestLookupUser_RateLimitHonoursContext(t *testing.T) {
	g := &GraphResolver{
		limiter: rate.NewLimiter(rate.Every(time.Hour), 1),
		getUser: func(_ context.Context, upn string) (models.Userable, error) {
			u := models.NewUser()
			u.SetUserPrincipalName(&upn)
			return u, nil
		},
	}
	_, err := g.LookupUser(context.Background(), "a@x.com")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.LookupUser(ctx, "b@x.com")
	assert.Error(t, err)
}

func TestGroupNames_Sorted(t *testing.T) {
	g := &GraphResolver{
		limiter: rate.NewLimiter(rate.Inf, 1),
		memberOf: func(context.Context, string) ([]string, error) {
			return []string{"Sales", "All Staff", "Ops"}, nil
		},
	}
	names, err := g.GroupNames(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"All Staff", "Ops", "Sales"}, names)
}
