package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	abstractions "github.com/microsoft/kiota-abstractions-go"
	"github.com/microsoft/kiota-abstractions-go/serialization"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
	msgraphcore "github.com/microsoftgraph/msgraph-sdk-go-core"
	"golang.org/x/time/rate"
)

// ErrUserNotFound is returned when the directory has no such user.
var ErrUserNotFound = errors.New("user not found")

// User is the subset of a directory user the tool cares about.
type User struct {
	ID                string `json:"id"`
	UserPrincipalName string `json:"userPrincipalName"`
	DisplayName       string `json:"displayName,omitempty"`
	Enabled           bool   `json:"accountEnabled"`
}

// Resolver looks users up in the directory.
type Resolver interface {
	LookupUser(ctx context.Context, upn string) (*User, error)
}

// GraphResolver resolves users through Microsoft Graph. Calls are rate
// limited so a bulk preflight does not trip Graph throttling.
type GraphResolver struct {
	limiter  *rate.Limiter
	getUser  func(ctx context.Context, upn string) (models.Userable, error)
	memberOf func(ctx context.Context, upn string) ([]string, error)
}

// NewGraphResolver creates a Graph client for cred allowing rps lookups
// per second.
func NewGraphResolver(cred azcore.TokenCredential, rps float64) (*GraphResolver, error) {
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{GraphScope})
	if err != nil {
		return nil, fmt.Errorf("graph client initialization failed: %w", err)
	}
	g := &GraphResolver{limiter: rate.NewLimiter(rate.Limit(rps), 1)}
	g.getUser = func(ctx context.Context, upn string) (models.Userable, error) {
		return client.Users().ByUserId(upn).Get(ctx, &users.UserItemRequestBuilderGetRequestConfiguration{
			QueryParameters: &users.UserItemRequestBuilderGetQueryParameters{
				Select: []string{"id", "userPrincipalName", "displayName", "accountEnabled"},
			},
		})
	}
	g.memberOf = func(ctx context.Context, upn string) ([]string, error) {
		return groupNames(ctx, client.GetAdapter(), client, upn)
	}
	return g, nil
}

// LookupUser implements Resolver.
func (g *GraphResolver) LookupUser(ctx context.Context, upn string) (*User, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u, err := g.getUser(ctx, upn)
	if err != nil {
		return nil, graphError(upn, err)
	}
	return &User{
		ID:                deref(u.GetId()),
		UserPrincipalName: deref(u.GetUserPrincipalName()),
		DisplayName:       deref(u.GetDisplayName()),
		Enabled:           u.GetAccountEnabled() != nil && *u.GetAccountEnabled(),
	}, nil
}

// GroupNames returns the display names of the groups upn is a direct
// member of, sorted.
func (g *GraphResolver) GroupNames(ctx context.Context, upn string) ([]string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	names, err := g.memberOf(ctx, upn)
	if err != nil {
		return nil, graphError(upn, err)
	}
	sort.Strings(names)
	return names, nil
}

func groupNames(ctx context.Context, adapter abstractions.RequestAdapter, client *msgraphsdk.GraphServiceClient, upn string) ([]string, error) {
	result, err := client.Users().ByUserId(upn).MemberOf().Get(ctx, nil)
	if err != nil {
		return nil, err
	}
	var factory serialization.ParsableFactory = models.CreateDirectoryObjectCollectionResponseFromDiscriminatorValue
	it, err := msgraphcore.NewPageIterator[models.DirectoryObjectable](result, adapter, factory)
	if err != nil {
		return nil, err
	}
	var names []string
	err = it.Iterate(ctx, func(obj models.DirectoryObjectable) bool {
		if grp, ok := obj.(models.Groupable); ok && grp.GetDisplayName() != nil {
			names = append(names, *grp.GetDisplayName())
		}
		return true
	})
	return names, err
}

// graphError maps a 404 to ErrUserNotFound and logs OData details.
func graphError(upn string, err error) error {
	var oDataError *odataerrors.ODataError
	if errors.As(err, &oDataError) {
		if oDataError.ResponseStatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrUserNotFound, upn)
		}
		if e := oDataError.GetErrorEscaped(); e != nil {
			Logger.Printf("OData error for %s: code=%s message=%s", upn, deref(e.GetCode()), deref(e.GetMessage()))
		}
	}
	return fmt.Errorf("looking up %s: %w", upn, err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
