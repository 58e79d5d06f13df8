package toolauth

import (
	"context"
	"net/http"

	"toollink/internal/engine/connections"
	"toollink/internal/pkg/errors"
	"toollink/internal/platform/models"
	"toollink/internal/platform/repositories"
)

// ExecutionContext is the authorization verdict handed to the execution
// path: which account backs the call and its live access token. It is
// scoped to one execution and must not be persisted.
type ExecutionContext struct {
	Tool        string
	UserID      string
	Provider    string
	Account     *models.ConnectedAccount
	AccessToken string
}

// Authorizer decides whether a tool invocation may proceed and with
// which connected account. It never executes anything itself.
type Authorizer struct {
	registry    *Registry
	connections *connections.Manager
	providers   *repositories.ProviderRepository
}

func NewAuthorizer(registry *Registry, conns *connections.Manager, providers *repositories.ProviderRepository) *Authorizer {
	return &Authorizer{registry: registry, connections: conns, providers: providers}
}

// Authorize evaluates the decision ladder in order: no requirement
// passes outright; no matching connection demands one; a single match
// auto-selects; multiple matches need an explicit, owned, provider-
// correct connection id. The selected connection is refreshed before
// its token is released.
func (a *Authorizer) Authorize(ctx context.Context, userID, tool, explicitConnectionID string) (*ExecutionContext, error) {
	req, ok := a.registry.Lookup(tool)
	if !ok {
		return nil, errors.New(errors.CodeNotFound, http.StatusNotFound, "unknown tool")
	}

	if req.Provider == "" {
		return &ExecutionContext{Tool: tool, UserID: userID}, nil
	}

	provider, err := a.providers.GetByName(req.Provider)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if provider == nil {
		return nil, errors.New(errors.CodeUnknownProvider, http.StatusBadRequest, "tool requires a provider that is not cataloged")
	}

	matches, err := a.connections.List(userID, req.Provider)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, errors.New(errors.CodeConnectionRequired, http.StatusPreconditionFailed, "no connected account for "+req.Provider)
	}

	var selected *models.ConnectedAccount
	if explicitConnectionID != "" {
		acct, err := a.connections.Get(explicitConnectionID)
		if err != nil {
			return nil, err
		}
		if acct == nil {
			return nil, errors.New(errors.CodeNotFound, http.StatusNotFound, "connection not found")
		}
		if acct.UserID != userID {
			return nil, errors.New(errors.CodeForbidden, http.StatusForbidden, "connection belongs to another user")
		}
		if acct.ProviderID != provider.ID {
			return nil, errors.New(errors.CodeAmbiguousConnection, http.StatusConflict, "connection is for a different provider")
		}
		selected = acct
	} else if len(matches) == 1 {
		selected = matches[0]
	} else {
		return nil, errors.New(errors.CodeAmbiguousConnection, http.StatusConflict, "multiple connected accounts; specify connection_id")
	}

	refreshed, err := a.connections.RefreshIfExpired(ctx, selected)
	if err != nil {
		if errors.CodeOf(err) == errors.CodeRefreshFailed {
			return nil, errors.Wrap(errors.CodeReauthorizationRequired, http.StatusUnauthorized, "stored credentials rejected; re-authorization required", err)
		}
		return nil, err
	}

	token, err := a.connections.AccessToken(refreshed)
	if err != nil {
		return nil, err
	}

	return &ExecutionContext{
		Tool:        tool,
		UserID:      userID,
		Provider:    req.Provider,
		Account:     refreshed,
		AccessToken: token,
	}, nil
}
