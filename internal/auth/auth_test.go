package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-core/internal/domain"
	"github.com/spec-kit/support-core/internal/observability"
	"github.com/spec-kit/support-core/internal/repository"
	apperrors "github.com/spec-kit/support-core/pkg/util/errorutil"
)

func acme() *string { s := "acme"; return &s }

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, expires, err := tm.GenerateToken(domain.Actor{ID: "carol", Role: domain.RoleOrgAdmin, OrganizationID: acme()})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expires, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "carol", claims.Subject)
	assert.Equal(t, domain.RoleOrgAdmin, claims.Role)
	require.NotNil(t, claims.OrganizationID)
	assert.Equal(t, "acme", *claims.OrganizationID)
}

func TestParseTokenRejectsForeignAndExpiredTokens(t *testing.T) {
	issuer := NewTokenManager("other-secret", 5)
	token, _, err := issuer.GenerateToken(domain.Actor{ID: "x", Role: domain.RoleEndUser})
	require.NoError(t, err)
	_, err = NewTokenManager("secret", 5).ParseToken(token)
	assert.Error(t, err)

	expired := NewTokenManager("secret", 5)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err = expired.GenerateToken(domain.Actor{ID: "x", Role: domain.RoleEndUser})
	require.NoError(t, err)
	_, err = expired.ParseToken(token)
	assert.Error(t, err)

	_, _, err = expired.GenerateToken(domain.Actor{})
	assert.Error(t, err)
}

func newTestApp(t *testing.T) (*fiber.App, *TokenManager) {
	t.Helper()
	store := repository.NewMemoryStore()
	require.NoError(t, store.Actors().Upsert(context.Background(), &domain.Actor{ID: "alice", Role: domain.RoleEndUser, OrganizationID: acme()}))
	tokens := NewTokenManager("secret", 5)

	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) {
			return c.Status(domainErr.HTTPStatus).SendString(domainErr.Code)
		}
		return fiber.DefaultErrorHandler(c, err)
	}})
	mw := NewAuthMiddleware(tokens, store.Actors())
	app.Get("/me", mw.Handle, RequireActor(), func(c *fiber.Ctx) error {
		actor, _ := ActorFromContext(c)
		return c.SendString(actor.ID + "|" + c.Locals(observability.ActorIDKey).(string))
	})
	app.Get("/open", RequireActor(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return app, tokens
}

func TestAuthMiddleware(t *testing.T) {
	app, tokens := newTestApp(t)
	valid, _, err := tokens.GenerateToken(domain.Actor{ID: "alice", Role: domain.RoleEndUser})
	require.NoError(t, err)
	stale, _, err := tokens.GenerateToken(domain.Actor{ID: "alice", Role: domain.RoleSuperAdmin})
	require.NoError(t, err)
	ghost, _, err := tokens.GenerateToken(domain.Actor{ID: "ghost", Role: domain.RoleEndUser})
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic abc", fiber.StatusUnauthorized},
		{"garbage token", "Bearer abc", fiber.StatusUnauthorized},
		{"unknown actor", "Bearer " + ghost, fiber.StatusUnauthorized},
		{"stale role", "Bearer " + stale, fiber.StatusUnauthorized},
		{"valid", "Bearer " + valid, fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestRequireActorWithoutMiddleware(t *testing.T) {
	app, _ := newTestApp(t)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/open", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
