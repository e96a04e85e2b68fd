package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/incidence-service/internal/domain"
	"github.com/spec-kit/incidence-service/internal/routing"
	apperrors "github.com/spec-kit/incidence-service/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, exp, err := tm.GenerateToken(domain.User{ID: "U1", Role: domain.RoleAdmin})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), exp, time.Minute)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "U1", claims.UserID)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
}

func TestTokenRejectsOtherSecretAndExpiry(t *testing.T) {
	token, _, err := NewTokenManager("one", 5).GenerateToken(domain.User{ID: "U1"})
	require.NoError(t, err)
	_, err = NewTokenManager("two", 5).ParseToken(token)
	assert.Error(t, err)

	tm := NewTokenManager("one", 5)
	tm.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = tm.ParseToken(token)
	assert.Error(t, err)
}

func TestTokenRequiresSecret(t *testing.T) {
	_, _, err := NewTokenManager("", 5).GenerateToken(domain.User{ID: "U1"})
	assert.Error(t, err)
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3creto")
	require.NoError(t, err)

	user := domain.User{ID: "U1", PasswordHash: hash}
	assert.NoError(t, VerifyPassword(user, "s3creto"))
	assert.ErrorIs(t, VerifyPassword(user, "otro"), ErrInvalidCredentials)
	assert.ErrorIs(t, VerifyPassword(domain.User{ID: "U2"}, ""), ErrInvalidCredentials)

	_, err = HashPassword("")
	assert.Error(t, err)
}

func newTestApp(t *testing.T, tm *TokenManager, store *routing.Store) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	mw := NewAuthMiddleware(tm, store)
	app.Get("/any", mw.Handle, func(c *fiber.Ctx) error {
		p, ok := PrincipalFromContext(c)
		require.True(t, ok)
		return c.SendString(p.User.ID)
	})
	app.Get("/admin", mw.Handle, RequireRole(domain.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})
	return app
}

func TestMiddlewareAndRoles(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	store := routing.NewStore("", &routing.Snapshot{Users: []domain.User{
		{ID: "U1", Role: domain.RoleMember},
		{ID: "U2", Role: domain.RoleAdmin},
	}})
	app := newTestApp(t, tm, store)

	member, _, err := tm.GenerateToken(domain.User{ID: "U1", Role: domain.RoleMember})
	require.NoError(t, err)
	admin, _, err := tm.GenerateToken(domain.User{ID: "U2", Role: domain.RoleAdmin})
	require.NoError(t, err)
	removed, _, err := tm.GenerateToken(domain.User{ID: "U9", Role: domain.RoleAdmin})
	require.NoError(t, err)

	cases := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"missing header", "/any", "", http.StatusUnauthorized},
		{"wrong scheme", "/any", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "/any", "Bearer abc", http.StatusUnauthorized},
		{"member ok", "/any", "Bearer " + member, http.StatusOK},
		{"member forbidden", "/admin", "Bearer " + member, http.StatusForbidden},
		{"admin ok", "/admin", "Bearer " + admin, http.StatusNoContent},
		{"user no longer in directory", "/any", "Bearer " + removed, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
