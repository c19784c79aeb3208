package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const jwtTestSecret = "middleware-test-secret"

func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(jwtTestSecret))
	require.NoError(t, err)
	return signed
}

func newJWTTestApp() (*fiber.App, *uuid.UUID, *string) {
	app := fiber.New()
	app.Use(JWTProtected(jwtTestSecret))

	var seenID uuid.UUID
	var seenRole string
	app.Get("/me", func(c *fiber.Ctx) error {
		if id, ok := c.Locals("user_id").(uuid.UUID); ok {
			seenID = id
		}
		if role, ok := c.Locals("user_role").(string); ok {
			seenRole = role
		}
		return c.SendStatus(fiber.StatusOK)
	})
	return app, &seenID, &seenRole
}

func TestJWTProtectedBindsUserIdentity(t *testing.T) {
	app, seenID, seenRole := newJWTTestApp()

	userID := uuid.New()
	token := signTestToken(t, jwt.MapClaims{
		"sub":  userID.String(),
		"role": "Teacher",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, userID, *seenID)
	require.Equal(t, "teacher", *seenRole)
}

func TestJWTProtectedRejectsMissingHeader(t *testing.T) {
	app, _, _ := newJWTTestApp()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTProtectedRejectsMalformedToken(t *testing.T) {
	app, _, _ := newJWTTestApp()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTProtectedRejectsWrongSignature(t *testing.T) {
	app, _, _ := newJWTTestApp()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("another-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTProtectedRejectsExpiredToken(t *testing.T) {
	app, _, _ := newJWTTestApp()

	token := signTestToken(t, jwt.MapClaims{
		"sub": uuid.New().String(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTProtectedRejectsNonUUIDSubject(t *testing.T) {
	app, _, _ := newJWTTestApp()

	token := signTestToken(t, jwt.MapClaims{
		"sub": "42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
