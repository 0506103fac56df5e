package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/passvault/internal/auth"
	"github.com/and161185/passvault/internal/limiter"
	"github.com/and161185/passvault/internal/repository/memory"
	"github.com/and161185/passvault/internal/service"
)

type apiClient struct {
	t *testing.T
	h http.Handler
}

func newAPI(t *testing.T, maxEntries int) *apiClient {
	t.Helper()
	repo := memory.New()
	tm, err := auth.NewTokenManager("http-test-secret", "HS256", 1)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	as := service.NewAuthService(repo, tm, limiter.NewMemory(limiter.DefaultConfig()), 4, log)
	vs := service.NewVaultService(repo, maxEntries)
	return &apiClient{t: t, h: New(as, vs, log, []string{"http://localhost:3000"}).Handler()}
}

func (c *apiClient) do(method, path, token string, body any) (int, map[string]any) {
	c.t.Helper()
	var rd *bytes.Reader
	if s, ok := body.(string); ok {
		rd = bytes.NewReader([]byte(s))
	} else if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (c *apiClient) register(name, pw string) string {
	c.t.Helper()
	code, body := c.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": name, "email": name + "@example.com", "master_password": pw,
	})
	require.Equal(c.t, http.StatusCreated, code, body)
	return body["token"].(string)
}

func entryBody(url string) map[string]string {
	return map[string]string{
		"website_url":        url,
		"website_name":       "Example",
		"username":           "alice_u",
		"encrypted_password": "enc",
		"iv":                 "iv",
		"notes":              "n",
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	c := newAPI(t, 10)

	code, body := c.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "healthy", body["status"])
}

func TestAPI_Flow(t *testing.T) {
	t.Parallel()
	c := newAPI(t, 10)

	code, reg := c.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "alice@example.com", "master_password": "StrongPass123!",
	})
	require.Equal(t, http.StatusCreated, code)
	require.Contains(t, reg, "token")
	user := reg["user"].(map[string]any)
	require.Equal(t, "alice", user["username"])
	require.NotContains(t, user, "salt")
	token := reg["token"].(string)

	code, login := c.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "master_password": "StrongPass123!",
	})
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, login["token"])

	code, body := c.do(http.MethodGet, "/api/passwords", token, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, []any{}, body["passwords"])

	code, body = c.do(http.MethodPost, "/api/passwords", token, entryBody("https://example.com"))
	require.Equal(t, http.StatusCreated, code, body)
	created := body["password"].(map[string]any)
	pid := created["id"].(string)
	assert.Nil(t, created["last_used"])

	code, body = c.do(http.MethodGet, "/api/passwords/"+pid, token, nil)
	require.Equal(t, http.StatusOK, code)
	got := body["password"].(map[string]any)
	require.Equal(t, pid, got["id"])
	assert.NotNil(t, got["last_used"])

	code, _ = c.do(http.MethodPut, "/api/passwords/"+pid, token, map[string]string{"username": "alice_updated"})
	require.Equal(t, http.StatusOK, code)
	_, body = c.do(http.MethodGet, "/api/passwords/"+pid, token, nil)
	got = body["password"].(map[string]any)
	require.Equal(t, "alice_updated", got["username"])
	require.Equal(t, "enc", got["encrypted_password"])

	code, body = c.do(http.MethodPost, "/api/passwords", token, entryBody("https://other.org"))
	require.Equal(t, http.StatusCreated, code, body)

	code, body = c.do(http.MethodPost, "/api/passwords/search", token, map[string]string{"url": "example"})
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["passwords"], 1)

	code, body = c.do(http.MethodGet, "/api/passwords/count", token, nil)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 2, body["count"])

	code, _ = c.do(http.MethodDelete, "/api/passwords/"+pid, token, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = c.do(http.MethodGet, "/api/passwords/"+pid, token, nil)
	require.Equal(t, http.StatusNotFound, code)
	_, body = c.do(http.MethodGet, "/api/passwords/count", token, nil)
	require.EqualValues(t, 1, body["count"])

	code, body = c.do(http.MethodGet, "/api/auth/verify", token, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["valid"])
}

func TestAPI_PasswordLimit(t *testing.T) {
	t.Parallel()
	c := newAPI(t, 1)
	token := c.register("bob", "Abcd1234!")

	code, _ := c.do(http.MethodPost, "/api/passwords", token, entryBody("https://site1.com"))
	require.Equal(t, http.StatusCreated, code)
	code, body := c.do(http.MethodPost, "/api/passwords", token, entryBody("https://site2.com"))
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, body["error"], "maximum of 1 entries")
}

func TestAPI_Ownership(t *testing.T) {
	t.Parallel()
	c := newAPI(t, 10)
	alice := c.register("alice", "StrongPass123!")
	bob := c.register("bob", "StrongPass123!")

	_, body := c.do(http.MethodPost, "/api/passwords", bob, entryBody("https://bank.com"))
	bobsID := body["password"].(map[string]any)["id"].(string)

	code, _ := c.do(http.MethodGet, "/api/passwords/"+bobsID, alice, nil)
	require.Equal(t, http.StatusNotFound, code)
	code, _ = c.do(http.MethodPut, "/api/passwords/"+bobsID, alice, map[string]string{"notes": "x"})
	require.Equal(t, http.StatusNotFound, code)
	code, _ = c.do(http.MethodDelete, "/api/passwords/"+bobsID, alice, nil)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = c.do(http.MethodGet, "/api/passwords/"+bobsID, bob, nil)
	require.Equal(t, http.StatusOK, code)
}

func TestAPI_AuthErrors(t *testing.T) {
	t.Parallel()
	c := newAPI(t, 10)
	c.register("alice", "StrongPass123!")

	code, body := c.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "master_password": "nope-nope"})
	require.Equal(t, http.StatusUnauthorized, code)
	unknownCode, unknownBody := c.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "ghost", "master_password": "nope-nope"})
	require.Equal(t, code, unknownCode)
	require.Equal(t, body, unknownBody)

	code, _ = c.do(http.MethodGet, "/api/passwords", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	code, body = c.do(http.MethodGet, "/api/passwords", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "invalid or expired token", body["error"])

	code, body = c.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "other@example.com", "master_password": "StrongPass123!",
	})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "Username already exists", body["error"])

	code, body = c.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "weak", "email": "weak@example.com", "master_password": "short",
	})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "Password must be at least 8 characters long", body["error"])

	code, body = c.do(http.MethodPost, "/api/auth/register", "", "{not json")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "invalid json", body["error"])
}

func TestAPI_MalformedIDIsNotFound(t *testing.T) {
	t.Parallel()
	c := newAPI(t, 10)
	token := c.register("alice", "StrongPass123!")

	code, _ := c.do(http.MethodGet, "/api/passwords/not-a-uuid", token, nil)
	require.Equal(t, http.StatusNotFound, code)
	code, _ = c.do(http.MethodDelete, "/api/passwords/"+uuid.Must(uuid.NewV4()).String(), token, nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestAPI_UpdateNullClearsFields(t *testing.T) {
	t.Parallel()
	c := newAPI(t, 10)
	token := c.register("alice", "StrongPass123!")

	code, body := c.do(http.MethodPost, "/api/passwords", token, entryBody("https://example.com"))
	require.Equal(t, http.StatusCreated, code, body)
	id := body["password"].(map[string]any)["id"].(string)

	code, body = c.do(http.MethodPut, "/api/passwords/"+id, token, `{"notes":null,"website_name":null}`)
	require.Equal(t, http.StatusOK, code, body)

	code, body = c.do(http.MethodGet, "/api/passwords/"+id, token, nil)
	require.Equal(t, http.StatusOK, code)
	e := body["password"].(map[string]any)
	assert.Nil(t, e["notes"])
	assert.Nil(t, e["website_name"])
	assert.Equal(t, "alice_u", e["username"])

	code, body = c.do(http.MethodPut, "/api/passwords/"+id, token, `{"iv":null}`)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "iv cannot be null", body["error"])
}

func TestAPI_ChangePasswordAndDeleteAccount(t *testing.T) {
	t.Parallel()
	c := newAPI(t, 10)
	token := c.register("alice", "StrongPass123!")

	code, _ := c.do(http.MethodPost, "/api/auth/change-password", token, map[string]string{
		"current_password": "wrong", "new_password": "NewStrong456$",
	})
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = c.do(http.MethodPost, "/api/auth/change-password", token, map[string]string{
		"current_password": "StrongPass123!", "new_password": "NewStrong456$",
	})
	require.Equal(t, http.StatusOK, code)

	code, _ = c.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "master_password": "NewStrong456$"})
	require.Equal(t, http.StatusOK, code)

	c.do(http.MethodPost, "/api/passwords", token, entryBody("https://a.com"))
	code, _ = c.do(http.MethodDelete, "/api/auth/account", token, map[string]string{"master_password": "NewStrong456$"})
	require.Equal(t, http.StatusOK, code)

	// the token is still well-formed but its account is gone
	code, _ = c.do(http.MethodGet, "/api/auth/verify", token, nil)
	require.Equal(t, http.StatusUnauthorized, code)
	code, body := c.do(http.MethodGet, "/api/passwords/count", token, nil)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 0, body["count"])
}

func TestAPI_BodyLimit(t *testing.T) {
	t.Parallel()
	c := newAPI(t, 10)
	token := c.register("alice", "StrongPass123!")

	huge := `{"website_url":"https://a.com","notes":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	code, body := c.do(http.MethodPost, "/api/passwords", token, huge)
	require.Equal(t, http.StatusRequestEntityTooLarge, code)
	require.Equal(t, "request body too large", body["error"])
}

func TestAPI_CORSPreflight(t *testing.T) {
	t.Parallel()
	c := newAPI(t, 10)

	req := httptest.NewRequest(http.MethodOptions, "/api/passwords", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)

	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
