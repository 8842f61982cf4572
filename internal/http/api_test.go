package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"braille-voice/internal/domain"
	"braille-voice/internal/password"
	"braille-voice/internal/repository"
	"braille-voice/internal/repository/jsonfile"
	"braille-voice/internal/service"
	"braille-voice/internal/storage"
)

const testBucket = "braille-test"

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryStorage) Put(_ context.Context, body io.Reader, opts storage.PutOptions) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[opts.Key] = data
	m.types[opts.Key] = opts.ContentType
	return storage.Location(opts.Bucket, opts.Key), nil
}

func (m *memoryStorage) ListObjects(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memoryStorage) DeletePrefix(_ context.Context, _, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			delete(m.objects, key)
		}
	}
	return nil
}

func (m *memoryStorage) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

// brokenAuth fails every call with a storage error.
type brokenAuth struct{}

var errBroken = repository.Storage("save sessions", fmt.Errorf("disk unavailable"))

func (brokenAuth) Register(context.Context, string, string, string) (*service.AuthResult, error) {
	return nil, errBroken
}
func (brokenAuth) Login(context.Context, string, string) (*service.AuthResult, error) {
	return nil, errBroken
}
func (brokenAuth) Validate(context.Context, string) (*domain.User, error) { return nil, errBroken }
func (brokenAuth) Revoke(context.Context, string) error                   { return errBroken }
func (brokenAuth) PurgeExpired(context.Context) (int, error)              { return 0, errBroken }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newAuthService(t *testing.T) service.AuthService {
	t.Helper()
	ctx := context.Background()

	db, err := jsonfile.Open(t.TempDir())
	require.NoError(t, err)
	users := jsonfile.NewUserRepository(db)
	require.NoError(t, users.Init(ctx))
	sessions := jsonfile.NewSessionRepository(db)
	require.NoError(t, sessions.Init(ctx))

	hasher, err := password.New("pbkdf2")
	require.NoError(t, err)

	return service.NewAuthService(
		service.NewCredentialService(users, hasher, nil),
		service.NewSessionService(sessions, nil),
		service.AuthConfig{SessionTTL: time.Hour, Logger: quietLogger()},
	)
}

func newRouter(auth service.AuthService, store storage.Service, upload UploadConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(auth, store, upload, quietLogger()).RegisterRoutes(router)
	return router
}

func newTestRouter(t *testing.T) (*gin.Engine, *memoryStorage) {
	t.Helper()
	store := newMemoryStorage()
	router := newRouter(newAuthService(t), store, UploadConfig{Bucket: testBucket, KeyPrefix: "uploads"})
	return router, store
}

func doJSON(router http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func registerUser(t *testing.T, router http.Handler, username string) TokenResponse {
	t.Helper()
	rec := doJSON(router, http.MethodPost, "/api/auth/register", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "pw1",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAuthFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	reg := registerUser(t, router, "alice")
	assert.Len(t, reg.AccessToken, 43)
	assert.Equal(t, "bearer", reg.TokenType)
	assert.Equal(t, "alice", reg.User.Username)
	assert.NotEmpty(t, reg.User.ID)

	rec := doJSON(router, http.MethodGet, "/api/auth/me", nil, reg.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	var me UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, reg.User.ID, me.ID)

	rec = doJSON(router, http.MethodPost, "/api/auth/login", gin.H{"username": "alice", "password": "pw1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var login TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	assert.NotEqual(t, reg.AccessToken, login.AccessToken)
	require.NotNil(t, login.User.LastLogin)

	rec = doJSON(router, http.MethodPost, "/api/auth/logout", nil, reg.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodGet, "/api/auth/me", nil, reg.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = doJSON(router, http.MethodGet, "/api/auth/me", nil, login.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRejectionsAreIndistinguishable(t *testing.T) {
	router, _ := newTestRouter(t)
	registerUser(t, router, "alice")

	wrong := doJSON(router, http.MethodPost, "/api/auth/login", gin.H{"username": "alice", "password": "nope"}, "")
	unknown := doJSON(router, http.MethodPost, "/api/auth/login", gin.H{"username": "mallory", "password": "nope"}, "")

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.JSONEq(t, wrong.Body.String(), unknown.Body.String())
	assert.Contains(t, wrong.Body.String(), "Incorrect username or password")
	assert.Equal(t, "Bearer", wrong.Header().Get("WWW-Authenticate"))
}

func TestRegisterErrors(t *testing.T) {
	router, _ := newTestRouter(t)
	registerUser(t, router, "alice")

	tests := []struct {
		name string
		body gin.H
		code int
		msg  string
	}{
		{"invalid email", gin.H{"username": "bob", "email": "not-an-email", "password": "pw"}, http.StatusBadRequest, "invalid email"},
		{"missing password", gin.H{"username": "bob", "email": "bob@example.com"}, http.StatusBadRequest, ""},
		{"duplicate username", gin.H{"username": "alice", "email": "other@example.com", "password": "pw"}, http.StatusConflict, "Username already registered"},
		{"duplicate email", gin.H{"username": "bob", "email": "alice@example.com", "password": "pw"}, http.StatusConflict, "Email already registered"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(router, http.MethodPost, "/api/auth/register", tc.body, "")
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
			if tc.msg != "" {
				assert.Contains(t, rec.Body.String(), tc.msg)
			}
		})
	}
}

func TestBearerRequired(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer unknown-token"} {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"), header)
	}
}

func TestCheck(t *testing.T) {
	router, _ := newTestRouter(t)
	reg := registerUser(t, router, "alice")

	rec := doJSON(router, http.MethodGet, "/api/auth/check", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())

	rec = doJSON(router, http.MethodGet, "/api/auth/check", nil, "garbage")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())

	rec = doJSON(router, http.MethodGet, "/api/auth/check", nil, reg.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authenticated":true`)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)
}

func TestStorageFailuresAreServerErrors(t *testing.T) {
	router := newRouter(brokenAuth{}, nil, UploadConfig{})

	rec := doJSON(router, http.MethodPost, "/api/auth/login", gin.H{"username": "alice", "password": "pw"}, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = doJSON(router, http.MethodGet, "/api/auth/me", nil, "token")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))

	rec = doJSON(router, http.MethodGet, "/api/auth/check", nil, "token")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORSAndHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = doJSON(router, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
