package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	pkgcrypto "github.com/and161185/devdice/internal/crypto"
	"github.com/and161185/devdice/internal/limiter"
	"github.com/and161185/devdice/internal/repository/memory"
	"github.com/and161185/devdice/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() { gin.SetMode(gin.TestMode) }

type captureMailer struct {
	mu    sync.Mutex
	links []string
}

func (m *captureMailer) SendReset(_ context.Context, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, link)
	return nil
}

type testEnv struct {
	r       *gin.Engine
	store   *memory.Store
	catalog *service.CatalogServiceImpl
	mail    *captureMailer
}

const adminEmail = "root@devdice.test"

func newEnv(t *testing.T) testEnv {
	t.Helper()
	log := zaptest.NewLogger(t)
	store := memory.New()
	mail := &captureMailer{}
	auth := service.NewAuthService(store.Users(), store.Resets(), limiter.Nop{}, mail, log, service.AuthConfig{
		SignKey:     []byte("test-secret"),
		TokenTTL:    time.Hour,
		BcryptCost:  pkgcrypto.MinCost,
		AdminEmails: []string{adminEmail},
		ResetURL:    "http://localhost:5173/reset-password",
	})
	catalog := service.NewCatalogService(store.Challenges(), 10)
	r, err := NewRouter(Deps{
		Auth:        auth,
		Catalog:     catalog,
		Tracking:    service.NewTrackingService(store.Tracking()),
		Log:         log,
		CORSOrigins: []string{"http://localhost:5173"},
	})
	require.NoError(t, err)
	return testEnv{r: r, store: store, catalog: catalog, mail: mail}
}

func do(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type sessionBody struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

func signUp(t *testing.T, r http.Handler, name, email, pw string) sessionBody {
	t.Helper()
	w := do(t, r, http.MethodPost, "/users/signup", "", map[string]string{"name": name, "email": email, "password": pw})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[sessionBody](t, w)
}

func messageOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorBody](t, w).Message
}
