package httpserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/and161185/devdice/internal/errs"
	"github.com/and161185/devdice/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const pw = "Abcdef1!"

func TestEndToEnd_SaveAndComplete(t *testing.T) {
	env := newEnv(t)
	_, err := env.catalog.Seed(context.Background())
	require.NoError(t, err)

	signUp(t, env.r, "Ann", "ann@x.com", pw)

	w := do(t, env.r, http.MethodPost, "/users/login", "", map[string]string{"email": "ann@x.com", "password": pw})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sess := decode[sessionBody](t, w)
	require.NotEmpty(t, sess.Token)
	assert.Equal(t, "ann@x.com", sess.User.Email)

	w = do(t, env.r, http.MethodGet, "/my-challenges", sess.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(t, env.r, http.MethodPost, "/my-challenges", sess.Token, map[string]int{"challengeId": 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	saved := decode[model.UserChallenge](t, w)
	assert.Equal(t, model.StatusPending, saved.Status)
	assert.Equal(t, int64(1), saved.ID)

	w = do(t, env.r, http.MethodPatch, "/my-challenges/1", sess.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, env.r, http.MethodGet, "/my-challenges", sess.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]model.UserChallenge](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, model.StatusCompleted, list[0].Status)
	require.NotNil(t, list[0].Challenge)
	assert.Equal(t, "Build a responsive navbar", list[0].Challenge.Title)

	w = do(t, env.r, http.MethodPatch, "/my-challenges/1", sess.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, "completing twice is not an error")

	w = do(t, env.r, http.MethodDelete, "/my-challenges/1", sess.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
	w = do(t, env.r, http.MethodDelete, "/my-challenges/1", sess.Token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthGate(t *testing.T) {
	env := newEnv(t)

	w := do(t, env.r, http.MethodGet, "/my-challenges", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Access token required", messageOf(t, w))

	w = do(t, env.r, http.MethodGet, "/my-challenges", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	env.r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	sess := signUp(t, env.r, "Ann", "ann@x.com", pw)
	w = do(t, env.r, http.MethodGet, "/users/me", sess.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "pwd", "credential fields must not leak")
	assert.Contains(t, w.Body.String(), `"email":"ann@x.com"`)
}

func TestTrackingScopedToCaller(t *testing.T) {
	env := newEnv(t)
	_, _ = env.catalog.Seed(context.Background())
	ann := signUp(t, env.r, "Ann", "ann@x.com", pw)
	bob := signUp(t, env.r, "Bob", "bob@x.com", pw)

	w := do(t, env.r, http.MethodPost, "/my-challenges", ann.Token, map[string]int{"challengeId": 2})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[model.UserChallenge](t, w).ID
	path := fmt.Sprintf("/my-challenges/%d", id)

	assert.Equal(t, http.StatusNotFound, do(t, env.r, http.MethodPatch, path, bob.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, env.r, http.MethodDelete, path, bob.Token, nil).Code)
	w = do(t, env.r, http.MethodGet, "/my-challenges", bob.Token, nil)
	assert.JSONEq(t, `[]`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, env.r, http.MethodPost, "/my-challenges", ann.Token, map[string]int{"challengeId": 999}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, env.r, http.MethodPatch, "/my-challenges/abc", ann.Token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, env.r, http.MethodPost, "/my-challenges", ann.Token, "{").Code)
}

func TestSignupAndLoginErrors(t *testing.T) {
	env := newEnv(t)
	signUp(t, env.r, "Ann", "ann@x.com", pw)

	w := do(t, env.r, http.MethodPost, "/users/signup", "", map[string]string{"name": "A", "email": "ANN@x.com", "password": pw})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.NotContains(t, messageOf(t, w), "ann@x.com")

	w = do(t, env.r, http.MethodPost, "/users/signup", "", map[string]string{"name": "A", "email": "a@x.com", "password": "short"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	long := pw + strings.Repeat("x", 70)
	w = do(t, env.r, http.MethodPost, "/users/signup", "", map[string]string{"name": "A", "email": "a@x.com", "password": long})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "Password must be at most 72 bytes", messageOf(t, w))

	wrong := do(t, env.r, http.MethodPost, "/users/login", "", map[string]string{"email": "ann@x.com", "password": "Wrong123!"})
	unknown := do(t, env.r, http.MethodPost, "/users/login", "", map[string]string{"email": "who@x.com", "password": pw})
	require.Equal(t, http.StatusUnauthorized, wrong.Code)
	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Equal(t, "Invalid credentials", messageOf(t, wrong))

	w = do(t, env.r, http.MethodPost, "/users/login", "", map[string]string{"email": "ANN@X.COM", "password": pw})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAdminGateOnCatalog(t *testing.T) {
	env := newEnv(t)
	user := signUp(t, env.r, "Ann", "ann@x.com", pw)
	admin := signUp(t, env.r, "Root", adminEmail, pw)
	require.Equal(t, model.RoleAdmin, admin.User.Role)

	body := map[string]string{"title": "Navbar", "description": "Build it"}
	assert.Equal(t, http.StatusUnauthorized, do(t, env.r, http.MethodPost, "/challenges", "", body).Code)
	w := do(t, env.r, http.MethodPost, "/challenges", user.Token, body)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Admin access required", messageOf(t, w))

	w = do(t, env.r, http.MethodPost, "/challenges", admin.Token, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[model.Challenge](t, w)

	path := fmt.Sprintf("/challenges/%d", created.ID)
	assert.Equal(t, http.StatusForbidden, do(t, env.r, http.MethodPut, path, user.Token, body).Code)
	assert.Equal(t, http.StatusForbidden, do(t, env.r, http.MethodDelete, path, user.Token, nil).Code)

	w = do(t, env.r, http.MethodPut, path, admin.Token, map[string]string{"title": "Navbar 2", "description": "Again"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Navbar 2", decode[model.Challenge](t, w).Title)

	assert.Equal(t, http.StatusBadRequest, do(t, env.r, http.MethodPut, path, admin.Token, map[string]string{"title": ""}).Code)
	assert.Equal(t, http.StatusNotFound, do(t, env.r, http.MethodPut, "/challenges/999", admin.Token, body).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, env.r, http.MethodDelete, "/challenges/x", admin.Token, nil).Code)

	assert.Equal(t, http.StatusOK, do(t, env.r, http.MethodDelete, path, admin.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, env.r, http.MethodDelete, path, admin.Token, nil).Code)
}

func TestCatalogReadsAndRandom(t *testing.T) {
	env := newEnv(t)

	w := do(t, env.r, http.MethodGet, "/challenges/random", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, env.r, http.MethodGet, "/challenges", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	_, _ = env.catalog.Seed(context.Background())
	w = do(t, env.r, http.MethodGet, "/challenges", "", nil)
	assert.Len(t, decode[[]model.Challenge](t, w), 5)

	w = do(t, env.r, http.MethodGet, "/challenges/random", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[model.Challenge](t, w).Title)
}

func TestBulkJSONAndCSV(t *testing.T) {
	env := newEnv(t)
	admin := signUp(t, env.r, "Root", adminEmail, pw)

	w := do(t, env.r, http.MethodPost, "/challenges/bulk", admin.Token, map[string]any{
		"challenges": []map[string]string{
			{"title": "A", "description": "a"},
			{"title": "", "description": "dropped"},
			{"title": "B", "description": "b"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[model.BulkResult](t, w)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, res.Challenges, 2)

	assert.Equal(t, http.StatusBadRequest, do(t, env.r, http.MethodPost, "/challenges/bulk", admin.Token, map[string]any{"challenges": []any{}}).Code)

	req := httptest.NewRequest(http.MethodPost, "/challenges/bulk/csv", bytes.NewBufferString("title,description\nC,c\n,x\n"))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Authorization", "Bearer "+admin.Token)
	rec := httptest.NewRecorder()
	env.r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res = decode[model.BulkResult](t, rec)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, 1, res.Skipped)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "challenges.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("Description,Title\nd,D\ne,E\n"))
	require.NoError(t, mw.Close())
	req = httptest.NewRequest(http.MethodPost, "/challenges/bulk/csv", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+admin.Token)
	rec = httptest.NewRecorder()
	env.r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[model.BulkResult](t, rec).Count)

	req = httptest.NewRequest(http.MethodPost, "/challenges/bulk/csv", bytes.NewBufferString("name\nx\n"))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Authorization", "Bearer "+admin.Token)
	rec = httptest.NewRecorder()
	env.r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	w = do(t, env.r, http.MethodGet, "/challenges", "", nil)
	assert.Len(t, decode[[]model.Challenge](t, w), 5)
}

func TestProfileUpdateAndDelete(t *testing.T) {
	env := newEnv(t)
	ann := signUp(t, env.r, "Ann", "ann@x.com", pw)
	bob := signUp(t, env.r, "Bob", "bob@x.com", pw)

	w := do(t, env.r, http.MethodPut, "/users/ann@x.com", ann.Token, map[string]string{"currentPassword": "Wrong123!", "newPassword": "Zyxwvu9#"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, http.StatusOK, do(t, env.r, http.MethodPost, "/users/login", "", map[string]string{"email": "ann@x.com", "password": pw}).Code)

	w = do(t, env.r, http.MethodPut, "/users/ann@x.com", bob.Token, map[string]string{"currentPassword": pw, "name": "Hacked"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, env.r, http.MethodPut, "/users/ann@x.com", ann.Token, map[string]string{"currentPassword": pw, "name": "Annie"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"name":"Annie"`)

	require.Equal(t, http.StatusForbidden, do(t, env.r, http.MethodDelete, "/users/ann@x.com", bob.Token, nil).Code)
	w = do(t, env.r, http.MethodDelete, "/users/ann@x.com", ann.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)

	w = do(t, env.r, http.MethodDelete, "/users/ann@x.com", ann.Token, nil)
	require.Equal(t, http.StatusNotFound, w.Code, "deleting a missing user is a 404, not a 500")
}

func TestForgotAndResetPassword(t *testing.T) {
	env := newEnv(t)
	signUp(t, env.r, "Ann", "ann@x.com", pw)

	known := do(t, env.r, http.MethodPost, "/users/forgot-password", "", map[string]string{"email": "ann@x.com"})
	unknown := do(t, env.r, http.MethodPost, "/users/forgot-password", "", map[string]string{"email": "nobody@x.com"})
	require.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	require.Len(t, env.mail.links, 1)

	u, err := url.Parse(env.mail.links[0])
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)

	w := do(t, env.r, http.MethodPost, "/users/reset-password", "", map[string]string{"token": token, "newPassword": "Zyxwvu9#"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, env.r, http.MethodPost, "/users/reset-password", "", map[string]string{"token": token, "newPassword": "Again123!"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	require.Equal(t, http.StatusOK, do(t, env.r, http.MethodPost, "/users/login", "", map[string]string{"email": "ann@x.com", "password": "Zyxwvu9#"}).Code)
	require.Equal(t, http.StatusUnauthorized, do(t, env.r, http.MethodPost, "/users/login", "", map[string]string{"email": "ann@x.com", "password": pw}).Code)
}

func TestHealth(t *testing.T) {
	env := newEnv(t)
	w := do(t, env.r, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	r, err := NewRouter(Deps{Log: zaptest.NewLogger(t), Ping: func(context.Context) error { return errors.New("db down") }})
	require.NoError(t, err)
	w = do(t, r, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORS(t *testing.T) {
	env := newEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/challenges", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/challenges", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	env.r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	_, err := NewRouter(Deps{CORSOrigins: []string{"localhost:5173"}})
	require.Error(t, err)
}

func TestRecoverAndErrorMapping(t *testing.T) {
	log := zaptest.NewLogger(t)
	r := gin.New()
	r.Use(Recover(log))
	r.GET("/boom", func(*gin.Context) { panic("oh no") })
	r.GET("/fail", func(c *gin.Context) { writeError(c, log, errors.New("pq: connection refused")) })

	w := do(t, r, http.MethodGet, "/boom", "", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"message":"internal"}`, w.Body.String())

	w = do(t, r, http.MethodGet, "/fail", "", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")

	cases := []struct {
		err  error
		want int
	}{
		{errs.ErrValidation, http.StatusBadRequest},
		{errs.ErrUnauthorized, http.StatusUnauthorized},
		{errs.ErrForbidden, http.StatusForbidden},
		{errs.ErrNotFound, http.StatusNotFound},
		{errs.ErrAlreadyExists, http.StatusConflict},
		{errs.ErrRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("wrap: %w", errs.ErrNotFound), http.StatusNotFound},
		{errs.New(errs.ErrValidation, "Bad title"), http.StatusBadRequest},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusOf(tc.err), tc.err.Error())
	}
}
