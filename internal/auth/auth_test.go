package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"modelhub_go_backend/internal/models"
	"modelhub_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) Register(ctx context.Context, in services.RegisterInput) (*models.User, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserStore) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	args := m.Called(ctx, login, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

const secret = "0123456789abcdef0123456789abcdef"

func testUser() *models.User {
	u := &models.User{Username: "alice", Email: "alice@example.com", IsActive: true}
	u.ID = uuid.New()
	return u
}

func newRouter(a *Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	SetupRoutes(r.Group("/api"), a)
	r.GET("/private", a.AuthMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).Username)
	})
	r.GET("/maybe", a.OptionalAuthMiddleware(), func(c *gin.Context) {
		if u := CurrentUser(c); u != nil {
			c.String(http.StatusOK, u.Username)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	return r
}

func do(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTokenRoundTrip(t *testing.T) {
	a := NewAuthenticator(secret, time.Hour, nil)
	user := testUser()

	token, exp, err := a.IssueToken(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	id, err := a.verifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	_, err = NewAuthenticator("another-secret-another-secret-xx", time.Hour, nil).verifyToken(token)
	assert.Error(t, err)

	expired := NewAuthenticator(secret, time.Hour, nil)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.IssueToken(user)
	require.NoError(t, err)
	_, err = a.verifyToken(old)
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	users := new(MockUserStore)
	a := NewAuthenticator(secret, time.Hour, users)
	r := newRouter(a)
	user := testUser()
	token, _, err := a.IssueToken(user)
	require.NoError(t, err)

	users.On("GetUserByID", mock.Anything, user.ID).Return(user, nil)

	w := do(r, http.MethodGet, "/private", token, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())

	w = do(r, http.MethodGet, "/private", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/private", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Token "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/maybe", "", "")
	assert.Equal(t, "anonymous", w.Body.String())

	w = do(r, http.MethodGet, "/maybe", token, "")
	assert.Equal(t, "alice", w.Body.String())

	w = do(r, http.MethodGet, "/maybe", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "a bad token is not silently anonymous")

	users.AssertExpectations(t)
}

func TestAuthMiddleware_InactiveUser(t *testing.T) {
	users := new(MockUserStore)
	a := NewAuthenticator(secret, time.Hour, users)
	user := testUser()
	token, _, err := a.IssueToken(user)
	require.NoError(t, err)

	users.On("GetUserByID", mock.Anything, user.ID).Return(nil, gorm.ErrRecordNotFound).Once()

	w := do(newRouter(a), http.MethodGet, "/private", token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	users.AssertExpectations(t)
}

func TestLoginAndRegister(t *testing.T) {
	users := new(MockUserStore)
	a := NewAuthenticator(secret, time.Hour, users)
	r := newRouter(a)
	user := testUser()

	users.On("Authenticate", mock.Anything, "alice", "correct horse").Return(user, nil).Once()
	users.On("Authenticate", mock.Anything, "alice", "nope").Return(nil, services.ErrInvalidCredentials).Once()
	users.On("Register", mock.Anything, mock.MatchedBy(func(in services.RegisterInput) bool {
		return in.Username == "alice"
	})).Return(user, nil).Once()
	users.On("Register", mock.Anything, mock.MatchedBy(func(in services.RegisterInput) bool {
		return in.Username == "taken"
	})).Return(nil, services.ErrUserExists).Once()

	w := do(r, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Message string `json:"message"`
		Token   string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Login successful", body.Message)
	id, err := a.verifyToken(body.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	w = do(r, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid credentials")

	w = do(r, http.MethodPost, "/api/auth/login", "", `{"username":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/auth/register", "", `{"username":"alice","email":"alice@example.com","password":"correct horse"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "Registration successful")

	w = do(r, http.MethodPost, "/api/auth/register", "", `{"username":"taken","email":"t@example.com","password":"correct horse"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/auth/register", "", `{"username":"bob","email":"not-an-email","password":"correct horse"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	users.AssertExpectations(t)
}
