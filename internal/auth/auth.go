package auth

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"modelhub_go_backend/internal/errors"
	"modelhub_go_backend/internal/models"
	"modelhub_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// UserStore is the subset of the user service the auth layer needs.
type UserStore interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Authenticate(ctx context.Context, login, password string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Authenticator issues and verifies HS256 session tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	users  UserStore
	now    func() time.Time
}

func NewAuthenticator(secret string, ttl time.Duration, users UserStore) *Authenticator {
	return &Authenticator{secret: []byte(secret), ttl: ttl, users: users, now: time.Now}
}

func (a *Authenticator) IssueToken(user *models.User) (string, time.Time, error) {
	exp := a.now().Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      user.ID.String(),
		"username": user.Username,
		"iat":      a.now().Unix(),
		"exp":      exp.Unix(),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}

func (a *Authenticator) verifyToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, stdErrors.New("invalid token")
	}
	sub, _ := claims["sub"].(string)
	return uuid.Parse(sub)
}

// extractToken reads the bearer header, or the token query parameter on
// websocket upgrades where browsers cannot set headers.
func extractToken(c *gin.Context) (string, error) {
	if websocket.IsWebSocketUpgrade(c.Request) {
		if t := c.Query("token"); t != "" {
			return t, nil
		}
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", nil
	}
	bearerToken := strings.Split(authHeader, " ")
	if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "Bearer") {
		return "", stdErrors.New("Invalid authorization header")
	}
	return bearerToken[1], nil
}

func (a *Authenticator) resolve(c *gin.Context, token string) (*models.User, error) {
	userID, err := a.verifyToken(token)
	if err != nil {
		return nil, err
	}
	user, err := a.users.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		return nil, stdErrors.New("user not found or inactive")
	}
	return user, nil
}

func (a *Authenticator) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractToken(c)
		if err != nil {
			errors.HandleError(c, errors.New401Error(err.Error()))
			return
		}
		if token == "" {
			errors.HandleError(c, errors.New401Error("Authorization header is required"))
			return
		}
		user, err := a.resolve(c, token)
		if err != nil {
			errors.HandleError(c, errors.New401Error(err.Error()))
			return
		}
		setUser(c, user)
		c.Next()
	}
}

// OptionalAuthMiddleware lets anonymous requests through. A token that is
// present but invalid is still rejected.
func (a *Authenticator) OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractToken(c)
		if err != nil {
			errors.HandleError(c, errors.New401Error(err.Error()))
			return
		}
		if token != "" {
			user, err := a.resolve(c, token)
			if err != nil {
				errors.HandleError(c, errors.New401Error(err.Error()))
				return
			}
			setUser(c, user)
		}
		c.Next()
	}
}

func setUser(c *gin.Context, user *models.User) {
	c.Set("user", user)
	l := zerolog.Ctx(c.Request.Context()).With().Str("user_id", user.ID.String()).Logger()
	c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
}

// CurrentUser returns the authenticated user, or nil for anonymous requests.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get("user")
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

func SetupRoutes(r gin.IRouter, a *Authenticator) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", a.register)
		auth.POST("/login", a.login)
		auth.POST("/logout", a.AuthMiddleware(), logout)
		auth.GET("/user", a.AuthMiddleware(), getUser)
	}
}

type registerRequest struct {
	Username  string `json:"username" binding:"required,max=150"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (a *Authenticator) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.HandleError(c, errors.NewBindingError(err))
		return
	}
	user, err := a.users.Register(c.Request.Context(), services.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		var verr *services.ValidationError
		switch {
		case stdErrors.Is(err, services.ErrUserExists):
			errors.HandleError(c, errors.New400Error(err.Error()))
		case stdErrors.As(err, &verr):
			errors.HandleError(c, errors.New400Error(verr.Message))
		default:
			errors.HandleError(c, errors.New500Error(err))
		}
		return
	}
	a.respondWithToken(c, http.StatusCreated, "Registration successful", user)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *Authenticator) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.HandleError(c, errors.NewBindingError(err))
		return
	}
	user, err := a.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if stdErrors.Is(err, services.ErrInvalidCredentials) {
		errors.HandleError(c, errors.New401Error("Invalid credentials"))
		return
	}
	if err != nil {
		errors.HandleError(c, errors.New500Error(err))
		return
	}
	a.respondWithToken(c, http.StatusOK, "Login successful", user)
}

func (a *Authenticator) respondWithToken(c *gin.Context, status int, message string, user *models.User) {
	token, exp, err := a.IssueToken(user)
	if err != nil {
		errors.HandleError(c, errors.New500Error(err))
		return
	}
	c.JSON(status, gin.H{
		"message":    message,
		"user":       user,
		"token":      token,
		"expires_at": exp,
	})
}

// Tokens are stateless; the client discards its copy.
func logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}

func getUser(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		errors.HandleError(c, errors.New401Error("User not found in context"))
		return
	}
	c.JSON(http.StatusOK, user)
}
