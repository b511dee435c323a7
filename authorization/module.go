// Package authorization issues and checks JWTs for the services that call
// the profile API: the chat-command layer and the web viewer.
package authorization

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Espresso-Aficionados/sprobot/apperr"
	"github.com/Espresso-Aficionados/sprobot/config"
)

const (
	identityKey    = "client_id"
	defaultTimeout = time.Hour
	maxRefresh     = 24 * time.Hour
)

// Roles carried in issued tokens.
const (
	RoleService = "service"
	RoleAdmin   = "admin"
)

// Client is the identity stored inside JWT claims.
type Client struct {
	ID    string
	Roles []string
}

// HasRole reports whether the client carries role.
func (c *Client) HasRole(role string) bool {
	for _, has := range c.Roles {
		if strings.EqualFold(has, role) {
			return true
		}
	}
	return false
}

// ClientStore checks client secrets against their configured bcrypt hashes.
type ClientStore struct {
	hashes map[string][]byte
	admins map[string]struct{}
}

// NewClientStore builds a store from the configured client list. Every
// client gets the service role; listed admins also get the admin role.
func NewClientStore(cfg config.AuthConfig) *ClientStore {
	store := &ClientStore{
		hashes: make(map[string][]byte, len(cfg.Clients)),
		admins: make(map[string]struct{}, len(cfg.Admins)),
	}
	for id, hash := range cfg.Clients {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		store.hashes[id] = []byte(strings.TrimSpace(hash))
	}
	for _, id := range cfg.Admins {
		if id = strings.TrimSpace(id); id != "" {
			store.admins[id] = struct{}{}
		}
	}
	return store
}

// Authenticate returns the client when secret matches its hash.
func (s *ClientStore) Authenticate(clientID, secret string) (*Client, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" || secret == "" {
		return nil, jwt.ErrMissingLoginValues
	}
	hash, ok := s.hashes[clientID]
	if !ok {
		return nil, jwt.ErrFailedAuthentication
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		return nil, jwt.ErrFailedAuthentication
	}
	return &Client{ID: clientID, Roles: s.roles(clientID)}, nil
}

// Lookup returns the configured client with its current roles.
func (s *ClientStore) Lookup(clientID string) (*Client, bool) {
	if _, ok := s.hashes[clientID]; !ok {
		return nil, false
	}
	return &Client{ID: clientID, Roles: s.roles(clientID)}, true
}

func (s *ClientStore) roles(clientID string) []string {
	roles := []string{RoleService}
	if _, ok := s.admins[clientID]; ok {
		roles = append(roles, RoleAdmin)
	}
	sort.Strings(roles)
	return roles
}

// Len is the number of configured clients.
func (s *ClientStore) Len() int {
	return len(s.hashes)
}

// HashSecret returns the bcrypt hash to put in SPROBOT_API_CLIENTS.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", apperr.InvalidArgument("secret must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// LoginRequest is the token endpoint payload.
type LoginRequest struct {
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
}

// Module owns the JWT middleware behind the token endpoints.
type Module struct {
	jwtMiddleware *jwt.GinJWTMiddleware
}

// RegisterRoutes bootstraps the token endpoints under /auth.
func RegisterRoutes(router *gin.Engine, cfg config.AuthConfig, log *zap.Logger) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	clients := NewClientStore(cfg)
	if clients.Len() == 0 {
		log.Warn("No API clients configured; every API call will be rejected")
	}

	middleware, err := buildJWTMiddleware(cfg, clients, log)
	if err != nil {
		return nil, err
	}

	authGroup := router.Group("/auth")
	authGroup.POST("/token", middleware.LoginHandler)
	authGroup.POST("/refresh", middleware.RefreshHandler)
	authGroup.GET("/me", middleware.MiddlewareFunc(), func(c *gin.Context) {
		client, ok := CurrentClient(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"client_id": client.ID, "roles": client.Roles})
	})

	return &Module{jwtMiddleware: middleware}, nil
}

func buildJWTMiddleware(cfg config.AuthConfig, clients *ClientStore, log *zap.Logger) (*jwt.GinJWTMiddleware, error) {
	secret := strings.TrimSpace(cfg.JWTSecret)
	if secret == "" {
		return nil, apperr.Configuration("JWT_SECRET is required", nil)
	}
	timeout := cfg.TokenTTL
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return jwt.New(&jwt.GinJWTMiddleware{
		Realm:       "sprobot",
		Key:         []byte(secret),
		Timeout:     timeout,
		MaxRefresh:  maxRefresh,
		IdentityKey: identityKey,
		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if client, ok := data.(*Client); ok {
				return jwt.MapClaims{
					identityKey: client.ID,
					"roles":     client.Roles,
				}
			}
			return jwt.MapClaims{}
		},
		IdentityHandler: func(c *gin.Context) interface{} {
			claims := jwt.ExtractClaims(c)
			id, _ := claims[identityKey].(string)
			return &Client{ID: id, Roles: extractRoles(claims)}
		},
		Authenticator: func(c *gin.Context) (interface{}, error) {
			var req LoginRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				return nil, jwt.ErrMissingLoginValues
			}
			client, err := clients.Authenticate(req.ClientID, req.ClientSecret)
			if err != nil {
				if errors.Is(err, jwt.ErrFailedAuthentication) {
					log.Warn("Rejected API client login", zap.String("client_id", req.ClientID))
				}
				return nil, err
			}
			return client, nil
		},
		// Tokens outlive config changes, so the client and its roles are
		// looked up again on every request.
		Authorizator: func(data interface{}, c *gin.Context) bool {
			client, ok := data.(*Client)
			if !ok || client.ID == "" {
				return false
			}
			current, ok := clients.Lookup(client.ID)
			if !ok {
				return false
			}
			client.Roles = current.Roles
			return client.HasRole(RoleService)
		},
		Unauthorized: func(c *gin.Context, code int, message string) {
			c.JSON(code, gin.H{"error": message})
		},
		LoginResponse: func(c *gin.Context, code int, token string, expire time.Time) {
			c.JSON(code, gin.H{"token": token, "expire": expire})
		},
		RefreshResponse: func(c *gin.Context, code int, token string, expire time.Time) {
			c.JSON(code, gin.H{"token": token, "expire": expire})
		},
		TokenLookup:   "header: Authorization",
		TokenHeadName: "Bearer",
		TimeFunc:      time.Now,
	})
}

// CurrentClient returns the authenticated client of the request.
func CurrentClient(c *gin.Context) (*Client, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	client, ok := value.(*Client)
	return client, ok && client != nil
}

func extractRoles(claims jwt.MapClaims) []string {
	if claims == nil {
		return []string{}
	}

	var roles []string
	switch raw := claims["roles"].(type) {
	case []string:
		roles = append(roles, raw...)
	case []interface{}:
		for _, role := range raw {
			if name, ok := role.(string); ok {
				roles = append(roles, name)
			}
		}
	}
	sort.Strings(roles)
	return roles
}
