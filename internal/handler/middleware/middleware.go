package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Tonic56/stock-trading-simulator/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	authorizationHeader = "Authorization"

	UserIDKey   = "userID"
	UserNameKey = "userName"
	ClaimsKey   = "claims"
)

// AuthMiddleware accepts a bearer token in the Authorization header, or in
// the token query parameter for websocket upgrades, which cannot set headers
// from a browser.
func AuthMiddleware(tokens service.TokenService, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c, log)
		if !ok {
			return
		}

		claims, err := tokens.Parse(c.Request.Context(), tokenString)
		if err != nil {
			log.Warn("auth middleware: failed to parse token", slog.Any("error", err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token",
			})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UserNameKey, claims.UserName)
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

func bearerToken(c *gin.Context, log *slog.Logger) (string, bool) {
	header := c.GetHeader(authorizationHeader)
	if header == "" {
		if websocket.IsWebSocketUpgrade(c.Request) {
			if token := c.Query("token"); token != "" {
				return token, true
			}
		}
		log.Warn("auth middleware: auth header is empty")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "auth header is empty",
		})
		return "", false
	}

	headerParts := strings.Split(header, " ")
	if len(headerParts) != 2 || headerParts[0] != "Bearer" {
		log.Warn("auth middleware: invalid auth header format")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid auth header format",
		})
		return "", false
	}

	if len(headerParts[1]) == 0 {
		log.Warn("auth middleware: token is empty")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "token is empty",
		})
		return "", false
	}

	return headerParts[1], true
}

// NoCache disables client and proxy caching of API responses.
func NoCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Expires", "0")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}
