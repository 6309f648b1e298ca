package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/director74/macro_saga/pkg/errors"
)

const claimsKey = "token_claims"

// AuthMiddleware middleware для проверки JWT токена
type AuthMiddleware struct {
	jwtManager *JWTManager
}

// NewAuthMiddleware создает новый middleware для проверки авторизации
func NewAuthMiddleware(jwtManager *JWTManager) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
	}
}

// AuthRequired middleware требует авторизации для доступа к endpoint
func (m *AuthMiddleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			apperrors.HandleGinError(c, apperrors.NewUnauthorizedError("отсутствует токен авторизации"))
			return
		}

		// Проверяем формат токена "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			apperrors.HandleGinError(c, apperrors.NewUnauthorizedError("неверный формат токена авторизации"))
			return
		}

		claims, err := m.jwtManager.ParseToken(parts[1])
		if err != nil {
			apperrors.HandleGinError(c, apperrors.NewUnauthorizedError("недействительный токен: "+err.Error()))
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireScope пропускает запрос, только если в токене есть область scope.
// Должен стоять после AuthRequired.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			apperrors.HandleGinError(c, apperrors.NewUnauthorizedError(""))
			return
		}
		if !claims.HasScope(scope) {
			apperrors.HandleGinError(c, apperrors.NewForbiddenError("нет области доступа "+scope))
			return
		}
		c.Next()
	}
}

func GetClaims(c *gin.Context) *TokenClaims {
	value, exists := c.Get(claimsKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*TokenClaims)
	return claims
}

// GetUsername имя пользователя из токена, используется как createUser/updateUser
func GetUsername(c *gin.Context) string {
	if claims := GetClaims(c); claims != nil {
		return claims.Username
	}
	return ""
}
