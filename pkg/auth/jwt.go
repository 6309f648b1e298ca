package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/director74/macro_saga/pkg/config"
)

// Области доступа API
const (
	ScopeReadMacro  = "READ_MACRO"
	ScopeWriteMacro = "WRITE_MACRO"
	ScopeReadSaga   = "READ_SAGA"
	ScopeWriteSaga  = "WRITE_SAGA"
)

// TokenClaims пользователь, области доступа и стандартные JWT claims
type TokenClaims struct {
	Username string   `json:"preferred_username"`
	Scopes   []string `json:"scopes"`
	jwt.RegisteredClaims
}

// HasScope проверяет наличие области доступа
func (c *TokenClaims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// Config содержит настройки для JWT токенов
type Config struct {
	SigningKey     string
	TokenTTL       time.Duration
	SigningMethod  jwt.SigningMethod
	TokenIssuer    string
	TokenAudiences []string
}

func NewConfig(cfg *config.JWTConfig) *Config {
	return &Config{
		SigningKey:     cfg.SigningKey,
		TokenTTL:       cfg.TokenTTL,
		SigningMethod:  jwt.SigningMethodHS256,
		TokenIssuer:    cfg.TokenIssuer,
		TokenAudiences: cfg.TokenAudiences,
	}
}

// JWTManager управляет JWT токенами
type JWTManager struct {
	config *Config
}

func NewJWTManager(config *Config) *JWTManager {
	return &JWTManager{
		config: config,
	}
}

// GenerateToken выпускает токен с областями доступа. Используется для служебных
// клиентов и тестов, пользователи получают токены у внешнего провайдера.
func (m *JWTManager) GenerateToken(username string, scopes ...string) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		Username: username,
		Scopes:   scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.config.TokenIssuer,
			Audience:  m.config.TokenAudiences,
		},
	}

	token := jwt.NewWithClaims(m.config.SigningMethod, claims)
	return token.SignedString([]byte(m.config.SigningKey))
}

// ParseToken проверяет подпись, срок действия и издателя токена
func (m *JWTManager) ParseToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи: %v", token.Header["alg"])
		}
		return []byte(m.config.SigningKey), nil
	}, jwt.WithIssuer(m.config.TokenIssuer))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("недействительный токен")
}
