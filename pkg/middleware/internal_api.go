package middleware

import (
	"crypto/subtle"
	"net"

	"github.com/gin-gonic/gin"

	"github.com/director74/macro_saga/pkg/config"
	apperrors "github.com/director74/macro_saga/pkg/errors"
)

// InternalAPIConfig конфигурация для внутреннего API
type InternalAPIConfig struct {
	// TrustedNetworks доверенные CIDR диапазоны
	TrustedNetworks []string
	// APIKey ключ, который должны передавать сервисы
	APIKey string
	// HeaderName имя заголовка для передачи ключа API
	HeaderName string
}

// NewInternalAPIConfig конфигурация из окружения: INTERNAL_API_KEY и INTERNAL_TRUSTED_NETWORKS
func NewInternalAPIConfig() *InternalAPIConfig {
	return &InternalAPIConfig{
		TrustedNetworks: config.GetEnvAsSlice("INTERNAL_TRUSTED_NETWORKS", []string{
			"10.0.0.0/8",     // Kubernetes
			"172.16.0.0/12",  // Docker
			"192.168.0.0/16",
			"127.0.0.0/8",
		}),
		APIKey:     config.GetEnv("INTERNAL_API_KEY", "internal-api-key-for-development"),
		HeaderName: "X-Internal-API-Key",
	}
}

// InternalAuthMiddleware пропускает запросы с ключом API или из доверенной сети
type InternalAuthMiddleware struct {
	config   *InternalAPIConfig
	networks []*net.IPNet
}

func NewInternalAuthMiddleware(cfg *InternalAPIConfig) *InternalAuthMiddleware {
	if cfg == nil {
		cfg = NewInternalAPIConfig()
	}

	networks := make([]*net.IPNet, 0, len(cfg.TrustedNetworks))
	for _, cidr := range cfg.TrustedNetworks {
		if _, ipNet, err := net.ParseCIDR(cidr); err == nil {
			networks = append(networks, ipNet)
		}
	}

	return &InternalAuthMiddleware{
		config:   cfg,
		networks: networks,
	}
}

func (m *InternalAuthMiddleware) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		headerKey := c.GetHeader(m.config.HeaderName)
		if headerKey != "" && subtle.ConstantTimeCompare([]byte(headerKey), []byte(m.config.APIKey)) == 1 {
			c.Next()
			return
		}

		if m.isTrusted(c.ClientIP()) {
			c.Next()
			return
		}

		apperrors.HandleGinError(c, apperrors.NewForbiddenError("этот API доступен только для внутренних сервисов"))
	}
}

func (m *InternalAuthMiddleware) isTrusted(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range m.networks {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}
