package config

import "strings"

type Cors struct{}

var _ CorsConfig = Cors{}

type AllowedOrigins []string

// IsAllowedOrigin matches exact origins plus a trailing-* prefix form, so
// "http://localhost:*" admits any localhost port the management UI dev
// server happens to pick.
func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	for _, allowed := range a {
		if allowed == origin {
			return true
		}
		if strings.HasSuffix(allowed, "*") && strings.HasPrefix(origin, strings.TrimSuffix(allowed, "*")) {
			return true
		}
	}
	return false
}

func (a AllowedOrigins) String() string {
	return strings.Join(a, ", ")
}

var allowedOrigins = AllowedOrigins{
	"http://localhost:*",
	"https://omnikey.app",
}

func (Cors) GetAllowedOrigins() AllowedOrigins {
	return allowedOrigins
}

func (Cors) GetAllowedMethods() string {
	return "GET, POST, PUT, PATCH, DELETE"
}

func (Cors) GetAllowedHeaders() string {
	return "Content-Type, Authorization"
}
