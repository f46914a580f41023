package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
)

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	// ExposeHeaders lets browsers read Content-Disposition on CSV downloads.
	ExposeHeaders []string
	MaxAge        time.Duration
}

// CORS adapts CORSConfig onto Echo's CORS middleware. Empty AllowOrigins means "*".
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return emw.CORSWithConfig(emw.CORSConfig{
		AllowOrigins:  origins,
		AllowMethods:  cfg.AllowMethods,
		AllowHeaders:  cfg.AllowHeaders,
		ExposeHeaders: cfg.ExposeHeaders,
		MaxAge:        int(cfg.MaxAge.Seconds()),
	})
}
