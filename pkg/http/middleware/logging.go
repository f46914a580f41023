package middleware

import (
	applogger "IPHForecast/pkg/logger"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
)

// RequestLogging logs each request at debug level and server errors at error level.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.NewNop()
	}
	return emw.RequestLoggerWithConfig(emw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v emw.RequestLoggerValues) error {
			fields := []applogger.Field{
				applogger.String("method", v.Method),
				applogger.String("uri", v.URI),
				applogger.String("remote", v.RemoteIP),
				applogger.String("request_id", v.RequestID),
				applogger.Int("status", v.Status),
				applogger.Duration("duration_ms", v.Latency),
			}
			if v.Status >= 500 {
				if v.Error != nil {
					fields = append(fields, applogger.Error(v.Error))
				}
				l.Error("http request", fields...)
				return nil
			}
			l.Debug("http request", fields...)
			return nil
		},
	})
}
