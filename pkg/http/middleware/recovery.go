package middleware

import (
	applogger "IPHForecast/pkg/logger"

	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
)

// Recover turns handler panics into errors for the server's error handler and logs the stack once.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.NewNop()
	}
	return emw.RecoverWithConfig(emw.RecoverConfig{
		StackSize:         8 << 10,
		DisablePrintStack: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			l.Error("http handler panic",
				applogger.String("route", c.Path()),
				applogger.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				applogger.Error(err),
				applogger.String("stack", string(stack)),
			)
			return err
		},
	})
}
