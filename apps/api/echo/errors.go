package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/faridzul/jadual/core"
)

var errHttpNotFound = echo.NewHTTPError(http.StatusNotFound, "not found")

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
func newAppHTTPErrorHandler(logger core.Logger) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case *core.IntegrityViolation:
			// synchronized data is inconsistent; nothing the caller can fix
			code = http.StatusInternalServerError
			message = http.StatusText(code)
			logger.Error(origErr.Error(), origErr)
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(code)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg))
		}

		if !ctx.Response().Committed {
			_ = ctx.JSON(code, echo.Map{"error": message})
		}
	}
}
