package common

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequireUUIDParam extracts a UUID route parameter or returns a 400 error.
func RequireUUIDParam(c echo.Context, param string) (string, error) {
	raw := c.Param(param)
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
	}
	return u.String(), nil
}

// RequireIntParam extracts a positive integer route parameter or returns
// a 400 error.
func RequireIntParam(c echo.Context, param string) (int, error) {
	n, err := strconv.Atoi(c.Param(param))
	if err != nil || n < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
	}
	return n, nil
}
