package handler

import (
	_ "embed"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed static/index.html
var indexHTML []byte

// Index serves the test player page.
func Index(c echo.Context) error {
	return c.HTMLBlob(http.StatusOK, indexHTML)
}
