package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RegisterEcho mounts the same operator endpoints on an echo instance,
// for embedders whose application already runs echo.
func (r *Router) RegisterEcho(e *echo.Echo) {
	group := e.Group(r.basePath)
	group.POST("/start", func(c echo.Context) error {
		r.sup.Start()
		return c.JSON(http.StatusAccepted, okResp{OK: true})
	})
	group.POST("/stop", func(c echo.Context) error {
		r.sup.Stop()
		return c.JSON(http.StatusAccepted, okResp{OK: true})
	})
	group.POST("/restart", func(c echo.Context) error {
		r.sup.Restart()
		return c.JSON(http.StatusAccepted, okResp{OK: true})
	})
	group.POST("/refresh", func(c echo.Context) error {
		r.sup.Refresh()
		return c.JSON(http.StatusAccepted, okResp{OK: true})
	})
	group.POST("/resolve-port", func(c echo.Context) error {
		r.sup.ResolvePortConflict()
		return c.JSON(http.StatusAccepted, okResp{OK: true})
	})
	group.GET("/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, r.statusResp())
	})
	group.GET("/events", func(c echo.Context) error {
		return c.JSON(http.StatusOK, r.loop.Events())
	})
}
