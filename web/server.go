// Package web serves the portal pages: the route gate, the local login and
// register form, the OpenID start and callback routes and logout. It is the
// browser facing adapter of the authclient session.
package web

import (
	"context"
	"embed"
	"io/fs"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-router"
)

//go:embed views/*.html
var viewsFS embed.FS

// Server is the fiber backed portal web server.
type Server struct {
	srv router.Server[*fiber.App]
	app *fiber.App
}

// NewServer builds the server and mounts the controller routes.
func NewServer(c *Controller) (*Server, error) {
	views, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return nil, err
	}

	engine := django.NewFileSystem(http.FS(views), ".html")
	engine.Debug(c.Debug)

	s := &Server{}
	s.srv = router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		s.app = fiber.New(fiber.Config{
			AppName:               "portal",
			DisableStartupMessage: true,
			UnescapePath:          true,
			StrictRouting:         false,
			Views:                 engine,
		})
		return s.app
	})

	r := s.srv.Router()
	r.Use(WithManager(c.Manager))
	RegisterRoutes(r, c)

	return s, nil
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve blocks serving on address.
func (s *Server) Serve(address string) error {
	return s.srv.Serve(address)
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
