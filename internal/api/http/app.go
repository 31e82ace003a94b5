package httpapi

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/karwanua/internal/environment"
	"github.com/i474232898/karwanua/internal/store"
)

const serviceName = "karwanua"

// NewApp builds the Fiber app with middleware, health, metrics and API routes.
// accessLog toggles the request logger middleware.
func NewApp(service *environment.Service, log *slog.Logger, accessLog bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// AI calls can take a while.
		WriteTimeout: 60 * time.Second,
		ErrorHandler: ErrorHandler(log),
	})

	// Global middleware
	app.Use(requestID)
	if accessLog {
		app.Use(logger.New())
	}
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	RegisterRoutes(app, service)
	return app
}

func requestID(c *fiber.Ctx) error {
	id := c.Get(fiber.HeaderXRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(fiber.HeaderXRequestID, id)
	c.Locals("requestID", id)
	return c.Next()
}

// ErrorHandler maps domain errors onto status codes and a {"error": msg} body.
func ErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		body := fiber.Map{"error": err.Error()}

		var (
			fiberErr      *fiber.Error
			validationErr *environment.ValidationError
			parseErr      *environment.ParseError
		)
		switch {
		case errors.As(err, &fiberErr):
			code = fiberErr.Code
		case errors.As(err, &validationErr):
			code = fiber.StatusBadRequest
		case errors.Is(err, store.ErrNotFound):
			code = fiber.StatusNotFound
		case errors.Is(err, environment.ErrLLMNotConfigured):
			body["error"] = environment.ErrLLMNotConfigured.Error()
		case errors.As(err, &parseErr):
			body["error"] = "failed to parse upstream response"
			if parseErr.Raw != "" {
				body["raw"] = parseErr.Raw
			}
		}

		if code >= fiber.StatusInternalServerError {
			log.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"request_id", c.Locals("requestID"),
				"error", err,
			)
		}
		return c.Status(code).JSON(body)
	}
}
