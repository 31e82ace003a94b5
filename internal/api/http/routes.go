package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb/maptile"

	"github.com/i474232898/karwanua/internal/environment"
	"github.com/i474232898/karwanua/internal/gibs"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *environment.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/air-quality", func(c *fiber.Ctx) error {
		q, err := parseCoordinateQuery(c, "latitude", "longitude")
		if err != nil {
			return err
		}

		report, err := service.AirQuality(c.UserContext(), q.location(), q.Date)
		if err != nil {
			return err
		}
		return c.JSON(report)
	})

	v1.Get("/ndvi", func(c *fiber.Ctx) error {
		q, err := parseCoordinateQuery(c, "latitude", "longitude")
		if err != nil {
			return err
		}

		report, err := service.NDVI(c.UserContext(), q.location(), q.Date)
		if err != nil {
			return err
		}
		return c.JSON(report)
	})

	v1.Get("/temperature", func(c *fiber.Ctx) error {
		series, err := service.TemperatureAnomaly(c.UserContext(), c.Query("region"))
		if err != nil {
			return err
		}
		return c.JSON(series)
	})

	v1.Get("/geocode", func(c *fiber.Ctx) error {
		q, err := parseCoordinateQuery(c, "lat", "lon")
		if err != nil {
			return err
		}

		place, err := service.ReverseGeocode(c.UserContext(), q.Latitude, q.Longitude)
		if err != nil {
			return err
		}
		return c.JSON(environment.GeocodeResponse{Success: true, Data: place})
	})

	v1.Post("/ai-insights", func(c *fiber.Ctx) error {
		var req environment.InsightRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		resp, err := service.Insights(c.UserContext(), req)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	})

	v1.Post("/ai-recommendations", func(c *fiber.Ctx) error {
		var req environment.RecommendationRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		resp, err := service.Recommendations(c.UserContext(), req)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	})

	v1.Get("/tiles/:layer/locate", func(c *fiber.Ctx) error {
		layer, err := gibs.ParseLayer(c.Params("layer"))
		if err != nil {
			return err
		}
		q, err := parseCoordinateQuery(c, "lat", "lon")
		if err != nil {
			return err
		}
		zoom, err := parseUint(c.Query("zoom", "3"), "zoom")
		if err != nil {
			return err
		}

		tile, u, err := gibs.Locate(layer, c.Query("date"), q.Latitude, q.Longitude, maptile.Zoom(zoom))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"layer": layer,
			"z":     tile.Z,
			"x":     tile.X,
			"y":     tile.Y,
			"url":   u,
		})
	})

	v1.Get("/tiles/:layer/:z/:x/:y", func(c *fiber.Ctx) error {
		layer, err := gibs.ParseLayer(c.Params("layer"))
		if err != nil {
			return err
		}
		z, err := parseUint(c.Params("z"), "zoom")
		if err != nil {
			return err
		}
		x, err := parseUint(c.Params("x"), "x")
		if err != nil {
			return err
		}
		y, err := parseUint(c.Params("y"), "y")
		if err != nil {
			return err
		}

		u, err := gibs.TileURL(layer, c.Query("date"), maptile.New(x, y, maptile.Zoom(z)))
		if err != nil {
			return err
		}
		return c.Redirect(u, fiber.StatusFound)
	})

	v1.Get("/snapshots/latest", func(c *fiber.Ctx) error {
		q, err := parseCoordinateQuery(c, "latitude", "longitude")
		if err != nil {
			return err
		}

		snapshot, err := service.GetLatest(q.location())
		if err != nil {
			return err
		}
		return c.JSON(snapshot)
	})

	v1.Get("/snapshots/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return err
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc := req.Location.location()
		snapshots, err := service.GetRange(loc, req.From, req.To)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"location":  loc,
			"from":      req.From,
			"to":        req.To,
			"snapshots": snapshots,
		})
	})
}

// coordinateQuery holds query parameters identifying a point and optional date.
type coordinateQuery struct {
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`
	Name      string
	Date      string `validate:"omitempty,datetime=2006-01-02"`
}

func (q coordinateQuery) location() environment.Location {
	return environment.Location{
		Latitude:    q.Latitude,
		Longitude:   q.Longitude,
		DisplayName: q.Name,
	}
}

// parseCoordinateQuery reads latKey/lonKey (both required) plus name and date.
// Zero is a valid coordinate, so presence is checked before validation.
func parseCoordinateQuery(c *fiber.Ctx, latKey, lonKey string) (coordinateQuery, error) {
	var q coordinateQuery

	latStr, lonStr := c.Query(latKey), c.Query(lonKey)
	if latStr == "" || lonStr == "" {
		return q, fiber.NewError(fiber.StatusBadRequest, latKey+" and "+lonKey+" query parameters are required")
	}

	var err error
	if q.Latitude, err = strconv.ParseFloat(latStr, 64); err != nil {
		return q, fiber.NewError(fiber.StatusBadRequest, "invalid "+latKey)
	}
	if q.Longitude, err = strconv.ParseFloat(lonStr, 64); err != nil {
		return q, fiber.NewError(fiber.StatusBadRequest, "invalid "+lonKey)
	}
	q.Name = c.Query("name")
	q.Date = c.Query("date")

	if err := validate.Struct(q); err != nil {
		return q, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return q, nil
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Location coordinateQuery
	From     time.Time `validate:"required"`
	To       time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	loc, err := parseCoordinateQuery(c, "latitude", "longitude")
	if err != nil {
		return err
	}
	h.Location = loc

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return fiber.NewError(fiber.StatusBadRequest, "from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	to, err := parseTime(toStr)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}

func parseUint(s, field string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+field)
	}
	return uint32(n), nil
}
