package http

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/fieldsync/internal/core/domain"
	"github.com/samirrijal/fieldsync/internal/core/usecases"
)

// fetchContext detaches background fetches from the request lifetime while
// keeping request-scoped values such as the logger.
func fetchContext(c *fiber.Ctx) context.Context {
	return context.WithoutCancel(c.UserContext())
}

type locationRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (r locationRequest) point() (domain.GeoPoint, bool) {
	if r.Lat == nil || r.Lon == nil {
		return domain.GeoPoint{}, false
	}
	return domain.GeoPoint{Lat: *r.Lat, Lon: *r.Lon}, true
}

type panRequest struct {
	Center  locationRequest `json:"center"`
	LonSpan float64         `json:"lon_span"`
}

type panResponse struct {
	Crossing string             `json:"crossing,omitempty"`
	Fetched  bool               `json:"fetched"`
	Window   *domain.Window     `json:"window,omitempty"`
	Recenter *usecases.Recenter `json:"recenter,omitempty"`
}

// LocationUpdateHandler feeds a device location fix into the viewport.
func LocationUpdateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req locationRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}
		p, ok := req.point()
		if !ok {
			return errBadRequest(c, "lat and lon are required")
		}
		fetched, err := deps.Viewport.OnLocationUpdate(fetchContext(c), p)
		if err != nil {
			return errFromUsecase(c, err)
		}
		return c.JSON(fiber.Map{"fetched": fetched})
	}
}

// PanHandler reports a viewport move. A too wide viewport yields a
// recenter hint instead of a fetch.
func PanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req panRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}
		center, ok := req.Center.point()
		if !ok {
			return errBadRequest(c, "center.lat and center.lon are required")
		}
		if req.LonSpan < 0 {
			return errBadRequest(c, "lon_span must not be negative")
		}
		out, err := deps.Viewport.OnPan(fetchContext(c), center, req.LonSpan)
		if err != nil {
			return errFromUsecase(c, err)
		}
		resp := panResponse{Fetched: out.Fetched, Window: out.Window, Recenter: out.Recenter}
		switch {
		case out.Recenter != nil:
		case out.Fetched && out.Crossing == domain.Inside:
			// first commit, there was no window to leave
			resp.Crossing = "no window"
		default:
			resp.Crossing = out.Crossing.String()
		}
		return c.JSON(resp)
	}
}

// SelectSiteHandler focuses the viewport on a site location.
func SelectSiteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req locationRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}
		p, ok := req.point()
		if !ok {
			return errBadRequest(c, "lat and lon are required")
		}
		w, err := deps.Viewport.SelectSite(fetchContext(c), p)
		if err != nil {
			return errFromUsecase(c, err)
		}
		return c.JSON(fiber.Map{"window": w})
	}
}

// ListSitesHandler returns the displayed site set.
func ListSitesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "no-cache")
		return c.JSON(paginate(c, deps.Viewport.Displayed()))
	}
}

// SitesInWindowHandler returns the cached sites inside a rectangle.
func SitesInWindowHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		w, err := windowFromQuery(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.JSON(paginate(c, deps.Cache.InWindow(w)))
	}
}

func windowFromQuery(c *fiber.Ctx) (domain.Window, error) {
	for _, k := range []string{"min_lat", "min_lon", "max_lat", "max_lon"} {
		if c.Query(k) == "" {
			return domain.Window{}, errors.New(k + " is required")
		}
	}
	w := domain.Window{
		Min: domain.GeoPoint{Lat: c.QueryFloat("min_lat"), Lon: c.QueryFloat("min_lon")},
		Max: domain.GeoPoint{Lat: c.QueryFloat("max_lat"), Lon: c.QueryFloat("max_lon")},
	}
	if !w.Min.Valid() || !w.Max.Valid() {
		return domain.Window{}, errors.New("window corner out of range")
	}
	if w.Min.Lat > w.Max.Lat || w.Min.Lon > w.Max.Lon {
		return domain.Window{}, errors.New("min corner must not exceed max corner")
	}
	w.Center = domain.GeoPoint{Lat: (w.Min.Lat + w.Max.Lat) / 2, Lon: (w.Min.Lon + w.Max.Lon) / 2}
	return w, nil
}

// ListProjectsHandler returns all projects.
func ListProjectsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "no-cache")
		return c.JSON(paginate(c, deps.Projects.List()))
	}
}

// GetProjectHandler returns one project with its sites and samples.
func GetProjectHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := deps.Projects.Get(c.Params("id"))
		if err != nil {
			return errFromUsecase(c, err)
		}
		c.Set("Cache-Control", "no-cache")
		return c.JSON(p)
	}
}

// CreateProjectHandler adds a project.
func CreateProjectHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var p domain.Project
		if err := c.BodyParser(&p); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}
		created, err := deps.Projects.Create(p)
		if err != nil {
			return errFromUsecase(c, err)
		}
		c.Location("/v1/projects/" + created.ID)
		return c.Status(fiber.StatusCreated).JSON(created)
	}
}

// DeleteProjectHandler removes a project.
func DeleteProjectHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Projects.Delete(c.Params("id")); err != nil {
			return errFromUsecase(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// AttachSiteHandler adds a site to a project. The full record is fetched in
// the background, so the response only carries the site ID.
func AttachSiteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var site domain.Site
		if err := c.BodyParser(&site); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}
		id, err := deps.Viewport.AttachSite(fetchContext(c), c.Params("id"), site)
		if err != nil {
			return errFromUsecase(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"id": id})
	}
}

// AddSampleHandler records a sample for one of the project's sites.
func AddSampleHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var sample domain.Sample
		if err := c.BodyParser(&sample); err != nil {
			return errBadRequest(c, "invalid JSON body: "+err.Error())
		}
		stored, err := deps.Projects.AddSample(c.Params("id"), sample)
		if err != nil {
			return errFromUsecase(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(stored)
	}
}

// ExportHandler renders the selected projects as CSV. With a table query
// parameter a single CSV document is returned, otherwise all three tables
// are wrapped in JSON.
func ExportHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var ids []string
		for _, id := range strings.Split(c.Query("projects"), ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		tables, err := deps.Export.ExportSelected(ids)
		if err != nil {
			return errFromUsecase(c, err)
		}
		c.Set("Cache-Control", "no-store")

		table := c.Query("table")
		var body string
		switch table {
		case "":
			return c.JSON(tables)
		case "projects":
			body = tables.Projects
		case "sites":
			body = tables.Sites
		case "samples":
			body = tables.Samples
		default:
			return errBadRequest(c, "table must be projects, sites or samples")
		}
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		c.Attachment(usecases.ExportFilename(table, time.Now()))
		return c.SendString(body)
	}
}

type persister interface {
	Save(ctx context.Context) usecases.Outcome
	Load(ctx context.Context) usecases.Outcome
}

// PersistHandler runs a save or load and reports its outcome. A request
// that finds another one in progress gets 409; a storage failure gets 500.
func PersistHandler(p persister, save bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var o usecases.Outcome
		if save {
			o = p.Save(c.UserContext())
		} else {
			o = p.Load(c.UserContext())
		}
		status := fiber.StatusOK
		switch o {
		case usecases.OutcomeBusy:
			status = fiber.StatusConflict
		case usecases.OutcomeFailed:
			status = fiber.StatusInternalServerError
		}
		return c.Status(status).JSON(fiber.Map{"outcome": o})
	}
}
