package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vocabulary-sync/internal/model"
	"github.com/iliyamo/vocabulary-sync/internal/service"
)

// DataServerHandler serves the admin registry endpoints and the public list.
type DataServerHandler struct {
	registry *service.Registry
}

func NewDataServerHandler(r *service.Registry) *DataServerHandler {
	return &DataServerHandler{registry: r}
}

type dataServerReq struct {
	URL       string             `json:"url" validate:"required,url"`
	Name      string             `json:"name" validate:"required,max=128"`
	Location  string             `json:"location" validate:"max=128"`
	Status    model.ServerStatus `json:"status" validate:"omitempty,oneof=active inactive maintenance"`
	Available *bool              `json:"available"`
	MaxUsers  int                `json:"maxUsers" validate:"required,gt=0"`
	Priority  int                `json:"priority"`
}

func (r dataServerReq) apply(s *model.DataServer) {
	s.URL = r.URL
	s.Name = r.Name
	s.Location = r.Location
	if r.Status != "" {
		s.Status = r.Status
	}
	if r.Available != nil {
		s.Available = *r.Available
	}
	s.MaxUsers = r.MaxUsers
	s.Priority = r.Priority
}

func serverID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, invalid("invalid server id")
	}
	return id, nil
}

// List returns every registered server with its counters and health.
func (h *DataServerHandler) List(c echo.Context) error {
	servers, err := h.registry.List(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": servers})
}

// Get returns one server.
func (h *DataServerHandler) Get(c echo.Context) error {
	id, err := serverID(c)
	if err != nil {
		return fail(c, err)
	}
	s, err := h.registry.Get(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// Create registers a server.  New servers are available unless the request
// says otherwise.
func (h *DataServerHandler) Create(c echo.Context) error {
	var req dataServerReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	s := &model.DataServer{Available: true, HealthStatus: model.HealthUnknown}
	req.apply(s)
	if err := h.registry.Create(c.Request().Context(), s); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, s)
}

// Update rewrites the operator-managed fields.  userCount and health are
// left to the system.
func (h *DataServerHandler) Update(c echo.Context) error {
	id, err := serverID(c)
	if err != nil {
		return fail(c, err)
	}
	var req dataServerReq
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx := c.Request().Context()
	s, err := h.registry.Get(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	req.apply(s)
	if err := h.registry.Update(ctx, s); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// Delete removes a server with no assigned users.
func (h *DataServerHandler) Delete(c echo.Context) error {
	id, err := serverID(c)
	if err != nil {
		return fail(c, err)
	}
	if err := h.registry.Delete(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HealthCheck probes one server now.
func (h *DataServerHandler) HealthCheck(c echo.Context) error {
	id, err := serverID(c)
	if err != nil {
		return fail(c, err)
	}
	s, err := h.registry.HealthCheck(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// HealthCheckAll probes every server in parallel.
func (h *DataServerHandler) HealthCheckAll(c echo.Context) error {
	servers, err := h.registry.HealthCheckAll(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	healthy := 0
	for _, s := range servers {
		if s.HealthStatus == model.HealthHealthy {
			healthy++
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": servers, "healthy": healthy, "total": len(servers)})
}

// Public lists the servers a client may pick from, without counters.
func (h *DataServerHandler) Public(c echo.Context) error {
	servers, err := h.registry.PublicList(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": servers})
}
