package model

import "time"

// ServerStatus is the operator-managed lifecycle state of a data server.
type ServerStatus string

const (
	ServerActive      ServerStatus = "active"
	ServerInactive    ServerStatus = "inactive"
	ServerMaintenance ServerStatus = "maintenance"
)

// Valid reports whether s is one of the known statuses.
func (s ServerStatus) Valid() bool {
	switch s {
	case ServerActive, ServerInactive, ServerMaintenance:
		return true
	}
	return false
}

// HealthStatus is the result of the last probe.  It is informational and
// never consulted by server selection.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// DataServer mirrors a row of the `data_servers` table.
//
// UserCount tracks the number of users whose DataServer equals URL.  It is
// only ever changed by explicit increment/decrement on assignment and
// removal, never recomputed from the users table.
type DataServer struct {
	ID              uint64       `json:"id"`
	URL             string       `json:"url"`
	Name            string       `json:"name"`
	Location        string       `json:"location"`
	Status          ServerStatus `json:"status"`
	Available       bool         `json:"available"`
	UserCount       int          `json:"userCount"`
	MaxUsers        int          `json:"maxUsers"`
	Priority        int          `json:"priority"`
	HealthStatus    HealthStatus `json:"healthStatus"`
	LastHealthCheck *time.Time   `json:"lastHealthCheck,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// HasCapacity reports whether the server can take one more user.
func (s DataServer) HasCapacity() bool { return s.UserCount < s.MaxUsers }

// PublicDataServer is the subset exposed to unauthenticated clients.
type PublicDataServer struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Location string `json:"location"`
}
