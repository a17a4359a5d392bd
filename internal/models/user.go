package models

// Role represents operator roles on the control surface
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
	RoleDevice   Role = "device"
)

// Actions checked by RequirePermission.
const (
	ActionControlSimulation = "control_simulation"
	ActionViewTelemetry     = "view_telemetry"
	ActionViewAlerts        = "view_alerts"
	ActionIngestReadings    = "ingest_readings"
	ActionViewDiagnostics   = "view_diagnostics"
)

// Claims represents JWT claims
type Claims struct {
	Subject string `json:"sub"`
	Role    Role   `json:"role"`
	Exp     int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleOperator, RoleViewer, RoleDevice:
		return true
	default:
		return false
	}
}

// HasPermission checks if the token holder may perform a specific action
func (c *Claims) HasPermission(action string) bool {
	switch c.Role {
	case RoleAdmin:
		return true
	case RoleManager:
		return action != ActionIngestReadings
	case RoleOperator:
		return action == ActionControlSimulation || action == ActionViewTelemetry ||
			action == ActionViewAlerts
	case RoleViewer:
		return action == ActionViewTelemetry || action == ActionViewAlerts
	case RoleDevice:
		return action == ActionIngestReadings
	default:
		return false
	}
}

// CanJoinAdminGroup reports whether the role may subscribe to fleet-wide alerts.
func (c *Claims) CanJoinAdminGroup() bool {
	return c.Role == RoleAdmin || c.Role == RoleManager
}
