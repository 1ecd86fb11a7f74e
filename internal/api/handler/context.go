package handler

import (
	"github.com/labstack/echo/v4"
)

// tenantID returns the tenant claim injected by the auth middleware,
// or "" when the request is unauthenticated.
func tenantID(c echo.Context) string {
	if v, ok := c.Get("tenant_id").(string); ok {
		return v
	}
	return ""
}

// agentID returns the agent claim injected by the auth middleware,
// or "" when the token carries no agent identity.
func agentID(c echo.Context) string {
	if v, ok := c.Get("agent_id").(string); ok {
		return v
	}
	return ""
}
