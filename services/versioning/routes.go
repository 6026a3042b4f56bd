// Copyright (C) 2025 SpecVault Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/> for the full license text.

package versioning

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the versioning endpoints under the given group.
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	versioning := rg.Group("/versioning")
	{
		// Publish lifecycle
		versioning.POST("/projects/:projectId/publish", handlers.HandlePublish)
		versioning.POST("/versions/:id/approve", handlers.HandleApprove)
		versioning.POST("/versions/:id/reject", handlers.HandleReject)

		// Version queries
		versioning.GET("/versions/:id", handlers.HandleGetVersion)
		versioning.GET("/versions/:id/approvals", handlers.HandleApprovals)
		versioning.GET("/projects/:projectId/versions", handlers.HandleListVersions)
		versioning.GET("/projects/:projectId/latest-approved", handlers.HandleLatestApproved)
		versioning.GET("/projects/:projectId/lock", handlers.HandleLockStatus)

		// Utilities
		versioning.GET("/next-version", handlers.HandleNextVersion)
		versioning.POST("/diff", handlers.HandleDiff)

		// Health
		versioning.GET("/health", handlers.HandleHealth)
	}
}
