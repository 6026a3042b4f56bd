// Copyright (C) 2025 SpecVault Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/> for the full license text.

package versioning

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/specvault/specvault/services/versioning/datatypes"
	"github.com/specvault/specvault/services/versioning/semver"
	"github.com/specvault/specvault/services/versioning/storage/badgerstore"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "1.0.0"

// Handlers exposes the lifecycle operations over HTTP.
type Handlers struct {
	svc *Service
}

// NewHandlers creates the HTTP handler set for a service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// PublishRequest is the body of POST /projects/:projectId/publish.
type PublishRequest struct {
	Project   datatypes.Project `json:"project"`
	CreatedBy string            `json:"createdBy" binding:"required"`
}

// ReviewRequest is the body of approve/reject calls.
type ReviewRequest struct {
	ReviewerID string `json:"reviewerId" binding:"required"`
	Message    string `json:"message"`
}

// DiffRequest is the body of POST /diff.
type DiffRequest struct {
	OldSnapshot *datatypes.Snapshot `json:"oldSnapshot" binding:"required"`
	NewSnapshot *datatypes.Snapshot `json:"newSnapshot" binding:"required"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// HandlePublish handles POST /v1/versioning/projects/:projectId/publish.
//
// Response:
//
//	201 Created: the PENDING ProjectVersion
//	400 Bad Request: malformed body or project tree
//	409 Conflict: pending version exists, empty project, or no changes
func (h *Handlers) HandlePublish(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePublish")

	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	req.Project.ID = c.Param("projectId")
	if err := datatypes.ValidateProject(&req.Project); err != nil {
		logger.Warn("Invalid project tree", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_PROJECT"})
		return
	}

	logger.Info("Publishing project", "project_id", req.Project.ID)

	v, err := h.svc.Publish(c.Request.Context(), &req.Project, req.CreatedBy)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "PUBLISH_FAILED"

		if errors.Is(err, ErrNoFeatures) {
			statusCode = http.StatusConflict
			errCode = "NO_FEATURES"
		} else if errors.Is(err, ErrNoChanges) {
			statusCode = http.StatusConflict
			errCode = "NO_CHANGES"
		} else if errors.Is(err, badgerstore.ErrVersionPending) {
			statusCode = http.StatusConflict
			errCode = "VERSION_PENDING"
		} else if errors.Is(err, badgerstore.ErrVersionExists) {
			statusCode = http.StatusConflict
			errCode = "VERSION_EXISTS"
		}

		logger.Error("Publish failed", "error", err)
		c.JSON(statusCode, ErrorResponse{Error: err.Error(), Code: errCode})
		return
	}

	logger.Info("Version pending review",
		"project_id", v.ProjectID,
		"version", v.Version,
		"version_id", v.ID)
	c.JSON(http.StatusCreated, v)
}

// HandleApprove handles POST /v1/versioning/versions/:id/approve.
//
// Response:
//
//	200 OK: the APPROVED ProjectVersion (also for idempotent repeats)
//	404 Not Found: unknown version id
//	409 Conflict: version is not PENDING (and not already APPROVED)
func (h *Handlers) HandleApprove(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleApprove")

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	v, err := h.svc.Approve(c.Request.Context(), c.Param("id"), req.ReviewerID, req.Message)
	if err != nil {
		logger.Error("Approve failed", "error", err)
		c.JSON(reviewStatusCode(err), reviewErrorBody(err))
		return
	}

	logger.Info("Version approved", "version_id", v.ID, "version", v.Version)
	c.JSON(http.StatusOK, v)
}

// HandleReject handles POST /v1/versioning/versions/:id/reject.
//
// Response:
//
//	200 OK: the REJECTED ProjectVersion (also for idempotent repeats)
//	400 Bad Request: missing rejection message
//	404 Not Found: unknown version id
//	409 Conflict: version is not PENDING (and not already REJECTED)
func (h *Handlers) HandleReject(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleReject")

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	v, err := h.svc.Reject(c.Request.Context(), c.Param("id"), req.ReviewerID, req.Message)
	if err != nil {
		logger.Error("Reject failed", "error", err)
		c.JSON(reviewStatusCode(err), reviewErrorBody(err))
		return
	}

	logger.Info("Version rejected", "version_id", v.ID, "version", v.Version)
	c.JSON(http.StatusOK, v)
}

func reviewStatusCode(err error) int {
	switch {
	case errors.Is(err, badgerstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRejectionMessageRequired):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func reviewErrorBody(err error) ErrorResponse {
	code := "REVIEW_FAILED"
	switch {
	case errors.Is(err, badgerstore.ErrNotFound):
		code = "VERSION_NOT_FOUND"
	case errors.Is(err, ErrRejectionMessageRequired):
		code = "MESSAGE_REQUIRED"
	case errors.Is(err, ErrInvalidTransition):
		code = "INVALID_TRANSITION"
	}
	return ErrorResponse{Error: err.Error(), Code: code}
}

// HandleGetVersion handles GET /v1/versioning/versions/:id.
func (h *Handlers) HandleGetVersion(c *gin.Context) {
	v, err := h.svc.GetVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, badgerstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "VERSION_NOT_FOUND"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "LOOKUP_FAILED"})
		return
	}
	c.JSON(http.StatusOK, v)
}

// HandleListVersions handles GET /v1/versioning/projects/:projectId/versions.
func (h *Handlers) HandleListVersions(c *gin.Context) {
	versions, err := h.svc.ListVersions(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "LIST_FAILED"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// HandleApprovals handles GET /v1/versioning/versions/:id/approvals.
func (h *Handlers) HandleApprovals(c *gin.Context) {
	approvals, err := h.svc.Approvals(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "LOOKUP_FAILED"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"approvals": approvals})
}

// HandleLockStatus handles GET /v1/versioning/projects/:projectId/lock.
// The upstream editor polls this to decide whether edits are allowed.
func (h *Handlers) HandleLockStatus(c *gin.Context) {
	locked, err := h.svc.IsLocked(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "LOOKUP_FAILED"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"locked": locked})
}

// HandleLatestApproved handles GET /v1/versioning/projects/:projectId/latest-approved.
// Reports 0.0.0 when the project has no approved release yet.
func (h *Handlers) HandleLatestApproved(c *gin.Context) {
	info, err := h.svc.LatestApprovedVersion(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "LOOKUP_FAILED"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// HandleNextVersion handles GET /v1/versioning/next-version?current=&bump=.
func (h *Handlers) HandleNextVersion(c *gin.Context) {
	current := c.Query("current")
	bump := semver.BumpType(c.Query("bump"))
	if !bump.IsValid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bump must be major, minor, or patch", Code: "INVALID_BUMP"})
		return
	}
	info, err := h.svc.NextVersion(current, bump)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_VERSION"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// HandleDiff handles POST /v1/versioning/diff: an ad-hoc comparison of two
// submitted snapshots, used for preview-before-publish.
func (h *Handlers) HandleDiff(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDiff")

	var req DiffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	// Snapshots arrive from outside; normalize before comparing so nil
	// collections don't skew the structural checks.
	req.OldSnapshot.Features = datatypes.NormalizeFeatures(req.OldSnapshot.Features)
	req.NewSnapshot.Features = datatypes.NormalizeFeatures(req.NewSnapshot.Features)

	res, err := h.svc.Diff(c.Request.Context(), req.OldSnapshot, req.NewSnapshot)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "DIFF_FAILED"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleHealth handles GET /v1/versioning/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: ServiceVersion})
}

func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}
