// Package api is the HTTP intake surface: it accepts remittance uploads and
// submission requests and turns them into background jobs.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/rcm/internal/domain/remittance"
	"github.com/ehr/rcm/internal/platform/auth"
	"github.com/ehr/rcm/internal/platform/blobstore"
	"github.com/ehr/rcm/internal/platform/jobs"
)

// Enqueuer publishes a job and returns its id.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload interface{}) (uuid.UUID, error)
}

type Handler struct {
	blobs  blobstore.BlobStore
	jobs   Enqueuer
	logger zerolog.Logger
}

func NewHandler(blobs blobstore.BlobStore, jobs Enqueuer, logger zerolog.Logger) *Handler {
	return &Handler{
		blobs:  blobs,
		jobs:   jobs,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleBilling))
	g.POST("/remittances", h.UploadRemittance)
	g.POST("/encounters/submissions", h.SubmitEncounters)
}

type jobResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	BlobID string    `json:"blob_id,omitempty"`
}

// UploadRemittance stores the multipart "file" and queues its ingestion.
// The uploader's email from the token receives the error report.
func (h *Handler) UploadRemittance(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if !remittance.SupportedFile(fh.Filename) {
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, "remittance must be a .csv, .xlsx or .xls file")
	}

	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	defer f.Close()

	ctx := c.Request().Context()
	email := auth.EmailFromContext(ctx)
	meta, err := h.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Category:    blobstore.CategoryRemittanceUpload,
		OwnerID:     auth.UserIDFromContext(ctx),
		CreatedBy:   email,
	}, f)
	if err != nil {
		if errors.Is(err, blobstore.ErrFileTooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "store upload: "+err.Error())
	}

	jobID, err := h.jobs.Enqueue(ctx, jobs.TypeRemittanceIngest, jobs.RemittancePayload{
		BlobID:        meta.ID,
		FileName:      fh.Filename,
		UploaderEmail: email,
	})
	if err != nil {
		if delErr := h.blobs.Delete(ctx, meta.ID); delErr != nil {
			h.logger.Warn().Err(delErr).Str("blob_id", meta.ID).Msg("remove orphaned upload")
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "queue unavailable")
	}

	h.logger.Info().
		Str("job_id", jobID.String()).
		Str("blob_id", meta.ID).
		Int64("size", meta.Size).
		Msg("remittance queued")
	return c.JSON(http.StatusAccepted, jobResponse{JobID: jobID, BlobID: meta.ID})
}

type submissionRequest struct {
	OrganizationID uuid.UUID   `json:"organization_id"`
	EncounterIDs   []uuid.UUID `json:"encounter_ids"`
}

// SubmitEncounters queues one batch submission for the organization.
func (h *Handler) SubmitEncounters(c echo.Context) error {
	var req submissionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.OrganizationID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "organization_id is required")
	}
	if len(req.EncounterIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "encounter_ids is required")
	}

	jobID, err := h.jobs.Enqueue(c.Request().Context(), jobs.TypeEncounterSubmission, jobs.SubmissionPayload{
		OrganizationID: req.OrganizationID,
		EncounterIDs:   req.EncounterIDs,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "queue unavailable")
	}

	h.logger.Info().
		Str("job_id", jobID.String()).
		Str("organization_id", req.OrganizationID.String()).
		Int("encounters", len(req.EncounterIDs)).
		Msg("submission queued")
	return c.JSON(http.StatusAccepted, jobResponse{JobID: jobID})
}
