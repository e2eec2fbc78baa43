package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/caesarus-droid/audio-ink/internal/domain"
	"github.com/caesarus-droid/audio-ink/internal/pipeline"
	"github.com/caesarus-droid/audio-ink/internal/services"
)

type API struct {
	jobs     *pipeline.Orchestrator
	exporter *services.Exporter
}

func NewAPI(jobs *pipeline.Orchestrator, exporter *services.Exporter) *API {
	return &API{jobs: jobs, exporter: exporter}
}

func registerRoutes(r *gin.Engine, api *API) {
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", api.handleHealth)

		apiGroup.POST("/jobs", api.handleCreateJob)
		apiGroup.POST("/jobs/url", api.handleCreateJobFromURL)
		apiGroup.GET("/jobs", api.handleListJobs)
		apiGroup.GET("/jobs/:id", api.handleGetJob)
		apiGroup.POST("/jobs/:id/process", api.handleProcessJob)
		apiGroup.POST("/jobs/:id/export", api.handleExportJob)
	}
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) handleCreateJob(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "missing audio file")
		return
	}

	upload, err := fileHeader.Open()
	if err != nil {
		respondMessage(c, http.StatusInternalServerError, "unable to read uploaded file")
		return
	}
	defer upload.Close()

	job, err := a.jobs.SubmitUpload(c.Request.Context(), upload, fileHeader.Filename)
	if err != nil {
		respondError(c, statusForError(err), err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": job.ID, "status": job.Status})
}

func (a *API) handleCreateJobFromURL(c *gin.Context) {
	var payload struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid payload")
		return
	}

	job, err := a.jobs.SubmitRemote(c.Request.Context(), payload.URL)
	if err != nil {
		respondError(c, statusForError(err), err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (a *API) handleGetJob(c *gin.Context) {
	job, err := a.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, statusForError(err), err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (a *API) handleListJobs(c *gin.Context) {
	jobs, err := a.jobs.List(c.Request.Context(), domain.Status(c.Query("status")))
	if err != nil {
		respondError(c, statusForError(err), err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (a *API) handleProcessJob(c *gin.Context) {
	var payload struct {
		Device string `json:"device"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			respondMessage(c, http.StatusBadRequest, "invalid payload")
			return
		}
	}
	if payload.Device != "" && payload.Device != domain.DeviceCPU && payload.Device != domain.DeviceGPU {
		respondMessage(c, http.StatusBadRequest, fmt.Sprintf("unknown device %q", payload.Device))
		return
	}

	job, err := a.jobs.Process(c.Request.Context(), c.Param("id"), payload.Device)
	if err != nil {
		respondError(c, statusForError(err), err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// handleExportJob renders the transcript as a PDF attachment. Edited content
// is persisted first when the job is completed; the rendering itself works
// regardless of stored status.
func (a *API) handleExportJob(c *gin.Context) {
	var payload struct {
		Content string `json:"content"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			respondMessage(c, http.StatusBadRequest, "invalid payload")
			return
		}
	}

	job, err := a.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, statusForError(err), err)
		return
	}

	content := payload.Content
	if content == "" {
		content = job.Text
	}

	if job.Status == domain.StatusCompleted && payload.Content != "" && payload.Content != job.Text {
		job, err = a.jobs.UpdateText(c.Request.Context(), job.ID, payload.Content)
		if err != nil {
			respondError(c, statusForError(err), err)
			return
		}
	}

	document, err := a.exporter.Render(job, content)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=transcript_%s.pdf", job.ID))
	c.Data(http.StatusOK, "application/pdf", document)
}

func statusForError(err error) int {
	var validationErr *domain.ValidationError
	var stateErr *domain.StateError
	var ingestionErr *domain.IngestionError
	var modelErr *domain.ModelError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &stateErr):
		return http.StatusConflict
	case errors.As(err, &ingestionErr), errors.As(err, &modelErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, status int, err error) {
	respondMessage(c, status, err.Error())
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
