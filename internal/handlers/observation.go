package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edusight/observation-service/internal/platform/logger"
	"github.com/edusight/observation-service/internal/repos"
	"github.com/edusight/observation-service/internal/requestdata"
	"github.com/edusight/observation-service/internal/services"
	"github.com/edusight/observation-service/internal/types"
)

type ObservationHandler struct {
	log                *logger.Logger
	observationService services.ObservationService
}

func NewObservationHandler(log *logger.Logger, observationService services.ObservationService) *ObservationHandler {
	return &ObservationHandler{
		log:                log.With("handler", "ObservationHandler"),
		observationService: observationService,
	}
}

type createObservationRequest struct {
	SolutionID      string            `json:"solutionId"`
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	Entities        []string          `json:"entities"`
	StartDate       string            `json:"startDate"`
	EndDate         string            `json:"endDate"`
	ReferenceFrom   string            `json:"referenceFrom"`
	ProjectID       string            `json:"projectId"`
	RoleInformation map[string]string `json:"roleInformation"`
}

func (h *ObservationHandler) Create(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req createObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	solutionID, err := uuid.Parse(req.SolutionID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	created, err := h.observationService.Create(
		c.Request.Context(),
		rd.UserID,
		rd.UserToken,
		solutionID,
		observationInputFromRequest(req),
		types.RoleClaimsFromMap(req.RoleInformation),
	)
	if err != nil {
		h.log.Error("Create failed", "error", err, "user_id", rd.UserID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, created)
}

type createFromTemplateRequest struct {
	SolutionExternalID string            `json:"solutionExternalId"`
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	Entities           []string          `json:"entities"`
	StartDate          string            `json:"startDate"`
	EndDate            string            `json:"endDate"`
	RoleInformation    map[string]string `json:"roleInformation"`
}

func (h *ObservationHandler) CreateV2(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req createFromTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	created, err := h.observationService.CreateFromTemplate(
		c.Request.Context(),
		rd.UserID,
		rd.UserToken,
		req.SolutionExternalID,
		services.ObservationInput{
			Name:        req.Name,
			Description: req.Description,
			Entities:    req.Entities,
			StartDate:   parseDate(req.StartDate),
			EndDate:     parseDate(req.EndDate),
		},
		types.RoleClaimsFromMap(req.RoleInformation),
	)
	if err != nil {
		h.log.Error("CreateV2 failed", "error", err, "user_id", rd.UserID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, created)
}

type bulkCreateItem struct {
	UserID             string `json:"userId"`
	SolutionExternalID string `json:"solutionExternalId"`
	EntityID           string `json:"entityId"`
	EntityType         string `json:"entityType"`
	EntityName         string `json:"entityName"`
}

func (h *ObservationHandler) BulkCreate(c *gin.Context) {
	var items []bulkCreateItem
	if err := c.ShouldBindJSON(&items); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	results := make([]gin.H, 0, len(items))
	for _, item := range items {
		res, err := h.observationService.BulkCreate(
			c.Request.Context(),
			item.UserID,
			item.SolutionExternalID,
			types.Entity{ID: item.EntityID, Type: item.EntityType, Name: item.EntityName},
		)
		row := gin.H{
			"userId":             item.UserID,
			"solutionExternalId": item.SolutionExternalID,
			"entityId":           item.EntityID,
		}
		if err != nil {
			row["status"] = err.Error()
		} else {
			row["status"] = res.Status
			if res.ObservationID != uuid.Nil {
				row["observationId"] = res.ObservationID
			}
		}
		results = append(results, row)
	}
	RespondOK(c, gin.H{"data": results})
}

func (h *ObservationHandler) ListV1(c *gin.Context) {
	h.list(c, false)
}

func (h *ObservationHandler) ListV2(c *gin.Context) {
	h.list(c, true)
}

func (h *ObservationHandler) list(c *gin.Context, v2 bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var items []services.ObservationListItem
	var err error
	if v2 {
		items, err = h.observationService.ListV2(c.Request.Context(), rd.UserID)
	} else {
		items, err = h.observationService.ListV1(c.Request.Context(), rd.UserID)
	}
	if err != nil {
		h.log.Error("List failed", "error", err, "user_id", rd.UserID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"data": items})
}

func (h *ObservationHandler) Details(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	observationID := parseUUIDQuery(c, "observationId")
	solutionID := parseUUIDQuery(c, "solutionId")

	details, err := h.observationService.Details(c.Request.Context(), rd.UserID, observationID, solutionID)
	if err != nil {
		h.log.Error("Details failed", "error", err, "user_id", rd.UserID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, details)
}

func (h *ObservationHandler) GetObservationLink(c *gin.Context) {
	link, err := h.observationService.GetObservationLink(
		c.Request.Context(),
		c.Param("solutionExternalId"),
		c.Query("appName"),
	)
	if err != nil {
		h.log.Error("GetObservationLink failed", "error", err)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"link": link})
}

type verifyLinkRequest struct {
	RoleInformation map[string]string `json:"roleInformation"`
	RegistryCodes   []string          `json:"entities"`
}

func (h *ObservationHandler) VerifyLink(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req verifyLinkRequest
	// The body is optional on link verification.
	_ = c.ShouldBindJSON(&req)

	result, err := h.observationService.VerifyLink(c.Request.Context(), services.VerifyLinkRequest{
		Link:          c.Param("link"),
		UserID:        rd.UserID,
		UserToken:     rd.UserToken,
		Claims:        types.RoleClaimsFromMap(req.RoleInformation),
		RegistryCodes: req.RegistryCodes,
	})
	if err != nil {
		h.log.Error("VerifyLink failed", "error", err, "user_id", rd.UserID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

type entityListRequest struct {
	ObservationID   string            `json:"observationId"`
	SolutionID      string            `json:"solutionId"`
	RoleInformation map[string]string `json:"roleInformation"`
}

func (h *ObservationHandler) ListEntities(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req entityListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	result, err := h.observationService.ListEntities(c.Request.Context(), services.EntityListRequest{
		UserID:        rd.UserID,
		UserToken:     rd.UserToken,
		ObservationID: parseUUIDString(req.ObservationID),
		SolutionID:    parseUUIDString(req.SolutionID),
		Claims:        types.RoleClaimsFromMap(req.RoleInformation),
	})
	if err != nil {
		h.log.Error("ListEntities failed", "error", err, "user_id", rd.UserID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

type entityUpdateRequest struct {
	Entities []string `json:"entities"`
}

func (h *ObservationHandler) AddEntity(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	observationID, err := uuid.Parse(c.Param("observationId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	var req entityUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	message, err := h.observationService.AddEntity(c.Request.Context(), observationID, rd.UserID, req.Entities)
	if err != nil {
		h.log.Error("AddEntity failed", "error", err, "user_id", rd.UserID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": message})
}

func (h *ObservationHandler) RemoveEntity(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	observationID, err := uuid.Parse(c.Param("observationId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	var req entityUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	if err := h.observationService.RemoveEntity(c.Request.Context(), observationID, rd.UserID, req.Entities); err != nil {
		h.log.Error("RemoveEntity failed", "error", err, "user_id", rd.UserID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "entities removed"})
}

func (h *ObservationHandler) SubmissionStatus(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	observationID, err := uuid.Parse(c.Param("observationId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	submissions, err := h.observationService.SubmissionStatus(c.Request.Context(), rd.UserID, observationID, c.Query("entityId"))
	if err != nil {
		h.log.Error("SubmissionStatus failed", "error", err, "user_id", rd.UserID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"data": submissions})
}

type findSubmissionRequest struct {
	EntityID         string `json:"entityId"`
	SubmissionNumber int    `json:"submissionNumber"`
}

func (h *ObservationHandler) FindSubmission(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	observationID, err := uuid.Parse(c.Param("observationId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	var req findSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	submission, err := h.observationService.FindSubmission(c.Request.Context(), services.FindSubmissionRequest{
		ObservationID:    observationID,
		EntityID:         req.EntityID,
		SubmissionNumber: req.SubmissionNumber,
		UserID:           rd.UserID,
	})
	if err != nil {
		h.log.Error("FindSubmission failed", "error", err, "user_id", rd.UserID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, submission)
}

func (h *ObservationHandler) LastSubmission(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	observationID, err := uuid.Parse(c.Param("observationId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	number, err := h.observationService.LastSubmissionNumber(c.Request.Context(), observationID, c.Query("entityId"))
	if err != nil {
		h.log.Error("LastSubmission failed", "error", err, "user_id", rd.UserID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"submissionNumber": number})
}

func (h *ObservationHandler) UserAssigned(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	filter := repos.ListFilter{
		Search:       c.Query("search"),
		CreatedByMe:  c.Query("filter") == "createdByMe",
		AssignedToMe: c.Query("filter") == "assignedToMe",
		PageNo:       parseIntQuery(c, "page", 1),
		PageSize:     parseIntQuery(c, "limit", 10),
	}

	result, err := h.observationService.UserAssigned(c.Request.Context(), rd.UserID, filter)
	if err != nil {
		h.log.Error("UserAssigned failed", "error", err, "user_id", rd.UserID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

type dashboardRequest struct {
	RoleInformation map[string]string `json:"roleInformation"`
}

func (h *ObservationHandler) GetObservation(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req dashboardRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.observationService.Dashboard(c.Request.Context(), services.DashboardRequest{
		UserID:    rd.UserID,
		UserToken: rd.UserToken,
		Claims:    types.RoleClaimsFromMap(req.RoleInformation),
		Search:    c.Query("search"),
		PageNo:    parseIntQuery(c, "page", 1),
		PageSize:  parseIntQuery(c, "limit", 10),
	})
	if err != nil {
		h.log.Error("GetObservation failed", "error", err, "user_id", rd.UserID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

func (h *ObservationHandler) PendingObservations(c *gin.Context) {
	rows, err := h.observationService.PendingObservations(c.Request.Context())
	if err != nil {
		h.log.Error("PendingObservations failed", "error", err)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"data": rows})
}

func (h *ObservationHandler) CompletedObservations(c *gin.Context) {
	from := parseDate(c.Query("fromDate"))
	to := parseDate(c.Query("toDate"))
	if to.IsZero() {
		to = time.Now()
	}

	rows, err := h.observationService.CompletedObservations(c.Request.Context(), from, to)
	if err != nil {
		h.log.Error("CompletedObservations failed", "error", err)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"data": rows})
}

type updateObservationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Status      string `json:"status"`
}

func (h *ObservationHandler) Update(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	observationID, err := uuid.Parse(c.Param("observationId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	var req updateObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.Status != "" {
		updates["status"] = req.Status
	}
	if d := parseDate(req.StartDate); !d.IsZero() {
		updates["start_date"] = d
	}
	if d := parseDate(req.EndDate); !d.IsZero() {
		updates["end_date"] = d
	}

	if err := h.observationService.UpdateObservation(c.Request.Context(), rd.UserID, observationID, updates); err != nil {
		h.log.Error("Update failed", "error", err, "user_id", rd.UserID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "observation updated"})
}

// ---------- helpers ----------

func observationInputFromRequest(req createObservationRequest) services.ObservationInput {
	return services.ObservationInput{
		Name:          req.Name,
		Description:   req.Description,
		Entities:      req.Entities,
		StartDate:     parseDate(req.StartDate),
		EndDate:       parseDate(req.EndDate),
		ReferenceFrom: req.ReferenceFrom,
		ProjectID:     req.ProjectID,
	}
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t
	}
	return time.Time{}
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseUUIDQuery(c *gin.Context, key string) *uuid.UUID {
	return parseUUIDString(c.Query(key))
}

func parseUUIDString(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
