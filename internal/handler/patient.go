package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bloodbank-system/internal/middleware"
	"github.com/mmeshcher/bloodbank-system/internal/model"
	"github.com/mmeshcher/bloodbank-system/internal/validation"
)

type submitRequestRequest struct {
	BloodGroup    string `json:"blood_group"`
	UnitsRequired int    `json:"units_required"`
	Urgency       string `json:"urgency"`
	Reason        string `json:"reason"`
	RequiredBy    string `json:"required_by,omitempty"`
}

type requestResponse struct {
	ID            int64  `json:"id"`
	BloodGroup    string `json:"blood_group"`
	UnitsRequired int    `json:"units_required"`
	Urgency       string `json:"urgency"`
	Reason        string `json:"reason,omitempty"`
	Status        string `json:"status"`
	RequestDate   string `json:"request_date"`
	RequiredBy    string `json:"required_by,omitempty"`
	ResolvedAt    string `json:"resolved_at,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

func toRequestResponse(req model.BloodRequest) requestResponse {
	resp := requestResponse{
		ID:            req.ID,
		BloodGroup:    req.BloodGroup,
		UnitsRequired: req.UnitsRequired,
		Urgency:       string(req.Urgency),
		Reason:        req.Reason,
		Status:        string(req.Status),
		RequestDate:   req.RequestDate.Format(dateLayout),
		Notes:         req.Notes,
	}
	if req.RequiredBy != nil {
		resp.RequiredBy = req.RequiredBy.Format(dateLayout)
	}
	if req.ResolvedAt != nil {
		resp.ResolvedAt = req.ResolvedAt.Format(time.RFC3339)
	}
	return resp
}

// SubmitRequest создаёт заявку на кровь от текущего пациента.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req submitRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !validation.IsValidBloodGroup(req.BloodGroup) {
		writeError(w, http.StatusUnprocessableEntity, "unknown blood group")
		return
	}

	if req.UnitsRequired <= 0 {
		writeError(w, http.StatusBadRequest, "units_required must be positive")
		return
	}

	if req.Urgency == "" {
		req.Urgency = string(model.UrgencyNormal)
	}
	if !validation.IsValidUrgency(req.Urgency) {
		writeError(w, http.StatusBadRequest, "urgency must be urgent, normal or low")
		return
	}

	var requiredBy *time.Time
	if req.RequiredBy != "" {
		d, err := time.Parse(dateLayout, req.RequiredBy)
		if err != nil {
			writeError(w, http.StatusBadRequest, "required_by must be YYYY-MM-DD")
			return
		}
		requiredBy = &d
	}

	created, err := h.service.SubmitRequest(r.Context(), identity.UserID, req.BloodGroup,
		req.UnitsRequired, model.Urgency(req.Urgency), req.Reason, requiredBy)
	if err != nil {
		h.logger.Error("submit request error", zap.Error(err), zap.Int64("patientID", identity.UserID))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	writeJSON(w, http.StatusCreated, toRequestResponse(*created))
}

type patientDashboardResponse struct {
	TotalRequests    int               `json:"total_requests"`
	PendingRequests  int               `json:"pending_requests"`
	ApprovedRequests int               `json:"approved_requests"`
	RejectedRequests int               `json:"rejected_requests"`
	RecentRequests   []requestResponse `json:"recent_requests"`
}

// GetPatientDashboard возвращает сводку по заявкам текущего пациента.
func (h *Handler) GetPatientDashboard(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	stats, err := h.service.PatientDashboard(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("patient dashboard error", zap.Error(err), zap.Int64("patientID", identity.UserID))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	resp := patientDashboardResponse{
		TotalRequests:    stats.TotalRequests,
		PendingRequests:  stats.PendingRequests,
		ApprovedRequests: stats.ApprovedRequests,
		RejectedRequests: stats.RejectedRequests,
		RecentRequests:   make([]requestResponse, 0, len(stats.Recent)),
	}
	for _, req := range stats.Recent {
		resp.RecentRequests = append(resp.RecentRequests, toRequestResponse(req))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetPatientRequests возвращает заявки текущего пациента.
func (h *Handler) GetPatientRequests(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	requests, err := h.service.ListRequestsByPatient(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("get patient requests error", zap.Error(err), zap.Int64("patientID", identity.UserID))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	if len(requests) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]requestResponse, 0, len(requests))
	for _, req := range requests {
		resp = append(resp, toRequestResponse(req))
	}

	writeJSON(w, http.StatusOK, resp)
}
