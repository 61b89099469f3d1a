package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/bloodbank-system/internal/middleware"
	"github.com/mmeshcher/bloodbank-system/internal/model"
	"github.com/mmeshcher/bloodbank-system/internal/report"
	"github.com/mmeshcher/bloodbank-system/internal/repository"
	"github.com/mmeshcher/bloodbank-system/internal/service"
	"github.com/mmeshcher/bloodbank-system/internal/validation"
)

type recentDonationResponse struct {
	ID           int64  `json:"id"`
	DonorID      int64  `json:"donor_id"`
	DonationDate string `json:"donation_date"`
	Units        int    `json:"units"`
	BloodGroup   string `json:"blood_group"`
}

type adminDashboardResponse struct {
	TotalDonors     int                      `json:"total_donors"`
	TotalPatients   int                      `json:"total_patients"`
	PendingRequests int                      `json:"pending_requests"`
	TotalUnits      int                      `json:"total_units"`
	RecentDonations []recentDonationResponse `json:"recent_donations"`
}

// GetAdminDashboard возвращает сводку по системе для кабинета администратора.
func (h *Handler) GetAdminDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.AdminDashboard(r.Context())
	if err != nil {
		h.logger.Error("admin dashboard error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	resp := adminDashboardResponse{
		TotalDonors:     stats.TotalDonors,
		TotalPatients:   stats.TotalPatients,
		PendingRequests: stats.PendingRequests,
		TotalUnits:      stats.TotalUnits,
		RecentDonations: make([]recentDonationResponse, 0, len(stats.RecentDonations)),
	}
	for _, d := range stats.RecentDonations {
		resp.RecentDonations = append(resp.RecentDonations, recentDonationResponse{
			ID:           d.ID,
			DonorID:      d.DonorID,
			DonationDate: d.DonationDate.Format(dateLayout),
			Units:        d.Units,
			BloodGroup:   d.BloodGroup,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type userSummaryResponse struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	BloodGroup string `json:"blood_group,omitempty"`
	IsActive   bool   `json:"is_active"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request, role model.Role) {
	users, err := h.service.ListUsersByRole(r.Context(), role)
	if err != nil {
		h.logger.Error("list users error", zap.Error(err), zap.String("role", string(role)))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	resp := make([]userSummaryResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, userSummaryResponse{
			ID:         u.ID,
			Username:   u.Username,
			FullName:   u.FullName,
			Email:      u.Email,
			Phone:      u.Phone,
			BloodGroup: u.BloodGroup,
			IsActive:   u.IsActive,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetDonors возвращает справочник доноров для администратора.
func (h *Handler) GetDonors(w http.ResponseWriter, r *http.Request) {
	h.listUsers(w, r, model.RoleDonor)
}

// GetPatients возвращает справочник пациентов для администратора.
func (h *Handler) GetPatients(w http.ResponseWriter, r *http.Request) {
	h.listUsers(w, r, model.RolePatient)
}

// GetAllRequests возвращает все заявки на кровь для администратора.
func (h *Handler) GetAllRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListRequests(r.Context())
	if err != nil {
		h.logger.Error("get all requests error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	resp := make([]requestResponse, 0, len(requests))
	for _, req := range requests {
		resp = append(resp, toRequestResponse(req))
	}

	writeJSON(w, http.StatusOK, resp)
}

func requestIDFromURL(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// ApproveRequest одобряет заявку на кровь, списывая единицы из реестра.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	requestID, err := requestIDFromURL(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	if err := h.service.ApproveRequest(r.Context(), requestID, identity.UserID); err != nil {
		switch {
		case errors.Is(err, repository.ErrRequestNotFound):
			writeError(w, http.StatusNotFound, "blood request not found")
		case errors.Is(err, repository.ErrInvalidRequestState):
			writeError(w, http.StatusConflict, "blood request is not pending")
		case errors.Is(err, repository.ErrInsufficientInventory):
			writeError(w, http.StatusConflict, "insufficient blood units available")
		default:
			h.logger.Error("approve request error", zap.Error(err), zap.Int64("requestID", requestID))
			writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type rejectRequestRequest struct {
	Notes string `json:"notes,omitempty"`
}

// RejectRequest отклоняет заявку на кровь без изменения реестра.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	requestID, err := requestIDFromURL(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	var req rejectRequestRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.service.RejectRequest(r.Context(), requestID, identity.UserID, req.Notes); err != nil {
		switch {
		case errors.Is(err, repository.ErrRequestNotFound):
			writeError(w, http.StatusNotFound, "blood request not found")
		case errors.Is(err, repository.ErrInvalidRequestState):
			writeError(w, http.StatusConflict, "blood request is not pending")
		default:
			h.logger.Error("reject request error", zap.Error(err), zap.Int64("requestID", requestID))
			writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

type inventoryOpRequest struct {
	BloodGroup string `json:"blood_group"`
	Units      int    `json:"units"`
	Note       string `json:"note,omitempty"`
}

func (h *Handler) inventoryOp(w http.ResponseWriter, r *http.Request, op func(adminID int64, req inventoryOpRequest) error) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req inventoryOpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !validation.IsValidBloodGroup(req.BloodGroup) {
		writeError(w, http.StatusUnprocessableEntity, "unknown blood group")
		return
	}

	if err := op(identity.UserID, req); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidUnits):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrInsufficientInventory):
			writeError(w, http.StatusConflict, "insufficient blood units available")
		default:
			h.logger.Error("inventory operation error", zap.Error(err), zap.String("bloodGroup", req.BloodGroup))
			writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// CreditInventory пополняет реестр крови вручную.
func (h *Handler) CreditInventory(w http.ResponseWriter, r *http.Request) {
	h.inventoryOp(w, r, func(adminID int64, req inventoryOpRequest) error {
		return h.service.CreditInventory(r.Context(), adminID, req.BloodGroup, req.Units, req.Note)
	})
}

// DebitInventory списывает единицы из реестра вручную.
func (h *Handler) DebitInventory(w http.ResponseWriter, r *http.Request) {
	h.inventoryOp(w, r, func(adminID int64, req inventoryOpRequest) error {
		return h.service.DebitInventory(r.Context(), adminID, req.BloodGroup, req.Units, req.Note)
	})
}

// AdjustInventory выставляет остаток группы крови в заданное значение.
func (h *Handler) AdjustInventory(w http.ResponseWriter, r *http.Request) {
	h.inventoryOp(w, r, func(adminID int64, req inventoryOpRequest) error {
		return h.service.AdjustInventory(r.Context(), adminID, req.BloodGroup, req.Units, req.Note)
	})
}

func (h *Handler) reportRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -service.DefaultReportDays)

	if v := r.URL.Query().Get("from"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("from must be YYYY-MM-DD")
		}
		from = d
	}
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("to must be YYYY-MM-DD")
		}
		to = d
	}

	return from, to, nil
}

// GetReport возвращает агрегированный отчёт за период в формате JSON.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.reportRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, err := h.service.BuildReport(r.Context(), from, to)
	if err != nil {
		h.logger.Error("build report error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

// ExportReport выгружает агрегированный отчёт за период в виде файла xlsx.
func (h *Handler) ExportReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.reportRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, err := h.service.BuildReport(r.Context(), from, to)
	if err != nil {
		h.logger.Error("build report error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	filename := fmt.Sprintf("blood_bank_report_%s.xlsx", to.Format(dateLayout))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	if err := report.WriteXLSX(w, rep); err != nil {
		h.logger.Error("export report error", zap.Error(err))
	}
}

type createCampRequest struct {
	Name         string `json:"name"`
	Location     string `json:"location"`
	CampDate     string `json:"camp_date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Organizer    string `json:"organizer,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
	Description  string `json:"description,omitempty"`
}

// CreateCamp создаёт новую акцию по сдаче крови.
func (h *Handler) CreateCamp(w http.ResponseWriter, r *http.Request) {
	var req createCampRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" || req.Location == "" || req.CampDate == "" {
		writeError(w, http.StatusBadRequest, "name, location and camp_date are required")
		return
	}

	campDate, err := time.Parse(dateLayout, req.CampDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "camp_date must be YYYY-MM-DD")
		return
	}

	camp, err := h.service.CreateCamp(r.Context(), &model.DonationCamp{
		Name:         req.Name,
		Location:     req.Location,
		CampDate:     campDate,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Organizer:    req.Organizer,
		ContactPhone: req.ContactPhone,
		Description:  req.Description,
	})
	if err != nil {
		h.logger.Error("create camp error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": camp.ID})
}
