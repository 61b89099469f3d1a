package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/bloodbank-system/internal/middleware"
	"github.com/mmeshcher/bloodbank-system/internal/service"
)

type recordDonationRequest struct {
	Hemoglobin *float64 `json:"hemoglobin,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

type donationResponse struct {
	ID           int64    `json:"id"`
	DonationDate string   `json:"donation_date"`
	Units        int      `json:"units"`
	BloodGroup   string   `json:"blood_group"`
	Status       string   `json:"status"`
	Hemoglobin   *float64 `json:"hemoglobin,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// RecordDonation записывает донацию текущего донора.
func (h *Handler) RecordDonation(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req recordDonationRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	donation, err := h.service.RecordDonation(r.Context(), identity.UserID, req.Hemoglobin, req.Notes)
	if err != nil {
		var eligibility *service.EligibilityError
		switch {
		case errors.As(err, &eligibility):
			days := eligibility.DaysRemaining
			writeJSON(w, http.StatusConflict, errorResponse{
				Error:         "donor is not eligible yet",
				DaysRemaining: &days,
			})
		case errors.Is(err, service.ErrNoBloodGroup):
			writeError(w, http.StatusUnprocessableEntity, "blood group is not set in the profile")
		default:
			h.logger.Error("record donation error", zap.Error(err), zap.Int64("donorID", identity.UserID))
			writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
		return
	}

	writeJSON(w, http.StatusCreated, donationResponse{
		ID:           donation.ID,
		DonationDate: donation.DonationDate.Format(dateLayout),
		Units:        donation.Units,
		BloodGroup:   donation.BloodGroup,
		Status:       donation.Status,
		Hemoglobin:   donation.Hemoglobin,
		Notes:        donation.Notes,
	})
}

// GetDonations возвращает историю донаций текущего донора.
func (h *Handler) GetDonations(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	donations, err := h.service.ListDonations(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("get donations error", zap.Error(err), zap.Int64("donorID", identity.UserID))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	if len(donations) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]donationResponse, 0, len(donations))
	for _, d := range donations {
		resp = append(resp, donationResponse{
			ID:           d.ID,
			DonationDate: d.DonationDate.Format(dateLayout),
			Units:        d.Units,
			BloodGroup:   d.BloodGroup,
			Status:       d.Status,
			Hemoglobin:   d.Hemoglobin,
			Notes:        d.Notes,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetDonorDashboard возвращает сводку по донациям текущего донора.
func (h *Handler) GetDonorDashboard(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	stats, err := h.service.DonorDashboard(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("donor dashboard error", zap.Error(err), zap.Int64("donorID", identity.UserID))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
