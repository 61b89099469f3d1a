// Package handler содержит HTTP-обработчики API сервиса банка крови.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bloodbank-system/internal/middleware"
	"github.com/mmeshcher/bloodbank-system/internal/model"
	"github.com/mmeshcher/bloodbank-system/internal/repository"
	"github.com/mmeshcher/bloodbank-system/internal/service"
	"github.com/mmeshcher/bloodbank-system/internal/validation"
)

const dateLayout = "2006-01-02"

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, in service.RegisterInput) (int64, error)
	AuthenticateUser(ctx context.Context, username, password string) (*model.User, error)
	GetProfile(ctx context.Context, userID int64) (*model.User, error)
	UpdateProfile(ctx context.Context, userID int64, fullName, email, phone, address, bloodGroup string) error
	ListUsersByRole(ctx context.Context, role model.Role) ([]model.User, error)
	RecordDonation(ctx context.Context, donorID int64, hemoglobin *float64, notes string) (*model.Donation, error)
	ListDonations(ctx context.Context, donorID int64) ([]model.Donation, error)
	DonorDashboard(ctx context.Context, donorID int64) (*service.DonorStats, error)
	SubmitRequest(ctx context.Context, patientID int64, bloodGroup string, units int, urgency model.Urgency, reason string, requiredBy *time.Time) (*model.BloodRequest, error)
	ListRequestsByPatient(ctx context.Context, patientID int64) ([]model.BloodRequest, error)
	PatientDashboard(ctx context.Context, patientID int64) (*service.PatientStats, error)
	ListRequests(ctx context.Context) ([]model.BloodRequest, error)
	ApproveRequest(ctx context.Context, requestID, adminID int64) error
	RejectRequest(ctx context.Context, requestID, adminID int64, notes string) error
	ListInventory(ctx context.Context) ([]model.InventoryItem, error)
	GetUnits(ctx context.Context, bloodGroup string) (int, error)
	CreditInventory(ctx context.Context, adminID int64, bloodGroup string, units int, note string) error
	DebitInventory(ctx context.Context, adminID int64, bloodGroup string, units int, note string) error
	AdjustInventory(ctx context.Context, adminID int64, bloodGroup string, newUnits int, note string) error
	AdminDashboard(ctx context.Context) (*service.AdminStats, error)
	BuildReport(ctx context.Context, from, to time.Time) (*service.Report, error)
	ListUpcomingCamps(ctx context.Context) ([]model.DonationCamp, error)
	CreateCamp(ctx context.Context, c *model.DonationCamp) (*model.DonationCamp, error)
}

// Handler реализует HTTP-обработчики API сервиса банка крови.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error         string `json:"error"`
	DaysRemaining *int   `json:"days_remaining,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	FullName    string `json:"full_name"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	BloodGroup  string `json:"blood_group"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" || req.FullName == "" {
		writeError(w, http.StatusBadRequest, "username, email, password and full_name are required")
		return
	}

	role := model.Role(req.Role)
	if role != model.RoleAdmin && role != model.RoleDonor && role != model.RolePatient {
		writeError(w, http.StatusBadRequest, "role must be admin, donor or patient")
		return
	}

	if req.BloodGroup != "" && !validation.IsValidBloodGroup(req.BloodGroup) {
		writeError(w, http.StatusUnprocessableEntity, "unknown blood group")
		return
	}

	var dateOfBirth *time.Time
	if req.DateOfBirth != "" {
		d, err := time.Parse(dateLayout, req.DateOfBirth)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date_of_birth must be YYYY-MM-DD")
			return
		}
		dateOfBirth = &d
	}

	userID, err := h.service.RegisterUser(r.Context(), service.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		Role:        role,
		FullName:    req.FullName,
		Phone:       req.Phone,
		Address:     req.Address,
		BloodGroup:  req.BloodGroup,
		DateOfBirth: dateOfBirth,
		Gender:      req.Gender,
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			writeError(w, http.StatusConflict, "username or email already exists")
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, userID, role); err != nil {
		h.logger.Error("set auth cookie error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": userID})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию пользователя и установку cookie с ролью.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, user.ID, user.Role); err != nil {
		h.logger.Error("set auth cookie error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"role": string(user.Role)})
}

// Logout сбрасывает cookie авторизации текущего пользователя.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}

type profileResponse struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	FullName    string `json:"full_name"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	BloodGroup  string `json:"blood_group,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Gender      string `json:"gender,omitempty"`
}

// GetProfile возвращает профиль текущего пользователя.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	user, err := h.service.GetProfile(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("get profile error", zap.Error(err), zap.Int64("userID", identity.UserID))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	resp := profileResponse{
		ID:         user.ID,
		Username:   user.Username,
		Email:      user.Email,
		Role:       string(user.Role),
		FullName:   user.FullName,
		Phone:      user.Phone,
		Address:    user.Address,
		BloodGroup: user.BloodGroup,
		Gender:     user.Gender,
	}
	if user.DateOfBirth != nil {
		resp.DateOfBirth = user.DateOfBirth.Format(dateLayout)
	}

	writeJSON(w, http.StatusOK, resp)
}

type updateProfileRequest struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	BloodGroup string `json:"blood_group"`
}

// UpdateProfile обновляет профиль текущего пользователя. Роль не меняется.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.FullName == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "full_name and email are required")
		return
	}

	if req.BloodGroup != "" && !validation.IsValidBloodGroup(req.BloodGroup) {
		writeError(w, http.StatusUnprocessableEntity, "unknown blood group")
		return
	}

	err := h.service.UpdateProfile(r.Context(), identity.UserID, req.FullName, req.Email, req.Phone, req.Address, req.BloodGroup)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserExists):
			writeError(w, http.StatusConflict, "email already in use")
		case errors.Is(err, repository.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		default:
			h.logger.Error("update profile error", zap.Error(err), zap.Int64("userID", identity.UserID))
			writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetInventory возвращает текущие остатки крови по группам. Доступно всем ролям.
func (h *Handler) GetInventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListInventory(r.Context())
	if err != nil {
		h.logger.Error("get inventory error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	if items == nil {
		items = []model.InventoryItem{}
	}

	writeJSON(w, http.StatusOK, items)
}

type campResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Location     string `json:"location"`
	CampDate     string `json:"camp_date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Organizer    string `json:"organizer,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
	Description  string `json:"description,omitempty"`
}

// GetCamps возвращает предстоящие акции по сдаче крови.
func (h *Handler) GetCamps(w http.ResponseWriter, r *http.Request) {
	camps, err := h.service.ListUpcomingCamps(r.Context())
	if err != nil {
		h.logger.Error("get camps error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	resp := make([]campResponse, 0, len(camps))
	for _, c := range camps {
		resp = append(resp, campResponse{
			ID:           c.ID,
			Name:         c.Name,
			Location:     c.Location,
			CampDate:     c.CampDate.Format(dateLayout),
			StartTime:    c.StartTime,
			EndTime:      c.EndTime,
			Organizer:    c.Organizer,
			ContactPhone: c.ContactPhone,
			Description:  c.Description,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
