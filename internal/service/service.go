// Package service реализует бизнес-логику сервиса банка крови.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/bloodbank-system/internal/metrics"
	"github.com/mmeshcher/bloodbank-system/internal/model"
	"github.com/mmeshcher/bloodbank-system/internal/repository"
)

// EligibilityDays задаёт минимальный интервал между донациями одного донора.
const EligibilityDays = 56

// ErrInvalidCredentials возвращается при неверном логине или пароле либо деактивированном пользователе.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoBloodGroup возвращается, если у донора не указана группа крови.
	ErrNoBloodGroup = errors.New("donor has no blood group on file")
	// ErrInvalidUnits возвращается при недопустимом количестве единиц в операции.
	ErrInvalidUnits = errors.New("invalid units value")
)

// EligibilityError возвращается при попытке донации до истечения 56-дневного окна.
type EligibilityError struct {
	DaysRemaining int
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("donor is not eligible yet, %d days remaining", e.DaysRemaining)
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, u *model.User) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	UpdateUserProfile(ctx context.Context, id int64, fullName, email, phone, address, bloodGroup string) error
	ListUsersByRole(ctx context.Context, role model.Role) ([]model.User, error)
	CountActiveUsersByRole(ctx context.Context, role model.Role) (int, error)
	CountRequestsByStatus(ctx context.Context, status model.RequestStatus) (int, error)
	ListRecentDonations(ctx context.Context, limit int) ([]model.Donation, error)
	ListInventory(ctx context.Context) ([]model.InventoryItem, error)
	GetUnits(ctx context.Context, bloodGroup string) (int, error)
	CreditInventory(ctx context.Context, bloodGroup string, units int, actorID int64, note string) error
	DebitInventory(ctx context.Context, bloodGroup string, units int, actorID int64, note string) error
	AdjustInventory(ctx context.Context, bloodGroup string, newUnits int, actorID int64, note string) error
	LastDonationDate(ctx context.Context, donorID int64) (*time.Time, error)
	CreateDonation(ctx context.Context, d *model.Donation) (int64, error)
	ListDonationsByDonor(ctx context.Context, donorID int64) ([]model.Donation, error)
	CreateRequest(ctx context.Context, req *model.BloodRequest) (int64, error)
	ListRequestsByPatient(ctx context.Context, patientID int64) ([]model.BloodRequest, error)
	ListRequests(ctx context.Context) ([]model.BloodRequest, error)
	ApproveRequest(ctx context.Context, requestID, adminID int64) error
	RejectRequest(ctx context.Context, requestID, adminID int64, notes string) error
	DonationTotals(ctx context.Context, from, to time.Time) ([]repository.GroupTotal, error)
	RequestTotals(ctx context.Context, from, to time.Time) ([]repository.GroupTotal, error)
	ListUpcomingCamps(ctx context.Context, from time.Time) ([]model.DonationCamp, error)
	CreateCamp(ctx context.Context, c *model.DonationCamp) (int64, error)
}

// Service содержит бизнес-логику сервиса банка крови.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterInput содержит данные регистрации нового пользователя.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	Role        model.Role
	FullName    string
	Phone       string
	Address     string
	BloodGroup  string
	DateOfBirth *time.Time
	Gender      string
}

// RegisterUser регистрирует нового пользователя. Роль фиксируется при создании и не меняется.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		FullName:     in.FullName,
		Phone:        in.Phone,
		Address:      in.Address,
		BloodGroup:   in.BloodGroup,
		DateOfBirth:  in.DateOfBirth,
		Gender:       in.Gender,
	}

	id, err := s.repo.CreateUser(ctx, u)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его запись.
// Деактивированные пользователи не могут войти.
func (s *Service) AuthenticateUser(ctx context.Context, username, password string) (*model.User, error) {
	u, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !u.IsActive {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// GetProfile возвращает профиль пользователя по идентификатору.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// UpdateProfile обновляет изменяемые поля профиля пользователя.
// Записанные ранее донации хранят группу крови на момент донации и не пересчитываются.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, fullName, email, phone, address, bloodGroup string) error {
	return s.repo.UpdateUserProfile(ctx, userID, fullName, email, phone, address, bloodGroup)
}

// daysBetween возвращает число полных календарных дней между двумя датами.
func daysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}

// RecordDonation записывает донацию текущим днём и пополняет реестр крови на одну единицу.
// Донор допускается, если прошлых донаций нет либо последняя была не менее 56 дней назад,
// граница включительно. Иначе возвращается EligibilityError без изменений состояния.
func (s *Service) RecordDonation(ctx context.Context, donorID int64, hemoglobin *float64, notes string) (*model.Donation, error) {
	donor, err := s.repo.GetUserByID(ctx, donorID)
	if err != nil {
		return nil, err
	}

	if donor.BloodGroup == "" {
		return nil, ErrNoBloodGroup
	}

	today := s.now()

	last, err := s.repo.LastDonationDate(ctx, donorID)
	if err != nil {
		return nil, err
	}
	if last != nil {
		daysSince := daysBetween(*last, today)
		if daysSince < EligibilityDays {
			return nil, &EligibilityError{DaysRemaining: EligibilityDays - daysSince}
		}
	}

	d := &model.Donation{
		DonorID:      donorID,
		DonationDate: time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC),
		Units:        1,
		// Группа крови фиксируется на момент донации: последующие правки профиля
		// не меняют историю.
		BloodGroup: donor.BloodGroup,
		Status:     "completed",
		Hemoglobin: hemoglobin,
		Notes:      notes,
	}

	id, err := s.repo.CreateDonation(ctx, d)
	if err != nil {
		return nil, err
	}
	d.ID = id

	metrics.DonationsRecorded.Inc()
	return d, nil
}

// ListDonations возвращает историю донаций донора.
func (s *Service) ListDonations(ctx context.Context, donorID int64) ([]model.Donation, error) {
	return s.repo.ListDonationsByDonor(ctx, donorID)
}

// DonorStats содержит сводку по донациям донора для его кабинета.
type DonorStats struct {
	TotalDonations int        `json:"total_donations"`
	LastDonation   *time.Time `json:"last_donation,omitempty"`
	NextEligible   *time.Time `json:"next_eligible,omitempty"`
	EligibleNow    bool       `json:"eligible_now"`
}

// DonorDashboard возвращает сводку по донациям донора и дату следующей допустимой донации.
func (s *Service) DonorDashboard(ctx context.Context, donorID int64) (*DonorStats, error) {
	donations, err := s.repo.ListDonationsByDonor(ctx, donorID)
	if err != nil {
		return nil, err
	}

	stats := &DonorStats{
		TotalDonations: len(donations),
		EligibleNow:    true,
	}

	if len(donations) > 0 {
		last := donations[0].DonationDate
		next := last.AddDate(0, 0, EligibilityDays)
		stats.LastDonation = &last
		stats.NextEligible = &next
		stats.EligibleNow = daysBetween(last, s.now()) >= EligibilityDays
	}

	return stats, nil
}

// SubmitRequest создаёт заявку пациента на кровь в статусе pending.
func (s *Service) SubmitRequest(ctx context.Context, patientID int64, bloodGroup string, units int, urgency model.Urgency, reason string, requiredBy *time.Time) (*model.BloodRequest, error) {
	if units <= 0 {
		return nil, fmt.Errorf("%w: units required must be positive", ErrInvalidUnits)
	}

	today := s.now()
	req := &model.BloodRequest{
		PatientID:     patientID,
		BloodGroup:    bloodGroup,
		UnitsRequired: units,
		Urgency:       urgency,
		Reason:        reason,
		Status:        model.RequestStatusPending,
		RequestDate:   time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC),
		RequiredBy:    requiredBy,
	}

	id, err := s.repo.CreateRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	req.ID = id

	metrics.RequestsSubmitted.Inc()
	return req, nil
}

// ListRequestsByPatient возвращает заявки пациента.
func (s *Service) ListRequestsByPatient(ctx context.Context, patientID int64) ([]model.BloodRequest, error) {
	return s.repo.ListRequestsByPatient(ctx, patientID)
}

// ListRequests возвращает все заявки на кровь для администратора.
func (s *Service) ListRequests(ctx context.Context) ([]model.BloodRequest, error) {
	return s.repo.ListRequests(ctx)
}

// recentLimit ограничивает число последних записей в сводках кабинетов.
const recentLimit = 5

// PatientStats содержит сводку по заявкам пациента для его кабинета.
type PatientStats struct {
	TotalRequests    int `json:"total_requests"`
	PendingRequests  int `json:"pending_requests"`
	ApprovedRequests int `json:"approved_requests"`
	RejectedRequests int `json:"rejected_requests"`
	Recent           []model.BloodRequest `json:"-"`
}

// PatientDashboard возвращает счётчики заявок пациента по статусам и последние заявки.
func (s *Service) PatientDashboard(ctx context.Context, patientID int64) (*PatientStats, error) {
	requests, err := s.repo.ListRequestsByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	stats := &PatientStats{TotalRequests: len(requests)}
	for _, req := range requests {
		switch req.Status {
		case model.RequestStatusPending:
			stats.PendingRequests++
		case model.RequestStatusApproved:
			stats.ApprovedRequests++
		case model.RequestStatusRejected:
			stats.RejectedRequests++
		}
	}

	if len(requests) > recentLimit {
		requests = requests[:recentLimit]
	}
	stats.Recent = requests

	return stats, nil
}

// AdminStats содержит сводку по системе для кабинета администратора.
type AdminStats struct {
	TotalDonors     int `json:"total_donors"`
	TotalPatients   int `json:"total_patients"`
	PendingRequests int `json:"pending_requests"`
	TotalUnits      int `json:"total_units"`
	RecentDonations []model.Donation `json:"-"`
}

// AdminDashboard возвращает число активных доноров и пациентов, ожидающие заявки,
// суммарный остаток единиц крови и последние донации.
func (s *Service) AdminDashboard(ctx context.Context) (*AdminStats, error) {
	donors, err := s.repo.CountActiveUsersByRole(ctx, model.RoleDonor)
	if err != nil {
		return nil, err
	}

	patients, err := s.repo.CountActiveUsersByRole(ctx, model.RolePatient)
	if err != nil {
		return nil, err
	}

	pending, err := s.repo.CountRequestsByStatus(ctx, model.RequestStatusPending)
	if err != nil {
		return nil, err
	}

	inventory, err := s.repo.ListInventory(ctx)
	if err != nil {
		return nil, err
	}

	recent, err := s.repo.ListRecentDonations(ctx, recentLimit)
	if err != nil {
		return nil, err
	}

	stats := &AdminStats{
		TotalDonors:     donors,
		TotalPatients:   patients,
		PendingRequests: pending,
		RecentDonations: recent,
	}
	for _, it := range inventory {
		stats.TotalUnits += it.UnitsAvailable
	}

	return stats, nil
}

// ListUsersByRole возвращает пользователей указанной роли для справочников администратора.
func (s *Service) ListUsersByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	return s.repo.ListUsersByRole(ctx, role)
}

// ApproveRequest одобряет заявку от имени администратора, списывая единицы крови.
// При нехватке остатка заявка остаётся pending и возвращается ErrInsufficientInventory.
func (s *Service) ApproveRequest(ctx context.Context, requestID, adminID int64) error {
	err := s.repo.ApproveRequest(ctx, requestID, adminID)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientInventory) {
			metrics.InventoryRefusals.Inc()
		}
		return err
	}

	metrics.RequestsResolved.WithLabelValues("approved").Inc()
	return nil
}

// RejectRequest отклоняет заявку от имени администратора без изменения реестра.
func (s *Service) RejectRequest(ctx context.Context, requestID, adminID int64, notes string) error {
	if err := s.repo.RejectRequest(ctx, requestID, adminID, notes); err != nil {
		return err
	}

	metrics.RequestsResolved.WithLabelValues("rejected").Inc()
	return nil
}

// ListInventory возвращает текущие остатки по группам крови.
func (s *Service) ListInventory(ctx context.Context) ([]model.InventoryItem, error) {
	return s.repo.ListInventory(ctx)
}

// GetUnits возвращает остаток единиц крови указанной группы.
func (s *Service) GetUnits(ctx context.Context, bloodGroup string) (int, error) {
	return s.repo.GetUnits(ctx, bloodGroup)
}

// CreditInventory пополняет реестр вручную от имени администратора.
func (s *Service) CreditInventory(ctx context.Context, adminID int64, bloodGroup string, units int, note string) error {
	if units <= 0 {
		return fmt.Errorf("%w: units must be positive", ErrInvalidUnits)
	}
	return s.repo.CreditInventory(ctx, bloodGroup, units, adminID, note)
}

// DebitInventory списывает единицы из реестра вручную от имени администратора.
func (s *Service) DebitInventory(ctx context.Context, adminID int64, bloodGroup string, units int, note string) error {
	if units <= 0 {
		return fmt.Errorf("%w: units must be positive", ErrInvalidUnits)
	}

	err := s.repo.DebitInventory(ctx, bloodGroup, units, adminID, note)
	if errors.Is(err, repository.ErrInsufficientInventory) {
		metrics.InventoryRefusals.Inc()
	}
	return err
}

// AdjustInventory выставляет остаток группы крови в заданное значение с записью в журнал движений.
func (s *Service) AdjustInventory(ctx context.Context, adminID int64, bloodGroup string, newUnits int, note string) error {
	if newUnits < 0 {
		return fmt.Errorf("%w: units must not be negative", ErrInvalidUnits)
	}
	return s.repo.AdjustInventory(ctx, bloodGroup, newUnits, adminID, note)
}

// ListUpcomingCamps возвращает предстоящие активные акции по сдаче крови.
func (s *Service) ListUpcomingCamps(ctx context.Context) ([]model.DonationCamp, error) {
	today := s.now()
	from := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return s.repo.ListUpcomingCamps(ctx, from)
}

// CreateCamp сохраняет новую акцию по сдаче крови.
func (s *Service) CreateCamp(ctx context.Context, c *model.DonationCamp) (*model.DonationCamp, error) {
	id, err := s.repo.CreateCamp(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id
	return c, nil
}
