package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/bloodbank-system/internal/model"
	"github.com/mmeshcher/bloodbank-system/internal/repository"
)

type stubRepo struct {
	user    *model.User
	userErr error

	lastDonation    *time.Time
	lastDonationErr error

	createdDonation   *model.Donation
	createDonationID  int64
	createDonationErr error

	createdRequest  *model.BloodRequest
	createRequestID int64

	approveErr  error
	rejectErr   error
	rejectNotes string

	inventory      []model.InventoryItem
	donationTotals []repository.GroupTotal
	requestTotals  []repository.GroupTotal

	donations []model.Donation

	creditCalled bool
	debitErr     error
	adjustUnits  *int

	camps  []model.DonationCamp
	campID int64

	usersByRole     map[model.Role][]model.User
	activeByRole    map[model.Role]int
	pendingRequests int
	recentDonations []model.Donation

	patientRequests []model.BloodRequest
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	return 1, nil
}

func (s *stubRepo) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.user, s.userErr
}

func (s *stubRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.user, s.userErr
}

func (s *stubRepo) UpdateUserProfile(ctx context.Context, id int64, fullName, email, phone, address, bloodGroup string) error {
	return nil
}

func (s *stubRepo) ListUsersByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	return s.usersByRole[role], nil
}

func (s *stubRepo) CountActiveUsersByRole(ctx context.Context, role model.Role) (int, error) {
	return s.activeByRole[role], nil
}

func (s *stubRepo) CountRequestsByStatus(ctx context.Context, status model.RequestStatus) (int, error) {
	return s.pendingRequests, nil
}

func (s *stubRepo) ListRecentDonations(ctx context.Context, limit int) ([]model.Donation, error) {
	if len(s.recentDonations) > limit {
		return s.recentDonations[:limit], nil
	}
	return s.recentDonations, nil
}

func (s *stubRepo) ListInventory(ctx context.Context) ([]model.InventoryItem, error) {
	return s.inventory, nil
}

func (s *stubRepo) GetUnits(ctx context.Context, bloodGroup string) (int, error) {
	for _, it := range s.inventory {
		if it.BloodGroup == bloodGroup {
			return it.UnitsAvailable, nil
		}
	}
	return 0, nil
}

func (s *stubRepo) CreditInventory(ctx context.Context, bloodGroup string, units int, actorID int64, note string) error {
	s.creditCalled = true
	return nil
}

func (s *stubRepo) DebitInventory(ctx context.Context, bloodGroup string, units int, actorID int64, note string) error {
	return s.debitErr
}

func (s *stubRepo) AdjustInventory(ctx context.Context, bloodGroup string, newUnits int, actorID int64, note string) error {
	s.adjustUnits = &newUnits
	return nil
}

func (s *stubRepo) LastDonationDate(ctx context.Context, donorID int64) (*time.Time, error) {
	return s.lastDonation, s.lastDonationErr
}

func (s *stubRepo) CreateDonation(ctx context.Context, d *model.Donation) (int64, error) {
	if s.createDonationErr != nil {
		return 0, s.createDonationErr
	}
	s.createdDonation = d
	return s.createDonationID, nil
}

func (s *stubRepo) ListDonationsByDonor(ctx context.Context, donorID int64) ([]model.Donation, error) {
	return s.donations, nil
}

func (s *stubRepo) CreateRequest(ctx context.Context, req *model.BloodRequest) (int64, error) {
	s.createdRequest = req
	return s.createRequestID, nil
}

func (s *stubRepo) ListRequestsByPatient(ctx context.Context, patientID int64) ([]model.BloodRequest, error) {
	return s.patientRequests, nil
}

func (s *stubRepo) ListRequests(ctx context.Context) ([]model.BloodRequest, error) {
	return nil, nil
}

func (s *stubRepo) ApproveRequest(ctx context.Context, requestID, adminID int64) error {
	return s.approveErr
}

func (s *stubRepo) RejectRequest(ctx context.Context, requestID, adminID int64, notes string) error {
	s.rejectNotes = notes
	return s.rejectErr
}

func (s *stubRepo) DonationTotals(ctx context.Context, from, to time.Time) ([]repository.GroupTotal, error) {
	return s.donationTotals, nil
}

func (s *stubRepo) RequestTotals(ctx context.Context, from, to time.Time) ([]repository.GroupTotal, error) {
	return s.requestTotals, nil
}

func (s *stubRepo) ListUpcomingCamps(ctx context.Context, from time.Time) ([]model.DonationCamp, error) {
	return s.camps, nil
}

func (s *stubRepo) CreateCamp(ctx context.Context, c *model.DonationCamp) (int64, error) {
	return s.campID, nil
}

func fixedNow() time.Time {
	return time.Date(2025, time.March, 15, 12, 30, 0, 0, time.UTC)
}

func newTestService(repo *stubRepo) *Service {
	return &Service{repo: repo, now: fixedNow}
}

func daysAgo(days int) *time.Time {
	d := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)
	return &d
}

func TestRecordDonation_FirstDonation(t *testing.T) {
	repo := &stubRepo{
		user:             &model.User{ID: 1, Role: model.RoleDonor, BloodGroup: "O+", IsActive: true},
		createDonationID: 10,
	}
	svc := newTestService(repo)

	d, err := svc.RecordDonation(context.Background(), 1, nil, "")
	if err != nil {
		t.Fatalf("RecordDonation error: %v", err)
	}

	if d.ID != 10 {
		t.Errorf("ID = %d, want 10", d.ID)
	}
	if d.Units != 1 {
		t.Errorf("Units = %d, want 1", d.Units)
	}
	if d.BloodGroup != "O+" {
		t.Errorf("BloodGroup = %q, want O+", d.BloodGroup)
	}

	wantDate := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	if !d.DonationDate.Equal(wantDate) {
		t.Errorf("DonationDate = %v, want %v", d.DonationDate, wantDate)
	}
}

func TestRecordDonation_IneligibleAfter40Days(t *testing.T) {
	repo := &stubRepo{
		user:         &model.User{ID: 1, Role: model.RoleDonor, BloodGroup: "A+", IsActive: true},
		lastDonation: daysAgo(40),
	}
	svc := newTestService(repo)

	_, err := svc.RecordDonation(context.Background(), 1, nil, "")

	var eligibility *EligibilityError
	if !errors.As(err, &eligibility) {
		t.Fatalf("expected EligibilityError, got %v", err)
	}
	if eligibility.DaysRemaining != 16 {
		t.Errorf("DaysRemaining = %d, want 16", eligibility.DaysRemaining)
	}
	if repo.createdDonation != nil {
		t.Errorf("donation must not be created for ineligible donor")
	}
}

func TestRecordDonation_EligibleOnDay56(t *testing.T) {
	repo := &stubRepo{
		user:             &model.User{ID: 1, Role: model.RoleDonor, BloodGroup: "B-", IsActive: true},
		lastDonation:     daysAgo(56),
		createDonationID: 7,
	}
	svc := newTestService(repo)

	d, err := svc.RecordDonation(context.Background(), 1, nil, "")
	if err != nil {
		t.Fatalf("donation on day 56 must be allowed, got %v", err)
	}
	if d.Units != 1 || d.BloodGroup != "B-" {
		t.Errorf("unexpected donation: %+v", d)
	}
}

func TestRecordDonation_IneligibleOnDay55(t *testing.T) {
	repo := &stubRepo{
		user:         &model.User{ID: 1, Role: model.RoleDonor, BloodGroup: "B-", IsActive: true},
		lastDonation: daysAgo(55),
	}
	svc := newTestService(repo)

	_, err := svc.RecordDonation(context.Background(), 1, nil, "")

	var eligibility *EligibilityError
	if !errors.As(err, &eligibility) {
		t.Fatalf("expected EligibilityError, got %v", err)
	}
	if eligibility.DaysRemaining != 1 {
		t.Errorf("DaysRemaining = %d, want 1", eligibility.DaysRemaining)
	}
}

func TestRecordDonation_NoBloodGroup(t *testing.T) {
	repo := &stubRepo{
		user: &model.User{ID: 1, Role: model.RoleDonor, IsActive: true},
	}
	svc := newTestService(repo)

	_, err := svc.RecordDonation(context.Background(), 1, nil, "")
	if !errors.Is(err, ErrNoBloodGroup) {
		t.Fatalf("expected ErrNoBloodGroup, got %v", err)
	}
	if repo.createdDonation != nil {
		t.Errorf("donation must not be created without a blood group")
	}
}

func TestRecordDonation_SnapshotsCurrentBloodGroup(t *testing.T) {
	repo := &stubRepo{
		user:             &model.User{ID: 1, Role: model.RoleDonor, BloodGroup: "AB+", IsActive: true},
		createDonationID: 3,
	}
	svc := newTestService(repo)

	d, err := svc.RecordDonation(context.Background(), 1, nil, "")
	if err != nil {
		t.Fatalf("RecordDonation error: %v", err)
	}
	if d.BloodGroup != "AB+" {
		t.Errorf("donation must snapshot the donor's current blood group, got %q", d.BloodGroup)
	}
}

func TestSubmitRequest_PositiveUnitsRequired(t *testing.T) {
	svc := newTestService(&stubRepo{})

	_, err := svc.SubmitRequest(context.Background(), 1, "O+", 0, model.UrgencyNormal, "", nil)
	if err == nil {
		t.Fatalf("expected error for zero units")
	}

	_, err = svc.SubmitRequest(context.Background(), 1, "O+", -3, model.UrgencyNormal, "", nil)
	if err == nil {
		t.Fatalf("expected error for negative units")
	}
}

func TestSubmitRequest_StartsPending(t *testing.T) {
	repo := &stubRepo{createRequestID: 5}
	svc := newTestService(repo)

	req, err := svc.SubmitRequest(context.Background(), 2, "AB-", 3, model.UrgencyUrgent, "surgery", nil)
	if err != nil {
		t.Fatalf("SubmitRequest error: %v", err)
	}

	if req.ID != 5 {
		t.Errorf("ID = %d, want 5", req.ID)
	}
	if req.Status != model.RequestStatusPending {
		t.Errorf("Status = %q, want pending", req.Status)
	}

	wantDate := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	if !req.RequestDate.Equal(wantDate) {
		t.Errorf("RequestDate = %v, want %v", req.RequestDate, wantDate)
	}
}

func TestApproveRequest_PropagatesInsufficientInventory(t *testing.T) {
	repo := &stubRepo{approveErr: repository.ErrInsufficientInventory}
	svc := newTestService(repo)

	err := svc.ApproveRequest(context.Background(), 1, 100)
	if !errors.Is(err, repository.ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory, got %v", err)
	}
}

func TestApproveRequest_PropagatesInvalidState(t *testing.T) {
	repo := &stubRepo{approveErr: repository.ErrInvalidRequestState}
	svc := newTestService(repo)

	err := svc.ApproveRequest(context.Background(), 1, 100)
	if !errors.Is(err, repository.ErrInvalidRequestState) {
		t.Fatalf("expected ErrInvalidRequestState, got %v", err)
	}
}

func TestRejectRequest_PassesNotes(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo)

	if err := svc.RejectRequest(context.Background(), 1, 100, "not enough justification"); err != nil {
		t.Fatalf("RejectRequest error: %v", err)
	}
	if repo.rejectNotes != "not enough justification" {
		t.Errorf("notes = %q, want them passed through", repo.rejectNotes)
	}
}

func TestAuthenticateUser_WrongPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("bcrypt error: %v", err)
	}

	repo := &stubRepo{
		user: &model.User{ID: 1, Username: "user", PasswordHash: hash, IsActive: true},
	}
	svc := newTestService(repo)

	_, err = svc.AuthenticateUser(context.Background(), "user", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateUser_InactiveUser(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("bcrypt error: %v", err)
	}

	repo := &stubRepo{
		user: &model.User{ID: 1, Username: "user", PasswordHash: hash, IsActive: false},
	}
	svc := newTestService(repo)

	_, err = svc.AuthenticateUser(context.Background(), "user", "pass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for inactive user, got %v", err)
	}
}

func TestAuthenticateUser_UnknownUser(t *testing.T) {
	repo := &stubRepo{userErr: repository.ErrUserNotFound}
	svc := newTestService(repo)

	_, err := svc.AuthenticateUser(context.Background(), "ghost", "pass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestDonorDashboard_NextEligible(t *testing.T) {
	last := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	repo := &stubRepo{
		donations: []model.Donation{
			{ID: 2, DonationDate: last},
			{ID: 1, DonationDate: last.AddDate(0, 0, -90)},
		},
	}
	svc := newTestService(repo)

	stats, err := svc.DonorDashboard(context.Background(), 1)
	if err != nil {
		t.Fatalf("DonorDashboard error: %v", err)
	}

	if stats.TotalDonations != 2 {
		t.Errorf("TotalDonations = %d, want 2", stats.TotalDonations)
	}

	wantNext := last.AddDate(0, 0, EligibilityDays)
	if stats.NextEligible == nil || !stats.NextEligible.Equal(wantNext) {
		t.Errorf("NextEligible = %v, want %v", stats.NextEligible, wantNext)
	}

	// 1 февраля + 42 дня до 15 марта: окно ещё не истекло.
	if stats.EligibleNow {
		t.Errorf("donor must not be eligible 42 days after the last donation")
	}
}

func TestDonorDashboard_NoDonations(t *testing.T) {
	svc := newTestService(&stubRepo{})

	stats, err := svc.DonorDashboard(context.Background(), 1)
	if err != nil {
		t.Fatalf("DonorDashboard error: %v", err)
	}

	if stats.TotalDonations != 0 || !stats.EligibleNow || stats.NextEligible != nil {
		t.Errorf("unexpected stats for donor without donations: %+v", stats)
	}
}

func TestPatientDashboard_CountsByStatus(t *testing.T) {
	repo := &stubRepo{
		patientRequests: []model.BloodRequest{
			{ID: 6, Status: model.RequestStatusPending},
			{ID: 5, Status: model.RequestStatusApproved},
			{ID: 4, Status: model.RequestStatusApproved},
			{ID: 3, Status: model.RequestStatusRejected},
			{ID: 2, Status: model.RequestStatusPending},
			{ID: 1, Status: model.RequestStatusApproved},
		},
	}
	svc := newTestService(repo)

	stats, err := svc.PatientDashboard(context.Background(), 2)
	if err != nil {
		t.Fatalf("PatientDashboard error: %v", err)
	}

	if stats.TotalRequests != 6 {
		t.Errorf("TotalRequests = %d, want 6", stats.TotalRequests)
	}
	if stats.PendingRequests != 2 {
		t.Errorf("PendingRequests = %d, want 2", stats.PendingRequests)
	}
	if stats.ApprovedRequests != 3 {
		t.Errorf("ApprovedRequests = %d, want 3", stats.ApprovedRequests)
	}
	if stats.RejectedRequests != 1 {
		t.Errorf("RejectedRequests = %d, want 1", stats.RejectedRequests)
	}

	if len(stats.Recent) != 5 {
		t.Fatalf("len(Recent) = %d, want 5", len(stats.Recent))
	}
	if stats.Recent[0].ID != 6 {
		t.Errorf("Recent[0].ID = %d, want the newest request first", stats.Recent[0].ID)
	}
}

func TestPatientDashboard_NoRequests(t *testing.T) {
	svc := newTestService(&stubRepo{})

	stats, err := svc.PatientDashboard(context.Background(), 2)
	if err != nil {
		t.Fatalf("PatientDashboard error: %v", err)
	}

	if stats.TotalRequests != 0 || stats.PendingRequests != 0 || len(stats.Recent) != 0 {
		t.Errorf("unexpected stats for patient without requests: %+v", stats)
	}
}

func TestAdminDashboard_Totals(t *testing.T) {
	repo := &stubRepo{
		activeByRole: map[model.Role]int{
			model.RoleDonor:   8,
			model.RolePatient: 3,
		},
		pendingRequests: 2,
		inventory: []model.InventoryItem{
			{BloodGroup: "O+", UnitsAvailable: 12},
			{BloodGroup: "A-", UnitsAvailable: 5},
		},
		recentDonations: []model.Donation{
			{ID: 9, DonorID: 1, BloodGroup: "O+"},
		},
	}
	svc := newTestService(repo)

	stats, err := svc.AdminDashboard(context.Background())
	if err != nil {
		t.Fatalf("AdminDashboard error: %v", err)
	}

	if stats.TotalDonors != 8 {
		t.Errorf("TotalDonors = %d, want 8", stats.TotalDonors)
	}
	if stats.TotalPatients != 3 {
		t.Errorf("TotalPatients = %d, want 3", stats.TotalPatients)
	}
	if stats.PendingRequests != 2 {
		t.Errorf("PendingRequests = %d, want 2", stats.PendingRequests)
	}
	if stats.TotalUnits != 17 {
		t.Errorf("TotalUnits = %d, want 17", stats.TotalUnits)
	}
	if len(stats.RecentDonations) != 1 || stats.RecentDonations[0].ID != 9 {
		t.Errorf("unexpected recent donations: %+v", stats.RecentDonations)
	}
}

func TestAdjustInventory_RejectsNegative(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo)

	if err := svc.AdjustInventory(context.Background(), 1, "O+", -1, ""); !errors.Is(err, ErrInvalidUnits) {
		t.Fatalf("expected ErrInvalidUnits for negative target, got %v", err)
	}
	if repo.adjustUnits != nil {
		t.Errorf("repository must not be called for negative target")
	}
}

func TestCreditInventory_RejectsNonPositive(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo)

	if err := svc.CreditInventory(context.Background(), 1, "O+", 0, ""); !errors.Is(err, ErrInvalidUnits) {
		t.Fatalf("expected ErrInvalidUnits for zero units, got %v", err)
	}
	if repo.creditCalled {
		t.Errorf("repository must not be called for zero units")
	}
}
