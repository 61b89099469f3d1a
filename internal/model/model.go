// Package model содержит доменные сущности сервиса банка крови.
package model

import "time"

// Role определяет роль пользователя в системе.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDonor   Role = "donor"
	RolePatient Role = "patient"
)

// User представляет зарегистрированного пользователя: администратора, донора или пациента.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash []byte
	Role         Role
	FullName     string
	Phone        string
	Address      string
	BloodGroup   string
	DateOfBirth  *time.Time
	Gender       string
	IsActive     bool
	CreatedAt    time.Time
}

// InventoryItem описывает остаток единиц крови по одной группе.
type InventoryItem struct {
	BloodGroup     string    `json:"blood_group"`
	UnitsAvailable int       `json:"units_available"`
	LastUpdated    time.Time `json:"last_updated"`
}

// MovementKind описывает тип движения по журналу склада крови.
type MovementKind string

const (
	MovementCredit MovementKind = "credit"
	MovementDebit  MovementKind = "debit"
	MovementAdjust MovementKind = "adjust"
)

// Donation представляет завершённую донацию. Запись неизменяема после создания.
type Donation struct {
	ID           int64
	DonorID      int64
	DonationDate time.Time
	Units        int
	BloodGroup   string
	Status       string
	Hemoglobin   *float64
	Notes        string
	CreatedAt    time.Time
}

// RequestStatus описывает статус заявки на кровь.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
	// RequestStatusFulfilled зарезервирован: переходов в него пока нет.
	RequestStatusFulfilled RequestStatus = "fulfilled"
)

// Urgency описывает срочность заявки на кровь.
type Urgency string

const (
	UrgencyUrgent Urgency = "urgent"
	UrgencyNormal Urgency = "normal"
	UrgencyLow    Urgency = "low"
)

// BloodRequest представляет заявку пациента на единицы крови.
type BloodRequest struct {
	ID            int64
	PatientID     int64
	BloodGroup    string
	UnitsRequired int
	Urgency       Urgency
	Reason        string
	Status        RequestStatus
	RequestDate   time.Time
	RequiredBy    *time.Time
	ResolvedBy    *int64
	ResolvedAt    *time.Time
	Notes         string
	CreatedAt     time.Time
}

// DonationCamp описывает выездную акцию по сдаче крови. Чисто информационная запись.
type DonationCamp struct {
	ID           int64
	Name         string
	Location     string
	CampDate     time.Time
	StartTime    string
	EndTime      string
	Organizer    string
	ContactPhone string
	Description  string
	IsActive     bool
	CreatedAt    time.Time
}
