package service

import (
	"context"
	"time"

	"github.com/mmeshcher/bloodbank-system/internal/repository"
)

// Пороговые значения запаса крови в единицах.
const (
	criticalThreshold = 10
	lowThreshold      = 20
)

// StockStatus классифицирует текущий запас группы крови.
type StockStatus string

const (
	StockCritical StockStatus = "Critical"
	StockLow      StockStatus = "Low"
	StockGood     StockStatus = "Good"
)

// ClassifyStock относит остаток к уровню запаса: Critical (<10), Low (<20), иначе Good.
func ClassifyStock(units int) StockStatus {
	switch {
	case units < criticalThreshold:
		return StockCritical
	case units < lowThreshold:
		return StockLow
	default:
		return StockGood
	}
}

// InventoryStatus описывает строку отчёта по текущему запасу.
type InventoryStatus struct {
	BloodGroup  string      `json:"blood_group"`
	Units       int         `json:"units_available"`
	Status      StockStatus `json:"status"`
	LastUpdated time.Time   `json:"last_updated"`
}

// GroupSummary описывает агрегат по группе крови за период.
type GroupSummary struct {
	BloodGroup string `json:"blood_group"`
	Units      int    `json:"units"`
	Count      int    `json:"count"`
}

// Report содержит агрегированные данные за период для отображения и экспорта.
// Кодирование в конкретный формат выполняется поверх этой структуры.
type Report struct {
	From      time.Time         `json:"from"`
	To        time.Time         `json:"to"`
	Inventory []InventoryStatus `json:"inventory"`
	Donations []GroupSummary    `json:"donations"`
	Requests  []GroupSummary    `json:"requests"`
}

// DefaultReportDays задаёт период отчёта по умолчанию.
const DefaultReportDays = 30

// BuildReport собирает отчёт: донации и заявки по группам крови за период [from, to]
// вместе с текущим срезом реестра и классификацией запаса.
func (s *Service) BuildReport(ctx context.Context, from, to time.Time) (*Report, error) {
	inventory, err := s.repo.ListInventory(ctx)
	if err != nil {
		return nil, err
	}

	donations, err := s.repo.DonationTotals(ctx, from, to)
	if err != nil {
		return nil, err
	}

	requests, err := s.repo.RequestTotals(ctx, from, to)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		From:      from,
		To:        to,
		Inventory: make([]InventoryStatus, 0, len(inventory)),
		Donations: toSummaries(donations),
		Requests:  toSummaries(requests),
	}

	for _, it := range inventory {
		rep.Inventory = append(rep.Inventory, InventoryStatus{
			BloodGroup:  it.BloodGroup,
			Units:       it.UnitsAvailable,
			Status:      ClassifyStock(it.UnitsAvailable),
			LastUpdated: it.LastUpdated,
		})
	}

	return rep, nil
}

func toSummaries(totals []repository.GroupTotal) []GroupSummary {
	res := make([]GroupSummary, 0, len(totals))
	for _, t := range totals {
		res = append(res, GroupSummary{
			BloodGroup: t.BloodGroup,
			Units:      t.Units,
			Count:      t.Count,
		})
	}
	return res
}
