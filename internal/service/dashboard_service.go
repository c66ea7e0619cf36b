package service

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gracetrack-api/internal/models"
)

type pendingCounter interface {
	CountPending(ctx context.Context, churchID string) (int, error)
}

// DashboardService computes the stat cards shown on the church dashboard.
type DashboardService struct {
	records  recordStore
	requests pendingCounter
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewDashboardService constructs the service. cache may be nil.
func NewDashboardService(records recordStore, requests pendingCounter, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		records:  records,
		requests: requests,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func dashboardCacheKey(churchID string) string {
	return "dashboard:summary:" + churchID
}

// Summary returns the dashboard counters and whether they came from cache.
func (s *DashboardService) Summary(ctx context.Context, churchID string) (*models.DashboardSummary, bool, error) {
	return Remember(ctx, s.cache, dashboardCacheKey(churchID), s.cacheTTL, func(ctx context.Context) (*models.DashboardSummary, error) {
		return s.compute(ctx, churchID)
	})
}

func (s *DashboardService) compute(ctx context.Context, churchID string) (*models.DashboardSummary, error) {
	members, err := s.records.List(ctx, churchID, models.RecordFilter{Entity: models.EntityMembers})
	if err != nil {
		return nil, storeError(err, "members not found", "failed to load members")
	}
	attendance, err := s.records.List(ctx, churchID, models.RecordFilter{Entity: models.EntityAttendance})
	if err != nil {
		return nil, storeError(err, "attendance not found", "failed to load attendance")
	}
	finance, err := s.records.List(ctx, churchID, models.RecordFilter{Entity: models.EntityFinance})
	if err != nil {
		return nil, storeError(err, "finance not found", "failed to load finance")
	}
	pending, err := s.requests.CountPending(ctx, churchID)
	if err != nil {
		return nil, storeError(err, "edit requests not found", "failed to count pending requests")
	}

	now := s.now()
	entries := decodeFinance(finance)
	return &models.DashboardSummary{
		MembersCount:        len(members),
		AttendanceRate:      overallAttendanceRate(decodeAttendance(attendance)),
		FinanceMonthGHS:     sumFinanceForMonth(entries, now),
		FinanceWeekGHS:      sumFinanceSince(entries, now.AddDate(0, 0, -7)),
		YellowCardSundayGHS: sumFinanceByCategoryAndDay(entries, "Yellow Card", time.Sunday),
		TopFinanceCategory:  topFinanceCategory(entries),
		PendingApprovals:    pending,
		GeneratedAt:         now,
	}, nil
}

// Invalidate drops the cached summary of a church.
func (s *DashboardService) Invalidate(ctx context.Context, churchID string) {
	if err := s.cache.Delete(ctx, dashboardCacheKey(churchID)); err != nil {
		s.logger.Debug("dashboard cache invalidation failed", zap.String("church_id", churchID), zap.Error(err))
	}
}

// HandleChange invalidates the summary whenever a counted collection changes.
func (s *DashboardService) HandleChange(ctx context.Context, event models.ChangeEvent) {
	switch event.Collection {
	case models.CollectionMembers, models.CollectionAttendance, models.CollectionFinance, models.CollectionEditRequests:
		s.Invalidate(ctx, event.ChurchID)
	}
}

func decodeAttendance(records []models.Record) []models.Attendance {
	out := make([]models.Attendance, 0, len(records))
	for _, rec := range records {
		var a models.Attendance
		if err := json.Unmarshal(rec.Data, &a); err == nil {
			out = append(out, a)
		}
	}
	return out
}

func decodeFinance(records []models.Record) []models.FinanceEntry {
	out := make([]models.FinanceEntry, 0, len(records))
	for _, rec := range records {
		var f models.FinanceEntry
		if err := json.Unmarshal(rec.Data, &f); err == nil {
			out = append(out, f)
		}
	}
	return out
}

func attendanceRate(a models.Attendance) float64 {
	present := 0
	if a.Present != nil {
		present = *a.Present
	}
	expected := 0
	if a.Expected != nil {
		expected = *a.Expected
	}
	if present == 0 || expected == 0 {
		if present > 0 {
			return 100
		}
		return 0
	}
	return math.Round(float64(present) / float64(expected) * 100)
}

// overallAttendanceRate is the mean of per-event rates, rounded and capped at 100.
func overallAttendanceRate(items []models.Attendance) int {
	if len(items) == 0 {
		return 0
	}
	total := 0.0
	for _, a := range items {
		total += attendanceRate(a)
	}
	rate := math.Round(total / float64(len(items)))
	if rate > 100 {
		rate = 100
	}
	return int(rate)
}

func financeDate(f models.FinanceEntry) (time.Time, bool) {
	if f.Date == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", f.Date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func sumFinanceForMonth(entries []models.FinanceEntry, now time.Time) float64 {
	total := 0.0
	for _, f := range entries {
		if d, ok := financeDate(f); ok && d.Year() == now.Year() && d.Month() == now.Month() {
			total += f.AmountGHS
		}
	}
	return total
}

func sumFinanceSince(entries []models.FinanceEntry, cutoff time.Time) float64 {
	total := 0.0
	for _, f := range entries {
		if d, ok := financeDate(f); ok && !d.Before(cutoff) {
			total += f.AmountGHS
		}
	}
	return total
}

func sumFinanceByCategoryAndDay(entries []models.FinanceEntry, category string, day time.Weekday) float64 {
	total := 0.0
	for _, f := range entries {
		if f.Category != category {
			continue
		}
		if d, ok := financeDate(f); ok && d.Weekday() == day {
			total += f.AmountGHS
		}
	}
	return total
}

func topFinanceCategory(entries []models.FinanceEntry) string {
	best := models.FinanceCategories[0]
	bestAmount := math.Inf(-1)
	for _, category := range models.FinanceCategories {
		amount := 0.0
		for _, f := range entries {
			if f.Category == category {
				amount += f.AmountGHS
			}
		}
		if amount > bestAmount {
			best, bestAmount = category, amount
		}
	}
	return best
}
