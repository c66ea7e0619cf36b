package models

import "time"

// DashboardSummary mirrors the stat cards of the church dashboard.
type DashboardSummary struct {
	MembersCount        int       `json:"membersCount"`
	AttendanceRate      int       `json:"attendanceRate"`
	FinanceMonthGHS     float64   `json:"financeMonthGHS"`
	FinanceWeekGHS      float64   `json:"financeWeekGHS"`
	YellowCardSundayGHS float64   `json:"yellowCardSundayGHS"`
	TopFinanceCategory  string    `json:"topFinanceCategory"`
	PendingApprovals    int       `json:"pendingApprovals"`
	GeneratedAt         time.Time `json:"generatedAt"`
}

// FinanceCategories are the giving categories tracked on the dashboard, in tie-break order.
var FinanceCategories = []string{"First Offering", "Second Offering", "Tithe", "Seed Offering", "Yellow Card", "Other"}
