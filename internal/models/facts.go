package models

import "time"

// FactWindow is a half-open [From, To) time range used for fact queries.
type FactWindow struct {
	From time.Time
	To   time.Time
}

// TrailingWindow returns the window of the given number of days ending at now.
func TrailingWindow(now time.Time, days int) FactWindow {
	return FactWindow{From: now.AddDate(0, 0, -days), To: now}
}

// CalendarWindow covers today plus the previous days-1 calendar dates in now's location.
func CalendarWindow(now time.Time, days int) FactWindow {
	start := now.AddDate(0, 0, -(days - 1))
	return FactWindow{
		From: time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, now.Location()),
		To:   now,
	}
}

// AttendanceCounts aggregates attendance records by outcome.
type AttendanceCounts struct {
	Present int `db:"present" json:"present"`
	Absent  int `db:"absent" json:"absent"`
	Late    int `db:"late" json:"late"`
	Excused int `db:"excused" json:"excused"`
}

// Total is the number of recorded sessions.
func (c AttendanceCounts) Total() int {
	return c.Present + c.Absent + c.Late + c.Excused
}

// Rate is (present + late) / total, or 0 when nothing was recorded.
func (c AttendanceCounts) Rate() float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	return float64(c.Present+c.Late) / float64(total)
}

// FinancialStanding summarises unpaid and partially paid invoices.
type FinancialStanding struct {
	OutstandingBalance float64 `db:"outstanding_balance" json:"outstanding_balance"`
	MaxDaysOverdue     int     `db:"max_days_overdue" json:"max_days_overdue"`
}

// StudentFacts is the snapshot the scorer classifies. AcademicAverage is nil when no scores exist.
type StudentFacts struct {
	Attendance      AttendanceCounts  `json:"attendance"`
	RecentAbsences  int               `json:"recent_absences"`
	AcademicAverage *float64          `json:"academic_average,omitempty"`
	Financial       FinancialStanding `json:"financial"`
}
