package service

import (
	"fmt"

	"github.com/noah-isme/sma-risk-engine/internal/models"
)

// Thresholds applied by ScoreRisk.
const (
	AttendanceRateThreshold   = 0.75
	RecentAbsenceDays         = 3
	RecentAbsenceThreshold    = 3
	AttendanceHighAbsences    = 3
	AttendanceCriticalAbsence = 5
	AcademicFailingAverage    = 50.0
	FinancialOverdueDays      = 30
	FinancialCriticalBalance  = 1000.0
)

// riskRule is one tagged evaluator. It reports the signal for its type, if any.
type riskRule struct {
	riskType models.RiskType
	evaluate func(models.StudentFacts) (models.RiskSignal, bool)
}

var riskRules = []riskRule{
	{riskType: models.RiskTypeAttendance, evaluate: attendanceRisk},
	{riskType: models.RiskTypeAcademic, evaluate: academicRisk},
	{riskType: models.RiskTypeFinancial, evaluate: financialRisk},
}

// ScoreRisk classifies a fact snapshot. It is pure: the same facts always yield
// the same signals in the same order, and multi is appended last when two or
// more independent types trip.
func ScoreRisk(facts models.StudentFacts) []models.RiskSignal {
	signals := make([]models.RiskSignal, 0, len(riskRules)+1)
	for _, rule := range riskRules {
		if signal, ok := rule.evaluate(facts); ok {
			signal.Type = rule.riskType
			signals = append(signals, signal)
		}
	}
	if len(signals) >= 2 {
		severity := signals[0].Severity
		tripped := make([]models.RiskType, 0, len(signals))
		for _, signal := range signals {
			severity = models.MaxSeverity(severity, signal.Severity)
			tripped = append(tripped, signal.Type)
		}
		signals = append(signals, models.RiskSignal{
			Type:     models.RiskTypeMulti,
			Severity: severity,
			Reason:   fmt.Sprintf("multiple risk types detected: %v", tripped),
		})
	}
	return signals
}

func attendanceRisk(facts models.StudentFacts) (models.RiskSignal, bool) {
	counts := facts.Attendance
	lowRate := counts.Rate() < AttendanceRateThreshold
	streak := facts.RecentAbsences >= RecentAbsenceThreshold
	if !lowRate && !streak {
		return models.RiskSignal{}, false
	}

	severity := models.RiskSeverityMedium
	switch {
	case counts.Absent >= AttendanceCriticalAbsence:
		severity = models.RiskSeverityCritical
	case counts.Absent >= AttendanceHighAbsences:
		severity = models.RiskSeverityHigh
	}

	var reason string
	switch {
	case counts.Total() == 0:
		reason = "no attendance recorded in window"
	case lowRate:
		reason = fmt.Sprintf("attendance rate %.0f%% over %d recorded sessions", counts.Rate()*100, counts.Total())
	default:
		reason = fmt.Sprintf("%d absences in the last %d days", facts.RecentAbsences, RecentAbsenceDays)
	}
	return models.RiskSignal{Severity: severity, Reason: reason}, true
}

func academicRisk(facts models.StudentFacts) (models.RiskSignal, bool) {
	if facts.AcademicAverage == nil || *facts.AcademicAverage >= AcademicFailingAverage {
		return models.RiskSignal{}, false
	}
	return models.RiskSignal{
		Severity: models.RiskSeverityHigh,
		Reason:   fmt.Sprintf("academic average %.1f below %.0f", *facts.AcademicAverage, AcademicFailingAverage),
	}, true
}

func financialRisk(facts models.StudentFacts) (models.RiskSignal, bool) {
	standing := facts.Financial
	if standing.OutstandingBalance <= 0 || standing.MaxDaysOverdue < FinancialOverdueDays {
		return models.RiskSignal{}, false
	}

	severity := models.RiskSeverityLow
	switch {
	case standing.OutstandingBalance > FinancialCriticalBalance && standing.MaxDaysOverdue > 90:
		severity = models.RiskSeverityCritical
	case standing.MaxDaysOverdue > 60:
		severity = models.RiskSeverityHigh
	case standing.MaxDaysOverdue > 30:
		severity = models.RiskSeverityMedium
	}
	return models.RiskSignal{
		Severity: severity,
		Reason:   fmt.Sprintf("outstanding balance %.2f, %d days overdue", standing.OutstandingBalance, standing.MaxDaysOverdue),
	}, true
}
