package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-risk-engine/internal/dto"
	"github.com/noah-isme/sma-risk-engine/internal/models"
	appErrors "github.com/noah-isme/sma-risk-engine/pkg/errors"
)

type riskFixture struct {
	svc           *RiskCaseService
	cases         *memRiskCases
	facts         *factsStub
	audit         *memAudit
	notifications *memNotifications
	directory     *directoryStub
	tx            *txStub
}

func newRiskFixture(seed ...models.RiskCase) *riskFixture {
	f := &riskFixture{
		cases:         newMemRiskCases(seed...),
		facts:         &factsStub{},
		audit:         &memAudit{},
		notifications: newMemNotifications(),
		directory:     &directoryStub{byStudent: map[string][]string{"student-1": {"teacher-1", "teacher-2", "teacher-1"}}},
		tx:            &txStub{},
	}
	f.svc = NewRiskCaseService(f.cases, f.facts, newTestRecorder(f.audit), f.tx, nil,
		WithRiskCaseIDs(sequentialIDs("case")),
		WithRiskCaseClock(fixedClock),
		WithCaseOpenNotifications(f.directory, f.notifications),
	)
	return f
}

var (
	systemScope  = models.SystemScope("tenant-1")
	counselor    = models.Scope{TenantID: "tenant-1", ActorID: "counselor-1", Role: models.RoleCounselor}
	poorAttender = models.StudentFacts{Attendance: models.AttendanceCounts{Present: 3, Absent: 2}}
	truant       = models.StudentFacts{Attendance: models.AttendanceCounts{Present: 5, Absent: 6}}
)

func activeCase(id string, riskType models.RiskType, severity models.RiskSeverity) models.RiskCase {
	return models.RiskCase{
		ID: id, TenantID: "tenant-1", StudentID: "student-1", RiskType: riskType,
		Severity: severity, Status: models.RiskCaseStatusOpen, Reason: "seeded",
		OpenedBy: models.SystemActor, OpenedAt: fixedNow, UpdatedAt: fixedNow,
	}
}

func TestEvaluateStudentRiskOpensCase(t *testing.T) {
	f := newRiskFixture()
	f.facts.set(poorAttender)

	cases, err := f.svc.EvaluateStudentRisk(context.Background(), systemScope, "student-1")
	require.NoError(t, err)
	require.Len(t, cases, 1)
	rc := cases[0]
	assert.Equal(t, models.RiskTypeAttendance, rc.RiskType)
	assert.Equal(t, models.RiskSeverityMedium, rc.Severity)
	assert.Equal(t, models.RiskCaseStatusOpen, rc.Status)
	assert.Equal(t, models.SystemActor, rc.OpenedBy)

	entry := f.audit.last()
	assert.Equal(t, models.AuditActionRiskCaseOpened, entry.Action)
	assert.Nil(t, entry.ActorUserID)
	assert.JSONEq(t, "null", string(entry.BeforeState))

	var after models.RiskCase
	require.NoError(t, json.Unmarshal(entry.AfterState, &after))
	assert.Equal(t, rc, after)

	assert.Zero(t, f.notifications.count(), "medium cases do not notify teachers")
}

func TestEvaluateStudentRiskIsIdempotent(t *testing.T) {
	f := newRiskFixture()
	f.facts.set(truant)

	first, err := f.svc.EvaluateStudent(context.Background(), systemScope, "student-1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)
	writes := f.cases.writes()
	audits := len(f.audit.actions())

	second, err := f.svc.EvaluateStudent(context.Background(), systemScope, "student-1")
	require.NoError(t, err)
	assert.Zero(t, second.Created+second.Updated+second.Resolved)
	assert.Equal(t, len(models.EvaluatedRiskTypes), second.Unchanged)
	assert.Equal(t, writes, f.cases.writes())
	assert.Len(t, f.audit.actions(), audits)
	assert.Equal(t, first.Cases, second.Cases)
}

func TestEvaluateStudentRiskNotifiesTeachersOfCriticalCase(t *testing.T) {
	f := newRiskFixture()
	f.facts.set(truant)

	_, err := f.svc.EvaluateStudentRisk(context.Background(), systemScope, "student-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"teacher-1", "teacher-2"}, f.notifications.recipients("case-1"))
}

func TestEvaluateStudentRiskUpgradesOnly(t *testing.T) {
	t.Run("higher severity upgrades", func(t *testing.T) {
		f := newRiskFixture(activeCase("case-a", models.RiskTypeAttendance, models.RiskSeverityMedium))
		f.facts.set(truant)

		eval, err := f.svc.EvaluateStudent(context.Background(), systemScope, "student-1")
		require.NoError(t, err)
		assert.Equal(t, 1, eval.Updated)
		require.Len(t, eval.Cases, 1)
		assert.Equal(t, "case-a", eval.Cases[0].ID)
		assert.Equal(t, models.RiskSeverityCritical, eval.Cases[0].Severity)

		entry := f.audit.last()
		assert.Equal(t, models.AuditActionRiskCaseSeverityUpgraded, entry.Action)
		var before models.RiskCase
		require.NoError(t, json.Unmarshal(entry.BeforeState, &before))
		assert.Equal(t, models.RiskSeverityMedium, before.Severity)
	})

	t.Run("lower severity leaves case alone", func(t *testing.T) {
		f := newRiskFixture(activeCase("case-a", models.RiskTypeAttendance, models.RiskSeverityCritical))
		f.facts.set(poorAttender)

		eval, err := f.svc.EvaluateStudent(context.Background(), systemScope, "student-1")
		require.NoError(t, err)
		assert.Zero(t, eval.Updated)
		require.Len(t, eval.Cases, 1)
		assert.Equal(t, models.RiskSeverityCritical, eval.Cases[0].Severity)
		assert.Zero(t, f.cases.writes())
	})
}

func TestEvaluateStudentRiskResolvesClearedCases(t *testing.T) {
	f := newRiskFixture(
		activeCase("case-a", models.RiskTypeAcademic, models.RiskSeverityHigh),
		activeCase("case-b", models.RiskTypeBehavior, models.RiskSeverityHigh),
	)
	f.facts.set(models.StudentFacts{Attendance: attended, AcademicAverage: avg(80)})

	eval, err := f.svc.EvaluateStudent(context.Background(), systemScope, "student-1")
	require.NoError(t, err)
	assert.Equal(t, 1, eval.Resolved)
	require.Len(t, eval.Cases, 1)
	resolved := eval.Cases[0]
	assert.Equal(t, models.RiskCaseStatusResolved, resolved.Status)
	assert.Nil(t, resolved.ClosedBy)
	require.NotNil(t, resolved.ClosedAt)

	assert.Len(t, f.cases.active("tenant-1", "student-1", models.RiskTypeBehavior), 1, "behaviour cases are never auto-resolved")
	assert.Equal(t, models.AuditActionRiskCaseResolved, f.audit.last().Action)
}

func TestEvaluateStudentRiskWithoutAttendanceRecords(t *testing.T) {
	f := newRiskFixture()
	f.facts.set(models.StudentFacts{AcademicAverage: avg(80)})

	cases, err := f.svc.EvaluateStudentRisk(context.Background(), systemScope, "student-1")
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, models.RiskTypeAttendance, cases[0].RiskType)
	assert.Equal(t, models.RiskSeverityMedium, cases[0].Severity)
}

func TestEvaluateStudentRiskStreakUsesCalendarDays(t *testing.T) {
	f := newRiskFixture()
	f.facts.set(models.StudentFacts{Attendance: attended})

	_, err := f.svc.EvaluateStudentRisk(context.Background(), systemScope, "student-1")
	require.NoError(t, err)

	recent := f.facts.shortestWindow()
	assert.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), recent.From)
	assert.Equal(t, fixedNow, recent.To)
	assert.Equal(t, fixedNow.YearDay()-recent.From.YearDay()+1, RecentAbsenceDays)
}

func TestEvaluateStudentRiskFactsUnavailable(t *testing.T) {
	f := newRiskFixture()
	f.facts.err = errors.New("attendance store down")

	_, err := f.svc.EvaluateStudentRisk(context.Background(), systemScope, "student-1")
	require.ErrorIs(t, err, appErrors.ErrUpstreamUnavailable)
	assert.Zero(t, f.cases.writes())
	assert.Empty(t, f.audit.actions())
}

func TestEvaluateStudentRiskRequiresTenant(t *testing.T) {
	f := newRiskFixture()
	_, err := f.svc.EvaluateStudentRisk(context.Background(), models.Scope{}, "student-1")
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestEvaluateStudentRiskAuditFailureAbortsWrite(t *testing.T) {
	f := newRiskFixture()
	f.facts.set(poorAttender)
	f.audit.appendErr = errors.New("disk full")

	_, err := f.svc.EvaluateStudentRisk(context.Background(), systemScope, "student-1")
	require.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestEvaluateStudentRiskConcurrentCallsKeepOneActiveCase(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("parallel evaluations leave exactly one active case per type", prop.ForAll(
		func(workers int) bool {
			f := newRiskFixture()
			f.facts.set(truant)

			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := f.svc.EvaluateStudentRisk(context.Background(), systemScope, "student-1")
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				if err != nil {
					return false
				}
			}
			return len(f.cases.active("tenant-1", "student-1", models.RiskTypeAttendance)) == 1 &&
				f.notifications.count() == 2
		},
		gen.IntRange(2, 12),
	))

	properties.TestingRun(t)
}

func TestOpenCase(t *testing.T) {
	req := dto.OpenRiskCaseRequest{
		StudentID: "student-1",
		RiskType:  models.RiskTypeBehavior,
		Severity:  models.RiskSeverityHigh,
		Reason:    "repeated incidents",
	}

	t.Run("opens behaviour case", func(t *testing.T) {
		f := newRiskFixture()
		rc, err := f.svc.OpenCase(context.Background(), counselor, req)
		require.NoError(t, err)
		assert.Equal(t, "counselor-1", rc.OpenedBy)
		entry := f.audit.last()
		require.NotNil(t, entry.ActorUserID)
		assert.Equal(t, "counselor-1", *entry.ActorUserID)
	})

	t.Run("rejects second active case", func(t *testing.T) {
		f := newRiskFixture(activeCase("case-a", models.RiskTypeBehavior, models.RiskSeverityLow))
		_, err := f.svc.OpenCase(context.Background(), counselor, req)
		require.ErrorIs(t, err, appErrors.ErrInvalidState)
	})

	t.Run("requires a human actor", func(t *testing.T) {
		f := newRiskFixture()
		_, err := f.svc.OpenCase(context.Background(), systemScope, req)
		require.ErrorIs(t, err, appErrors.ErrValidation)
	})

	t.Run("validates risk type", func(t *testing.T) {
		f := newRiskFixture()
		bad := req
		bad.RiskType = "gambling"
		_, err := f.svc.OpenCase(context.Background(), counselor, bad)
		require.ErrorIs(t, err, appErrors.ErrValidation)
	})
}

func TestStartAndCloseCase(t *testing.T) {
	f := newRiskFixture(activeCase("case-a", models.RiskTypeAttendance, models.RiskSeverityHigh))
	ctx := context.Background()

	started, err := f.svc.StartCase(ctx, counselor, "case-a")
	require.NoError(t, err)
	assert.Equal(t, models.RiskCaseStatusInProgress, started.Status)

	_, err = f.svc.StartCase(ctx, counselor, "case-a")
	require.ErrorIs(t, err, appErrors.ErrInvalidState)

	_, err = f.svc.CloseCase(ctx, counselor, "case-a", dto.CloseRiskCaseRequest{})
	require.ErrorIs(t, err, appErrors.ErrValidation)

	closed, err := f.svc.CloseCase(ctx, counselor, "case-a", dto.CloseRiskCaseRequest{Notes: "family meeting held"})
	require.NoError(t, err)
	assert.Equal(t, models.RiskCaseStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedBy)
	assert.Equal(t, "counselor-1", *closed.ClosedBy)
	require.NotNil(t, closed.Notes)
	assert.Equal(t, "family meeting held", *closed.Notes)

	_, err = f.svc.CloseCase(ctx, counselor, "case-a", dto.CloseRiskCaseRequest{Notes: "again"})
	require.ErrorIs(t, err, appErrors.ErrInvalidState)

	assert.Equal(t, []string{models.AuditActionRiskCaseStarted, models.AuditActionRiskCaseClosed}, f.audit.actions())
}

func TestCloseCaseUnknownID(t *testing.T) {
	f := newRiskFixture()
	_, err := f.svc.CloseCase(context.Background(), counselor, "missing", dto.CloseRiskCaseRequest{Notes: "x"})
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestOverrideSeverity(t *testing.T) {
	f := newRiskFixture(activeCase("case-a", models.RiskTypeFinancial, models.RiskSeverityCritical))
	ctx := context.Background()

	lowered, err := f.svc.OverrideSeverity(ctx, counselor, "case-a", dto.OverrideSeverityRequest{Severity: models.RiskSeverityLow, Notes: "payment plan agreed"})
	require.NoError(t, err)
	assert.Equal(t, models.RiskSeverityLow, lowered.Severity)
	assert.Equal(t, models.AuditActionRiskCaseSeverityOverride, f.audit.last().Action)

	same, err := f.svc.OverrideSeverity(ctx, counselor, "case-a", dto.OverrideSeverityRequest{Severity: models.RiskSeverityLow, Notes: "still fine"})
	require.NoError(t, err)
	assert.Equal(t, models.RiskSeverityLow, same.Severity)
	assert.Len(t, f.audit.actions(), 1)

	_, err = f.svc.OverrideSeverity(ctx, counselor, "case-a", dto.OverrideSeverityRequest{Severity: "extreme", Notes: "x"})
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestOverrideSeverityRejectsTerminalCase(t *testing.T) {
	rc := activeCase("case-a", models.RiskTypeFinancial, models.RiskSeverityHigh)
	rc.Status = models.RiskCaseStatusResolved
	f := newRiskFixture(rc)

	_, err := f.svc.OverrideSeverity(context.Background(), counselor, "case-a", dto.OverrideSeverityRequest{Severity: models.RiskSeverityLow, Notes: "x"})
	require.ErrorIs(t, err, appErrors.ErrInvalidState)
}

func TestListCasesIsTenantScoped(t *testing.T) {
	other := activeCase("case-b", models.RiskTypeAcademic, models.RiskSeverityHigh)
	other.TenantID = "tenant-2"
	f := newRiskFixture(activeCase("case-a", models.RiskTypeAcademic, models.RiskSeverityHigh), other)

	cases, err := f.svc.ListCases(context.Background(), counselor, dto.RiskCaseQuery{})
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "case-a", cases[0].ID)

	_, err = f.svc.GetCase(context.Background(), counselor, "case-b")
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.svc.ListCases(context.Background(), counselor, dto.RiskCaseQuery{RiskType: "nope"})
	require.ErrorIs(t, err, appErrors.ErrValidation)
}
