package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-risk-engine/internal/models"
	"github.com/noah-isme/sma-risk-engine/internal/repository"
)

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type txStub struct {
	calls int32
	err   error
}

func (t *txStub) WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	atomic.AddInt32(&t.calls, 1)
	if t.err != nil {
		return t.err
	}
	return fn(nil)
}

func sequentialIDs(prefix string) IDAllocator {
	var n int64
	return IDAllocatorFunc(func() string {
		return fmt.Sprintf("%s-%d", prefix, atomic.AddInt64(&n, 1))
	})
}

// memRiskCases enforces the one-active-case rule the way the partial unique index does.
type memRiskCases struct {
	mu      sync.Mutex
	rows    map[string]models.RiskCase
	creates int
	updates int
	findErr error
}

func newMemRiskCases(seed ...models.RiskCase) *memRiskCases {
	m := &memRiskCases{rows: make(map[string]models.RiskCase)}
	for _, rc := range seed {
		m.rows[rc.ID] = rc
	}
	return m
}

func (m *memRiskCases) FindActive(ctx context.Context, exec sqlx.ExtContext, tenantID, studentID string, riskType models.RiskType) (*models.RiskCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, rc := range m.rows {
		if rc.TenantID == tenantID && rc.StudentID == studentID && rc.RiskType == riskType && rc.Status.Active() {
			found := rc
			return &found, nil
		}
	}
	return nil, nil
}

func (m *memRiskCases) GetByID(ctx context.Context, exec sqlx.ExtContext, tenantID, id string) (*models.RiskCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.rows[id]
	if !ok || rc.TenantID != tenantID {
		return nil, sql.ErrNoRows
	}
	return &rc, nil
}

func (m *memRiskCases) GetForShare(ctx context.Context, exec sqlx.ExtContext, tenantID, id string) (*models.RiskCase, error) {
	return m.GetByID(ctx, exec, tenantID, id)
}

func (m *memRiskCases) ListActiveByStudent(ctx context.Context, tenantID, studentID string) ([]models.RiskCase, error) {
	return m.List(ctx, models.RiskCaseFilter{TenantID: tenantID, StudentID: studentID, Statuses: models.ActiveRiskCaseStatuses})
}

func (m *memRiskCases) List(ctx context.Context, filter models.RiskCaseFilter) ([]models.RiskCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.RiskCase{}
	for _, rc := range m.rows {
		if rc.TenantID != filter.TenantID {
			continue
		}
		if filter.StudentID != "" && rc.StudentID != filter.StudentID {
			continue
		}
		if filter.RiskType != "" && rc.RiskType != filter.RiskType {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, rc.Status) {
			continue
		}
		out = append(out, rc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRiskCases) Create(ctx context.Context, exec sqlx.ExtContext, rc *models.RiskCase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.TenantID == rc.TenantID && existing.StudentID == rc.StudentID && existing.RiskType == rc.RiskType && existing.Status.Active() {
			return &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
		}
	}
	m.creates++
	m.rows[rc.ID] = *rc
	return nil
}

func (m *memRiskCases) Update(ctx context.Context, exec sqlx.ExtContext, rc *models.RiskCase, expected models.RiskCaseStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.rows[rc.ID]
	if !ok || current.TenantID != rc.TenantID || current.Status != expected {
		return sql.ErrNoRows
	}
	m.updates++
	m.rows[rc.ID] = *rc
	return nil
}

func (m *memRiskCases) active(tenantID, studentID string, riskType models.RiskType) []models.RiskCase {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RiskCase
	for _, rc := range m.rows {
		if rc.TenantID == tenantID && rc.StudentID == studentID && rc.RiskType == riskType && rc.Status.Active() {
			out = append(out, rc)
		}
	}
	return out
}

func (m *memRiskCases) writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates + m.updates
}

func containsStatus(list []models.RiskCaseStatus, status models.RiskCaseStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

// factsStub answers the short trailing window with recent and anything longer with attendance.
type factsStub struct {
	mu         sync.Mutex
	attendance models.AttendanceCounts
	recent     models.AttendanceCounts
	average    *float64
	standing   models.FinancialStanding
	err        error
	windows    []models.FactWindow
}

func (f *factsStub) set(facts models.StudentFacts) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attendance = facts.Attendance
	f.recent = models.AttendanceCounts{Absent: facts.RecentAbsences}
	f.average = facts.AcademicAverage
	f.standing = facts.Financial
}

func (f *factsStub) AttendanceWindow(ctx context.Context, tenantID, studentID string, window models.FactWindow) (models.AttendanceCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, window)
	if f.err != nil {
		return models.AttendanceCounts{}, f.err
	}
	if window.To.Sub(window.From) <= RecentAbsenceDays*24*time.Hour {
		return f.recent, nil
	}
	return f.attendance, nil
}

func (f *factsStub) shortestWindow() models.FactWindow {
	f.mu.Lock()
	defer f.mu.Unlock()
	var shortest models.FactWindow
	for i, w := range f.windows {
		if i == 0 || w.To.Sub(w.From) < shortest.To.Sub(shortest.From) {
			shortest = w
		}
	}
	return shortest
}

func (f *factsStub) AcademicAverage(ctx context.Context, tenantID, studentID string, window models.FactWindow) (*float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.average, f.err
}

func (f *factsStub) OutstandingBalance(ctx context.Context, tenantID, studentID string) (models.FinancialStanding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.standing, f.err
}

type memAudit struct {
	mu        sync.Mutex
	entries   []models.AuditLogEntry
	appendErr error
}

func (m *memAudit) Append(ctx context.Context, exec sqlx.ExtContext, entry *models.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memAudit) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AuditLogEntry{}
	for _, e := range m.entries {
		if e.TenantID != filter.TenantID {
			continue
		}
		if filter.ResourceType != "" && e.ResourceType != filter.ResourceType {
			continue
		}
		if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

func (m *memAudit) last() models.AuditLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func newTestRecorder(store *memAudit) *AuditRecorder {
	recorder := NewAuditRecorder(store, sequentialIDs("audit"))
	recorder.now = fixedClock
	return recorder
}

// memNotifications mirrors the (tenant, type, entity, recipient) unique constraint.
type memNotifications struct {
	mu      sync.Mutex
	rows    map[string]models.Notification
	order   []string
	attempt int
	err     error
}

func newMemNotifications() *memNotifications {
	return &memNotifications{rows: make(map[string]models.Notification)}
}

func notificationKey(n *models.Notification) string {
	return n.TenantID + "|" + string(n.Type) + "|" + n.EntityType + "|" + n.EntityID + "|" + n.RecipientUserID
}

func (m *memNotifications) InsertIfAbsent(ctx context.Context, exec sqlx.ExtContext, n *models.Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempt++
	if m.err != nil {
		return false, m.err
	}
	key := notificationKey(n)
	if _, ok := m.rows[key]; ok {
		return false, nil
	}
	m.rows[key] = *n
	m.order = append(m.order, key)
	return true, nil
}

func (m *memNotifications) ListByRecipient(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Notification{}
	for _, key := range m.order {
		n := m.rows[key]
		if n.TenantID != filter.TenantID || n.RecipientUserID != filter.RecipientUserID {
			continue
		}
		if filter.UnreadOnly && n.ReadAt != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *memNotifications) GetByID(ctx context.Context, exec sqlx.ExtContext, tenantID, id string) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.rows {
		if n.ID == id && n.TenantID == tenantID {
			found := n
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memNotifications) MarkRead(ctx context.Context, exec sqlx.ExtContext, tenantID, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, n := range m.rows {
		if n.ID == id && n.TenantID == tenantID {
			if n.ReadAt != nil {
				return sql.ErrNoRows
			}
			n.ReadAt = &at
			m.rows[key] = n
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memNotifications) recipients(entityID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for _, key := range m.order {
		n := m.rows[key]
		if n.EntityID == entityID {
			out = append(out, n.RecipientUserID)
		}
	}
	sort.Strings(out)
	return out
}

func (m *memNotifications) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type directoryStub struct {
	byClass   map[string][]string
	byGrade   map[string][]string
	bySubject map[string][]string
	byStudent map[string][]string
	err       error
	calls     int32
}

func (d *directoryStub) TeachersForClass(ctx context.Context, tenantID, classID string) ([]string, error) {
	atomic.AddInt32(&d.calls, 1)
	return d.byClass[classID], d.err
}

func (d *directoryStub) TeachersForGrade(ctx context.Context, tenantID, grade string) ([]string, error) {
	atomic.AddInt32(&d.calls, 1)
	return d.byGrade[grade], d.err
}

func (d *directoryStub) TeachersForSubject(ctx context.Context, tenantID, subjectID string) ([]string, error) {
	atomic.AddInt32(&d.calls, 1)
	return d.bySubject[subjectID], d.err
}

func (d *directoryStub) TeachersForStudent(ctx context.Context, tenantID, studentID string) ([]string, error) {
	atomic.AddInt32(&d.calls, 1)
	return d.byStudent[studentID], d.err
}

// memApprovals applies decisions with the same version and pending predicate as the SQL store.
type memApprovals struct {
	mu        sync.Mutex
	rows      map[string]models.ApprovalRequest
	decisions []models.ApprovalDecisionRecord
	// beforeApply runs after the caller loaded the row and before the conditional write.
	beforeApply func()
}

func newMemApprovals(seed ...models.ApprovalRequest) *memApprovals {
	m := &memApprovals{rows: make(map[string]models.ApprovalRequest)}
	for _, r := range seed {
		m.rows[r.ID] = r
	}
	return m
}

func (m *memApprovals) Create(ctx context.Context, exec sqlx.ExtContext, req *models.ApprovalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[req.ID] = *req
	return nil
}

func (m *memApprovals) GetByID(ctx context.Context, exec sqlx.ExtContext, tenantID, id string) (*models.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.TenantID != tenantID {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (m *memApprovals) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ApprovalRequest{}
	for _, r := range m.rows {
		if r.TenantID == filter.TenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memApprovals) ApplyDecision(ctx context.Context, exec sqlx.ExtContext, params repository.ApplyDecisionParams) error {
	if m.beforeApply != nil {
		m.beforeApply()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[params.ID]
	if !ok || r.TenantID != params.TenantID || r.Version != params.ExpectedVersion || r.Status != models.ApprovalStatusPending {
		return sql.ErrNoRows
	}
	decision := params.Decision
	decidedBy := params.DecidedBy
	decidedAt := params.DecidedAt
	notes := params.Notes
	r.Status = params.Status
	r.Decision = &decision
	r.DecidedBy = &decidedBy
	r.DecidedAt = &decidedAt
	r.Notes = &notes
	r.Version++
	m.rows[r.ID] = r
	return nil
}

func (m *memApprovals) ReturnToPending(ctx context.Context, exec sqlx.ExtContext, tenantID, id string, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.TenantID != tenantID || r.Version != expectedVersion || !r.Status.Resubmittable() {
		return sql.ErrNoRows
	}
	r.Status = models.ApprovalStatusPending
	r.Decision, r.DecidedBy, r.DecidedAt, r.Notes = nil, nil, nil, nil
	r.Version++
	m.rows[id] = r
	return nil
}

func (m *memApprovals) InsertDecisionRecord(ctx context.Context, exec sqlx.ExtContext, rec *models.ApprovalDecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, *rec)
	return nil
}

func (m *memApprovals) ListDecisions(ctx context.Context, tenantID, requestID string) ([]models.ApprovalDecisionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ApprovalDecisionRecord{}
	for _, d := range m.decisions {
		if d.TenantID == tenantID && d.ApprovalRequestID == requestID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memApprovals) get(id string) models.ApprovalRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}
