package cases

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/casecare/casecare/internal/platform/metrics"
)

// =========== Mock Repository ===========

// mockRepo is guarded by a mutex because the analysis task runs on its own
// goroutine.
type mockRepo struct {
	mu       sync.Mutex
	cases    map[uuid.UUID]*Case
	insights map[uuid.UUID]*Insight // keyed by case id
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		cases:    make(map[uuid.UUID]*Case),
		insights: make(map[uuid.UUID]*Insight),
	}
}

func (m *mockRepo) CreateCase(_ context.Context, cs *Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs.ID = uuid.New()
	cs.Status = StatusPending
	cs.CreatedAt = time.Now().UTC()
	cp := *cs
	m.cases[cs.ID] = &cp
	return nil
}

func (m *mockRepo) GetCase(_ context.Context, id uuid.UUID) (*CaseWithInsight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.cases[id]
	if !ok {
		return nil, ErrCaseNotFound
	}
	out := &CaseWithInsight{Case: *cs}
	if ins, ok := m.insights[id]; ok {
		cp := *ins
		out.Insight = &cp
	}
	return out, nil
}

func (m *mockRepo) ListCases(_ context.Context) ([]*Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := []*Case{}
	for _, cs := range m.cases {
		cp := *cs
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (m *mockRepo) UpdateCaseStatus(_ context.Context, id uuid.UUID, status Status) (*Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.cases[id]
	if !ok {
		return nil, ErrCaseNotFound
	}
	cs.Status = status
	cp := *cs
	return &cp, nil
}

func (m *mockRepo) DeleteCase(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[id]; !ok {
		return ErrCaseNotFound
	}
	delete(m.cases, id)
	delete(m.insights, id)
	return nil
}

func (m *mockRepo) CreateInsight(_ context.Context, ins *Insight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[ins.CaseID]; !ok {
		return ErrCaseNotFound
	}
	if _, ok := m.insights[ins.CaseID]; ok {
		return ErrInsightExists
	}
	ins.ID = uuid.New()
	ins.CreatedAt = time.Now().UTC()
	cp := *ins
	m.insights[ins.CaseID] = &cp
	return nil
}

func (m *mockRepo) GetInsightByCaseID(_ context.Context, caseID uuid.UUID) (*Insight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ins, ok := m.insights[caseID]
	if !ok {
		return nil, nil
	}
	cp := *ins
	return &cp, nil
}

// failingRepo wraps a Repository and injects storage errors on selected
// operations.
type failingRepo struct {
	Repository
	failCreateInsight bool
	failStatusTo      Status
}

func (f *failingRepo) CreateInsight(ctx context.Context, ins *Insight) error {
	if f.failCreateInsight {
		return errors.New("storage unavailable")
	}
	return f.Repository.CreateInsight(ctx, ins)
}

func (f *failingRepo) UpdateCaseStatus(ctx context.Context, id uuid.UUID, status Status) (*Case, error) {
	if f.failStatusTo != "" && status == f.failStatusTo {
		return nil, errors.New("storage unavailable")
	}
	return f.Repository.UpdateCaseStatus(ctx, id, status)
}

// =========== Stub Generator ===========

type stubGenerator struct {
	data *InsightData
	err  error

	// started, if set, is closed when Generate is entered; release, if
	// set, blocks Generate until closed. Used to stage deletion races.
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (g *stubGenerator) Generate(_ context.Context, _ *Case) (*InsightData, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.started != nil {
		close(g.started)
	}
	if g.release != nil {
		<-g.release
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.data, nil
}

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func newTestService(repo Repository, gen InsightGenerator) *Service {
	return NewService(repo, gen, zerolog.Nop(), metrics.New(), 2)
}

// =========== Tests ===========

func TestCreateCase_StartsPendingWithoutInsight(t *testing.T) {
	repo := newMockRepo()
	gen := &stubGenerator{release: make(chan struct{}), data: &InsightData{Summary: "ok"}}
	svc := newTestService(repo, gen)

	cs, err := svc.CreateCase(context.Background(), &CreateCaseInput{
		Title:       "Fever",
		PatientName: "Jane Roe",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs.Status != StatusPending {
		t.Errorf("expected pending immediately after create, got %s", cs.Status)
	}
	ins, _ := repo.GetInsightByCaseID(context.Background(), cs.ID)
	if ins != nil {
		t.Error("expected no insight immediately after create")
	}

	close(gen.release)
	svc.Wait()
}

func TestCreateCase_Validation(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &stubGenerator{data: &InsightData{}})

	negative := -1
	tests := []struct {
		name  string
		input CreateCaseInput
		field string
	}{
		{"empty title", CreateCaseInput{PatientName: "Jane"}, "title"},
		{"empty patient name", CreateCaseInput{Title: "Fever"}, "patientName"},
		{"negative age", CreateCaseInput{Title: "Fever", PatientName: "Jane", PatientAge: &negative}, "patientAge"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateCase(context.Background(), &tt.input)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ve.Field)
			}
		})
	}
	svc.Wait()
}

func TestAnalysis_SuccessCompletesWithOneInsight(t *testing.T) {
	repo := newMockRepo()
	lang := "English"
	gen := &stubGenerator{data: &InsightData{
		Summary:          "Likely viral infection",
		BlindSpots:       []string{"anchoring bias"},
		Questions:        []string{"Any recent travel?"},
		OriginalLanguage: lang,
	}}
	svc := newTestService(repo, gen)

	notes := "Temp 101F"
	cs, err := svc.CreateCase(context.Background(), &CreateCaseInput{
		Title:         "Fever",
		PatientName:   "Jane Roe",
		ClinicalNotes: &notes,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Wait()

	got, err := svc.GetCase(context.Background(), cs.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.Insight == nil {
		t.Fatal("expected an insight")
	}
	if got.Insight.CaseID != cs.ID {
		t.Errorf("insight owned by wrong case: %s", got.Insight.CaseID)
	}
	want := &Insight{
		ID:               got.Insight.ID,
		CaseID:           cs.ID,
		Summary:          "Likely viral infection",
		BlindSpots:       []string{"anchoring bias"},
		Questions:        []string{"Any recent travel?"},
		OriginalLanguage: &lang,
		CreatedAt:        got.Insight.CreatedAt,
	}
	if diff := cmp.Diff(want, got.Insight); diff != "" {
		t.Errorf("insight mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalysis_GeneratorErrorMarksFailed(t *testing.T) {
	repo := newMockRepo()
	gen := &stubGenerator{err: errors.New("upstream unavailable")}
	svc := newTestService(repo, gen)

	cs, err := svc.CreateCase(context.Background(), &CreateCaseInput{
		Title:       "Fever",
		PatientName: "Jane Roe",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Wait()

	got, err := svc.GetCase(context.Background(), cs.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}
	if got.Insight != nil {
		t.Error("failed case must have no insight")
	}
}

func TestAnalysis_InsightWriteFailureMarksFailed(t *testing.T) {
	base := newMockRepo()
	repo := &failingRepo{Repository: base, failCreateInsight: true}
	gen := &stubGenerator{data: &InsightData{Summary: "fine result"}}
	svc := newTestService(repo, gen)

	cs, err := svc.CreateCase(context.Background(), &CreateCaseInput{
		Title:       "Fever",
		PatientName: "Jane Roe",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Wait()

	got, err := svc.GetCase(context.Background(), cs.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("expected failed after insight write failure, got %s", got.Status)
	}
	if got.Insight != nil {
		t.Error("expected no insight after failed write")
	}
}

func TestAnalysis_CompletedWriteFailureLeavesAnalyzing(t *testing.T) {
	base := newMockRepo()
	repo := &failingRepo{Repository: base, failStatusTo: StatusCompleted}
	gen := &stubGenerator{data: &InsightData{Summary: "fine result"}}
	svc := newTestService(repo, gen)

	cs, err := svc.CreateCase(context.Background(), &CreateCaseInput{
		Title:       "Fever",
		PatientName: "Jane Roe",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Wait()

	// The status write failed after the insight write, so the case stays
	// visibly stuck in analyzing rather than being mis-reported.
	got, err := svc.GetCase(context.Background(), cs.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusAnalyzing {
		t.Errorf("expected analyzing, got %s", got.Status)
	}
	if got.Status == StatusCompleted {
		t.Error("case must not be reported completed when the status write failed")
	}
}

func TestAnalysis_MissingKeysAreEmptyNotFailed(t *testing.T) {
	repo := newMockRepo()
	gen := &stubGenerator{data: &InsightData{Summary: "ok"}}
	svc := newTestService(repo, gen)

	cs, _ := svc.CreateCase(context.Background(), &CreateCaseInput{
		Title:       "Fever",
		PatientName: "Jane Roe",
	})
	svc.Wait()

	got, err := svc.GetCase(context.Background(), cs.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.Insight.Summary != "ok" {
		t.Errorf("expected summary ok, got %q", got.Insight.Summary)
	}
	if len(got.Insight.BlindSpots) != 0 || len(got.Insight.Questions) != 0 {
		t.Errorf("expected empty blind spots and questions, got %+v", got.Insight)
	}
	if got.Insight.OriginalLanguage != nil {
		t.Errorf("expected absent original language, got %q", *got.Insight.OriginalLanguage)
	}
}

func TestAnalysis_DeletedCaseGetsNoInsight(t *testing.T) {
	repo := newMockRepo()
	gen := &stubGenerator{
		started: make(chan struct{}),
		release: make(chan struct{}),
		data:    &InsightData{Summary: "late result"},
	}
	svc := newTestService(repo, gen)

	cs, err := svc.CreateCase(context.Background(), &CreateCaseInput{
		Title:       "Fever",
		PatientName: "Jane Roe",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Delete the case while its analysis call is in flight.
	<-gen.started
	if err := svc.DeleteCase(context.Background(), cs.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	close(gen.release)
	svc.Wait()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.insights) != 0 {
		t.Error("expected no insight written for deleted case")
	}
}

func TestCreateCase_InputStatusIgnored(t *testing.T) {
	repo := newMockRepo()
	gen := &stubGenerator{release: make(chan struct{}), data: &InsightData{}}
	svc := newTestService(repo, gen)

	cs, err := svc.CreateCase(context.Background(), &CreateCaseInput{
		Title:       "Fever",
		PatientName: "Jane Roe",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs.Status != StatusPending {
		t.Errorf("expected pending, got %s", cs.Status)
	}
	close(gen.release)
	svc.Wait()
}

func TestCreateCase_OmittedAgeStaysAbsent(t *testing.T) {
	repo := newMockRepo()
	gen := &stubGenerator{release: make(chan struct{}), data: &InsightData{}}
	svc := newTestService(repo, gen)

	cs, err := svc.CreateCase(context.Background(), &CreateCaseInput{
		Title:       "Fever",
		PatientName: "Jane Roe",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs.PatientAge != nil {
		t.Errorf("expected absent age, got %d", *cs.PatientAge)
	}
	close(gen.release)
	svc.Wait()
}

func TestListCases_NewestFirst(t *testing.T) {
	repo := newMockRepo()
	gen := &stubGenerator{data: &InsightData{}}
	svc := newTestService(repo, gen)

	for _, title := range []string{"First", "Second", "Third"} {
		if _, err := svc.CreateCase(context.Background(), &CreateCaseInput{
			Title:       title,
			PatientName: "Jane Roe",
		}); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	svc.Wait()

	items, err := svc.ListCases(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 cases, got %d", len(items))
	}
	if items[0].Title != "Third" || items[2].Title != "First" {
		t.Errorf("expected newest first, got %s .. %s", items[0].Title, items[2].Title)
	}
}

func TestGetCase_ReadsAreIdempotent(t *testing.T) {
	repo := newMockRepo()
	gen := &stubGenerator{data: &InsightData{Summary: "stable"}}
	svc := newTestService(repo, gen)

	cs, _ := svc.CreateCase(context.Background(), &CreateCaseInput{
		Title:       "Fever",
		PatientName: "Jane Roe",
	})
	svc.Wait()

	first, err := svc.GetCase(context.Background(), cs.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.GetCase(context.Background(), cs.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated reads differ (-first +second):\n%s", diff)
	}
	if gen.callCount() != 1 {
		t.Errorf("expected exactly one analysis attempt, got %d", gen.callCount())
	}
}
