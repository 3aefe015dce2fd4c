package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"agent-foundry/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "foundry.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testAgent(id string) *domain.Agent {
	return &domain.Agent{
		ID:          id,
		Name:        "Ada",
		Role:        "Analyst",
		Description: "Reads spreadsheets",
		Personality: "You are Ada.",
		Provider:    domain.ProviderGemini,
		Model:       "gemini-1.5-flash",
		Skills:      []string{"deep_reasoning", "financial_analyst"},
		Tools:       []string{"excel_suite", "starcheck"},
	}
}

func TestSQLiteStore_AgentCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testAgent("a1")
	if err := store.CreateAgent(ctx, a); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if a.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set on create")
	}

	got, err := store.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.Name != "Ada" || got.Provider != domain.ProviderGemini || got.Model != "gemini-1.5-flash" {
		t.Errorf("GetAgent = %+v", got)
	}
	if len(got.Skills) != 2 || got.Skills[1] != "financial_analyst" {
		t.Errorf("Skills = %v", got.Skills)
	}
	if len(got.Tools) != 2 || got.Tools[0] != "excel_suite" {
		t.Errorf("Tools = %v", got.Tools)
	}

	got.Name = "Ada Lovelace"
	got.Tools = append(got.Tools, "email.send")
	if err := store.UpdateAgent(ctx, got); err != nil {
		t.Fatalf("UpdateAgent: %v", err)
	}
	updated, err := store.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAgent after update: %v", err)
	}
	if updated.Name != "Ada Lovelace" || len(updated.Tools) != 3 {
		t.Errorf("after update = %+v", updated)
	}

	if err := store.DeleteAgent(ctx, "a1"); err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}
	if _, err := store.GetAgent(ctx, "a1"); !errors.Is(err, domain.ErrAgentNotFound) {
		t.Errorf("GetAgent after delete err = %v, want ErrAgentNotFound", err)
	}
}

func TestSQLiteStore_NotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetAgent(ctx, "missing"); !errors.Is(err, domain.ErrAgentNotFound) {
		t.Errorf("GetAgent err = %v", err)
	}
	if err := store.UpdateAgent(ctx, testAgent("missing")); !errors.Is(err, domain.ErrAgentNotFound) {
		t.Errorf("UpdateAgent err = %v", err)
	}
	if err := store.DeleteAgent(ctx, "missing"); !errors.Is(err, domain.ErrAgentNotFound) {
		t.Errorf("DeleteAgent err = %v", err)
	}
	if err := store.UpdateMetrics(ctx, "missing", domain.AgentMetrics{}); !errors.Is(err, domain.ErrAgentNotFound) {
		t.Errorf("UpdateMetrics err = %v", err)
	}
	err := store.AppendMessage(ctx, &domain.Message{ID: "m1", AgentID: "missing", Role: domain.RoleUser, Content: "hi"})
	if !errors.Is(err, domain.ErrAgentNotFound) {
		t.Errorf("AppendMessage err = %v", err)
	}
}

func TestSQLiteStore_ListAgentsEmptyAndOrdered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	agents, err := store.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if agents == nil || len(agents) != 0 {
		t.Errorf("empty ListAgents = %v, want empty non-nil slice", agents)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"b", "a", "c"} {
		a := testAgent(id)
		a.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.CreateAgent(ctx, a); err != nil {
			t.Fatalf("CreateAgent(%s): %v", id, err)
		}
	}
	agents, err = store.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	var ids []string
	for _, a := range agents {
		ids = append(ids, a.ID)
	}
	if len(ids) != 3 || ids[0] != "b" || ids[1] != "a" || ids[2] != "c" {
		t.Errorf("order = %v, want creation order [b a c]", ids)
	}
}

func TestSQLiteStore_Metrics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.CreateAgent(ctx, testAgent("a1")); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	m := domain.AgentMetrics{TotalTokens: 150, TotalCost: 0.0000225, Details: domain.TokenDetails{Input: 100, Output: 50}}
	if err := store.UpdateMetrics(ctx, "a1", m); err != nil {
		t.Fatalf("UpdateMetrics: %v", err)
	}
	got, err := store.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.Metrics != m {
		t.Errorf("Metrics = %+v, want %+v", got.Metrics, m)
	}

	got.Metrics = domain.AgentMetrics{}
	got.Name = "renamed"
	if err := store.UpdateAgent(ctx, got); err != nil {
		t.Fatalf("UpdateAgent: %v", err)
	}
	again, err := store.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if again.Metrics != m {
		t.Errorf("UpdateAgent overwrote metrics: %+v", again.Metrics)
	}
}

func TestSQLiteStore_MessagesRoundTripAndCascade(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.CreateAgent(ctx, testAgent("a1")); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	ts := time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)
	user := &domain.Message{ID: "m1", AgentID: "a1", Role: domain.RoleUser, Content: "hello", Timestamp: ts}
	reply := &domain.Message{
		ID: "m2", AgentID: "a1", Role: domain.RoleAssistant, Content: "hi there",
		Sources: []domain.Source{{Title: "Example", URI: "https://example.com"}},
		Trace: []domain.TraceStep{
			{Label: "Gemini Context Initialized", Type: domain.StepInit, Status: domain.StepComplete, Timestamp: "2:05:09 PM", Duration: "17ms", Detail: "Model: gemini-2.0-flash"},
			{Label: "Final Response Synthesis", Type: domain.StepFinal, Status: domain.StepComplete, Timestamp: "2:05:09 PM", Duration: "12ms"},
		},
		Timestamp: ts.Add(time.Second),
	}
	for _, m := range []*domain.Message{user, reply} {
		if err := store.AppendMessage(ctx, m); err != nil {
			t.Fatalf("AppendMessage(%s): %v", m.ID, err)
		}
	}

	msgs, err := store.ListMessages(ctx, "a1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[0].Sources != nil || msgs[0].Trace != nil {
		t.Errorf("user message = %+v", msgs[0])
	}
	if got := msgs[1]; len(got.Sources) != 1 || got.Sources[0].URI != "https://example.com" {
		t.Errorf("sources = %+v", got.Sources)
	}
	if got := msgs[1]; len(got.Trace) != 2 || got.Trace[0].Detail != "Model: gemini-2.0-flash" || got.Trace[1].Type != domain.StepFinal {
		t.Errorf("trace = %+v", got.Trace)
	}
	if !msgs[1].Timestamp.Equal(ts.Add(time.Second)) {
		t.Errorf("Timestamp = %v", msgs[1].Timestamp)
	}

	if err := store.DeleteAgent(ctx, "a1"); err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}
	msgs, err = store.ListMessages(ctx, "a1")
	if err != nil {
		t.Fatalf("ListMessages after delete: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages survived agent delete: %d", len(msgs))
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "foundry.db")
	first, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := first.CreateAgent(context.Background(), testAgent("a1")); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	first.Close()

	second, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if _, err := second.GetAgent(context.Background(), "a1"); err != nil {
		t.Errorf("GetAgent after reopen: %v", err)
	}
}
