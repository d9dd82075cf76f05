package engine

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"contextd/internal/models"
	"contextd/internal/quickreply"
	"contextd/internal/selector"
	"contextd/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Options{
		Path:              filepath.Join(t.TempDir(), "conversations.json"),
		FlushInterval:     time.Minute,
		DefaultWindowSize: 20,
	})
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testEngine(t *testing.T, st *store.Store) *Engine {
	t.Helper()
	sel := selector.New(selector.DefaultConfig())
	quick := quickreply.NewService(time.Minute, 100)
	return New(st, sel, quick, nil, 0)
}

func seedHistory(n int) []models.Message {
	history := make([]models.Message, n)
	for i := range history {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		history[i] = models.Message{
			ID:        fmt.Sprintf("m%d", i),
			Role:      role,
			Content:   fmt.Sprintf("message %d about the database migration", i),
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
	}
	return history
}

func TestGetOptimizedContext(t *testing.T) {
	st := testStore(t)
	eng := testEngine(t, st)

	history := seedHistory(10)
	result := eng.GetOptimizedContext("conv-1", history, "what happened with the database migration?", 4000)

	if len(result.Messages) == 0 {
		t.Fatal("selection returned no messages")
	}
	if result.FallbackUsed {
		t.Error("healthy pipeline should not report fallback")
	}
	if result.EstimatedTokens > 4000 {
		t.Errorf("estimated tokens %d exceed budget", result.EstimatedTokens)
	}
	last := result.Messages[len(result.Messages)-1]
	if last.ID != "m9" {
		t.Errorf("latest message missing, last selected is %s", last.ID)
	}
}

func TestGetOptimizedContextFallsBackOnPipelineFailure(t *testing.T) {
	st := testStore(t)
	id, err := st.CreateConversation("fallback", "")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if err := st.AddMessage(id, models.Message{Role: models.RoleUser, Content: "still here"}); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	// a nil selector makes the pipeline panic; the engine must degrade to the
	// store's trailing window instead of propagating
	eng := New(st, nil, quickreply.NewService(time.Minute, 100), nil, 0)

	result := eng.GetOptimizedContext(id, seedHistory(3), "query", 4000)
	if !result.FallbackUsed {
		t.Fatal("pipeline failure should report fallback")
	}
	if len(result.Messages) != 1 || result.Messages[0].Content != "still here" {
		t.Errorf("fallback window = %+v, want the stored message", result.Messages)
	}
}

func TestAnalyzeConversation(t *testing.T) {
	st := testStore(t)
	eng := testEngine(t, st)

	clusters, flow := eng.AnalyzeConversation(seedHistory(6))
	if len(clusters) == 0 {
		t.Error("expected at least one topic cluster for database-heavy history")
	}
	if len(flow.Phases) == 0 {
		t.Error("expected at least one conversation phase")
	}
	if flow.Continuity < 0 || flow.Continuity > 1 {
		t.Errorf("continuity %f out of [0,1]", flow.Continuity)
	}
}

func TestShouldCallModelShortCircuit(t *testing.T) {
	st := testStore(t)
	eng := testEngine(t, st)

	decision := eng.ShouldCallModel("thanks", "conv-1")
	if decision.ShouldCall {
		t.Error("acknowledgment should short-circuit the model call")
	}
	if decision.Reply == "" {
		t.Error("short-circuit must carry a reply")
	}

	decision = eng.ShouldCallModel("how do I configure the retry policy?", "conv-1")
	if !decision.ShouldCall {
		t.Error("substantive question must reach the model")
	}
}

func TestRecordResponseRoundTrip(t *testing.T) {
	st := testStore(t)
	eng := testEngine(t, st)

	query := "What is a goroutine?"
	response := "A goroutine is a lightweight thread managed by the Go runtime."
	eng.RecordResponse(query, response)

	reply, ok := eng.GenerateContextualResponse(query, "conv-1")
	if !ok {
		t.Fatal("recorded factual response not served from cache")
	}
	if reply != response {
		t.Errorf("cached reply = %q, want the recorded response", reply)
	}

	// conversation-bound answers are never cached
	eng.RecordResponse("what is the current step", "as we discussed earlier, step 3")
	if _, ok := eng.GenerateContextualResponse("what is the current step", "conv-1"); ok {
		t.Error("context-bound response must not be cached")
	}
}
