package topics

import (
	"reflect"
	"testing"

	"contextd/internal/models"
)

func enhancedWith(id string, category models.MessageCategory, topics ...string) models.EnhancedMessage {
	return models.EnhancedMessage{
		Message:  models.Message{ID: id, Role: models.RoleUser},
		Category: category,
		Topics:   topics,
	}
}

func TestClusterTopics(t *testing.T) {
	enhanced := []models.EnhancedMessage{
		enhancedWith("m0", models.CategoryQuestion, "databases"),
		enhancedWith("m1", models.CategoryAnswer, "databases", "performance"),
		enhancedWith("m2", models.CategoryQuestion, "performance"),
		enhancedWith("m3", models.CategoryAnswer, "databases"),
	}

	clusters := ClusterTopics(enhanced, 8)
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters))
	}

	if clusters[0].Name != "databases" {
		t.Errorf("first cluster = %q, want databases (largest member share)", clusters[0].Name)
	}
	if clusters[0].Importance != 0.75 {
		t.Errorf("databases importance = %f, want 0.75", clusters[0].Importance)
	}
	if want := []string{"m0", "m1", "m3"}; !reflect.DeepEqual(clusters[0].MessageIDs, want) {
		t.Errorf("databases members = %v, want %v", clusters[0].MessageIDs, want)
	}
	if clusters[0].ID != "topic-databases" {
		t.Errorf("cluster id = %q, want topic-databases", clusters[0].ID)
	}
	if clusters[1].Name != "performance" || clusters[1].Importance != 0.5 {
		t.Errorf("second cluster = %q/%f, want performance/0.5", clusters[1].Name, clusters[1].Importance)
	}
}

func TestClusterTopicsTruncation(t *testing.T) {
	enhanced := []models.EnhancedMessage{
		enhancedWith("m0", models.CategoryQuestion, "apis", "databases", "testing"),
	}

	clusters := ClusterTopics(enhanced, 2)
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2 after truncation", len(clusters))
	}
	// equal importance falls back to name ordering
	if clusters[0].Name != "apis" || clusters[1].Name != "databases" {
		t.Errorf("got %q,%q, want apis,databases", clusters[0].Name, clusters[1].Name)
	}
}

func TestClusterTopicsEmpty(t *testing.T) {
	if clusters := ClusterTopics(nil, 8); clusters != nil {
		t.Errorf("empty input should yield nil, got %v", clusters)
	}
}

func TestAnalyzePhasesSinglePhase(t *testing.T) {
	enhanced := []models.EnhancedMessage{
		enhancedWith("m0", models.CategoryQuestion, "apis"),
		enhancedWith("m1", models.CategoryQuestion, "apis"),
		enhancedWith("m2", models.CategoryQuestion),
	}

	flow := AnalyzePhases(enhanced)
	if len(flow.Phases) != 1 {
		t.Fatalf("got %d phases, want 1", len(flow.Phases))
	}

	phase := flow.Phases[0]
	if phase.Type != models.PhaseInformationGathering {
		t.Errorf("phase type = %q, want %q", phase.Type, models.PhaseInformationGathering)
	}
	if phase.StartTurn != 0 || phase.EndTurn != 2 {
		t.Errorf("phase span = %d..%d, want 0..2", phase.StartTurn, phase.EndTurn)
	}
	if phase.Resolution != models.ResolutionInProgress {
		t.Errorf("final phase resolution = %q, want %q", phase.Resolution, models.ResolutionInProgress)
	}
	if flow.Continuity != 1.0 {
		t.Errorf("single-phase continuity = %f, want 1.0", flow.Continuity)
	}
}

func TestAnalyzePhasesTransition(t *testing.T) {
	enhanced := []models.EnhancedMessage{
		enhancedWith("m0", models.CategoryQuestion, "apis"),
		enhancedWith("m1", models.CategoryCodeRelated, "apis"),
		enhancedWith("m2", models.CategoryCodeRelated, "apis"),
	}

	flow := AnalyzePhases(enhanced)
	if len(flow.Phases) != 2 {
		t.Fatalf("got %d phases, want 2", len(flow.Phases))
	}

	first, second := flow.Phases[0], flow.Phases[1]
	if first.Type != models.PhaseInformationGathering || second.Type != models.PhaseDebugging {
		t.Errorf("phase types = %q,%q", first.Type, second.Type)
	}
	if first.EndTurn != 0 || second.StartTurn != 1 {
		t.Errorf("phase boundary = %d/%d, want 0/1", first.EndTurn, second.StartTurn)
	}
	if first.Resolution != models.ResolutionResolved {
		t.Errorf("completed phase resolution = %q, want %q", first.Resolution, models.ResolutionResolved)
	}

	// both phases share the apis topic, so continuity is full
	if flow.Continuity != 1.0 {
		t.Errorf("continuity = %f, want 1.0 for shared topics", flow.Continuity)
	}
}

func TestAnalyzePhasesDisjointTopics(t *testing.T) {
	enhanced := []models.EnhancedMessage{
		enhancedWith("m0", models.CategoryQuestion, "apis"),
		enhancedWith("m1", models.CategoryCodeRelated, "databases"),
	}

	flow := AnalyzePhases(enhanced)
	if flow.Continuity != 0 {
		t.Errorf("continuity = %f, want 0 for disjoint phase topics", flow.Continuity)
	}
	if flow.TopicSwitches != 1 {
		t.Errorf("topic switches = %d, want 1", flow.TopicSwitches)
	}
}

func TestPhaseTypePriority(t *testing.T) {
	tests := []struct {
		name     string
		em       models.EnhancedMessage
		expected models.PhaseType
	}{
		{
			"code beats question",
			models.EnhancedMessage{Category: models.CategoryCodeRelated},
			models.PhaseDebugging,
		},
		{
			"creative",
			models.EnhancedMessage{Category: models.CategoryCreative},
			models.PhaseCreativeExploration,
		},
		{
			"question",
			models.EnhancedMessage{Category: models.CategoryQuestion},
			models.PhaseInformationGathering,
		},
		{
			"problem-solving intent",
			models.EnhancedMessage{Category: models.CategoryInstruction, Intent: models.IntentProblemSolving},
			models.PhaseProblemSolving,
		},
		{
			"assistant answer",
			models.EnhancedMessage{
				Message:  models.Message{Role: models.RoleAssistant},
				Category: models.CategoryAnswer,
			},
			models.PhaseExplanation,
		},
		{
			"default",
			models.EnhancedMessage{Category: models.CategoryClarification},
			models.PhaseInformationGathering,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := phaseTypeFor(tt.em); got != tt.expected {
				t.Errorf("phaseTypeFor = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCountTopicSwitches(t *testing.T) {
	enhanced := []models.EnhancedMessage{
		enhancedWith("m0", models.CategoryQuestion, "apis"),
		enhancedWith("m1", models.CategoryQuestion, "databases"), // switch
		enhancedWith("m2", models.CategoryQuestion),              // empty set, ignored
		enhancedWith("m3", models.CategoryQuestion, "databases"),
		enhancedWith("m4", models.CategoryQuestion, "databases", "apis"), // overlap, no switch
	}

	if got := countTopicSwitches(enhanced); got != 1 {
		t.Errorf("switches = %d, want 1", got)
	}
}
