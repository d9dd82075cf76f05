package topics

import (
	"fmt"
	"sort"

	"contextd/internal/models"
)

// DefaultMaxClusters bounds how many clusters ClusterTopics returns
const DefaultMaxClusters = 8

// ClusterTopics groups message ids by shared topic tag. Cluster importance
// is the member share of the conversation; the result is sorted by
// importance (ties broken by name for determinism) and truncated to
// maxClusters. The input snapshot is not mutated.
func ClusterTopics(enhanced []models.EnhancedMessage, maxClusters int) []models.TopicCluster {
	if maxClusters <= 0 {
		maxClusters = DefaultMaxClusters
	}
	if len(enhanced) == 0 {
		return nil
	}

	byTag := make(map[string]*models.TopicCluster)
	var order []string

	for _, em := range enhanced {
		for _, tag := range em.Topics {
			cluster, ok := byTag[tag]
			if !ok {
				cluster = &models.TopicCluster{
					ID:       fmt.Sprintf("topic-%s", tag),
					Name:     tag,
					Keywords: []string{tag},
				}
				byTag[tag] = cluster
				order = append(order, tag)
			}
			cluster.MessageIDs = append(cluster.MessageIDs, em.ID)
			if em.CreatedAt.After(cluster.LastMentioned) {
				cluster.LastMentioned = em.CreatedAt
			}
		}
	}

	clusters := make([]models.TopicCluster, 0, len(order))
	for _, tag := range order {
		c := byTag[tag]
		c.Importance = float64(len(c.MessageIDs)) / float64(len(enhanced))
		clusters = append(clusters, *c)
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].Importance != clusters[j].Importance {
			return clusters[i].Importance > clusters[j].Importance
		}
		return clusters[i].Name < clusters[j].Name
	})

	if len(clusters) > maxClusters {
		clusters = clusters[:maxClusters]
	}
	return clusters
}

// AnalyzePhases walks messages in order and opens a new phase whenever the
// derived phase type changes. Continuity is the mean topic overlap between
// adjacent phases; a single-phase conversation has continuity 1.0.
func AnalyzePhases(enhanced []models.EnhancedMessage) models.ConversationFlow {
	if len(enhanced) == 0 {
		return models.ConversationFlow{Continuity: 1.0}
	}

	var phases []models.ConversationPhase
	current := newPhase(0, phaseTypeFor(enhanced[0]))
	topicCounts := map[string]int{}
	countTopics(topicCounts, enhanced[0].Topics)

	for i := 1; i < len(enhanced); i++ {
		pt := phaseTypeFor(enhanced[i])
		if pt != current.Type {
			current.EndTurn = i - 1
			current.PrimaryTopics, current.SecondaryTopics = rankTopics(topicCounts)
			current.Resolution = models.ResolutionResolved
			phases = append(phases, current)

			current = newPhase(i, pt)
			topicCounts = map[string]int{}
		}
		countTopics(topicCounts, enhanced[i].Topics)
	}

	current.EndTurn = len(enhanced) - 1
	current.PrimaryTopics, current.SecondaryTopics = rankTopics(topicCounts)
	current.Resolution = models.ResolutionInProgress
	phases = append(phases, current)

	return models.ConversationFlow{
		Phases:        phases,
		TopicSwitches: countTopicSwitches(enhanced),
		Continuity:    continuityScore(phases),
	}
}

func newPhase(startTurn int, pt models.PhaseType) models.ConversationPhase {
	return models.ConversationPhase{
		ID:        fmt.Sprintf("phase-%d", startTurn),
		Type:      pt,
		StartTurn: startTurn,
	}
}

// phaseTypeFor derives the phase type from category and intent via a
// priority table: code-related beats everything, then creative, then
// question, then problem-solving intent, then assistant explanations.
func phaseTypeFor(em models.EnhancedMessage) models.PhaseType {
	switch {
	case em.Category == models.CategoryCodeRelated:
		return models.PhaseDebugging
	case em.Category == models.CategoryCreative:
		return models.PhaseCreativeExploration
	case em.Category == models.CategoryQuestion:
		return models.PhaseInformationGathering
	case em.Intent == models.IntentProblemSolving:
		return models.PhaseProblemSolving
	case em.Role == models.RoleAssistant &&
		(em.Category == models.CategoryAnswer || em.Category == models.CategoryAnalytical):
		return models.PhaseExplanation
	default:
		return models.PhaseInformationGathering
	}
}

func countTopics(counts map[string]int, topics []string) {
	for _, t := range topics {
		counts[t]++
	}
}

// rankTopics splits a phase's topics into primary (top 2) and secondary (next 2)
func rankTopics(counts map[string]int) (primary, secondary []string) {
	type tc struct {
		topic string
		count int
	}
	ranked := make([]tc, 0, len(counts))
	for t, c := range counts {
		ranked = append(ranked, tc{t, c})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].topic < ranked[j].topic
	})

	for i, r := range ranked {
		switch {
		case i < 2:
			primary = append(primary, r.topic)
		case i < 4:
			secondary = append(secondary, r.topic)
		}
	}
	return primary, secondary
}

// countTopicSwitches counts adjacent message pairs whose topic sets are
// both non-empty yet share nothing.
func countTopicSwitches(enhanced []models.EnhancedMessage) int {
	switches := 0
	for i := 1; i < len(enhanced); i++ {
		prev, curr := enhanced[i-1].Topics, enhanced[i].Topics
		if len(prev) == 0 || len(curr) == 0 {
			continue
		}
		if !overlaps(prev, curr) {
			switches++
		}
	}
	return switches
}

func overlaps(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		if set[t] {
			return true
		}
	}
	return false
}

// continuityScore is the mean, over adjacent phase pairs, of their topic-set
// overlap ratio (intersection over union). Phases with no topics at all are
// treated as fully continuous.
func continuityScore(phases []models.ConversationPhase) float64 {
	if len(phases) <= 1 {
		return 1.0
	}

	total := 0.0
	for i := 1; i < len(phases); i++ {
		total += overlapRatio(phaseTopics(phases[i-1]), phaseTopics(phases[i]))
	}
	return total / float64(len(phases)-1)
}

func phaseTopics(p models.ConversationPhase) []string {
	return append(append([]string{}, p.PrimaryTopics...), p.SecondaryTopics...)
}

func overlapRatio(a, b []string) float64 {
	union := make(map[string]bool)
	setA := make(map[string]bool)
	for _, t := range a {
		setA[t] = true
		union[t] = true
	}
	shared := 0
	for _, t := range b {
		if setA[t] {
			shared++
		}
		union[t] = true
	}
	if len(union) == 0 {
		return 1.0
	}
	return float64(shared) / float64(len(union))
}
