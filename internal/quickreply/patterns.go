package quickreply

import "regexp"

// pattern is one entry of the ordered trivial-turn table. Patterns are
// tested in order against the trimmed message; the first match decides.
// Only some kinds short-circuit the model call; elaboration and
// continuation requests always need fresh content.
type pattern struct {
	reason     string
	re         *regexp.Regexp
	shouldCall bool
	confidence float64
	replies    []string
}

var patterns = []pattern{
	{
		reason:     "greeting",
		re:         regexp.MustCompile(`(?i)^(hi|hello|hey|howdy|yo|good (morning|afternoon|evening))[.! ]*$`),
		shouldCall: false,
		confidence: 0.95,
		replies: []string{
			"Hello! How can I help you today?",
			"Hi there! What can I do for you?",
		},
	},
	{
		reason:     "agreement",
		re:         regexp.MustCompile(`(?i)^(yes|yeah|yep|yup|sure|ok|okay|sounds good|agreed|exactly|right|correct)[.! ]*$`),
		shouldCall: false,
		confidence: 0.9,
		replies: []string{
			"Great! Let me know if there's anything else you need.",
			"Sounds good. Anything else I can help with?",
		},
	},
	{
		reason:     "disagreement",
		re:         regexp.MustCompile(`(?i)^(no|nope|nah|not really|i disagree|that'?s wrong)[.! ]*$`),
		shouldCall: false,
		confidence: 0.85,
		replies: []string{
			"Understood. Could you tell me more about what you'd like instead?",
		},
	},
	{
		reason:     "acknowledgment",
		re:         regexp.MustCompile(`(?i)^(thanks|thank you|thx|ty|got it|cool|nice|great|perfect|awesome|makes sense)[.! ]*$`),
		shouldCall: false,
		confidence: 0.95,
		replies: []string{
			"You're welcome! Happy to help.",
			"Glad I could help!",
		},
	},
	{
		reason:     "clarification-request",
		re:         regexp.MustCompile(`(?i)^(what do you mean|can you clarify|i don'?t understand|huh|what\?)[.? ]*$`),
		shouldCall: true, // rephrasing needs the model
		confidence: 0.8,
	},
	{
		reason:     "elaboration-request",
		re:         regexp.MustCompile(`(?i)^(tell me more|more details?|elaborate|expand on that|go deeper)[.! ]*$`),
		shouldCall: true, // fresh content required
		confidence: 0.85,
	},
	{
		reason:     "continuation-request",
		re:         regexp.MustCompile(`(?i)^(continue|go on|keep going|and then|next|more)[.! ]*$`),
		shouldCall: true, // fresh content required
		confidence: 0.85,
	},
}

// factualQueryPatterns mark queries whose answers are stable enough to cache
var factualQueryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^what (is|are) `),
	regexp.MustCompile(`(?i)^define `),
	regexp.MustCompile(`(?i)^explain `),
	regexp.MustCompile(`(?i)^how (does|do) .+ work`),
	regexp.MustCompile(`(?i)^who (is|was) `),
	regexp.MustCompile(`(?i)^when (did|was) `),
	regexp.MustCompile(`(?i)^where (is|was) `),
}

// personalQueryMarkers exclude personalized queries from the cache
var personalQueryMarkers = []string{"my ", " me ", " i ", "mine", "our "}

// contextBoundReplyMarkers exclude replies that lean on conversation state
var contextBoundReplyMarkers = []string{
	"you said", "you mentioned", "as we discussed", "earlier", "your ",
	"as mentioned above", "in our conversation",
}
