package engine

import (
	"strings"

	"conductor/domain"
)

// Classifier resolves a request to exactly one intent tag. Implementations
// must be deterministic: identical text and snapshot always yield the same
// intent. Classification itself never errors; anything unrecognizable is
// simply unknown, which the engine routes to chat.
type Classifier interface {
	Classify(requestText string, snapshot domain.ContextSnapshot) domain.Intent
}

// KeywordClassifier scores requests against per-intent keyword lists. The
// highest strict score wins; ties and zero scores resolve to chat, since a
// wrong chat answer is recoverable while a wrong executor may not be.
type KeywordClassifier struct{}

func NewKeywordClassifier() KeywordClassifier {
	return KeywordClassifier{}
}

var intentKeywords = map[domain.Intent][]string{
	domain.IntentResearch: {
		"latest", "current", "today", "news", "recent", "weather",
		"price", "stock", "happening", "this week", "right now",
	},
	domain.IntentStructuredQuery: {
		"sql", "query", "table", "database", "select", "insert",
		"update", "delete", "drop", "rows", "schema", "join",
	},
	domain.IntentCode: {
		"code", "script", "function", "implement", "debug", "refactor",
		"compile", "bug", "python", "golang", "javascript",
	},
	domain.IntentDocumentQA: {
		"document", "uploaded", "file", "pdf", "contract", "report",
		"according to", "says about", "in the doc",
	},
}

// scoreOrder fixes the iteration order so ties break deterministically.
var scoreOrder = []domain.Intent{
	domain.IntentDocumentQA,
	domain.IntentStructuredQuery,
	domain.IntentCode,
	domain.IntentResearch,
}

func (KeywordClassifier) Classify(requestText string, snapshot domain.ContextSnapshot) domain.Intent {
	text := strings.ToLower(requestText)
	if strings.TrimSpace(text) == "" {
		return domain.IntentChat
	}

	best := domain.IntentUnknown
	bestScore := 0
	tied := false
	for _, intent := range scoreOrder {
		// document_qa only applies when the workspace has ingested documents
		if intent == domain.IntentDocumentQA && len(snapshot.Documents) == 0 {
			continue
		}
		score := 0
		for _, keyword := range intentKeywords[intent] {
			if containsKeyword(text, keyword) {
				score++
			}
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = intent, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}

	if bestScore == 0 || tied {
		return domain.IntentChat
	}
	return best
}

// containsKeyword matches whole words for single-word keywords and plain
// substrings for phrases, so "updated" does not count as "update".
func containsKeyword(text, keyword string) bool {
	if strings.Contains(keyword, " ") {
		return strings.Contains(text, keyword)
	}
	for _, word := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if word == keyword {
			return true
		}
	}
	return false
}
