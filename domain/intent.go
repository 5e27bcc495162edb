package domain

import "fmt"

// Intent is the closed-set classification of a user request. It determines
// which executor handles the turn.
type Intent string

const (
	IntentDocumentQA      Intent = "document_qa"
	IntentStructuredQuery Intent = "structured_query"
	IntentCode            Intent = "code"
	IntentResearch        Intent = "research"
	IntentChat            Intent = "chat"
	// IntentUnknown is a classifier-internal sentinel. The engine never
	// routes it; unknown always resolves to the chat executor.
	IntentUnknown Intent = "unknown"
)

// RoutableIntents are the intents an executor must be registered for.
var RoutableIntents = []Intent{
	IntentDocumentQA,
	IntentStructuredQuery,
	IntentCode,
	IntentResearch,
	IntentChat,
}

func StringToIntent(s string) (Intent, error) {
	switch s {
	case "document_qa":
		return IntentDocumentQA, nil
	case "structured_query":
		return IntentStructuredQuery, nil
	case "code":
		return IntentCode, nil
	case "research":
		return IntentResearch, nil
	case "chat":
		return IntentChat, nil
	case "unknown":
		return IntentUnknown, nil
	default:
		return "", fmt.Errorf("invalid Intent: \"%s\"", s)
	}
}
