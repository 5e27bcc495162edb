package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"conductor/domain"
	"conductor/llm"
)

const structuredQuerySystemPrompt = `You translate natural-language questions into a single SQL statement. Output only the SQL statement, with no commentary and no code fences.`

// StructuredQueryExecutor translates a natural-language request into a SQL
// statement. It never executes the statement itself: it proposes it along
// with a risk assessment, and anything that would mutate data goes through
// the approval gate before a human sees or runs it.
type StructuredQueryExecutor struct {
	completer llm.CompletionClient
}

func NewStructuredQueryExecutor(completer llm.CompletionClient) *StructuredQueryExecutor {
	return &StructuredQueryExecutor{completer: completer}
}

func (e *StructuredQueryExecutor) Tag() domain.Intent {
	return domain.IntentStructuredQuery
}

func (e *StructuredQueryExecutor) Run(ctx context.Context, req Request) (Result, error) {
	resp, err := e.completer.Complete(ctx, llm.CompletionRequest{
		System: structuredQuerySystemPrompt,
		Prompt: req.Text,
	})
	if err != nil {
		return Result{}, FromError("query generation failed", err)
	}

	statement := stripCodeFences(resp.Content)
	if statement == "" {
		return Result{}, Permanent("query generation produced an empty statement", nil)
	}

	risk, note := AnalyzeStatementRisk(statement)

	return Result{
		Content:  fmt.Sprintf("Proposed query:\n\n```sql\n%s\n```", statement),
		Risk:     risk,
		RiskNote: note,
		Model:    resp.Model,
	}, nil
}

var dangerousStatementPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdrop\s+(table|database|index|view)\b`),
	regexp.MustCompile(`(?i)\btruncate\s+table\b`),
	regexp.MustCompile(`(?i)\bdelete\s+from\b`),
	regexp.MustCompile(`(?i)\balter\s+table\b`),
	regexp.MustCompile(`(?i)\bgrant\b|\brevoke\b`),
}

var mutatingStatementPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\binsert\s+into\b`),
	regexp.MustCompile(`(?i)\bupdate\s+\S+\s+set\b`),
	regexp.MustCompile(`(?i)\bcreate\s+(table|database|index|view)\b`),
	regexp.MustCompile(`(?i)\breplace\s+into\b`),
}

// AnalyzeStatementRisk scores a SQL statement. Destructive DDL/DML is high
// risk, other mutations are medium, and read-only statements are low. The
// scan is deliberately coarse: a false "high" costs one approval round-trip,
// a false "low" costs data.
func AnalyzeStatementRisk(statement string) (RiskLevel, string) {
	for _, pattern := range dangerousStatementPatterns {
		if match := pattern.FindString(statement); match != "" {
			return RiskHigh, fmt.Sprintf("statement contains destructive operation %q", strings.ToUpper(collapseSpaces(match)))
		}
	}
	for _, pattern := range mutatingStatementPatterns {
		if match := pattern.FindString(statement); match != "" {
			return RiskMedium, fmt.Sprintf("statement modifies data via %q", strings.ToUpper(collapseSpaces(match)))
		}
	}
	if strings.Count(statement, ";") > 1 {
		return RiskMedium, "statement contains multiple commands"
	}
	return RiskLow, ""
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stripCodeFences removes a surrounding markdown code fence, which models
// emit despite instructions not to.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
