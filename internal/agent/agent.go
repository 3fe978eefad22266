// Package agent implements the two-turn ReAct loop (spec component
// C10): a decision turn that either answers directly or emits a single
// ACTION: SEARCH line, and a grounding turn that resends the
// conversation with the retrieval envelope as an observation. Grounded
// on the teacher's chat-completion wiring (sashabaranov/go-openai
// client, the same library used for internal/mcp/tools.go's chat
// calls), generalized from tool-call dispatch to this domain's single
// textual action contract.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/dzheng/digitalmemory/internal/retrieve"
)

// actionRegexes are tried in priority order (spec section 4.10): the
// first is the canonical quoted form, the second tolerates a model that
// drops the quotes, and the third accepts a quoted query with no date
// field. All three expect query before date.
var actionRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ACTION:\s*SEARCH\s+query="([^"]*)"\s+date="([^"]*)"`),
	regexp.MustCompile(`(?i)ACTION:\s*SEARCH\s+query=([^\s"]+)\s+date=([^\s"]+)`),
	regexp.MustCompile(`(?i)ACTION:\s*SEARCH\s+query="([^"]*)"`),
}

// Action is a parsed ACTION: SEARCH line.
type Action struct {
	Query string
	Date  string // "" means no filter (the model writes "None")
}

// parseAction scans text for the first matching action regex, in
// priority order.
func parseAction(text string) (Action, bool) {
	for _, re := range actionRegexes {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		a := Action{Query: strings.TrimSpace(m[1])}
		if len(m) > 2 {
			a.Date = normalizeNone(strings.TrimSpace(m[2]))
		}
		return a, true
	}
	return Action{}, false
}

func normalizeNone(date string) string {
	if strings.EqualFold(date, "none") || strings.EqualFold(date, "null") {
		return ""
	}
	return date
}

// Turn is one message in the conversation, mirroring the chat API's
// {role, content} shape.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Reply is the agent's final answer for this request.
type Reply struct {
	Text       string
	Retrieved  bool   // whether turn 2 (grounding) ran
	Query      string // the action's query, if any
	DateFilter string
	Truncated  bool // finish_reason == "length" on either turn
}

// Agent runs the two-turn loop against a chat-completions endpoint and
// the hybrid retriever.
type Agent struct {
	Chat        *openai.Client
	Model       string
	Retriever   *retrieve.Retriever
	Logger      *slog.Logger
	Timeout     time.Duration
	MaxResults  int
	Temperature float32
	MaxTokens   int
}

func New(chat *openai.Client, model string, retriever *retrieve.Retriever, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		Chat: chat, Model: model, Retriever: retriever, Logger: logger,
		Timeout: 120 * time.Second, MaxResults: 10,
		Temperature: 0.3, MaxTokens: 1024,
	}
}

// systemPrompt builds turn 1's instructions, embedding the current date
// and a recent-conversation summary for pronoun resolution (spec
// section 4.10).
func systemPrompt(now time.Time, recentSummary string) string {
	p := fmt.Sprintf(
		"You are a journal assistant. Today's date is %s.\n"+
			"If you need to look up something the user said in their journal, "+
			"respond with exactly one line of the form:\n"+
			`ACTION: SEARCH query="<text>" date="<filter-or-None>"`+"\n"+
			"Otherwise answer directly. Never fabricate journal content you have not "+
			"been shown. date may be a specific day (YYYY-MM-DD), a month, a dekad "+
			"(YYYY-MM-上旬/中旬/下旬), a relative term (today, yesterday, last_week, "+
			"last_month, last_year, N_days_ago, N_months_ago), or None.",
		now.Format("2006-01-02"))
	if recentSummary != "" {
		p += "\n\nRecent conversation (for resolving pronouns like \"it\"/\"that\"):\n" + recentSummary
	}
	return p
}

// groundingPrompt wraps the retrieval envelope as a user observation
// (spec section 4.10's turn 2), instructing strict grounding and
// explicit acknowledgment of the no-record sentinel.
func groundingPrompt(envelope string) string {
	instruction := "Observation from the journal search (ground your answer strictly in this; " +
		"do not add facts not present here):\n\n" + envelope
	if envelope == retrieve.NoRecordSentinel {
		instruction += "\n\nState clearly that no matching record was found; do not guess."
	}
	return instruction
}

// Ask runs the full two-turn loop for one user message.
func (a *Agent) Ask(ctx context.Context, message string, history []Turn, now time.Time) (Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(now, summarize(history))},
	}
	for _, t := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	resp1, err := a.Chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.Model,
		Messages:    messages,
		Temperature: a.Temperature,
		MaxTokens:   a.MaxTokens,
	})
	if err != nil {
		a.Logger.Warn("chat turn 1 failed", slog.String("error", err.Error()))
		return Reply{Text: "I'm sorry, I couldn't process that request right now."}, nil
	}
	if len(resp1.Choices) == 0 {
		return Reply{Text: "I'm sorry, I couldn't process that request right now."}, nil
	}

	turn1 := resp1.Choices[0].Message.Content
	truncated := resp1.Choices[0].FinishReason == openai.FinishReasonLength

	action, ok := parseAction(turn1)
	if !ok {
		return Reply{Text: withTruncationNotice(turn1, truncated), Truncated: truncated}, nil
	}

	k := a.MaxResults
	if k <= 0 {
		k = 10
	}
	hits, err := a.Retriever.Search(ctx, action.Query, action.Date, k)
	if err != nil {
		a.Logger.Warn("retrieval failed during grounding turn", slog.String("error", err.Error()))
		return Reply{
			Text:       "I'm sorry, I couldn't search the journal right now.",
			Query:      action.Query,
			DateFilter: action.Date,
		}, nil
	}
	envelope := retrieve.Envelope(hits)

	messages = append(messages,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: turn1},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: groundingPrompt(envelope)},
	)

	resp2, err := a.Chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.Model,
		Messages:    messages,
		Temperature: a.Temperature,
		MaxTokens:   a.MaxTokens,
	})
	if err != nil || len(resp2.Choices) == 0 {
		return Reply{
			Text:       "I'm sorry, I found the record but couldn't finish my answer.",
			Retrieved:  true,
			Query:      action.Query,
			DateFilter: action.Date,
		}, nil
	}

	truncated = truncated || resp2.Choices[0].FinishReason == openai.FinishReasonLength
	return Reply{
		Text:       withTruncationNotice(resp2.Choices[0].Message.Content, truncated),
		Retrieved:  true,
		Query:      action.Query,
		DateFilter: action.Date,
		Truncated:  truncated,
	}, nil
}

// withTruncationNotice appends an explicit apology when the model's
// response was cut off by the token limit (spec section 7: truncation
// is a soft failure, never silently trimmed).
func withTruncationNotice(text string, truncated bool) string {
	if !truncated {
		return text
	}
	return text + "\n\n(I'm sorry, my answer was cut off before I could finish.)"
}

// summarize renders the last few turns as a compact block for pronoun
// resolution; it does not attempt real summarization, just recency.
func summarize(history []Turn) string {
	const maxTurns = 4
	if len(history) == 0 {
		return ""
	}
	start := 0
	if len(history) > maxTurns {
		start = len(history) - maxTurns
	}
	var b strings.Builder
	for _, t := range history[start:] {
		b.WriteString(t.Role + ": " + t.Content + "\n")
	}
	return strings.TrimSpace(b.String())
}
