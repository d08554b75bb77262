package failure

import "strings"

// TextRule maps a case-insensitive substring of an error message to a kind and the
// operator-facing message written to the sheet.
type TextRule struct {
	Substring string
	Kind      Kind
	Message   string
}

// Operator-facing messages for grading-service failures.
const (
	MessageKeyRevoked = "API key is invalid or has been revoked. Please generate a new key."
	MessageAuthFailed = "API authentication failed. Check your API key."
	MessageQuota      = "API quota exceeded. Please try again later."
)

// TextRules is checked in order; the first matching substring wins.
var TextRules = []TextRule{
	{Substring: "leaked", Kind: KindAuth, Message: MessageKeyRevoked},
	{Substring: "revoked", Kind: KindAuth, Message: MessageKeyRevoked},
	{Substring: "403", Kind: KindAuth, Message: MessageKeyRevoked},
	{Substring: "permissiondenied", Kind: KindAuth, Message: MessageKeyRevoked},
	{Substring: "401", Kind: KindAuth, Message: MessageAuthFailed},
	{Substring: "unauthorized", Kind: KindAuth, Message: MessageAuthFailed},
	{Substring: "unauthenticated", Kind: KindAuth, Message: MessageAuthFailed},
	{Substring: "quota", Kind: KindRateLimit, Message: MessageQuota},
	{Substring: "429", Kind: KindRateLimit, Message: MessageQuota},
	{Substring: "rate limit", Kind: KindRateLimit, Message: MessageQuota},
	{Substring: "resourceexhausted", Kind: KindRateLimit, Message: MessageQuota},
	{Substring: "resource_exhausted", Kind: KindRateLimit, Message: MessageQuota},
}

// ClassifyText returns the first rule whose substring appears in text.
func ClassifyText(text string) (TextRule, bool) {
	lower := strings.ToLower(text)
	compact := strings.ReplaceAll(lower, " ", "")
	for _, rule := range TextRules {
		if strings.Contains(lower, rule.Substring) || strings.Contains(compact, rule.Substring) {
			return rule, true
		}
	}
	return TextRule{}, false
}

// OperatorMessage returns the sheet-visible explanation for a grading failure. The message
// text is matched first; a classified Auth or RateLimit error without a matching substring
// falls back to its kind's message.
func OperatorMessage(err error) string {
	if err == nil {
		return ""
	}
	if rule, ok := ClassifyText(err.Error()); ok {
		return rule.Message
	}
	switch KindOf(err) {
	case KindAuth:
		return MessageAuthFailed
	case KindRateLimit:
		return MessageQuota
	}
	return "Evaluation error: " + err.Error()
}
