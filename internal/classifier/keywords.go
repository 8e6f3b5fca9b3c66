package classifier

// Keyword lists are domain choices, not design ones — treated as data.
// Tuning these lists does not change the classifier's contract.

var highUrgencyKeywords = []string{
	"urgent", "critical", "lawsuit", "gdpr", "refund", "chargeback",
	"data breach", "outage", "legal action", "emergency", "escalate",
	"down", "security incident",
}

var mediumUrgencyKeywords = []string{
	"issue", "problem", "not working", "error", "broken", "delay",
	"concern",
}

var negativeSentimentKeywords = []string{
	"angry", "furious", "terrible", "awful", "worst", "disappointed",
	"frustrated", "unacceptable", "horrible", "hate", "ridiculous",
}

var positiveSentimentKeywords = []string{
	"thank you", "thanks", "great", "awesome", "appreciate", "love",
	"excellent", "happy", "pleased",
}

var actionKeywords = []string{
	"please", "need", "require", "request", "asap", "fix", "resolve",
	"respond", "call me", "refund", "cancel",
}
