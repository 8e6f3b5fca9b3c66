package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		message string
		want    Result
	}{
		{
			name:    "high urgency implies requires action",
			subject: "URGENT: data breach",
			message: "we need a fix immediately",
			want:    Result{Urgency: "high", Sentiment: "neutral", RequiresAction: true},
		},
		{
			name:    "negative sentiment without urgency",
			subject: "terrible experience",
			message: "this is awful, I am so disappointed",
			want:    Result{Urgency: "low", Sentiment: "negative", RequiresAction: false},
		},
		{
			name:    "positive sentiment",
			subject: "thanks!",
			message: "really appreciate the quick help, excellent support",
			want:    Result{Urgency: "low", Sentiment: "positive", RequiresAction: false},
		},
		{
			name:    "medium urgency with action keyword",
			subject: "issue with my account",
			message: "please fix this when you can",
			want:    Result{Urgency: "medium", Sentiment: "neutral", RequiresAction: true},
		},
		{
			name:    "plain ticket",
			subject: "question about billing",
			message: "how do I update my card",
			want:    Result{Urgency: "low", Sentiment: "neutral", RequiresAction: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.subject, tt.message)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_NeverFails(t *testing.T) {
	assert.NotPanics(t, func() {
		Classify("", "")
	})
}
