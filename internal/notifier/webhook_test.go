package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketsync/backend/internal/model"
)

func TestWebhookSink_SendsExpectedPayload(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	err := sink.Send(context.Background(), Task{
		TenantID: "tenant-a",
		Ticket: model.Ticket{
			ExternalID: "e1",
			CustomerID: "c1",
			Subject:    "urgent issue",
			Urgency:    model.UrgencyHigh,
			Sentiment:  model.SentimentNegative,
			Status:     "open",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", received.TenantID)
	assert.Equal(t, "e1", received.ExternalID)
	assert.Equal(t, "high", received.Urgency)
}

func TestWebhookSink_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	err := sink.Send(context.Background(), Task{Ticket: model.Ticket{ExternalID: "e1"}})
	assert.Error(t, err)
}
