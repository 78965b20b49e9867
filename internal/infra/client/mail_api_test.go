package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/infra/client"
	"github.com/boddenberg/securebank-go/internal/infra/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message() *domain.MailMessage {
	return &domain.MailMessage{
		ID:       "msg-42",
		Kind:     "reset-password",
		To:       "a@x.com",
		From:     "SecureBank <no-reply@securebank.local>",
		Subject:  "Reset your SecureBank password",
		TextBody: "link",
		HTMLBody: "<a>link</a>",
	}
}

func TestMailAPIClient_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		assert.Equal(t, "msg-42", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := client.NewMailAPIClient(srv.Client(), srv.URL, "key-1")
	require.NoError(t, c.Send(context.Background(), message()))

	assert.Equal(t, []any{"a@x.com"}, got["to"])
	assert.Equal(t, "Reset your SecureBank password", got["subject"])
	assert.Equal(t, "<a>link</a>", got["html"])
}

func TestMailAPIClient_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid recipient"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := client.NewMailAPIClient(srv.Client(), srv.URL, "").Send(context.Background(), message())
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
	assert.Contains(t, err.Error(), "422")
}

func TestMailAPIClient_ServerErrorIsRetryable(t *testing.T) {
	for _, status := range []int{http.StatusBadGateway, http.StatusTooManyRequests} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))

		err := client.NewMailAPIClient(srv.Client(), srv.URL, "").Send(context.Background(), message())
		require.Error(t, err)
		assert.False(t, resilience.IsPermanent(err))
		srv.Close()
	}
}
