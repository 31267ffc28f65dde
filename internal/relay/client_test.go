package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lettermill/lettermill/internal/common"
)

func TestClientSend(t *testing.T) {
	var got Delivery
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/send-email", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	err := c.Send(context.Background(), Delivery{To: "bob@example.com", Subject: "hi", Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", got.To)
}

func TestClientSendUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "smtp down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	err := c.Send(context.Background(), Delivery{To: "bob@example.com"})
	assert.ErrorIs(t, err, common.ErrDeliveryFailed)
}

func TestClientSendConnectionRefused(t *testing.T) {
	// Grab an address that refuses connections.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, time.Second)
	err := c.Send(context.Background(), Delivery{To: "bob@example.com"})
	assert.ErrorIs(t, err, common.ErrDeliveryFailed)
}

func TestNoopSender(t *testing.T) {
	assert.NoError(t, Noop{}.Send(context.Background(), Delivery{To: "anyone@example.com"}))
}
