package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordNotifier_Notify(t *testing.T) {
	var got map[string]string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	n := NewDiscordNotifier(ts.URL)
	require.NoError(t, n.Notify(context.Background(), "cabecera_001.txt moved to failed"))
	assert.Equal(t, "cabecera_001.txt moved to failed", got["content"])
}

func TestDiscordNotifier_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		url     bool
		wantErr string
	}{
		{name: "missing url", wantErr: "webhook URL is not set"},
		{name: "server error", status: http.StatusInternalServerError, url: true, wantErr: "status 500"},
		{name: "bad request", status: http.StatusBadRequest, url: true, wantErr: "status 400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer ts.Close()

			n := NewDiscordNotifier("")
			if tt.url {
				n.WebhookURL = ts.URL
			}

			err := n.Notify(context.Background(), "x")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
