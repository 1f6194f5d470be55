package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDesk struct {
	confirmed []string
	actors    []string
}

func (f *fakeDesk) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/stats/reset", func(w http.ResponseWriter, r *http.Request) {
		f.actors = append(f.actors, r.Header.Get("X-Actor-ID"))
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token":      "tok-1",
			"expires_at": time.Now().Add(time.Minute),
		})
	})
	mux.HandleFunc("POST /api/v1/stats/reset/confirm", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.confirmed = append(f.confirmed, body["token"])
		w.Write([]byte(`{"status":"reset"}`))
	})
	mux.HandleFunc("GET /api/v1/stats/split", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"validation failed: number of people \"0\" must be positive","code":"VALIDATION_ERROR"}`))
	})
	return mux
}

func TestRunResetConfirmed(t *testing.T) {
	desk := &fakeDesk{}
	srv := httptest.NewServer(desk.handler())
	defer srv.Close()

	var out bytes.Buffer
	c := newClient(srv.URL, "op-1", "operator", time.Second)
	require.NoError(t, runReset(context.Background(), c, strings.NewReader("reset\n"), &out))

	assert.Equal(t, []string{"tok-1"}, desk.confirmed)
	assert.Equal(t, []string{"op-1"}, desk.actors)
	assert.Contains(t, out.String(), "Statistics reset.")
}

func TestRunResetCancelled(t *testing.T) {
	desk := &fakeDesk{}
	srv := httptest.NewServer(desk.handler())
	defer srv.Close()

	var out bytes.Buffer
	c := newClient(srv.URL, "op-1", "operator", time.Second)
	require.NoError(t, runReset(context.Background(), c, strings.NewReader("yes\n"), &out))

	assert.Empty(t, desk.confirmed)
	assert.Contains(t, out.String(), "Reset cancelled.")
}

func TestClientReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer((&fakeDesk{}).handler())
	defer srv.Close()

	c := newClient(srv.URL, "", "", time.Second)
	err := c.do(context.Background(), http.MethodGet, "/api/v1/stats/split", nil, nil, nil)

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
}
