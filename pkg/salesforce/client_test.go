package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSFClient(t *testing.T, handler http.Handler, opts ...ClientOption) Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	sf, err := gosf.Init(gosf.Creds{
		AccessToken: "test-token",
		Domain:      ts.URL,
	},
		gosf.WithValidateAuthentication(false),
		gosf.WithRoundTripper(http.DefaultTransport),
	)
	require.NoError(t, err)
	return NewClient(sf, opts...)
}

func TestSFClient_Query(t *testing.T) {
	client := newTestSFClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/query")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalSize": 1,
			"done":      true,
			"records": []map[string]any{{
				"attributes": map[string]any{"type": "Opportunity"},
				"Id":         "006xx",
				"StageName":  "Closed Won",
				"IsWon":      true,
				"IsClosed":   true,
				"Amount":     150000,
			}},
		})
	}), WithRateLimit(100))

	var opps []Opportunity
	require.NoError(t, client.Query(context.Background(), "SELECT Id FROM Opportunity", &opps))
	require.Len(t, opps, 1)
	assert.Equal(t, "006xx", opps[0].ID)
	assert.True(t, opps[0].IsWon)
	assert.InDelta(t, 150000, opps[0].Amount, 0.01)
}

func TestSFClient_QueryError(t *testing.T) {
	client := newTestSFClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"message": "invalid SOQL", "errorCode": "MALFORMED_QUERY"},
		})
	}))

	var opps []Opportunity
	err := client.Query(context.Background(), "INVALID", &opps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: query")
}

func TestSFClient_InsertOne(t *testing.T) {
	client := newTestSFClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			assert.Contains(t, r.URL.Path, "/sobjects/Opportunity")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "006new", "success": true, "errors": []any{}})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	id, err := client.InsertOne(context.Background(), "Opportunity", map[string]any{"Name": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "006new", id)
}

func TestSFClient_InsertOneRejected(t *testing.T) {
	client := newTestSFClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "",
			"success": false,
			"errors":  []map[string]any{{"message": "required field missing"}},
		})
	}))

	_, err := client.InsertOne(context.Background(), "Opportunity", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert Opportunity failed")
}

func TestSFClient_UpdateOneCopiesFields(t *testing.T) {
	client := newTestSFClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	fields := map[string]any{"StageName": "Negotiation/Review"}
	require.NoError(t, client.UpdateOne(context.Background(), "Opportunity", "006xx", fields))
	_, mutated := fields["Id"]
	assert.False(t, mutated)
}

func TestConnect_Validation(t *testing.T) {
	_, err := Connect(Credentials{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")

	_, err = Connect(Credentials{ClientID: "id", Username: "u", KeyPath: filepath.Join(t.TempDir(), "missing.pem")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private key")
}
