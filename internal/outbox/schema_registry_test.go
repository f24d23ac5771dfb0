package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemaRegistryRegistersJSONSchema(t *testing.T) {
	var gotPath string
	var body struct {
		SchemaType string `json:"schemaType"`
		Schema     string `json:"schema"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"id":17}`))
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")
	id, err := client.EnsureSchema(context.Background(), "study_activity_events-value", activityLoggedSchema)

	require.NoError(t, err)
	require.Equal(t, 17, id)
	require.Equal(t, "/subjects/study_activity_events-value/versions", gotPath)
	require.Equal(t, "JSON", body.SchemaType)
	require.JSONEq(t, activityLoggedSchema, body.Schema)
}

func TestSchemaRegistryFallsBackToLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			http.Error(w, `{"error_code":409}`, http.StatusConflict)
			return
		}
		require.Equal(t, "/subjects/study_lifecycle_events-value/versions/latest", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":5,"version":2}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "study_lifecycle_events-value", userDeletedSchema)

	require.NoError(t, err)
	require.Equal(t, 5, id)
}

func TestSchemaRegistryReportsRegisterError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "s", "{}")

	require.ErrorContains(t, err, "schema registry register error")
	var regErr *RegistryError
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, http.StatusServiceUnavailable, regErr.Status)
}
