package filings

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const submissionsJSON = `{
	"cik": "320193",
	"name": "Apple Inc.",
	"filings": {
		"recent": {
			"accessionNumber": ["0000320193-26-000002", "0000320193-25-000123", "0000320193-25-000090"],
			"filingDate": ["2026-01-05", "2025-10-31", "2025-08-01"],
			"form": ["8-K", "10-K", "10-Q"],
			"primaryDocument": ["a8-k.htm", "a10-k.htm", "a10-q.htm"]
		}
	}
}`

func TestGetRecentFilings(t *testing.T) {
	var gotPath, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(submissionsJSON))
	}))
	defer server.Close()

	client := NewClient("marketbrief admin@example.com", WithBaseURL(server.URL))
	filings, err := client.GetRecentFilings(context.Background(), "320193", 2)
	require.NoError(t, err)

	assert.Equal(t, "/submissions/CIK0000320193.json", gotPath)
	assert.Equal(t, "marketbrief admin@example.com", gotAgent)

	require.Len(t, filings, 2)
	assert.Equal(t, "8-K", filings[0].Form)
	assert.Equal(t, "2026-01-05", filings[0].FilingDate.Format("2006-01-02"))
	assert.Equal(t, "10-K", filings[1].Form)
}

func TestGetRecentFilingsNoLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(submissionsJSON))
	}))
	defer server.Close()

	client := NewClient("marketbrief admin@example.com", WithBaseURL(server.URL))
	filings, err := client.GetRecentFilings(context.Background(), "320193", 0)
	require.NoError(t, err)
	assert.Len(t, filings, 3)
}

func TestGetRecentFilingsUnknownCIK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient("marketbrief admin@example.com", WithBaseURL(server.URL))
	_, err := client.GetRecentFilings(context.Background(), "999999", 5)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsNotFound())
}

func TestPadCIK(t *testing.T) {
	assert.Equal(t, "0000320193", padCIK("320193"))
	assert.Equal(t, "0000000001", padCIK("1"))
	assert.Equal(t, "1234567890", padCIK("1234567890"))
}
