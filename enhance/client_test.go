package enhance_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/promptlift/go-auth"
	"github.com/promptlift/go-auth/enhance"
)

var _ auth.PromptEnhancer = (*enhance.Client)(nil)

type captured struct {
	path   string
	apiKey string
	text   string
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, *captured) {
	t.Helper()

	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.apiKey = r.Header.Get("x-goog-api-key")

		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
			got.text = req.Contents[0].Parts[0].Text
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv, got
}

func TestClient_Enhance(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"  Write a haiku about autumn leaves.\n"}]}}]}`)

	client := enhance.NewClient().WithBaseURL(srv.URL)
	out, err := client.Enhance(context.Background(), "key-123", "", "haiku autumn")
	require.NoError(t, err)

	assert.Equal(t, "Write a haiku about autumn leaves.", out)
	assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", got.path)
	assert.Equal(t, "key-123", got.apiKey)
	assert.Contains(t, got.text, "Original prompt: haiku autumn")
	assert.Contains(t, got.text, "Enhanced prompt:")
}

func TestClient_UsesRequestedModel(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)

	_, err := enhance.NewClient().WithBaseURL(srv.URL).Enhance(context.Background(), "k", "gemini-pro", "p")
	require.NoError(t, err)
	assert.Equal(t, "/v1beta/models/gemini-pro:generateContent", got.path)
}

func TestClient_ProviderError(t *testing.T) {
	srv, _ := newServer(t, http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)

	_, err := enhance.NewClient().WithBaseURL(srv.URL).Enhance(context.Background(), "bad", "", "p")
	require.ErrorIs(t, err, enhance.ErrProviderStatus)
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestClient_EmptyCandidates(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"candidates":[]}`)

	_, err := enhance.NewClient().WithBaseURL(srv.URL).Enhance(context.Background(), "k", "", "p")
	assert.ErrorIs(t, err, enhance.ErrEmptyResponse)
}

func TestClient_MissingKey(t *testing.T) {
	_, err := enhance.NewClient().Enhance(context.Background(), " ", "", "p")
	assert.ErrorIs(t, err, enhance.ErrMissingAPIKey)
}
