package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-gateway/config"
)

func newModerationServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/moderations", r.URL.Path)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func moderationConfig(url string) config.GuardConfig {
	return config.GuardConfig{
		ModerationEnabled: true,
		ModerationAPIKey:  "sk-test",
		ModerationBaseURL: url,
		ModerationTimeout: 2 * time.Second,
	}
}

func TestModerationDetectorFlagsContent(t *testing.T) {
	server := newModerationServer(t, `{
		"id": "modr-1",
		"model": "omni-moderation-latest",
		"results": [{
			"flagged": true,
			"categories": {"violence": true},
			"category_scores": {"violence": 0.97}
		}]
	}`, http.StatusOK)
	defer server.Close()

	d := NewModerationDetector(moderationConfig(server.URL))
	findings, err := d.Detect(context.Background(), userMsg("violent content here"))
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "content_policy", findings[0].Category)
	assert.Equal(t, SeverityCritical, findings[0].Severity)
}

func TestModerationDetectorCleanContent(t *testing.T) {
	server := newModerationServer(t, `{
		"id": "modr-2",
		"results": [{"flagged": false, "categories": {}, "category_scores": {}}]
	}`, http.StatusOK)
	defer server.Close()

	d := NewModerationDetector(moderationConfig(server.URL))
	findings, err := d.Detect(context.Background(), userMsg("hello world"))
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestModerationDetectorEndpointFailure(t *testing.T) {
	server := newModerationServer(t, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	defer server.Close()

	d := NewModerationDetector(moderationConfig(server.URL))
	_, err := d.Detect(context.Background(), userMsg("hello"))
	assert.Error(t, err)
}

func TestModerationDetectorSkipsEmptyInput(t *testing.T) {
	d := NewModerationDetector(moderationConfig("http://127.0.0.1:1"))
	findings, err := d.Detect(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, findings)
}
