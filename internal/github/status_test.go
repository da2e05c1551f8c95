package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/extpr/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClientWithBaseURL(srv.Client(), srv.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func TestGetFileContent(t *testing.T) {
	manifest := "<extension key=\"org.example.myext\"/>"

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
		wantErr error
		anyErr  bool
	}{
		{
			name: "file exists",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/repos/civicrm/myext/contents/info.xml", r.URL.Path)
				assert.Equal(t, "abc123", r.URL.Query().Get("ref"))
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]string{
					"type":     "file",
					"name":     "info.xml",
					"path":     "info.xml",
					"encoding": "base64",
					"content":  base64.StdEncoding.EncodeToString([]byte(manifest)),
				})
			},
			want: manifest,
		},
		{
			name: "file over the inline size limit",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/repos/civicrm/myext/contents/info.xml", r.URL.Path)
				assert.Equal(t, "abc123", r.URL.Query().Get("ref"))
				if r.Header.Get("Accept") == "application/vnd.github.raw+json" {
					_, _ = w.Write([]byte(manifest))
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{
					"type":     "file",
					"name":     "info.xml",
					"path":     "info.xml",
					"encoding": "none",
					"size":     2 << 20,
					"content":  "",
				})
			},
			want: manifest,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			},
			wantErr: ErrFileNotFound,
		},
		{
			name: "directory",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`[{"type":"file","name":"a.txt","path":"info.xml/a.txt"}]`))
			},
			wantErr: ErrFileNotFound,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"message":"boom"}`))
			},
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			got, err := c.GetFileContent(context.Background(), "civicrm", "myext", "abc123", "info.xml")
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrFileNotFound)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestStatusUpdater(t *testing.T) {
	var bodies []map[string]any
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	})

	tpl := core.StatusTemplate{Owner: "civicrm", Repo: "myext", SHA: "abc123", Context: "CiviCRM @ Master"}
	updater := NewStatusUpdater(c)
	ctx := context.Background()

	require.NoError(t, updater.Pending(ctx, tpl))
	require.NoError(t, updater.TriggerFailed(ctx, tpl))
	require.NoError(t, updater.Report(ctx, tpl, core.StateSuccess, "https://ci.example.org/job/1", "All tests passed"))

	require.Len(t, bodies, 3)
	for _, p := range paths {
		assert.Equal(t, "/repos/civicrm/myext/statuses/abc123", p)
	}

	assert.Equal(t, "pending", bodies[0]["state"])
	assert.Equal(t, "CiviCRM @ Master", bodies[0]["context"])
	assert.Equal(t, "Waiting for tests to start", bodies[0]["description"])
	assert.NotContains(t, bodies[0], "target_url")

	assert.Equal(t, "error", bodies[1]["state"])
	assert.Equal(t, "Failed to initiate test job. Please consult infrastructure support channel.", bodies[1]["description"])

	assert.Equal(t, "success", bodies[2]["state"])
	assert.Equal(t, "https://ci.example.org/job/1", bodies[2]["target_url"])
}

func TestCreateStatus_Error(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Validation Failed"}`))
	})

	err := NewStatusUpdater(c).Pending(context.Background(), core.StatusTemplate{Owner: "o", Repo: "r", SHA: "s", Context: "c"})
	assert.Error(t, err)
}

func TestTruncateDescription(t *testing.T) {
	assert.Equal(t, "short", truncateDescription("short"))

	long := strings.Repeat("é", 200)
	got := truncateDescription(long)
	assert.Len(t, []rune(got), core.MaxDescriptionLength)
	assert.True(t, strings.HasSuffix(got, "…"))
}
