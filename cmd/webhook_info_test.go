package cmd

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWebhookInfoCommand(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok": true, "result": {"url": "https://bot.example.com/hook", "has_custom_certificate": false, "pending_update_count": 3}}`)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"bot": {"token": "123:abc", "api_base_url": "` + srv.URL + `"}, "logging": {"format": "json", "level": "error"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("TGFLOW_CONFIG", path)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"webhook-info"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	require.Equal(t, "/bot123:abc/getWebhookInfo", gotPath)
	require.True(t, strings.Contains(out.String(), `"pending_update_count": 3`), out.String())
	require.Contains(t, out.String(), "https://bot.example.com/hook")
}
