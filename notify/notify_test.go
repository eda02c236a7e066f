package notify_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-vault-session/notify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLogNotifierMapsLevels(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewLogNotifier(zerolog.New(&buf))

	n.Notify(notify.Error, "Your session has expired")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "error", line["level"])
	require.Equal(t, "Your session has expired", line["message"])
	require.Equal(t, "error", line["level_hint"])
}

func TestLogNotifierSuccessLogsAtInfo(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewLogNotifier(zerolog.New(&buf))

	n.Notify(notify.Success, "Logged out")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "info", line["level"])
	require.Equal(t, "success", line["level_hint"])
}
