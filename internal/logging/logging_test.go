package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/leapstack-labs/tsa/internal/config"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LoggingConfig
		wantLevel zerolog.Level
		wantJSON  bool
		wantErr   string
	}{
		{name: "defaults", cfg: config.LoggingConfig{}, wantLevel: zerolog.InfoLevel, wantJSON: true},
		{name: "debug json", cfg: config.LoggingConfig{Level: "DEBUG", Format: "json"}, wantLevel: zerolog.DebugLevel, wantJSON: true},
		{name: "text", cfg: config.LoggingConfig{Level: "warn", Format: "text"}, wantLevel: zerolog.WarnLevel},
		{name: "bad level", cfg: config.LoggingConfig{Level: "loud"}, wantErr: "parse log level"},
		{name: "bad format", cfg: config.LoggingConfig{Format: "xml"}, wantErr: "unknown log format"},
		{name: "loki without url", cfg: config.LoggingConfig{Loki: config.LokiConfig{Enabled: true}}, wantErr: "loki url is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, cleanup, err := Setup(tt.cfg, &buf)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer cleanup()

			assert.Equal(t, tt.wantLevel, logger.GetLevel())
			logger.WithLevel(tt.wantLevel).Str("collection", "winter").Msg("hello")

			if tt.wantJSON {
				var rec map[string]any
				require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
				assert.Equal(t, "hello", rec["message"])
				assert.Equal(t, "winter", rec["collection"])
				assert.Contains(t, rec, "time")
			} else {
				assert.Contains(t, buf.String(), "hello")
				assert.Contains(t, buf.String(), "collection=")
			}
		})
	}
}

type fakeHandler struct {
	labels  []model.LabelSet
	entries []string
	err     error
}

func (f *fakeHandler) Handle(labels model.LabelSet, _ time.Time, entry string) error {
	f.labels = append(f.labels, labels)
	f.entries = append(f.entries, entry)
	return f.err
}

func TestLokiWriter(t *testing.T) {
	h := &fakeHandler{}
	w := &lokiWriter{client: h, labels: labelSet(map[string]string{"env": "test"})}

	n, err := w.Write([]byte("{\"message\":\"x\"}\n"))
	require.NoError(t, err)
	assert.Equal(t, 16, n)

	_, err = w.Write([]byte("  \n"))
	require.NoError(t, err)

	require.Len(t, h.entries, 1, "blank entries are skipped")
	assert.Equal(t, `{"message":"x"}`, h.entries[0])
	assert.Equal(t, model.LabelSet{"env": "test"}, h.labels[0])

	h.err = errors.New("push failed")
	_, err = w.Write([]byte("y"))
	assert.EqualError(t, err, "push failed")
}

func TestLabelSet_Default(t *testing.T) {
	assert.Equal(t, model.LabelSet{"app": "tsa"}, labelSet(nil))
}
