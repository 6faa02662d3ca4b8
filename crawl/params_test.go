package crawl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJobParameters_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		params  JobParameters
		field   string
		wantErr bool
	}{
		{
			name:   "valid minimal",
			params: JobParameters{URL: "https://example.com"},
		},
		{
			name: "valid with options",
			params: JobParameters{
				URL:      "https://example.com/docs",
				Limit:    50,
				MaxDepth: 2,
				Formats:  []OutputFormat{FormatMarkdown, FormatHTML},
			},
		},
		{
			name:    "empty url",
			params:  JobParameters{},
			field:   "url",
			wantErr: true,
		},
		{
			name:    "relative url",
			params:  JobParameters{URL: "/docs"},
			field:   "url",
			wantErr: true,
		},
		{
			name:    "unsupported scheme",
			params:  JobParameters{URL: "ftp://example.com"},
			field:   "url",
			wantErr: true,
		},
		{
			name:    "negative limit",
			params:  JobParameters{URL: "https://example.com", Limit: -1},
			field:   "limit",
			wantErr: true,
		},
		{
			name:    "unknown format",
			params:  JobParameters{URL: "https://example.com", Formats: []OutputFormat{"pdf"}},
			field:   "formats",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.params.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	t.Parallel()

	require.False(t, JobStatusQueued.Terminal())
	require.False(t, JobStatusRunning.Terminal())
	require.True(t, JobStatusCompleted.Terminal())
	require.True(t, JobStatusFailed.Terminal())
	require.True(t, JobStatusCancelled.Terminal())
}
