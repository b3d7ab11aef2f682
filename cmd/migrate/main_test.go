package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/carepulse/pkg/logging"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		args    []string
		want    command
		wantErr bool
	}{
		{args: nil, want: command{name: "up"}},
		{args: []string{"down"}, want: command{name: "down"}},
		{args: []string{"version"}, want: command{name: "version"}},
		{args: []string{"force", "2"}, want: command{name: "force", version: 2}},
		{args: []string{"force"}, wantErr: true},
		{args: []string{"force", "two"}, wantErr: true},
		{args: []string{"sideways"}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseArgs(tt.args)
		if tt.wantErr {
			assert.Error(t, err, "args %v", tt.args)
			continue
		}
		require.NoError(t, err, "args %v", tt.args)
		assert.Equal(t, tt.want, got)
	}
}

func TestRunRequiresDatabaseURL(t *testing.T) {
	err := run("  ", nil, logging.New("error"))
	assert.ErrorContains(t, err, "DATABASE_URL")
}
