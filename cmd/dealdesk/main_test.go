package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/dealdesk/internal/app"
)

func TestRunUsage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &app.Config{}

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	require.Zero(t, run(context.Background(), cfg, logger, []string{"help"}, stdout, stderr))
	require.Contains(t, stdout.String(), "usage: dealdesk")

	for _, args := range [][]string{{"deploy"}, {"fx"}, {"fx", "purge"}, {"logistics"}, {"jobs"}} {
		stdout.Reset()
		stderr.Reset()
		require.Equal(t, 2, run(context.Background(), cfg, logger, args, stdout, stderr), args)
		require.Contains(t, stderr.String(), "usage: dealdesk")
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stderr := new(bytes.Buffer)
	code := run(context.Background(), &app.Config{}, logger, []string{"fx", "gaps", "-unknown"}, new(bytes.Buffer), stderr)
	require.Equal(t, 2, code)
}
