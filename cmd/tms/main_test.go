package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benmeehan/tms-heartbeat/internal/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeConfig(t *testing.T, kind string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "transport:\n  kind: " + kind + "\nlogging:\n  config_file: " + filepath.Join(dir, "logging-config.yaml") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_InvalidServerType(t *testing.T) {
	for _, args := range [][]string{{"-servertype", "publisher"}, {}} {
		stdout, stderr := &syncBuffer{}, &syncBuffer{}
		args = append(args, "-config", writeConfig(t, "memory"))

		code := run(context.Background(), args, stdout, stderr)

		assert.Equal(t, constants.ExitOK, code)
		assert.Contains(t, stdout.String(), "GO DDS TMS SERVER 1.0")
		assert.Contains(t, stdout.String(), "No logging-config.yaml file found.\n")
		assert.Contains(t, stdout.String(), "invalid servertype")
		assert.NotContains(t, stdout.String(), "TMS DEVICE ID")
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	code := run(context.Background(), []string{"-verbose"}, &syncBuffer{}, &syncBuffer{})
	assert.Equal(t, constants.ExitUsageError, code)
}

func TestRun_InvalidConfig(t *testing.T) {
	stderr := &syncBuffer{}
	code := run(context.Background(), []string{"-servertype", "pub", "-config", writeConfig(t, "zmq")}, &syncBuffer{}, stderr)

	assert.Equal(t, constants.ExitInitError, code)
	assert.Contains(t, stderr.String(), "unknown transport.kind")
}

func TestRun_DeviceUntilSignal(t *testing.T) {
	stdout := &syncBuffer{}
	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	code := run(ctx, []string{"-servertype", "pub", "-config", writeConfig(t, "memory")}, stdout, &syncBuffer{})

	assert.Equal(t, constants.ExitOK, code)
	out := stdout.String()
	assert.Contains(t, out, "TMS DEVICE ID = ")
	assert.Contains(t, out, "Created the DDS DataWriter\n")
	assert.Contains(t, out, "Sent TMS Heartbeat sequenceNumber 0\n")
}

func TestRun_DashboardUntilSignal(t *testing.T) {
	stdout := &syncBuffer{}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	code := run(ctx, []string{"-servertype", "sub", "-config", writeConfig(t, "memory")}, stdout, &syncBuffer{})

	assert.Equal(t, constants.ExitOK, code)
	assert.Contains(t, stdout.String(), "STARTING TMS DASHBOARD")
	assert.Contains(t, stdout.String(), "Created the DDS DataReader\n")
}
