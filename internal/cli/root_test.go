package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneyflow/internal/backend"
	"moneyflow/internal/config"
	"moneyflow/internal/log"
	"moneyflow/internal/storage/memory"
)

var testNow = time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)

func memoryOptions(store *memory.Store) *RootOptions {
	cfg := config.Default()
	cfg.DataBackend = string(backend.MemoryBackend)
	return &RootOptions{
		Config: cfg,
		Logger: log.Discard(),
		Now:    func() time.Time { return testNow },
		OpenStore: func(context.Context, *config.Config, *log.Logger) (*backend.BackendResult, error) {
			return &backend.BackendResult{Store: store, Cleanup: func() error { return nil }}, nil
		},
	}
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, opts *RootOptions, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), opts, args, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// decodeData unwraps the JSON envelope and decodes its data into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "recurctl", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"due"}, {"next"}, {"run"},
		{"recurring", "add"}, {"recurring", "list"}, {"recurring", "pause"}, {"recurring", "resume"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"invalid format", []string{"due", "--format", "yaml"}},
		{"unknown flag", []string{"due", "--nope"}},
		{"unknown command", []string{"explode"}},
		{"missing argument", []string{"next"}},
		{"bad date", []string{"due", "--date", "2024-02-30"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, memoryOptions(memory.New()), tt.args...)
			assert.Equal(t, ExitCommandError, res.code)
			assert.Contains(t, res.stderr, "Error:")
		})
	}
}

func TestJSONErrorsGoToStdout(t *testing.T) {
	res := runCLI(t, memoryOptions(memory.New()), "--format", "json", "next", "missing")
	assert.Equal(t, ExitCommandError, res.code)
	assert.Empty(t, res.stderr)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "command_error", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "unknown recurring transaction")
}

func TestOpenStoreFailure(t *testing.T) {
	opts := memoryOptions(nil)
	opts.OpenStore = func(context.Context, *config.Config, *log.Logger) (*backend.BackendResult, error) {
		return nil, errors.New("database is locked")
	}
	res := runCLI(t, opts, "due")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "database is locked")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "run failed", errors.New("boom"))))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("unknown command")))
	assert.Equal(t, ExitFailure, GetExitCode(exitWith(ExitFailure)))
}
