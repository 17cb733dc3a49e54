package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirmark/resume/internal/cli"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	cmd := cli.NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "absent.yml")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidate_BuiltInResume(t *testing.T) {
	out, err := run(t, "validate")

	require.NoError(t, err)
	assert.Equal(t, "Mark Jeffrey Morales: 4 skills, 3 schools, 7 positions, export as Mark_Jeffrey_Morales_Resume.pdf\n", out)
}

func TestValidate_RejectsBadContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: Ada\nskills:\n  - name: Proofs\n    level: 150\n"), 0o600))

	_, err := run(t, "validate", path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "level 150")
}

func TestValidate_RejectsBadConfig(t *testing.T) {
	t.Setenv("PORT", "70000")

	_, err := run(t, "validate")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "service.port")
}

func TestShare_PrintsOutcome(t *testing.T) {
	out, err := run(t, "share", "--url", "https://mark.example.com/")

	require.NoError(t, err)
	assert.Contains(t, []string{
		"Link copied to clipboard!\n",
		"Unable to share. Please copy the link manually: https://mark.example.com/\n",
	}, out)
}

func TestExport_RejectsBadOptionsBeforeCapture(t *testing.T) {
	_, err := run(t, "export", "--format", "tabloid")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown paper format")
}
