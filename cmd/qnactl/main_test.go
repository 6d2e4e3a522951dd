package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peaklee4u/inquirytutor/internal/domain"
	"github.com/peaklee4u/inquirytutor/internal/store"
)

func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qna.db")
	repo, err := store.NewSQLite(path)
	require.NoError(t, err)
	defer func() { _ = repo.Close() }()

	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, number := range []string{"10101", "10102", "10101"} {
		_, err := repo.SaveTranscript(context.Background(), &domain.Transcript{
			StudentNumber: number,
			StudentName:   "Student " + number,
			Messages: []domain.Message{
				domain.UserMessage(domain.PartsContent(domain.TextPart("hypothesis"), domain.ImagePart("data:image/png;base64,AAAA"))),
				domain.AssistantMessage("feedback"),
			},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(store.Open)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestListFiltersByNumber(t *testing.T) {
	db := seedDB(t)

	out, err := run(t, "list", "--driver", "sqlite", "--db", db, "--number", "10101")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], "3 "))
	assert.NotContains(t, out, "10102")
}

func TestShowPrintsMessages(t *testing.T) {
	db := seedDB(t)

	out, err := run(t, "show", "2", "--driver", "sqlite", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "10102")
	assert.Contains(t, out, "[user]\nhypothesis\n[image]")
	assert.Contains(t, out, "[assistant]\nfeedback")

	_, err = run(t, "show", "99", "--driver", "sqlite", "--db", db)
	assert.ErrorContains(t, err, "not found")

	_, err = run(t, "show", "abc", "--driver", "sqlite", "--db", db)
	assert.ErrorContains(t, err, "invalid id")
}

func TestExportWritesNDJSON(t *testing.T) {
	db := seedDB(t)

	out, err := run(t, "export", "--driver", "sqlite", "--db", db)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)

	var first domain.Transcript
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, int64(3), first.ID)
	assert.Equal(t, "10101", first.StudentNumber)
	require.Len(t, first.Messages, 2)
	assert.True(t, first.Messages[0].Content.HasImage())
}

func TestLoadDotEnv(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	loadDotEnv(logger, filepath.Join(t.TempDir(), "missing.env"))
	assert.Contains(t, logs.String(), "No .env file found")

	logs.Reset()
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("QNACTL_TEST_VAR=from-file\n"), 0o600))
	t.Setenv("QNACTL_TEST_VAR", "")
	require.NoError(t, os.Unsetenv("QNACTL_TEST_VAR"))

	loadDotEnv(logger, envFile)
	assert.Empty(t, logs.String())
	assert.Equal(t, "from-file", os.Getenv("QNACTL_TEST_VAR"))
}
