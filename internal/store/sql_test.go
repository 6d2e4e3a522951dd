package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peaklee4u/inquirytutor/internal/domain"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "inquiry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleTranscript(number string, at time.Time) *domain.Transcript {
	return &domain.Transcript{
		StudentNumber: number,
		StudentName:   "김민수",
		Messages: []domain.Message{
			domain.UserMessage(domain.PartsContent(domain.TextPart("가설 & 방법"), domain.ImagePart("data:image/png;base64,AAAA"))),
			domain.AssistantMessage("잘했어요"),
			domain.AssistantMessage("요약"),
		},
		CreatedAt: at,
	}
}

func TestSaveAndGetTranscript(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 4, 2, 10, 30, 0, 0, time.UTC)

	tr := sampleTranscript(" 10101 ", at)
	id, err := s.SaveTranscript(ctx, tr)
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, id, tr.ID)

	got, err := s.GetTranscript(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "10101", got.StudentNumber)
	assert.Equal(t, "김민수", got.StudentName)
	assert.True(t, got.CreatedAt.Equal(at))
	require.Len(t, got.Messages, 3)
	assert.True(t, got.Messages[0].Content.HasImage())
	assert.Equal(t, "요약", got.Summary())

	missing, err := s.GetTranscript(ctx, id+100)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStoredChatIsReadableJSON(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.SaveTranscript(ctx, sampleTranscript("1", time.Now()))
	require.NoError(t, err)

	var chat string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT chat FROM qna WHERE id = ?`, id).Scan(&chat))
	assert.True(t, strings.HasPrefix(chat, `[{"role":"user","content":[{"type":"text","text":"가설 & 방법"}`), chat)
}

func TestSaveTranscriptRequiresIdentity(t *testing.T) {
	s := newTestStore(t)

	tr := sampleTranscript("10101", time.Now())
	tr.StudentName = "  "
	_, err := s.SaveTranscript(context.Background(), tr)
	assert.True(t, errors.Is(err, ErrMissingIdentity))

	_, err = s.SaveTranscript(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestListTranscriptsNewestFirstWithFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	for i, number := range []string{"A", "B", "A", "A"} {
		_, err := s.SaveTranscript(ctx, sampleTranscript(number, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	all, err := s.ListTranscripts(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.True(t, all[0].CreatedAt.After(all[3].CreatedAt))

	onlyA, err := s.ListTranscripts(ctx, ListFilter{StudentNumber: "A", Limit: 2})
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	for _, tr := range onlyA {
		assert.Equal(t, "A", tr.StudentNumber)
	}
	assert.True(t, onlyA[0].CreatedAt.Equal(base.Add(3*time.Hour)))
}

func TestRebindForPostgres(t *testing.T) {
	q := `SELECT id FROM qna WHERE number = ? AND "time" > ? LIMIT ?`
	assert.Equal(t, `SELECT id FROM qna WHERE number = $1 AND "time" > $2 LIMIT $3`, postgresDialect.rebind(q))
	assert.Equal(t, q, sqliteDialect.rebind(q))
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	s := newTestStore(t)
	s.initialRetryDelay = time.Millisecond

	calls := 0
	err := s.withRetry(context.Background(), "test", func() error {
		calls++
		return errors.New("no such table: qna")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRetriesConflicts(t *testing.T) {
	s := newTestStore(t)
	s.initialRetryDelay = time.Millisecond

	calls := 0
	err := s.withRetry(context.Background(), "test", func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	busy := errors.New("SQLITE_BUSY: database is locked")
	err = s.withRetry(context.Background(), "test", func() error {
		calls++
		return busy
	})
	assert.ErrorIs(t, err, busy)
	assert.Equal(t, maxConflictRetries, calls)
}

func TestSQLiteDSNJoinsExistingQuery(t *testing.T) {
	assert.Equal(t, "a.db?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", sqliteDSN("a.db"))

	dsn := sqliteDSN("file:a.db?mode=rwc")
	assert.Equal(t, 1, strings.Count(dsn, "?"))
	assert.True(t, strings.HasPrefix(dsn, "file:a.db?mode=rwc&_pragma=journal_mode(WAL)"), dsn)
}

func TestOpenSQLiteWithQueryDSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dsn", "inquiry.db")
	repo, err := Open("sqlite", "file:"+path+"?mode=rwc")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.Ping(context.Background()))
	id, err := repo.SaveTranscript(context.Background(), sampleTranscript("10101", time.Unix(1700000000, 0)))
	require.NoError(t, err)
	assert.Positive(t, id)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "x")
	assert.Error(t, err)
}
