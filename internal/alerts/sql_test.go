package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invigilens/internal/store"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	db, err := store.NewDB(ctx, store.SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewSQLStore(db)
	require.NoError(t, s.Migrate(ctx))
	// Migrate is idempotent.
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestSQLStoreRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 5, 11, 10, 30, 0, 123456789, time.UTC)
	in := Alert{
		ID:            "a1",
		StudentID:     "S-7",
		ViolationType: ViolationGivingObject,
		Confidence:    0.77,
		Timestamp:     ts,
		EvidencePath:  "evidence_a1.jpg",
		Status:        StatusPending,
	}
	stored, err := s.Insert(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 11, 10, 30, 0, 123457000, time.UTC), stored.Timestamp)

	got, err := s.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, stored, got)

	_, err = s.FindByID(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreCreateTimestampNotBeforeCall(t *testing.T) {
	svc := NewService(newSQLiteStore(t), nil, nil, nil)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		before := time.Now()
		a, err := svc.Create(ctx, NewAlert{ViolationType: ViolationMoving, Confidence: ptr(0.5)})
		require.NoError(t, err)
		require.False(t, a.Timestamp.Before(before), "timestamp %s before call start %s", a.Timestamp, before)

		got, err := svc.Get(ctx, a.ID)
		require.NoError(t, err)
		require.True(t, got.Timestamp.Equal(a.Timestamp), "stored %s, returned %s", got.Timestamp, a.Timestamp)
	}
}

func TestCeilMicro(t *testing.T) {
	exact := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)
	assert.Equal(t, exact, ceilMicro(exact))
	assert.Equal(t, exact.Add(time.Microsecond), ceilMicro(exact.Add(time.Nanosecond)))
}

func TestSQLStoreEmptyEvidence(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	_, err := s.Insert(ctx, Alert{ID: "a2", StudentID: UnknownStudent, ViolationType: ViolationNormal, Confidence: 0.1, Timestamp: time.Now(), Status: StatusPending})
	require.NoError(t, err)

	got, err := s.FindByID(ctx, "a2")
	require.NoError(t, err)
	assert.Empty(t, got.EvidencePath)
}

func TestSQLStoreFindOrdering(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 11, 8, 0, 0, 0, time.UTC)
	offsets := []time.Duration{3 * time.Second, time.Second, 5 * time.Second, 1500 * time.Millisecond}
	statuses := []Status{StatusPending, StatusRejected, StatusPending, StatusPending}
	for i, off := range offsets {
		_, err := s.Insert(ctx, Alert{
			ID:            string(rune('a' + i)),
			StudentID:     UnknownStudent,
			ViolationType: ViolationMoving,
			Confidence:    0.5,
			Timestamp:     base.Add(off),
			Status:        statuses[i],
		})
		require.NoError(t, err)
	}

	all, err := s.Find(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []string{"c", "a", "d", "b"}, ids(all))

	pending, err := s.Find(ctx, Filter{Status: StatusPending})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "d"}, ids(pending))

	rejected, err := s.Find(ctx, Filter{Status: StatusRejected})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(rejected))
}

func TestSQLStoreSetStatusAndDeleteAll(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, Alert{ID: "x", StudentID: UnknownStudent, ViolationType: ViolationUsingPhone, Confidence: 0.9, Timestamp: time.Now(), Status: StatusPending})
	require.NoError(t, err)

	updated, err := s.SetStatus(ctx, "x", StatusVerified)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, updated.Status)

	_, err = s.SetStatus(ctx, "nope", StatusVerified)
	require.ErrorIs(t, err, ErrNotFound)

	n, err := s.DeleteAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	all, err := s.Find(ctx, Filter{})
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestSQLStoreRejectsOutOfEnumRows(t *testing.T) {
	s := newSQLiteStore(t)
	_, err := s.Insert(context.Background(), Alert{ID: "bad", StudentID: UnknownStudent, ViolationType: "Sleeping", Confidence: 0.5, Timestamp: time.Now(), Status: StatusPending})
	require.Error(t, err)
}

func ids(as []Alert) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.ID
	}
	return out
}
