package store

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/blndgs/okto"
)

const (
	testSender  = "0x9f1d3a1b2c3d4e5f60718293a4b5c6d7e8f90a1b"
	otherSender = "0x1111111111111111111111111111111111111111"
)

func testJob(id, sender string, created time.Time) *okto.Job {
	return &okto.Job{
		ID:         id,
		Type:       okto.TokenTransferIntent,
		Caip2ID:    "eip155:137",
		Sender:     sender,
		UserOpHash: "0xab4df5b8d2bbd1ac5d1a1e5e6f1d2f3a4b5c6d7e8f90a1b2c3d4e5f60718293a",
		Status:     okto.JobEstimated,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func testJobStore(t *testing.T, s JobStore) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	first, second, foreign := uuid.NewString(), uuid.NewString(), uuid.NewString()

	_, err := s.Get(ctx, first)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, testJob(first, testSender, base)))
	require.NoError(t, s.Save(ctx, testJob(second, testSender, base.Add(time.Second))))
	require.NoError(t, s.Save(ctx, testJob(foreign, otherSender, base.Add(2*time.Second))))

	require.NoError(t, s.UpdateStatus(ctx, first, okto.JobSubmitted, "", "0xfeed"))
	require.NoError(t, s.UpdateStatus(ctx, first, okto.JobFailed, "reverted", ""))

	job, err := s.Get(ctx, first)
	require.NoError(t, err)
	require.Equal(t, okto.JobFailed, job.Status)
	require.Equal(t, "reverted", job.Reason)
	require.Equal(t, "0xfeed", job.TransactionHash)
	require.Equal(t, okto.TokenTransferIntent, job.Type)
	require.Equal(t, "eip155:137", job.Caip2ID)

	jobs, err := s.List(ctx, testSender, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, second, jobs[0].ID)
	require.Equal(t, first, jobs[1].ID)

	// Senders compare case-insensitively and never see each other's jobs.
	jobs, err = s.List(ctx, "0x"+strings.ToUpper(testSender[2:]), 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, second, jobs[0].ID)

	jobs, err = s.List(ctx, otherSender, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, foreign, jobs[0].ID)
}

func TestMemoryJobStore(t *testing.T) {
	s := NewMemoryJobStore()
	testJobStore(t, s)

	require.ErrorIs(t, s.UpdateStatus(context.Background(), "missing", okto.JobFailed, "", ""), ErrNotFound)

	jobs, err := s.List(context.Background(), testSender, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
}

// Set OKTO_TEST_MYSQL_DSN to run against MySQL.
func TestGormJobStore(t *testing.T) {
	dsn := os.Getenv("OKTO_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("OKTO_TEST_MYSQL_DSN not set")
	}
	db, err := OpenMySQL(dsn)
	require.NoError(t, err)
	s, err := NewGormJobStore(db)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Exec("DELETE FROM okto_jobs WHERE created_at >= ?", time.Now().Add(-time.Hour))
	})

	testJobStore(t, s)
}

func TestJobRowRoundTrip(t *testing.T) {
	job := testJob("job-1", common.HexToAddress(testSender).Hex(), time.Unix(1700000000, 0))
	job.TransactionHash = "0xfeed"
	job.Reason = "ok"
	require.Equal(t, *job, toRow(job).toJob())

	lower := testJob("job-2", testSender, time.Unix(1700000000, 0))
	require.Equal(t, common.HexToAddress(testSender).Hex(), toRow(lower).Sender)
}
