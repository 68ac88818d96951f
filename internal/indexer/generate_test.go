package indexer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MingChen0919/elastic-search/internal/backend/backendtest"
)

type fakeSubmitter struct {
	specs []Spec
}

func (f *fakeSubmitter) Submit(_ context.Context, spec Spec) (string, error) {
	f.specs = append(f.specs, spec)
	return fmt.Sprintf("job-%d", len(f.specs)), nil
}

func TestGenerateJobs_Tripal3(t *testing.T) {
	ix := newTestIndexer(t, testConfig(t, StrategySingle, 10), backendtest.NewMemory(), newTripal3DB(t, false))
	sub := &fakeSubmitter{}

	ids, err := ix.GenerateJobs(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1", "job-2"}, ids)
	assert.Equal(t, []Spec{
		{Partition: "chado_bio_data_1", Version: VersionTripal3},
		{Partition: "chado_bio_data_2", Version: VersionTripal3},
	}, sub.specs)
}

func TestGenerateJobs_Tripal2(t *testing.T) {
	ix := newTestIndexer(t, testConfig(t, StrategySingle, 10), backendtest.NewMemory(), newTripal2DB(t))
	sub := &fakeSubmitter{}

	_, err := ix.GenerateJobs(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, []Spec{{Partition: NodePartition, Version: VersionTripal2}}, sub.specs)
}

func TestGenerateJobs_Windows(t *testing.T) {
	cfg := testConfig(t, StrategySingle, 10)
	cfg.Dispatch.MaxRowsPerJob = 2
	// chado_bio_data_2 is listed in chado_bundle but has no rows.
	src := newTripal3DB(t, false, emptyBundle2)
	ix := newTestIndexer(t, cfg, backendtest.NewMemory(), src)
	sub := &fakeSubmitter{}

	_, err := ix.GenerateJobs(context.Background(), sub)
	require.NoError(t, err)
	// Published entities 1, 2, 3, 4 and 6 in bundle 1, none in bundle 2.
	assert.Equal(t, []Spec{
		{Partition: "chado_bio_data_1", Version: 3, KeyThrough: keyOf(2)},
		{Partition: "chado_bio_data_1", Version: 3, KeyAfter: keyOf(2), KeyThrough: keyOf(4)},
		{Partition: "chado_bio_data_1", Version: 3, KeyAfter: keyOf(4)},
	}, sub.specs)
}

func TestGenerateJobs_WindowsStableWhenSourceChanges(t *testing.T) {
	cfg := testConfig(t, StrategySingle, 1)
	cfg.Dispatch.MaxRowsPerJob = 2
	mem := backendtest.NewMemory()
	db, src := newTripal3Site(t, false, emptyBundle2)
	ix := newTestIndexer(t, cfg, mem, src)
	sub := &fakeSubmitter{}

	_, err := ix.GenerateJobs(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, sub.specs, 3)

	run := func(spec Spec) {
		t.Helper()
		job, err := ix.NewJob(spec)
		require.NoError(t, err)
		require.NoError(t, job.Run(context.Background()))
	}
	run(sub.specs[0])

	// Unpublish an indexed entity and add entities on both ends of the key
	// space before the remaining windows run.
	for _, stmt := range []string{
		`UPDATE tripal_entity SET status = 0 WHERE id = 1`,
		`INSERT INTO feature VALUES (100, 1, 1, 'FRAEX_0', 5, 'ACGT'), (107, 1, 1, 'FRAEX_7', 70, 'ACGT')`,
		`INSERT INTO tripal_entity VALUES (0, 1), (7, 1)`,
		`INSERT INTO chado_bio_data_1 VALUES (0, 100), (7, 107)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	for _, spec := range sub.specs[1:] {
		run(spec)
	}

	docs := mem.Docs(testIndex)
	for _, id := range []string{"101", "102", "103", "104", "106", "107"} {
		assert.Contains(t, docs, id)
	}
	assert.NotContains(t, docs, "100", "keys below a finished window belong to it")
	assert.Equal(t, 6, mem.CallCount("put"), "no record is written twice")
}

func TestGenerateJobs_WindowsCoverPartition(t *testing.T) {
	cfg := testConfig(t, StrategySingle, 1)
	cfg.Dispatch.MaxRowsPerJob = 2
	mem := backendtest.NewMemory()
	ix := newTestIndexer(t, cfg, mem, newTripal3DB(t, false, emptyBundle2))
	sub := &fakeSubmitter{}

	_, err := ix.GenerateJobs(context.Background(), sub)
	require.NoError(t, err)
	for _, spec := range sub.specs {
		job, err := ix.NewJob(spec)
		require.NoError(t, err)
		require.NoError(t, job.Run(context.Background()))
	}
	assert.Len(t, mem.Docs(testIndex), 5, "windows together index every published record once")
	assert.Equal(t, 5, mem.CallCount("put"))
}

const emptyBundle2 = `CREATE TABLE chado_bio_data_2 (entity_id INTEGER, record_id INTEGER)`

// fakeLock is a test implementation of DistLock.
type fakeLock struct {
	mu       sync.Mutex
	held     map[string]bool
	releases []string
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: make(map[string]bool)}
}

func (f *fakeLock) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeLock) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
	f.releases = append(f.releases, key)
	return nil
}

func TestJob_LockAcquiredAndReleased(t *testing.T) {
	lock := newFakeLock()
	mem := backendtest.NewMemory()
	ix := newTestIndexer(t, testConfig(t, StrategySingle, 10), mem, newTripal3DB(t, false), WithDistLock(lock), WithLockTTL(time.Minute))

	job, err := ix.NewJob(bundle1)
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, []string{testIndex + "-" + bundle1.Key()}, lock.releases)
	assert.Len(t, mem.Docs(testIndex), 5)
}

func TestJob_LockHeldSkipsRun(t *testing.T) {
	lock := newFakeLock()
	lock.held[testIndex+"-"+bundle1.Key()] = true
	mem := backendtest.NewMemory()
	ix := newTestIndexer(t, testConfig(t, StrategySingle, 10), mem, newTripal3DB(t, false), WithDistLock(lock))

	job, err := ix.NewJob(bundle1)
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	assert.Empty(t, mem.Calls())
	assert.Empty(t, lock.releases)
}
