package repo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/androidleak/leak-triage/internal/ml"
	"github.com/androidleak/leak-triage/internal/models"
	"github.com/androidleak/leak-triage/internal/utils"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func testModel(t *testing.T, schema models.FeatureSchema) *ml.Model {
	t.Helper()
	X := make([][]float64, 40)
	y := make([]int, 40)
	for i := range X {
		X[i] = make([]float64, schema.Len())
		X[i][0] = float64(i)
		if i >= 20 {
			y[i] = 1
		}
	}
	result, err := ml.Train(X, y, ml.TrainOptions{TestFraction: 0.25, Seed: 42, Trees: 5})
	require.NoError(t, err)
	return ml.NewModel(schema, result, len(X))
}

func TestSchemaStoreRoundTrip(t *testing.T) {
	store, err := NewSchemaStore(filepath.Join(t.TempDir(), "model", "features.json"), nil)
	require.NoError(t, err)

	_, err = store.Load()
	require.ErrorIs(t, err, utils.ErrNotFound)
	assert.Contains(t, err.Error(), store.Path())

	schema := models.DefaultFeatureSchema()
	require.NoError(t, store.Save(schema))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, schema.Names, loaded.Names)
	assert.Equal(t, schema.Hash(), loaded.Hash())
}

func TestSchemaStoreRejectsMalformedLists(t *testing.T) {
	cases := map[string]string{
		"object":    `{"features": ["hour"]}`,
		"empty":     `[]`,
		"duplicate": `["hour", "hour"]`,
		"blank":     `["hour", ""]`,
		"numbers":   `[1, 2]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "features.json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			store, err := NewSchemaStore(path, nil)
			require.NoError(t, err)

			_, err = store.Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, utils.ErrData)
		})
	}
}

func TestModelStoreRoundTripAndCache(t *testing.T) {
	schema := models.DefaultFeatureSchema()
	cache := NewModelCache(4)
	store := NewModelStore(filepath.Join(t.TempDir(), "model.json.zst"), cache, nil)

	_, err := store.Load()
	require.ErrorIs(t, err, utils.ErrNotFound)

	m := testModel(t, schema)
	require.NoError(t, store.Save(m))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, m.Version, loaded.Version)
	assert.Equal(t, m.SchemaHash, loaded.SchemaHash)
	assert.Equal(t, 1, cache.Len())

	again, err := store.Load()
	require.NoError(t, err)
	assert.Same(t, loaded, again)

	X := [][]float64{make([]float64, schema.Len())}
	X[0][0] = 35
	wantPreds, wantProbs, err := m.Score(X)
	require.NoError(t, err)
	gotPreds, gotProbs, err := loaded.Score(X)
	require.NoError(t, err)
	assert.Equal(t, wantPreds, gotPreds)
	assert.Equal(t, wantProbs, gotProbs)
}

func TestModelStoreReplaceIsVisible(t *testing.T) {
	schema := models.DefaultFeatureSchema()
	store := NewModelStore(filepath.Join(t.TempDir(), "model.json.zst"), NewModelCache(4), nil)

	first := testModel(t, schema)
	require.NoError(t, store.Save(first))
	_, err := store.Load()
	require.NoError(t, err)

	second := testModel(t, schema)
	require.NoError(t, store.Save(second))
	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, second.Version, loaded.Version)

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestModelStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json.zst")
	require.NoError(t, os.WriteFile(path, []byte("not a bundle"), 0o644))

	_, err := NewModelStore(path, nil, nil).Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrData)
}

func batch(schema models.FeatureSchema, source models.LabelSource, values ...float64) models.CorpusBatch {
	b := models.CorpusBatch{Schema: schema}
	for _, v := range values {
		row := make([]float64, schema.Len())
		row[0] = v
		b.Rows = append(b.Rows, models.CorpusRow{Features: row, Label: v > 1, Source: source})
	}
	return b
}

func TestCorpusAppendOnly(t *testing.T) {
	schema := models.FeatureSchema{Names: []string{"hour", "is_weekend"}}
	store := NewCorpusStore(filepath.Join(t.TempDir(), "corpus.csv"), time.Second, nil)
	ctx := context.Background()

	total := 0
	for i, values := range [][]float64{{0.5, 2}, {3}, {1.5, 4, 0}} {
		n, err := store.Append(ctx, batch(schema, models.LabelGroundTruth, values...))
		require.NoError(t, err, "append %d", i)
		total += n
	}

	lines := readLines(t, store.Path())
	assert.Equal(t, "hour,is_weekend,is_suspicious,label_source", lines[0])
	assert.Equal(t, []string{
		"0.5,0,0,ground_truth",
		"2,0,1,ground_truth",
		"3,0,1,ground_truth",
		"1.5,0,1,ground_truth",
		"4,0,1,ground_truth",
		"0,0,0,ground_truth",
	}, lines[1:])
	assert.Equal(t, 6, total)

	release, err := NewFileLock(store.Path()+".lock", 50*time.Millisecond).Acquire(ctx)
	require.NoError(t, err, "lock released after append")
	release()

	table, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, table.Len())
	assert.True(t, table.Caps.Label)
}

func TestCorpusAppendFollowsExistingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.csv")
	require.NoError(t, os.WriteFile(path, []byte("is_weekend,extra,hour,is_suspicious,label_source\n1,x,7,1,ground_truth"), 0o644))

	store := NewCorpusStore(path, time.Second, nil)
	schema := models.FeatureSchema{Names: []string{"hour", "is_weekend"}}
	_, err := store.Append(context.Background(), batch(schema, models.LabelModelPredicted, 9))
	require.NoError(t, err)

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	assert.Equal(t, "1,x,7,1,ground_truth", lines[1])
	assert.Equal(t, "0,,9,1,model_predicted", lines[2])
}

func TestCorpusAppendToCorpusWithoutLabelSource(t *testing.T) {
	schema := models.DefaultFeatureSchema()
	path := filepath.Join(t.TempDir(), "global_training_data.csv")
	header := strings.Join(append(append([]string(nil), schema.Names...), models.ColumnLabel), ",")
	existing := make([]string, schema.Len()+1)
	for i := range existing {
		existing[i] = "0"
	}
	require.NoError(t, os.WriteFile(path, []byte(header+"\n"+strings.Join(existing, ",")+"\n"), 0o644))

	store := NewCorpusStore(path, time.Second, nil)
	n, err := store.Append(context.Background(), batch(schema, models.LabelModelPredicted, 3, 0.5))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines := readLines(t, path)
	require.Len(t, lines, 4)
	assert.Equal(t, header, lines[0])
	for _, line := range lines[2:] {
		assert.Len(t, strings.Split(line, ","), schema.Len()+1)
		assert.NotContains(t, line, string(models.LabelModelPredicted))
	}
	assert.True(t, strings.HasPrefix(lines[2], "3,"))
	assert.True(t, strings.HasSuffix(lines[2], ",1"))
	assert.True(t, strings.HasSuffix(lines[3], ",0"))

	table, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())
	assert.True(t, table.Caps.Label)
}

func TestFileLockReleasedForNextHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "x.lock")
	first, err := NewFileLock(path, time.Second).Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		release, err := NewFileLock(path, 2*time.Second).Acquire(context.Background())
		if assert.NoError(t, err) {
			close(acquired)
			release()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(100 * time.Millisecond):
	}
	first()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("lock not handed over after release")
	}
}

func TestCorpusAppendRejectsUnknownColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.csv")
	require.NoError(t, os.WriteFile(path, []byte("hour,is_suspicious,label_source\n"), 0o644))

	store := NewCorpusStore(path, time.Second, nil)
	schema := models.FeatureSchema{Names: []string{"hour", "abuse_score"}}
	_, err := store.Append(context.Background(), batch(schema, models.LabelGroundTruth, 1))
	require.ErrorIs(t, err, utils.ErrMismatch)
	assert.Len(t, readLines(t, path), 1)
}

func TestCorpusConcurrentAppends(t *testing.T) {
	schema := models.FeatureSchema{Names: []string{"hour"}}
	path := filepath.Join(t.TempDir(), "corpus.csv")
	ctx := context.Background()

	// Two stores on one path model two processes sharing the lock file.
	stores := []*CorpusStore{NewCorpusStore(path, 5*time.Second, nil), NewCorpusStore(path, 5*time.Second, nil)}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := stores[i%2].Append(ctx, batch(schema, models.LabelGroundTruth, 1, 2, 3))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	lines := readLines(t, path)
	assert.Len(t, lines, 1+8*3)
	headers := 0
	for _, l := range lines {
		if strings.HasPrefix(l, "hour,") {
			headers++
		}
	}
	assert.Equal(t, 1, headers)
}

func TestCorpusLoadMissing(t *testing.T) {
	store := NewCorpusStore(filepath.Join(t.TempDir(), "corpus.csv"), time.Second, nil)
	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, utils.ErrNotFound)
	assert.Contains(t, err.Error(), "corpus.csv")
}

func TestFileLockTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.lock")
	held := NewFileLock(path, time.Second)
	release, err := held.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	_, err = NewFileLock(path, 60*time.Millisecond).Acquire(context.Background())
	assert.ErrorIs(t, err, ErrLockTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewFileLock(path, time.Second).Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func newCase(t *testing.T, files map[string]string) (*CaseStore, string) {
	t.Helper()
	base := t.TempDir()
	dir := filepath.Join(base, "case-01")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return NewCaseStore(base, DefaultCaseLayout(), NewModelCache(2), nil), "case-01"
}

func TestCaseStoreResolvesFolders(t *testing.T) {
	store, id := newCase(t, nil)

	dir, err := store.Dir(id)
	require.NoError(t, err)
	abs, err := store.Dir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, abs)

	_, err = store.Dir("missing")
	assert.ErrorIs(t, err, utils.ErrNotFound)
	for _, bad := range []string{"", "..", "a/../../etc"} {
		_, err = store.Dir(bad)
		assert.ErrorIs(t, err, utils.ErrData, bad)
	}
}

func TestCaseStoreMasterIPs(t *testing.T) {
	store, id := newCase(t, map[string]string{"master_list.csv": "note,ip\nc2,1.2.3.4\nblank,\nnone,nan\nc2, 9.9.9.9 \n"})
	ips, err := store.MasterIPs(id)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"1.2.3.4": {}, "9.9.9.9": {}}, ips)

	missing, id2 := newCase(t, nil)
	ips, err = missing.MasterIPs(id2)
	require.NoError(t, err)
	assert.Empty(t, ips)

	noIP, id3 := newCase(t, map[string]string{"master_list.csv": "address\n1.2.3.4\n"})
	_, err = noIP.MasterIPs(id3)
	assert.ErrorIs(t, err, utils.ErrData)
}

func TestCaseStoreOutputsAndLog(t *testing.T) {
	store, id := newCase(t, map[string]string{"resolved_dns_log.csv": "timestamp,domain,ip\n2024-01-01 03:00:00,a.com,1.2.3.4\n"})

	table, err := store.LoadLog(id)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())

	path, err := store.WriteRanked(id, []string{"ip", "risk_level"}, [][]string{{"1.2.3.4", "High"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ip,risk_level", "1.2.3.4,High"}, readLines(t, path))

	path, err = store.WriteFlagged(id, []string{"ip"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ip"}, readLines(t, path))

	ms, err := store.Models(id)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "case_model.json.zst"), ms.Path())

	empty, id2 := newCase(t, nil)
	_, err = empty.LoadLog(id2)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}
