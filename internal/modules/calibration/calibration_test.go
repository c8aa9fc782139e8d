package calibration

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/qlbm/internal/database"
	"github.com/aristath/qlbm/internal/domain"
	testingpkg "github.com/aristath/qlbm/internal/testing"
)

func sampleRecord() *Record {
	return &Record{
		Payload: RawCalibration{
			Qubits: []int{0, 1},
			Shots:  512,
			Counts: map[string]domain.Histogram{
				"00": {"00": 500, "01": 12},
				"01": {"01": 490, "00": 22},
				"10": {"10": 495, "11": 17},
				"11": {"11": 480, "10": 20, "01": 12},
			},
		},
		ExperimentID: "exp-42",
		CreatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestKey_StringAndParse(t *testing.T) {
	k := NewKey("ibm_brisbane", domain.Dims{Width: 4, Height: 2})
	assert.Equal(t, "ibm_brisbane_4x2", k.String())

	parsed, err := ParseKey("ibm_brisbane_4x2")
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	for _, bad := range []string{"", "nounderscore", "_4x2", "b_4by2", "b_4x2x"} {
		_, err := ParseKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	want := sampleRecord()
	data, err := Encode(want)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecode_Corrupt(t *testing.T) {
	_, err := Decode([]byte("not msgpack at all"))
	assert.ErrorIs(t, err, ErrCorruptRecord)

	short := sampleRecord()
	delete(short.Payload.Counts, "11")
	data, err := Encode(short)
	require.NoError(t, err)
	_, err = Decode(data)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestRecord_SameQubits(t *testing.T) {
	r := sampleRecord()
	assert.True(t, r.SameQubits([]int{0, 1}))
	assert.False(t, r.SameQubits([]int{1, 0}))
	assert.False(t, r.SameQubits([]int{0, 1, 2}))
}

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, store Store, corrupt func(key Key)) {
	ctx := context.Background()
	k1 := NewKey("fake_backend", domain.Dims{Width: 4, Height: 2})
	k2 := NewKey("fake_backend", domain.Dims{Width: 4, Height: 4})

	_, ok, err := store.Get(ctx, k1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, k1, sampleRecord()))
	got, ok, err := store.Get(ctx, k1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleRecord(), got)

	// Overwrite
	updated := sampleRecord()
	updated.ExperimentID = "exp-43"
	require.NoError(t, store.Put(ctx, k1, updated))
	got, ok, err = store.Get(ctx, k1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "exp-43", got.ExperimentID)

	require.NoError(t, store.Put(ctx, k2, sampleRecord()))
	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Key{k1, k2}, keys)

	require.NoError(t, store.Delete(ctx, k2))
	require.NoError(t, store.Delete(ctx, k2))
	keys, err = store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Key{k1}, keys)

	corrupt(k1)
	_, ok, err = store.Get(ctx, k1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func setupMemoryDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := database.Schema("calibration")
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)
	return db
}

func TestSQLiteStore_InMemory(t *testing.T) {
	db := setupMemoryDB(t)
	store := NewSQLiteStore(db, zerolog.Nop())

	exerciseStore(t, store, func(key Key) {
		_, err := db.Exec("UPDATE calibration_records SET payload = ? WHERE cache_key = ?", []byte{0xc1, 0x00}, key.String())
		require.NoError(t, err)
	})
}

func TestSQLiteStore_Migrated(t *testing.T) {
	db := testingpkg.NewTestDB(t, "calibration")
	store := NewSQLiteStore(db.Conn(), zerolog.Nop())

	exerciseStore(t, store, func(key Key) {
		_, err := db.Conn().Exec("UPDATE calibration_records SET payload = x'00' WHERE cache_key = ?", key.String())
		require.NoError(t, err)
	})
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, zerolog.Nop())
	require.NoError(t, err)

	exerciseStore(t, store, func(key Key) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, key.String()+fileExt), []byte("garbage"), 0644))
	})

	// Atomic writes leave nothing but committed records behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), e.Name())
	}
}

func TestFileStore_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bogus"+fileExt), nil, 0644))

	keys, err := store.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

// fakeS3 is an in-memory S3API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("not found")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, n := range names {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(n)})
	}
	return out, nil
}

func TestS3Store(t *testing.T) {
	api := newFakeS3()
	store := NewS3Store(api, "bucket", "/rem-table/", zerolog.Nop())
	assert.Equal(t, "rem-table/ibm_x_4x2.msgpack", store.objectKey(NewKey("ibm_x", domain.Dims{Width: 4, Height: 2})))

	// Objects outside the prefix are not calibration records
	api.objects["other/ibm_x_4x2.msgpack"] = []byte("x")

	exerciseStore(t, store, func(key Key) {
		api.mu.Lock()
		api.objects[store.objectKey(key)] = []byte{0xff}
		api.mu.Unlock()
	})
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("QLBM_TEST_REDIS_URL")
	if url == "" {
		t.Skip("QLBM_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	prefix := "qlbm:test:" + t.Name() + ":"
	store := NewRedisStore(client, prefix, zerolog.Nop())
	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	})

	exerciseStore(t, store, func(key Key) {
		require.NoError(t, client.Set(ctx, store.redisKey(key), "garbage", 0).Err())
	})
}

func TestRedisStore_DefaultPrefix(t *testing.T) {
	store := NewRedisStore(nil, "", zerolog.Nop())
	assert.Equal(t, "qlbm:calibration:b_4x2", store.redisKey(NewKey("b", domain.Dims{Width: 4, Height: 2})))
}
