package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/smallnest/kgqa/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(id string, success bool, at time.Time) *store.Record {
	return &store.Record{
		ID:        id,
		Question:  "Quelle est la date de Event_SJ_01 ?",
		Success:   success,
		Stage:     "done",
		CreatedAt: at.UTC(),
		Payload:   json.RawMessage(`{"result_count":1}`),
	}
}

func TestRedisRecordStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s := NewRedisRecordStore(RedisOptions{Addr: mr.Addr()})
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, newRecord("r-1", true, base)))
	require.NoError(t, s.Save(ctx, newRecord("r-2", false, base.Add(time.Minute))))

	loaded, err := s.Load(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "r-1", loaded.ID)
	assert.True(t, loaded.CreatedAt.Equal(base))
	assert.JSONEq(t, `{"result_count":1}`, string(loaded.Payload))
	assert.True(t, mr.Exists("kgqa:record:r-1"))

	list, err := s.List(ctx, store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r-2", list[0].ID)

	ok := true
	list, err = s.List(ctx, store.ListOptions{Success: &ok})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "r-1", list[0].ID)

	require.NoError(t, s.Delete(ctx, "r-1"))
	_, err = s.Load(ctx, "r-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "r-1"), store.ErrNotFound)

	require.NoError(t, s.Clear(ctx))
	list, err = s.List(ctx, store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRedisRecordStore_ExpiredRecordsArePruned(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s := NewRedisRecordStore(RedisOptions{Addr: mr.Addr(), Prefix: "test:", TTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, newRecord("short", true, time.Now())))
	mr.FastForward(2 * time.Minute)

	list, err := s.List(ctx, store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)

	members, err := mr.ZMembers("test:records")
	if err == nil {
		assert.Empty(t, members)
	}
}

func TestNewRedisRecordStoreFromURL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s, err := NewRedisRecordStoreFromURL("redis://"+mr.Addr()+"/0", "", 0)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), newRecord("x", true, time.Now())))

	_, err = NewRedisRecordStoreFromURL("://bad", "", 0)
	assert.Error(t, err)
}
