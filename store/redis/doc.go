// Package redis provides a Redis-backed store.RecordStore.
//
// Each record is stored as JSON under "<prefix>record:<id>" and indexed in the
// sorted set "<prefix>records" scored by creation time. With a TTL the record
// keys expire on their own; stale index entries are pruned on List.
//
//	s := redis.NewRedisRecordStore(redis.RedisOptions{
//	    Addr:   "localhost:6379",
//	    Prefix: "kgqa:",
//	    TTL:    24 * time.Hour,
//	})
//	defer s.Close()
package redis
