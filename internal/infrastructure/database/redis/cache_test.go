package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/suite"

	pkgerrors "github.com/turtacn/molecule-search/pkg/errors"
)

type CacheTestSuite struct {
	suite.Suite
	client *Client
	mock   redismock.ClientMock
	cache  Cache
}

type cachedNotebook struct {
	Title string `json:"title"`
	Pages int    `json:"pages"`
}

func (s *CacheTestSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	s.client = NewClientWithRedis(db, "test:", time.Minute, nil)
	s.cache = NewCache(s.client, nil, WithTTLJitter(0))
}

func (s *CacheTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

func (s *CacheTestSuite) TestGet_Hit() {
	val := cachedNotebook{Title: "Aspirin route", Pages: 12}
	raw, _ := json.Marshal(val)
	s.mock.ExpectGet("test:nb:1").SetVal(string(raw))

	var dest cachedNotebook
	s.Require().NoError(s.cache.Get(context.Background(), "nb:1", &dest))
	s.Equal(val, dest)
}

func (s *CacheTestSuite) TestGet_Miss() {
	s.mock.ExpectGet("test:nb:1").RedisNil()

	var dest cachedNotebook
	err := s.cache.Get(context.Background(), "nb:1", &dest)
	s.Equal(ErrCacheMiss, err)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeNotFound))
}

func (s *CacheTestSuite) TestGet_NullMarkerIsMiss() {
	s.mock.ExpectGet("test:nb:1").SetVal(nullMarker)

	var dest cachedNotebook
	s.Equal(ErrCacheMiss, s.cache.Get(context.Background(), "nb:1", &dest))
}

func (s *CacheTestSuite) TestGet_RedisError() {
	s.mock.ExpectGet("test:nb:1").SetErr(stderrors.New("connection reset"))

	var dest cachedNotebook
	err := s.cache.Get(context.Background(), "nb:1", &dest)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeCacheError))
}

func (s *CacheTestSuite) TestSet_UsesDefaultTTL() {
	val := cachedNotebook{Title: "t"}
	raw, _ := json.Marshal(val)
	s.mock.ExpectSet("test:nb:1", raw, time.Minute).SetVal("OK")

	s.NoError(s.cache.Set(context.Background(), "nb:1", val, 0))
}

func (s *CacheTestSuite) TestSet_Unserializable() {
	err := s.cache.Set(context.Background(), "k", make(chan int), time.Second)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))
}

func (s *CacheTestSuite) TestDelete() {
	s.mock.ExpectDel("test:k1", "test:k2").SetVal(2)
	s.NoError(s.cache.Delete(context.Background(), "k1", "k2"))
	s.NoError(s.cache.Delete(context.Background()))
}

func (s *CacheTestSuite) TestGetOrSet_HitSkipsLoader() {
	raw, _ := json.Marshal(cachedNotebook{Title: "cached"})
	s.mock.ExpectGet("test:nb:1").SetVal(string(raw))

	called := false
	var dest cachedNotebook
	err := s.cache.GetOrSet(context.Background(), "nb:1", &dest, time.Minute, func(context.Context) (interface{}, error) {
		called = true
		return nil, nil
	})
	s.Require().NoError(err)
	s.False(called)
	s.Equal("cached", dest.Title)
}

func (s *CacheTestSuite) TestGetOrSet_MissLoadsAndStores() {
	val := cachedNotebook{Title: "fresh", Pages: 3}
	raw, _ := json.Marshal(val)
	s.mock.ExpectGet("test:nb:2").RedisNil()
	s.mock.ExpectSet("test:nb:2", raw, 2*time.Minute).SetVal("OK")

	var dest cachedNotebook
	err := s.cache.GetOrSet(context.Background(), "nb:2", &dest, 2*time.Minute, func(context.Context) (interface{}, error) {
		return val, nil
	})
	s.Require().NoError(err)
	s.Equal(val, dest)
}

func (s *CacheTestSuite) TestGetOrSet_NilResultCachesNull() {
	s.mock.ExpectGet("test:nb:3").RedisNil()
	s.mock.ExpectSet("test:nb:3", nullMarker, 30*time.Second).SetVal("OK")

	var dest cachedNotebook
	err := s.cache.GetOrSet(context.Background(), "nb:3", &dest, time.Minute, func(context.Context) (interface{}, error) {
		return nil, nil
	})
	s.Equal(ErrCacheMiss, err)
}

func (s *CacheTestSuite) TestGetOrSet_LoaderError() {
	s.mock.ExpectGet("test:nb:4").RedisNil()
	boom := stderrors.New("db down")

	var dest cachedNotebook
	err := s.cache.GetOrSet(context.Background(), "nb:4", &dest, time.Minute, func(context.Context) (interface{}, error) {
		return nil, boom
	})
	s.ErrorIs(err, boom)
}

func (s *CacheTestSuite) TestDeleteByPrefix() {
	s.mock.ExpectScan(0, "test:notebooks:*", scanBatch).SetVal([]string{"test:notebooks:a", "test:notebooks:b"}, 7)
	s.mock.ExpectDel("test:notebooks:a", "test:notebooks:b").SetVal(2)
	s.mock.ExpectScan(7, "test:notebooks:*", scanBatch).SetVal([]string{"test:notebooks:c"}, 0)
	s.mock.ExpectDel("test:notebooks:c").SetVal(1)

	n, err := s.cache.DeleteByPrefix(context.Background(), "notebooks:")
	s.Require().NoError(err)
	s.Equal(int64(3), n)
}

func (s *CacheTestSuite) TestClosedClient() {
	s.Require().NoError(s.client.Close())

	var dest cachedNotebook
	s.Equal(ErrClientClosed, s.cache.Get(context.Background(), "k", &dest))
	s.Equal(ErrClientClosed, s.cache.Ping(context.Background()))
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}
