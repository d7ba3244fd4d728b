package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/flybeeper/trail-stats/internal/config"
	"github.com/flybeeper/trail-stats/internal/models"
	"github.com/flybeeper/trail-stats/pkg/utils"
)

// MockRedisClient для тестирования
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	args := m.Called(ctx)
	cmd := redis.NewStatusCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal("PONG")
	}
	return cmd
}

func (m *MockRedisClient) MGet(ctx context.Context, keys ...string) *redis.SliceCmd {
	args := m.Called(ctx, keys)
	cmd := redis.NewSliceCmd(ctx)
	if err := args.Error(1); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(args.Get(0).([]interface{}))
	}
	return cmd
}

func (m *MockRedisClient) Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	// Команды только накапливаются в pipeline и не отправляются
	pipe := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}).Pipeline()
	if err := fn(pipe); err != nil {
		return nil, err
	}
	args := m.Called(ctx, pipe.Len())
	return nil, args.Error(0)
}

func (m *MockRedisClient) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	args := m.Called(ctx, channel, message)
	cmd := redis.NewIntCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	return m.Called().Error(0)
}

func TestElevationKey(t *testing.T) {
	assert.Equal(t, "elev:api:u0qj2ksfh", ElevationKey("api", "u0qj2ksfh"))
}

func TestRedisRepository_GetElevations(t *testing.T) {
	ctx := context.Background()
	client := new(MockRedisClient)
	repo := NewRedisRepositoryWithClient(client, utils.NewDiscardLogger())

	client.On("MGet", ctx, []string{"elev:api:aaa", "elev:api:bbb", "elev:api:ccc", "elev:api:ddd"}).
		Return([]interface{}{"512.5", nil, "bad", "-3"}, nil)

	found, err := repo.GetElevations(ctx, "api", []string{"aaa", "bbb", "ccc", "ddd"})

	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"aaa": 512.5, "ddd": -3}, found)
	client.AssertExpectations(t)
}

func TestRedisRepository_GetElevations_Error(t *testing.T) {
	ctx := context.Background()
	client := new(MockRedisClient)
	repo := NewRedisRepositoryWithClient(client, utils.NewDiscardLogger())

	client.On("MGet", ctx, []string{"elev:api:aaa"}).Return(nil, errors.New("connection refused"))

	_, err := repo.GetElevations(ctx, "api", []string{"aaa"})
	assert.Error(t, err)

	// Пустой запрос не обращается к Redis
	found, err := repo.GetElevations(ctx, "api", nil)
	require.NoError(t, err)
	assert.Empty(t, found)
	client.AssertNumberOfCalls(t, "MGet", 1)
}

func TestRedisRepository_SetElevations(t *testing.T) {
	ctx := context.Background()
	client := new(MockRedisClient)
	repo := NewRedisRepositoryWithClient(client, utils.NewDiscardLogger())

	client.On("Pipelined", ctx, 2).Return(nil).Once()

	err := repo.SetElevations(ctx, "terrainrgb", map[string]float64{"aaa": 1, "bbb": 2}, time.Hour)
	require.NoError(t, err)

	// Пустой набор не создает pipeline
	require.NoError(t, repo.SetElevations(ctx, "terrainrgb", nil, time.Hour))
	client.AssertExpectations(t)
}

func TestRedisRepository_TrackStatsUpdated(t *testing.T) {
	ctx := context.Background()
	client := new(MockRedisClient)
	repo := NewRedisRepositoryWithClient(client, utils.NewDiscardLogger())

	event := models.TrackStatsEvent{
		TrackID: 42,
		RunID:   "run-1",
		Stats:   models.TrackStats{ElevationGain: 65, ElevationLoss: 60, LengthKm: 5.1},
	}

	var published []byte
	client.On("Publish", ctx, TrackStatsChannel, mock.AnythingOfType("[]uint8")).
		Run(func(args mock.Arguments) {
			published = args.Get(2).([]byte)
		}).
		Return(nil)

	require.NoError(t, repo.TrackStatsUpdated(ctx, event))

	var decoded models.TrackStatsEvent
	require.NoError(t, json.Unmarshal(published, &decoded))
	assert.Equal(t, int64(42), decoded.TrackID)
	assert.Equal(t, 65.0, decoded.Stats.ElevationGain)
}

func TestRedisRepository_TrackStatsUpdated_Error(t *testing.T) {
	ctx := context.Background()
	client := new(MockRedisClient)
	repo := NewRedisRepositoryWithClient(client, utils.NewDiscardLogger())

	client.On("Publish", ctx, TrackStatsChannel, mock.Anything).Return(errors.New("connection reset"))

	err := repo.TrackStatsUpdated(ctx, models.TrackStatsEvent{TrackID: 1})
	assert.Error(t, err)
}

func TestRedisRepository_Ping(t *testing.T) {
	ctx := context.Background()
	client := new(MockRedisClient)
	repo := NewRedisRepositoryWithClient(client, utils.NewDiscardLogger())

	client.On("Ping", ctx).Return(nil).Once()
	client.On("Ping", ctx).Return(errors.New("timeout")).Once()

	assert.NoError(t, repo.Ping(ctx))
	assert.Error(t, repo.Ping(ctx))
}

// RedisTestSuite интеграционные тесты с настоящим Redis
type RedisTestSuite struct {
	suite.Suite
	repo   *RedisRepository
	client *redis.Client
	ctx    context.Context
}

// SetupSuite запускается один раз перед всеми тестами
func (suite *RedisTestSuite) SetupSuite() {
	suite.ctx = context.Background()

	// Используем Redis тестовую базу данных
	cfg := &config.RedisConfig{
		URL:          "redis://localhost:6379",
		DB:           15, // Используем DB 15 для тестов
		PoolSize:     10,
		MinIdleConns: 1,
	}

	var err error
	suite.repo, err = NewRedisRepository(cfg, utils.NewDiscardLogger())
	require.NoError(suite.T(), err)

	suite.client = suite.repo.client.(*redis.Client)

	// Проверяем подключение к Redis
	if err := suite.client.Ping(suite.ctx).Err(); err != nil {
		suite.T().Skip("Redis not available for testing: " + err.Error())
	}
}

// SetupTest запускается перед каждым тестом
func (suite *RedisTestSuite) SetupTest() {
	require.NoError(suite.T(), suite.client.FlushDB(suite.ctx).Err())
}

// TearDownSuite запускается один раз после всех тестов
func (suite *RedisTestSuite) TearDownSuite() {
	if suite.client != nil {
		suite.client.FlushDB(suite.ctx)
		suite.client.Close()
	}
}

func (suite *RedisTestSuite) TestElevationRoundTrip() {
	values := map[string]float64{"u0qj2ksfh": 1234.5, "u0qj2ksfj": 1235}

	err := suite.repo.SetElevations(suite.ctx, "api", values, time.Minute)
	require.NoError(suite.T(), err)

	found, err := suite.repo.GetElevations(suite.ctx, "api", []string{"u0qj2ksfh", "missing", "u0qj2ksfj"})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), values, found)

	ttl, err := suite.client.TTL(suite.ctx, ElevationKey("api", "u0qj2ksfh")).Result()
	require.NoError(suite.T(), err)
	assert.Greater(suite.T(), ttl, time.Duration(0))

	// Кеш разделен по поставщикам
	found, err = suite.repo.GetElevations(suite.ctx, "terrainrgb", []string{"u0qj2ksfh"})
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), found)
}

func (suite *RedisTestSuite) TestTrackStatsPublish() {
	sub := suite.client.Subscribe(suite.ctx, TrackStatsChannel)
	defer sub.Close()
	_, err := sub.Receive(suite.ctx)
	require.NoError(suite.T(), err)

	err = suite.repo.TrackStatsUpdated(suite.ctx, models.TrackStatsEvent{TrackID: 7})
	require.NoError(suite.T(), err)

	msg, err := sub.ReceiveMessage(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Contains(suite.T(), msg.Payload, `"track_id":7`)
}

func TestRedisSuite(t *testing.T) {
	suite.Run(t, new(RedisTestSuite))
}
