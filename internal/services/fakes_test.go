package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	kafkamocks "github.com/tenana/wallet-service/internal/infrastructure/kafka/mocks"
	"github.com/tenana/wallet-service/internal/infrastructure/redis"
	redismocks "github.com/tenana/wallet-service/internal/infrastructure/redis/mocks"
	"github.com/tenana/wallet-service/internal/models"
	"github.com/tenana/wallet-service/internal/repository/memory"
	repositorymocks "github.com/tenana/wallet-service/internal/repository/mocks"
)

const testTopic = "wallet-events"

// fakeRedis is a process-local RedisClient for tests that run against the
// memory store and need real cache semantics rather than expectations.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", redis.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeRedis) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeRedis) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := strconv.ParseInt(f.data[key], 10, 64)
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (f *fakeRedis) Close() error { return nil }

// fakeProducer records every published event.
type fakeProducer struct {
	mu     sync.Mutex
	events []models.WalletEvent
}

func (p *fakeProducer) Send(_ context.Context, _ string, _ string, value []byte) error {
	var event models.WalletEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) count(t models.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type storeFixture struct {
	store    *memory.Store
	redis    *fakeRedis
	producer *fakeProducer
	wallet   *walletService
	admin    *adminService
}

func newStoreFixture() *storeFixture {
	store := memory.NewStore()
	rc := newFakeRedis()
	producer := &fakeProducer{}
	return &storeFixture{
		store:    store,
		redis:    rc,
		producer: producer,
		wallet: NewWalletService(store.Ledger(), store.Deposits(), store.Orders(), store.Products(),
			rc, producer, testTopic, time.Minute, decimal.NewFromInt(100000)),
		admin: NewAdminService(store.Ledger(), store.Deposits(), store.Orders(), store.Stats(),
			rc, producer, testTopic),
	}
}

func (f *storeFixture) product(title, price string) uuid.UUID {
	id := uuid.New()
	f.store.PutProduct(models.Product{ID: id, Title: title, Price: decimal.RequireFromString(price)})
	return id
}

func (f *storeFixture) fund(t *testing.T, userID uuid.UUID, amount string) {
	t.Helper()
	if _, err := f.store.Ledger().Credit(context.Background(), userID, decimal.RequireFromString(amount)); err != nil {
		t.Fatalf("fund wallet: %v", err)
	}
}

type serviceMocks struct {
	ledger   *repositorymocks.MockLedgerRepository
	deposits *repositorymocks.MockDepositRepository
	orders   *repositorymocks.MockOrderRepository
	products *repositorymocks.MockProductRepository
	stats    *repositorymocks.MockStatsRepository
	users    *repositorymocks.MockUserRepository
	redis    *redismocks.MockRedisClient
	producer *kafkamocks.MockKafkaProducer
}

func newServiceMocks(ctrl *gomock.Controller) serviceMocks {
	return serviceMocks{
		ledger:   repositorymocks.NewMockLedgerRepository(ctrl),
		deposits: repositorymocks.NewMockDepositRepository(ctrl),
		orders:   repositorymocks.NewMockOrderRepository(ctrl),
		products: repositorymocks.NewMockProductRepository(ctrl),
		stats:    repositorymocks.NewMockStatsRepository(ctrl),
		users:    repositorymocks.NewMockUserRepository(ctrl),
		redis:    redismocks.NewMockRedisClient(ctrl),
		producer: kafkamocks.NewMockKafkaProducer(ctrl),
	}
}

// expectCachedBalance serves balance from the cache at version 3.
func expectCachedBalance(m serviceMocks, userID uuid.UUID, balance string) {
	m.redis.EXPECT().Get(gomock.Any(), redis.BalanceVersionKey(userID)).Return("3", nil)
	m.redis.EXPECT().Get(gomock.Any(), redis.BalanceKey(userID, 3)).Return(balance, nil)
}
