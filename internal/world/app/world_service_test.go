package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"LandVerse/internal/protocol"
	"LandVerse/internal/world/app"
	"LandVerse/internal/world/domain"
	"LandVerse/internal/world/gen"
	"LandVerse/internal/world/infra/persistence/memory"
)

type mapCache struct {
	mu   sync.Mutex
	m    map[string]*protocol.Chunk
	dels []string
}

func (c *mapCache) Get(key string) (*protocol.Chunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.m[key]
	return ch, ok
}

func (c *mapCache) Set(key string, ch *protocol.Chunk) {
	c.mu.Lock()
	c.m[key] = ch
	c.mu.Unlock()
}

func (c *mapCache) Del(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.dels = append(c.dels, key)
	c.mu.Unlock()
}

type sent struct {
	msgType string
	payload any
}

type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) Broadcast(msgType string, payload any, _ int64) {
	r.mu.Lock()
	r.sent = append(r.sent, sent{msgType, payload})
	r.mu.Unlock()
}

type fixture struct {
	svc   *app.WorldService
	repo  *memory.LandRepository
	cache *mapCache
	out   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:  memory.NewLandRepository(),
		cache: &mapCache{m: make(map[string]*protocol.Chunk)},
		out:   &recorder{},
	}
	cfg := app.Config{ChunkSizes: []int{4, 8}, MaxBatch: 3, Parallel: 2}
	f.svc = app.NewWorldService(cfg, gen.NewGenerator(7, nil), f.repo, f.cache, f.out, nil)
	return f
}

func TestChunk_不支持的大小(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Chunk(context.Background(), protocol.ChunkCoord{}, 5); !errors.Is(err, domain.ErrBadChunkSize) {
		t.Fatalf("期望 ErrBadChunkSize, got=%v", err)
	}
}

func TestChunk_生成并缓存(t *testing.T) {
	f := newFixture(t)
	c := protocol.ChunkCoord{CX: -1, CY: 2}
	ch, err := f.svc.Chunk(context.Background(), c, 4)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if err := ch.Validate(4); err != nil {
		t.Fatalf("区块形状不对: %v", err)
	}
	if _, ok := f.cache.Get("4:-1_2"); !ok {
		t.Fatalf("区块未写入缓存")
	}
	again, _ := f.svc.Chunk(context.Background(), c, 4)
	if again != ch {
		t.Fatalf("第二次应命中缓存")
	}
}

func TestPublish_认领后区块带上主人并广播(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Chunk(ctx, protocol.ChunkCoord{}, 4); err != nil {
		t.Fatalf("Chunk: %v", err)
	}

	upd, err := f.svc.Publish(ctx, 1, 2, protocol.FieldLandID, "L-1-2")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if upd.Value != "L-1-2" {
		t.Fatalf("unexpected update %+v", upd)
	}
	if _, err := f.svc.Publish(ctx, 1, 2, protocol.FieldOwnerID, float64(42)); err != nil {
		t.Fatalf("Publish owner: %v", err)
	}
	if len(f.out.sent) != 2 || f.out.sent[0].msgType != protocol.TypeLandUpdate {
		t.Fatalf("期望两条 land_update, got=%+v", f.out.sent)
	}
	if _, ok := f.cache.Get("4:0_0"); ok {
		t.Fatalf("变更后缓存应失效")
	}

	ch, err := f.svc.Chunk(ctx, protocol.ChunkCoord{}, 4)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	i, _ := ch.Index(1, 2, 4)
	land := ch.Lands[i]
	if land.LandID == nil || *land.LandID != "L-1-2" || land.OwnerID == nil || *land.OwnerID != 42 {
		t.Fatalf("区块未叠加认领记录 %+v", land)
	}

	owner, err := f.svc.LandOwner(ctx, 1, 2)
	if err != nil || owner.OwnerID != 42 {
		t.Fatalf("LandOwner: %+v %v", owner, err)
	}
	lands, err := f.svc.OwnerLands(ctx, 42)
	if err != nil || len(lands.Lands) != 1 || lands.Lands[0].X != 1 {
		t.Fatalf("OwnerLands: %+v %v", lands, err)
	}
}

func TestPublish_所有区块大小的缓存都失效(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Publish(ctx, -1, -1, protocol.FieldLandID, "L"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	want := map[string]bool{"4:-1_-1": true, "8:-1_-1": true}
	for _, k := range f.cache.dels {
		delete(want, k)
	}
	if len(want) != 0 {
		t.Fatalf("缺少失效的键 %v, dels=%v", want, f.cache.dels)
	}
}

func TestPublish_无主地块只接受认领(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Publish(context.Background(), 3, 3, protocol.FieldFenced, true)
	if !errors.Is(err, domain.ErrLandUnclaimed) {
		t.Fatalf("期望 ErrLandUnclaimed, got=%v", err)
	}
	if len(f.out.sent) != 0 {
		t.Fatalf("失败时不应广播")
	}
}

func TestPublish_非法字段和类型(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Publish(ctx, 0, 0, "height", 3); !errors.Is(err, domain.ErrBadLandPatch) {
		t.Fatalf("期望 ErrBadLandPatch, got=%v", err)
	}
	if _, err := f.svc.Publish(ctx, 0, 0, protocol.FieldLandID, "L"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := f.svc.Publish(ctx, 0, 0, protocol.FieldFenced, "yes"); !errors.Is(err, domain.ErrBadLandPatch) {
		t.Fatalf("期望 ErrBadLandPatch, got=%v", err)
	}
}

func TestPublish_清空land_id即释放地块(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Publish(ctx, 0, 0, protocol.FieldLandID, "L"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	upd, err := f.svc.Publish(ctx, 0, 0, protocol.FieldLandID, nil)
	if err != nil {
		t.Fatalf("Publish release: %v", err)
	}
	if upd.Value != nil {
		t.Fatalf("释放后的值应为 nil, got=%v", upd.Value)
	}
	if _, err := f.svc.LandOwner(ctx, 0, 0); !errors.Is(err, domain.ErrLandUnclaimed) {
		t.Fatalf("释放后应无主, got=%v", err)
	}
}

func TestOwnerLands_没有地块视为不存在(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.OwnerLands(context.Background(), 99); !errors.Is(err, domain.ErrOwnerNotFound) {
		t.Fatalf("期望 ErrOwnerNotFound, got=%v", err)
	}
}

func TestBatch_去重保序并限制数量(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	coords := []protocol.ChunkCoord{{CX: 1}, {CX: 0}, {CX: 1}, {CY: 1}}
	chunks, err := f.svc.Batch(ctx, coords, 8)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(chunks) != 3 || chunks[0].ChunkID != "1_0" || chunks[1].ChunkID != "0_0" || chunks[2].ChunkID != "0_1" {
		t.Fatalf("unexpected chunks %v", chunks)
	}
	coords = append(coords, protocol.ChunkCoord{CX: 5})
	if _, err := f.svc.Batch(ctx, coords, 8); !errors.Is(err, domain.ErrBatchTooLarge) {
		t.Fatalf("期望 ErrBatchTooLarge, got=%v", err)
	}
}
