package app

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"LandVerse/internal/protocol"
	"LandVerse/internal/world/app/port"
	"LandVerse/internal/world/domain"
	"LandVerse/internal/world/gen"
	"LandVerse/modules/kit/errx"
	"LandVerse/modules/kit/logx"
)

type Config struct {
	ChunkSizes []int
	MaxBatch   int
	// Parallel 是批量请求里同时生成的区块数。
	Parallel int
}

func DefaultConfig() Config {
	return Config{ChunkSizes: []int{16, 32, 64}, MaxBatch: 64, Parallel: 8}
}

type WorldService struct {
	cfg      Config
	gen      *gen.Generator
	repo     port.LandRepository
	cache    port.ChunkCache
	notifier port.Notifier
	log      logx.Logger
	now      func() time.Time

	// version 在每次地块变更时递增，用来丢弃变更前开始生成的区块
	version atomic.Uint64
}

// NewWorldService cache 和 notifier 可以为 nil。
func NewWorldService(cfg Config, g *gen.Generator, repo port.LandRepository, cache port.ChunkCache, notifier port.Notifier, l logx.Logger) *WorldService {
	def := DefaultConfig()
	if len(cfg.ChunkSizes) == 0 {
		cfg.ChunkSizes = def.ChunkSizes
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = def.MaxBatch
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = def.Parallel
	}
	return &WorldService{
		cfg:      cfg,
		gen:      g,
		repo:     repo,
		cache:    cache,
		notifier: notifier,
		log:      logx.Named(logx.OrNop(l), "world"),
		now:      time.Now,
	}
}

func (s *WorldService) checkSize(size int) error {
	if !slices.Contains(s.cfg.ChunkSizes, size) {
		return domain.ErrBadChunkSize.WithData("size", size).WithData("allowed", s.cfg.ChunkSizes)
	}
	return nil
}

func cacheKey(c protocol.ChunkCoord, size int) string {
	return strconv.Itoa(size) + ":" + c.ID()
}

// Chunk 返回生成地形叠加认领记录后的区块。返回值可能来自缓存，调用方不能修改。
func (s *WorldService) Chunk(ctx context.Context, c protocol.ChunkCoord, size int) (*protocol.Chunk, error) {
	if err := s.checkSize(size); err != nil {
		return nil, err
	}
	return s.chunk(ctx, c, size)
}

func (s *WorldService) chunk(ctx context.Context, c protocol.ChunkCoord, size int) (*protocol.Chunk, error) {
	key := cacheKey(c, size)
	if s.cache != nil {
		if ch, ok := s.cache.Get(key); ok {
			return ch, nil
		}
	}

	v := s.version.Load()
	ch := s.gen.Chunk(c, size)
	records, err := s.repo.InBounds(ctx, domain.ChunkBounds(c, size))
	if err != nil {
		return nil, repoErr(err).WithData("chunk_id", c.ID())
	}
	for _, r := range records {
		if i, ok := ch.Index(r.X, r.Y, size); ok {
			r.Overlay(&ch.Lands[i])
		}
	}

	if s.cache != nil {
		s.cache.Set(key, ch)
		if s.version.Load() != v {
			s.cache.Del(key)
		}
	}
	return ch, nil
}

// Batch 去重后并发生成，返回顺序和请求一致。
func (s *WorldService) Batch(ctx context.Context, coords []protocol.ChunkCoord, size int) ([]*protocol.Chunk, error) {
	if err := s.checkSize(size); err != nil {
		return nil, err
	}
	uniq := make([]protocol.ChunkCoord, 0, len(coords))
	seen := make(map[protocol.ChunkCoord]bool, len(coords))
	for _, c := range coords {
		if !seen[c] {
			seen[c] = true
			uniq = append(uniq, c)
		}
	}
	if len(uniq) > s.cfg.MaxBatch {
		return nil, domain.ErrBatchTooLarge.WithData("count", len(uniq)).WithData("max", s.cfg.MaxBatch)
	}

	out := make([]*protocol.Chunk, len(uniq))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallel)
	for i, c := range uniq {
		g.Go(func() error {
			ch, err := s.chunk(gctx, c, size)
			if err != nil {
				return err
			}
			out[i] = ch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// LandOwner 查询地块归属，无主返回 domain.ErrLandUnclaimed。
func (s *WorldService) LandOwner(ctx context.Context, x, y int) (protocol.LandOwner, error) {
	r, err := s.repo.ByCoords(ctx, x, y)
	if err != nil {
		if errors.Is(err, domain.ErrLandUnclaimed) {
			return protocol.LandOwner{}, domain.ErrLandUnclaimed.WithData("x", x).WithData("y", y)
		}
		return protocol.LandOwner{}, repoErr(err)
	}
	return r.Owner(), nil
}

// OwnerLands 按坐标排序返回地主名下的地块，没有任何地块时视为地主不存在。
func (s *WorldService) OwnerLands(ctx context.Context, ownerID int64) (protocol.OwnerLands, error) {
	records, err := s.repo.ByOwner(ctx, ownerID)
	if err != nil {
		return protocol.OwnerLands{}, repoErr(err)
	}
	if len(records) == 0 {
		return protocol.OwnerLands{}, domain.ErrOwnerNotFound.WithData("owner_id", ownerID)
	}
	slices.SortFunc(records, func(a, b domain.LandRecord) int {
		if a.Y != b.Y {
			return a.Y - b.Y
		}
		return a.X - b.X
	})
	out := protocol.OwnerLands{OwnerUsername: records[0].OwnerUsername, Lands: make([]protocol.OwnedLand, 0, len(records))}
	for _, r := range records {
		out.Lands = append(out.Lands, protocol.OwnedLand{X: r.X, Y: r.Y, LandID: r.LandID})
	}
	return out, nil
}

// Publish 应用一条地块字段变更：落库、失效缓存、广播 land_update。
// 对无主地块只接受认领（设置 land_id）。
func (s *WorldService) Publish(ctx context.Context, x, y int, field string, value any) (protocol.LandUpdatePayload, error) {
	if !protocol.PatchableField(field) {
		return protocol.LandUpdatePayload{}, domain.ErrBadLandPatch.WithData("field", field)
	}

	land := s.gen.Land(x, y)
	cur, err := s.repo.ByCoords(ctx, x, y)
	switch {
	case err == nil:
		cur.Overlay(&land)
	case errors.Is(err, domain.ErrLandUnclaimed):
	default:
		return protocol.LandUpdatePayload{}, repoErr(err)
	}
	wasClaimed := land.Claimed()

	if err := land.Patch(field, value); err != nil {
		return protocol.LandUpdatePayload{}, domain.ErrBadLandPatch.WithData("field", field).WithCause(err)
	}
	rec, claimed := domain.RecordFromLand(land, s.now())
	switch {
	case claimed:
		err = s.repo.Save(ctx, rec)
	case wasClaimed:
		err = s.repo.Delete(ctx, x, y)
	default:
		return protocol.LandUpdatePayload{}, domain.ErrLandUnclaimed.WithData("x", x).WithData("y", y)
	}
	if err != nil {
		return protocol.LandUpdatePayload{}, repoErr(err)
	}

	s.invalidate(x, y)
	update := protocol.LandUpdatePayload{X: x, Y: y, Field: field, Value: patchedValue(land, field)}
	if s.notifier != nil {
		s.notifier.Broadcast(protocol.TypeLandUpdate, update, 0)
	}
	s.log.Info("地块已更新", zap.Int("x", x), zap.Int("y", y), zap.String("field", field))
	return update, nil
}

func (s *WorldService) invalidate(x, y int) {
	s.version.Add(1)
	if s.cache == nil {
		return
	}
	for _, size := range s.cfg.ChunkSizes {
		s.cache.Del(cacheKey(protocol.ChunkOf(x, y, size), size))
	}
}

// patchedValue 取补丁之后的规范值广播出去，客户端拿到的类型总是一致的。
func patchedValue(l protocol.Land, field string) any {
	switch field {
	case protocol.FieldFenced:
		return l.Fenced
	case protocol.FieldGuestAccess:
		return l.GuestAccess
	case protocol.FieldOwnerID:
		if l.OwnerID == nil {
			return nil
		}
		return *l.OwnerID
	case protocol.FieldOwnerUsername:
		if l.OwnerUsername == nil {
			return nil
		}
		return *l.OwnerUsername
	case protocol.FieldLandID:
		if l.LandID == nil {
			return nil
		}
		return *l.LandID
	case protocol.FieldBiome:
		return l.Biome
	case protocol.FieldBasePrice:
		return l.BasePrice.String()
	}
	return nil
}

func repoErr(err error) *errx.Error {
	return domain.ErrRepository.WithCause(err)
}
