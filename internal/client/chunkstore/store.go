// Package chunkstore 缓存已加载的区块，并按批次顺序拉取视口里缺失的区块。
package chunkstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"LandVerse/internal/protocol"
	"LandVerse/modules/kit/errx"
	"LandVerse/modules/kit/logx"
)

const (
	DefaultBatchSize    = 12
	DefaultBatchDelay   = 50 * time.Millisecond
	DefaultFetchTimeout = 10 * time.Second
)

var (
	ErrClosed        = errors.New("chunk store closed")
	ErrFieldRejected = errx.NewBiz("LAND_PATCH_REJECTED", "地块字段不可修改")
)

// Fetcher 拉取单个区块。实现方负责网络，Store 负责并发和状态。
type Fetcher interface {
	FetchChunk(ctx context.Context, coord protocol.ChunkCoord, size int) (*protocol.Chunk, error)
}

type Config struct {
	ChunkSize    int
	BatchSize    int
	BatchDelay   time.Duration
	FetchTimeout time.Duration
	// MaxCached > 0 时，超出部分从不可见区块里淘汰。
	MaxCached int
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = protocol.DefaultChunkSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	return c
}

// State 是单个区块的加载状态。
type State int

const (
	Absent State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "absent"
	}
}

type Stats struct {
	Loaded   int
	Loading  int
	Queued   int
	Fetches  int
	Failures int
	Pruned   int
	Evicted  int
}

type coord = protocol.ChunkCoord

// Store 是区块缓存。区块对象一旦放进来就不再原地修改，补丁走写时复制。
type Store struct {
	cfg     Config
	fetcher Fetcher
	log     logx.Logger
	sem     *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	idle     *sync.Cond
	chunks   map[coord]*protocol.Chunk
	loading  map[coord]struct{}
	// stale 记录加载途中被 Invalidate 的坐标，这次的响应不入缓存。
	stale    map[coord]struct{}
	queue    []coord
	queued   map[coord]struct{}
	visible  map[coord]struct{}
	running  bool
	closed   bool
	stats    Stats
	onLoaded func(*protocol.Chunk)
}

func New(cfg Config, fetcher Fetcher, log logx.Logger) *Store {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		cfg:     cfg,
		fetcher: fetcher,
		log:     logx.OrNop(log),
		sem:     semaphore.NewWeighted(int64(cfg.BatchSize)),
		ctx:     ctx,
		cancel:  cancel,
		chunks:  make(map[coord]*protocol.Chunk),
		loading: make(map[coord]struct{}),
		stale:   make(map[coord]struct{}),
		queued:  make(map[coord]struct{}),
		visible: make(map[coord]struct{}),
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

func (s *Store) ChunkSize() int {
	return s.cfg.ChunkSize
}

// OnLoaded 注册区块加载完成的回调，在加载协程里、锁外调用。
func (s *Store) OnLoaded(fn func(*protocol.Chunk)) {
	s.mu.Lock()
	s.onLoaded = fn
	s.mu.Unlock()
}

// RequestVisible 以 coords 作为当前可见集合：已加载和加载中的跳过，缺失的进入队列。
// 重复调用不会对加载中的区块发起第二次请求。
func (s *Store) RequestVisible(coords []protocol.ChunkCoord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.visible = make(map[coord]struct{}, len(coords))
	for _, c := range coords {
		s.visible[c] = struct{}{}
	}
	for _, c := range coords {
		if s.stateLocked(c) != Absent {
			continue
		}
		if _, ok := s.queued[c]; ok {
			continue
		}
		s.queued[c] = struct{}{}
		s.queue = append(s.queue, c)
	}

	if !s.running && len(s.queue) > 0 {
		s.running = true
		s.wg.Add(1)
		go s.run()
	}
}

// Get 返回已加载的区块，调用方只读。
func (s *Store) Get(c protocol.ChunkCoord) (*protocol.Chunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.chunks[c]
	return ch, ok
}

func (s *Store) State(c protocol.ChunkCoord) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(c)
}

// LandAt 在已加载区块里查地块。
func (s *Store) LandAt(x, y int) (protocol.Land, bool) {
	c := protocol.ChunkOf(x, y, s.cfg.ChunkSize)
	s.mu.Lock()
	ch, ok := s.chunks[c]
	s.mu.Unlock()
	if !ok {
		return protocol.Land{}, false
	}
	idx, ok := ch.Index(x, y, s.cfg.ChunkSize)
	if !ok {
		return protocol.Land{}, false
	}
	return ch.Lands[idx], true
}

// ApplyLocalPatch 修改已加载区块里一个地块的字段，区块未加载时什么都不做（applied=false）。
func (s *Store) ApplyLocalPatch(x, y int, field string, value any) (bool, error) {
	if !protocol.PatchableField(field) {
		return false, ErrFieldRejected.WithData("field", field)
	}
	c := protocol.ChunkOf(x, y, s.cfg.ChunkSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.chunks[c]
	if !ok {
		return false, nil
	}
	idx, ok := cur.Index(x, y, s.cfg.ChunkSize)
	if !ok {
		return false, nil
	}

	land := cur.Lands[idx]
	if err := land.Patch(field, value); err != nil {
		return false, ErrFieldRejected.WithData("field", field).WithCause(err)
	}
	next := &protocol.Chunk{
		ChunkID: cur.ChunkID,
		ChunkX:  cur.ChunkX,
		ChunkY:  cur.ChunkY,
		Lands:   make([]protocol.Land, len(cur.Lands)),
	}
	copy(next.Lands, cur.Lands)
	next.Lands[idx] = land
	s.chunks[c] = next
	return true, nil
}

// Invalidate 丢弃缓存，下次进入视口时重新拉取。正在加载的区块，这次的响应会被丢弃并重新排队。
func (s *Store) Invalidate(c protocol.ChunkCoord) {
	s.mu.Lock()
	delete(s.chunks, c)
	if _, ok := s.loading[c]; ok {
		s.stale[c] = struct{}{}
	}
	s.mu.Unlock()
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Loaded = len(s.chunks)
	st.Loading = len(s.loading)
	st.Queued = len(s.queue)
	return st
}

// Busy 表示是否有批次正在跑，给渲染循环判断 loading 状态。
func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// WaitIdle 阻塞到没有批次在跑。可以和 RequestVisible 并发调用。
func (s *Store) WaitIdle() {
	s.mu.Lock()
	for s.running {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// Close 取消在途请求并等待加载协程退出。
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Store) stateLocked(c coord) State {
	if _, ok := s.chunks[c]; ok {
		return Loaded
	}
	if _, ok := s.loading[c]; ok {
		return Loading
	}
	return Absent
}

func (s *Store) run() {
	defer s.wg.Done()
	for {
		batch := s.nextBatch()
		if len(batch) == 0 {
			return
		}
		s.loadBatch(batch)

		s.mu.Lock()
		s.evictLocked()
		s.filterQueueLocked()
		more := len(s.queue) > 0 && !s.closed
		if !more {
			s.stopLocked()
		}
		s.mu.Unlock()
		if !more {
			return
		}

		select {
		case <-s.ctx.Done():
			s.mu.Lock()
			s.stopLocked()
			s.mu.Unlock()
			return
		case <-time.After(s.cfg.BatchDelay):
		}
	}
}

// nextBatch 先按当前可见集合过滤队列，再取出一批并标记为 loading。
func (s *Store) nextBatch() []coord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterQueueLocked()
	if len(s.queue) == 0 || s.closed {
		s.stopLocked()
		return nil
	}
	n := min(len(s.queue), s.cfg.BatchSize)
	batch := make([]coord, n)
	copy(batch, s.queue[:n])
	s.queue = s.queue[n:]
	for _, c := range batch {
		delete(s.queued, c)
		s.loading[c] = struct{}{}
	}
	return batch
}

func (s *Store) stopLocked() {
	s.running = false
	s.idle.Broadcast()
}

func (s *Store) filterQueueLocked() {
	kept := s.queue[:0]
	for _, c := range s.queue {
		_, vis := s.visible[c]
		if vis && s.stateLocked(c) == Absent {
			kept = append(kept, c)
			continue
		}
		delete(s.queued, c)
		if !vis {
			s.stats.Pruned++
		}
	}
	s.queue = kept
}

func (s *Store) loadBatch(batch []coord) {
	var wg sync.WaitGroup
	loaded := make([]*protocol.Chunk, 0, len(batch))
	var loadedMu sync.Mutex

	for _, c := range batch {
		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			s.finish(c, nil, err)
			continue
		}
		wg.Add(1)
		go func(c coord) {
			defer wg.Done()
			defer s.sem.Release(1)
			ch, err := s.fetch(c)
			if s.finish(c, ch, err) {
				loadedMu.Lock()
				loaded = append(loaded, ch)
				loadedMu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	s.mu.Lock()
	cb := s.onLoaded
	s.mu.Unlock()
	if cb != nil {
		for _, ch := range loaded {
			cb(ch)
		}
	}
}

func (s *Store) fetch(c coord) (*protocol.Chunk, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.FetchTimeout)
	defer cancel()

	s.mu.Lock()
	s.stats.Fetches++
	s.mu.Unlock()

	ch, err := s.fetcher.FetchChunk(ctx, c, s.cfg.ChunkSize)
	if err != nil {
		return nil, err
	}
	if err := ch.Validate(s.cfg.ChunkSize); err != nil {
		return nil, errx.NewSys("CHUNK_PAYLOAD_INVALID", "区块数据格式错误").WithCause(err)
	}
	if ch.Coord() != c {
		return nil, errx.NewSys("CHUNK_PAYLOAD_INVALID", "区块坐标不匹配").
			WithData("want", c.ID()).WithData("got", ch.ChunkID)
	}
	return ch, nil
}

// finish 清除 loading 标记（每个坐标恰好一次），成功时写入缓存。
// 加载途中被 Invalidate 过的区块不入缓存，仍可见时重新排队。
func (s *Store) finish(c coord, ch *protocol.Chunk, err error) bool {
	s.mu.Lock()
	delete(s.loading, c)
	if _, ok := s.stale[c]; ok {
		delete(s.stale, c)
		_, vis := s.visible[c]
		if _, q := s.queued[c]; vis && !q && !s.closed {
			s.queued[c] = struct{}{}
			s.queue = append(s.queue, c)
		}
		s.mu.Unlock()
		return false
	}
	if err == nil && ch != nil && !s.closed {
		s.chunks[c] = ch
		s.mu.Unlock()
		return true
	}
	s.stats.Failures++
	s.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		logx.ReportSysErrorWithLoggerContext(s.ctx, s.log, logx.NewSysLog("chunk fetch failed", err),
			zap.String("chunk_id", c.ID()))
	}
	return false
}

func (s *Store) evictLocked() {
	if s.cfg.MaxCached <= 0 || len(s.chunks) <= s.cfg.MaxCached {
		return
	}
	for c := range s.chunks {
		if len(s.chunks) <= s.cfg.MaxCached {
			return
		}
		if _, vis := s.visible[c]; vis {
			continue
		}
		delete(s.chunks, c)
		s.stats.Evicted++
	}
}
