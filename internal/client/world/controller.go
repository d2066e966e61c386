// Package world 是客户端会话控制器：相机、视口、区块缓存和选中地块只在这里被修改。
package world

import (
	"context"
	"errors"
	"math"
	"sync"

	"go.uber.org/zap"

	"LandVerse/internal/client/chunkstore"
	"LandVerse/internal/client/conn"
	"LandVerse/internal/client/landapi"
	"LandVerse/internal/client/viewport"
	"LandVerse/internal/protocol"
	"LandVerse/modules/kit/errx"
	"LandVerse/modules/kit/logx"
)

const CodeOwnerHasNoLands errx.Code = "OWNER_HAS_NO_LANDS"

var ErrOwnerHasNoLands = errx.NewBiz(CodeOwnerHasNoLands, "该地主名下没有地块")

// LandLookup 是地块归属查询，landapi.Client 实现它。
type LandLookup interface {
	LandByCoords(ctx context.Context, x, y int) (protocol.LandOwner, error)
	OwnerCoordinates(ctx context.Context, ownerID int64) (protocol.OwnerLands, error)
}

type Config struct {
	View        viewport.Config
	InitialZoom float64
}

func DefaultConfig() Config {
	return Config{View: viewport.DefaultConfig(), InitialZoom: 1}
}

// Selection 是选中的地块。Land 来自已加载区块，Owner 为 nil 表示无主。
type Selection struct {
	X, Y   int
	Land   protocol.Land
	Loaded bool
	Owner  *protocol.LandOwner
}

type Controller struct {
	cfg   viewport.Config
	store *chunkstore.Store
	lands LandLookup
	scope *conn.Scope
	log   logx.Logger

	mu       sync.Mutex
	cam      viewport.Camera
	vp       viewport.Viewport
	visible  []protocol.ChunkCoord
	selected *Selection
}

// NewController 接管 store 的可见集合。client 为 nil 时不订阅 land_update。
func NewController(cfg Config, store *chunkstore.Store, lands LandLookup, client conn.Client, log logx.Logger) *Controller {
	cfg.View = cfg.View.Normalize()
	if cfg.InitialZoom <= 0 {
		cfg.InitialZoom = 1
	}
	c := &Controller{
		cfg:   cfg.View,
		store: store,
		lands: lands,
		log:   logx.OrNop(log),
		cam:   viewport.Camera{Zoom: cfg.View.ClampZoom(cfg.InitialZoom)},
	}
	if client != nil {
		c.scope = conn.NewScope(client)
		c.scope.On(protocol.TypeLandUpdate, c.onLandUpdate)
		c.scope.On(protocol.EventReconnected, func(protocol.Envelope) { c.refresh() })
	}
	return c
}

func (c *Controller) Close() {
	if c.scope != nil {
		c.scope.Close()
	}
}

func (c *Controller) Camera() viewport.Camera {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cam
}

func (c *Controller) Viewport() viewport.Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vp
}

// VisibleChunks 返回最近一次计算的可见区块。
func (c *Controller) VisibleChunks() []protocol.ChunkCoord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.ChunkCoord, len(c.visible))
	copy(out, c.visible)
	return out
}

func (c *Controller) Resize(width, height int) {
	c.mu.Lock()
	c.vp = viewport.Viewport{Width: width, Height: height}
	c.mu.Unlock()
	c.refresh()
}

// Pan 以地块为单位平移相机。
func (c *Controller) Pan(dx, dy float64) {
	if math.IsNaN(dx) || math.IsNaN(dy) {
		return
	}
	c.mu.Lock()
	c.cam.X += dx
	c.cam.Y += dy
	c.mu.Unlock()
	c.refresh()
}

func (c *Controller) JumpTo(x, y float64) {
	if math.IsNaN(x) || math.IsNaN(y) {
		return
	}
	c.mu.Lock()
	c.cam.X, c.cam.Y = x, y
	c.mu.Unlock()
	c.refresh()
}

// Zoom 设置缩放，越界时夹到配置范围。
func (c *Controller) Zoom(z float64) {
	c.mu.Lock()
	c.cam.Zoom = c.cfg.ClampZoom(z)
	c.mu.Unlock()
	c.refresh()
}

// ZoomBy 按倍数缩放。
func (c *Controller) ZoomBy(factor float64) {
	if factor <= 0 || math.IsNaN(factor) {
		return
	}
	c.mu.Lock()
	c.cam.Zoom = c.cfg.ClampZoom(c.cam.Zoom * factor)
	c.mu.Unlock()
	c.refresh()
}

func (c *Controller) refresh() {
	c.mu.Lock()
	coords := viewport.ComputeVisibleChunks(c.cam, c.vp, c.cfg)
	c.visible = coords
	c.mu.Unlock()
	if c.store != nil {
		c.store.RequestVisible(coords)
	}
}

// Select 选中地块并查询主人。无主地块不算错误，Owner 留空。
func (c *Controller) Select(ctx context.Context, x, y int) (Selection, error) {
	sel := Selection{X: x, Y: y}
	if c.store != nil {
		sel.Land, sel.Loaded = c.store.LandAt(x, y)
	}
	if c.lands != nil {
		owner, err := c.lands.LandByCoords(ctx, x, y)
		switch {
		case err == nil:
			sel.Owner = &owner
		case errors.Is(err, landapi.ErrLandUnclaimed):
		default:
			logx.ReportErrorWithLoggerContext(ctx, c.log, "select_land", err, zap.Int("x", x), zap.Int("y", y))
			return Selection{}, err
		}
	}

	c.mu.Lock()
	s := sel
	c.selected = &s
	c.mu.Unlock()
	return sel, nil
}

// SelectAt 选中屏幕像素位置上的地块。
func (c *Controller) SelectAt(ctx context.Context, px, py float64) (Selection, error) {
	c.mu.Lock()
	x, y := viewport.ScreenToLand(c.cam, c.vp, c.cfg, px, py)
	c.mu.Unlock()
	return c.Select(ctx, x, y)
}

func (c *Controller) Selection() (Selection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return Selection{}, false
	}
	return *c.selected, true
}

func (c *Controller) ClearSelection() {
	c.mu.Lock()
	c.selected = nil
	c.mu.Unlock()
}

// FocusOwner 把相机移到地主的第一块地中心。
func (c *Controller) FocusOwner(ctx context.Context, ownerID int64) (protocol.OwnedLand, error) {
	if c.lands == nil {
		return protocol.OwnedLand{}, ErrOwnerHasNoLands.WithData("owner_id", ownerID)
	}
	res, err := c.lands.OwnerCoordinates(ctx, ownerID)
	if err != nil {
		return protocol.OwnedLand{}, err
	}
	if len(res.Lands) == 0 {
		return protocol.OwnedLand{}, ErrOwnerHasNoLands.WithData("owner_id", ownerID)
	}
	first := res.Lands[0]
	c.JumpTo(float64(first.X)+0.5, float64(first.Y)+0.5)
	return first, nil
}

// onLandUpdate 先尝试本地打补丁，补丁不合法时丢弃整个区块让它重新拉取。
func (c *Controller) onLandUpdate(env protocol.Envelope) {
	var p protocol.LandUpdatePayload
	if err := env.Bind(&p); err != nil {
		c.log.Warn("land_update 解析失败", zap.Error(err))
		return
	}
	if c.store == nil {
		return
	}
	applied, err := c.store.ApplyLocalPatch(p.X, p.Y, p.Field, p.Value)
	if err != nil {
		c.log.Warn("land_update 无法本地应用，重新拉取区块",
			zap.Int("x", p.X), zap.Int("y", p.Y), zap.String("field", p.Field), zap.Error(err))
		c.store.Invalidate(viewport.LandToChunk(p.X, p.Y, c.cfg))
		c.refresh()
		return
	}
	if !applied {
		return
	}

	land, ok := c.store.LandAt(p.X, p.Y)
	if !ok {
		return
	}
	c.mu.Lock()
	if c.selected != nil && c.selected.X == p.X && c.selected.Y == p.Y {
		c.selected.Land = land
		c.selected.Loaded = true
	}
	c.mu.Unlock()
}
