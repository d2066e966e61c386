// Package landapi 是世界服务 HTTP 接口的客户端：区块、地块归属、开发令牌。
package landapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"LandVerse/internal/protocol"
	"LandVerse/modules/kit/errx"
	"LandVerse/modules/kit/logx"
)

const (
	CodeLandUnclaimed  errx.Code = "LAND_UNCLAIMED"
	CodeOwnerNotFound  errx.Code = "OWNER_NOT_FOUND"
	CodeBadResponse    errx.Code = "LANDAPI_BAD_RESPONSE"
	CodeRequestFailure errx.Code = "LANDAPI_REQUEST_FAILED"
)

var (
	// ErrLandUnclaimed 不是故障，地块无主时返回。
	ErrLandUnclaimed  = errx.NewBiz(CodeLandUnclaimed, "该地块尚无主人")
	ErrOwnerNotFound  = errx.NewBiz(CodeOwnerNotFound, "地主不存在")
	ErrBadResponse    = errx.NewSys(CodeBadResponse, "服务端返回格式错误")
	ErrRequestFailure = errx.NewSys(CodeRequestFailure, "请求世界服务失败")
)

// maxBody 限制单次响应体，64x64 区块的 JSON 远小于此值。
const maxBody = 8 << 20

type Client struct {
	base  *url.URL
	http  *http.Client
	token string
	log   logx.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken 为请求带上 Bearer 凭证。
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(l logx.Logger) Option {
	return func(c *Client) { c.log = logx.OrNop(l) }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: 10 * time.Second},
		log:  logx.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken 在拿到开发令牌之后更新凭证。
func (c *Client) SetToken(token string) {
	c.token = token
}

// FetchChunk 拉取并校验一个区块，满足 chunkstore.Fetcher。
func (c *Client) FetchChunk(ctx context.Context, coord protocol.ChunkCoord, size int) (*protocol.Chunk, error) {
	q := url.Values{}
	q.Set("cx", strconv.Itoa(coord.CX))
	q.Set("cy", strconv.Itoa(coord.CY))
	q.Set("size", strconv.Itoa(size))

	var chunk protocol.Chunk
	if _, err := c.do(ctx, http.MethodGet, "/api/chunk", q, nil, &chunk); err != nil {
		return nil, err
	}
	if err := chunk.Validate(size); err != nil {
		return nil, ErrBadResponse.WithCause(err).WithData("chunk_id", coord.ID())
	}
	if chunk.Coord() != coord {
		return nil, ErrBadResponse.WithData("chunk_id", coord.ID()).WithReason(ReasonCoordMismatch)
	}
	return &chunk, nil
}

// FetchBatch 一次拉多个区块。缺失或不合法的区块直接丢弃，由调用方重试。
func (c *Client) FetchBatch(ctx context.Context, coords []protocol.ChunkCoord, size int) ([]*protocol.Chunk, error) {
	if len(coords) == 0 {
		return nil, nil
	}
	req := protocol.ChunkBatchRequest{Coords: coords, ChunkSize: size}
	var resp protocol.ChunkBatchResponse
	if _, err := c.do(ctx, http.MethodPost, "/api/chunks/batch", nil, req, &resp); err != nil {
		return nil, err
	}
	out := make([]*protocol.Chunk, 0, len(resp.Chunks))
	for _, ch := range resp.Chunks {
		if ch == nil {
			continue
		}
		if err := ch.Validate(size); err != nil {
			c.log.Warn("丢弃不合法区块", zap.String("chunk_id", ch.ChunkID), zap.Error(err))
			continue
		}
		out = append(out, ch)
	}
	return out, nil
}

// LandByCoords 查询地块主人，无主时返回 ErrLandUnclaimed。
func (c *Client) LandByCoords(ctx context.Context, x, y int) (protocol.LandOwner, error) {
	q := url.Values{}
	q.Set("x", strconv.Itoa(x))
	q.Set("y", strconv.Itoa(y))

	var owner protocol.LandOwner
	status, err := c.do(ctx, http.MethodGet, "/api/land", q, nil, &owner)
	if status == http.StatusNotFound {
		return protocol.LandOwner{}, ErrLandUnclaimed.WithData("x", x).WithData("y", y)
	}
	if err != nil {
		return protocol.LandOwner{}, err
	}
	return owner, nil
}

// OwnerCoordinates 列出某个地主的全部地块坐标。
func (c *Client) OwnerCoordinates(ctx context.Context, ownerID int64) (protocol.OwnerLands, error) {
	path := "/api/owners/" + strconv.FormatInt(ownerID, 10) + "/lands"

	var lands protocol.OwnerLands
	status, err := c.do(ctx, http.MethodGet, path, nil, nil, &lands)
	if status == http.StatusNotFound {
		return protocol.OwnerLands{}, ErrOwnerNotFound.WithData("owner_id", ownerID)
	}
	if err != nil {
		return protocol.OwnerLands{}, err
	}
	return lands, nil
}

type DevTokenRequest struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type DevTokenResponse struct {
	Token string `json:"token"`
}

// DevToken 向开发环境签发令牌，生产服务不开放该接口。
func (c *Client) DevToken(ctx context.Context, userID int64, username string) (string, error) {
	var resp DevTokenResponse
	if _, err := c.do(ctx, http.MethodPost, "/api/dev/token", nil, DevTokenRequest{UserID: userID, Username: username}, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", ErrBadResponse.WithReason(ReasonEmptyToken)
	}
	return resp.Token, nil
}

// errorBody 与服务端错误响应一致。
type errorBody struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// do 返回 HTTP 状态码，非 2xx 时 err 非空。
func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) (int, error) {
	u := *c.base
	u.Path = c.base.Path + path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshal %s body: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return 0, fmt.Errorf("new request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, ErrRequestFailure.WithCause(err).WithData("path", path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, ErrRequestFailure.WithCause(err).WithData("path", path)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, errx.ErrUnauthenticated.WithData("path", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		return resp.StatusCode, ErrRequestFailure.
			WithData("path", path).
			WithData("status", resp.StatusCode).
			WithData("server_code", eb.Code).
			WithData("server_msg", eb.Msg)
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, ErrBadResponse.WithCause(err).WithData("path", path)
	}
	return resp.StatusCode, nil
}
