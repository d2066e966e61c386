package landapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"LandVerse/internal/client/landapi"
	"LandVerse/internal/protocol"
	"LandVerse/modules/kit/errx"
)

func makeChunk(cx, cy, size int) *protocol.Chunk {
	ch := &protocol.Chunk{ChunkID: protocol.ChunkID(cx, cy), ChunkX: cx, ChunkY: cy}
	for ly := 0; ly < size; ly++ {
		for lx := 0; lx < size; lx++ {
			ch.Lands = append(ch.Lands, protocol.Land{X: cx*size + lx, Y: cy*size + ly, Biome: "plains"})
		}
	}
	return ch
}

func newServer(t *testing.T) (*httptest.Server, *landapi.Client) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chunk", func(w http.ResponseWriter, r *http.Request) {
		cx, _ := strconv.Atoi(r.URL.Query().Get("cx"))
		cy, _ := strconv.Atoi(r.URL.Query().Get("cy"))
		size, _ := strconv.Atoi(r.URL.Query().Get("size"))
		if cx == 99 {
			// 故意返回错位的区块
			cx = 98
		}
		_ = json.NewEncoder(w).Encode(makeChunk(cx, cy, size))
	})
	mux.HandleFunc("POST /api/chunks/batch", func(w http.ResponseWriter, r *http.Request) {
		var req protocol.ChunkBatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := protocol.ChunkBatchResponse{}
		for _, c := range req.Coords {
			resp.Chunks = append(resp.Chunks, makeChunk(c.CX, c.CY, req.ChunkSize))
		}
		// 一个形状不对的区块，客户端应丢弃
		resp.Chunks = append(resp.Chunks, makeChunk(7, 7, 1))
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("GET /api/land", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("x") != "3" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"LAND_UNCLAIMED","msg":"该地块尚无主人"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(protocol.LandOwner{OwnerID: 42, OwnerUsername: "alice", LandID: "L-3-4"})
	})
	mux.HandleFunc("GET /api/owners/{id}/lands", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "42" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(protocol.OwnerLands{
			OwnerUsername: "alice",
			Lands:         []protocol.OwnedLand{{X: 3, Y: 4, LandID: "L-3-4"}},
		})
	})
	mux.HandleFunc("POST /api/dev/token", func(w http.ResponseWriter, r *http.Request) {
		var req landapi.DevTokenRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(landapi.DevTokenResponse{Token: "tok-" + req.Username})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := landapi.New(srv.URL+"/", landapi.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, c
}

func TestFetchChunk_校验并返回区块(t *testing.T) {
	_, c := newServer(t)
	ch, err := c.FetchChunk(context.Background(), protocol.ChunkCoord{CX: -1, CY: 2}, 4)
	if err != nil {
		t.Fatalf("FetchChunk: %v", err)
	}
	if ch.ChunkID != "-1_2" || len(ch.Lands) != 16 {
		t.Fatalf("unexpected chunk id=%s lands=%d", ch.ChunkID, len(ch.Lands))
	}
}

func TestFetchChunk_坐标不符视为坏响应(t *testing.T) {
	_, c := newServer(t)
	_, err := c.FetchChunk(context.Background(), protocol.ChunkCoord{CX: 99, CY: 0}, 4)
	if !errors.Is(err, landapi.ErrBadResponse) {
		t.Fatalf("期望 ErrBadResponse, got=%v", err)
	}
}

func TestFetchBatch_丢弃不合法区块(t *testing.T) {
	_, c := newServer(t)
	coords := []protocol.ChunkCoord{{CX: 0, CY: 0}, {CX: 1, CY: 0}}
	chunks, err := c.FetchBatch(context.Background(), coords, 2)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("期望 2 个合法区块, got=%d", len(chunks))
	}
}

func TestLandByCoords_无主返回ErrLandUnclaimed(t *testing.T) {
	_, c := newServer(t)
	owner, err := c.LandByCoords(context.Background(), 3, 4)
	if err != nil {
		t.Fatalf("LandByCoords: %v", err)
	}
	if owner.OwnerID != 42 || owner.OwnerUsername != "alice" {
		t.Fatalf("unexpected owner %+v", owner)
	}

	_, err = c.LandByCoords(context.Background(), 5, 5)
	if !errors.Is(err, landapi.ErrLandUnclaimed) {
		t.Fatalf("期望 ErrLandUnclaimed, got=%v", err)
	}
	var e *errx.Error
	if !errors.As(err, &e) || e.IsSys() {
		t.Fatalf("无主地块应是业务错误, got=%v", err)
	}
}

func TestOwnerCoordinates_列出地块(t *testing.T) {
	_, c := newServer(t)
	lands, err := c.OwnerCoordinates(context.Background(), 42)
	if err != nil {
		t.Fatalf("OwnerCoordinates: %v", err)
	}
	if len(lands.Lands) != 1 || lands.Lands[0].X != 3 {
		t.Fatalf("unexpected lands %+v", lands)
	}
	if _, err := c.OwnerCoordinates(context.Background(), 7); !errors.Is(err, landapi.ErrOwnerNotFound) {
		t.Fatalf("期望 ErrOwnerNotFound, got=%v", err)
	}
}

func TestDevToken_签发令牌(t *testing.T) {
	_, c := newServer(t)
	tok, err := c.DevToken(context.Background(), 1, "bob")
	if err != nil {
		t.Fatalf("DevToken: %v", err)
	}
	if tok != "tok-bob" {
		t.Fatalf("unexpected token %q", tok)
	}
}

func TestNew_拒绝非HTTP地址(t *testing.T) {
	if _, err := landapi.New("ws://localhost:8080"); err == nil {
		t.Fatalf("ws 地址应被拒绝")
	}
}

func TestFetchChunk_服务不可达(t *testing.T) {
	srv, c := newServer(t)
	srv.Close()
	_, err := c.FetchChunk(context.Background(), protocol.ChunkCoord{}, 4)
	if !errors.Is(err, landapi.ErrRequestFailure) {
		t.Fatalf("期望 ErrRequestFailure, got=%v", err)
	}
}
