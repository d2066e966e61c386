package protocol

import (
	"errors"
	"testing"
)

func TestParseRoom_地块房间与负坐标(t *testing.T) {
	key, err := ParseRoom("land_-3_12")
	if err != nil {
		t.Fatalf("ParseRoom err=%v", err)
	}
	if !key.IsLand || key.X != -3 || key.Y != 12 {
		t.Fatalf("期望 (-3,12), got=%+v", key)
	}
	if key.String() != LandRoom(-3, 12) {
		t.Fatalf("期望 String 可还原房间号, got=%s", key.String())
	}
}

func TestParseRoom_world与非法房间号(t *testing.T) {
	if key, err := ParseRoom(WorldRoom); err != nil || key.IsLand {
		t.Fatalf("期望 world 解析成功且 IsLand=false, key=%+v err=%v", key, err)
	}
	for _, bad := range []string{"", "land_", "land_1", "land_a_b", "land_01_2", "room_1_2"} {
		if _, err := ParseRoom(bad); !errors.Is(err, ErrBadRoom) {
			t.Fatalf("期望 %q 返回 ErrBadRoom, got=%v", bad, err)
		}
	}
}

func TestChunkOf_负坐标向下取整(t *testing.T) {
	cases := []struct {
		x, y   int
		cx, cy int
	}{
		{0, 0, 0, 0},
		{31, 31, 0, 0},
		{32, -1, 1, -1},
		{-32, -33, -1, -2},
	}
	for _, c := range cases {
		got := ChunkOf(c.x, c.y, 32)
		if got.CX != c.cx || got.CY != c.cy {
			t.Fatalf("ChunkOf(%d,%d) 期望 (%d,%d), got=%+v", c.x, c.y, c.cx, c.cy, got)
		}
	}
}
