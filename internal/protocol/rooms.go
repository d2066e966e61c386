package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// WorldRoom 是全服广播作用域。
const WorldRoom = "world"

const landRoomPrefix = "land_"

var ErrBadRoom = errors.New("invalid room id")

// RoomKey 是解析后的房间标识：地块房间带坐标，world 房间 IsLand=false。
type RoomKey struct {
	IsLand bool
	X, Y   int
}

// LandRoom 生成地块房间号 land_{x}_{y}。
func LandRoom(x, y int) string {
	return fmt.Sprintf("%s%d_%d", landRoomPrefix, x, y)
}

func (k RoomKey) String() string {
	if !k.IsLand {
		return WorldRoom
	}
	return LandRoom(k.X, k.Y)
}

// ParseRoom 校验房间号，只接受 world 和 land_{x}_{y}。
func ParseRoom(id string) (RoomKey, error) {
	if id == WorldRoom {
		return RoomKey{}, nil
	}
	rest, ok := strings.CutPrefix(id, landRoomPrefix)
	if !ok {
		return RoomKey{}, fmt.Errorf("%w: %q", ErrBadRoom, id)
	}
	// 负坐标里也有 '-'，这里按 '_' 切
	xs, ys, ok := strings.Cut(rest, "_")
	if !ok {
		return RoomKey{}, fmt.Errorf("%w: %q", ErrBadRoom, id)
	}
	x, errX := strconv.Atoi(xs)
	y, errY := strconv.Atoi(ys)
	if errX != nil || errY != nil {
		return RoomKey{}, fmt.Errorf("%w: %q", ErrBadRoom, id)
	}
	key := RoomKey{IsLand: true, X: x, Y: y}
	if key.String() != id {
		return RoomKey{}, fmt.Errorf("%w: %q not canonical", ErrBadRoom, id)
	}
	return key, nil
}
