package app

import (
	"context"

	"LandVerse/internal/presence/actors"
)

// RoomRuntime 是房间 actor 的同步入口，actor.Runtime 实现它。
type RoomRuntime interface {
	Ask(ctx context.Context, msg actors.RoomMessage) error
	Tell(msg any)
	Members(ctx context.Context, roomID string) (*actors.MembersReply, error)
	Rooms(ctx context.Context) ([]string, error)
}
