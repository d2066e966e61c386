package grpc

import (
	"context"
	"errors"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"LandVerse/internal/shared/transport"
	rpc "LandVerse/internal/shared/transport/grpc"
	"LandVerse/internal/world/app"
	"LandVerse/modules/kit/errx"
	"LandVerse/modules/kit/logx"
	"LandVerse/modules/kit/tracex"
)

type publishReq struct {
	X     int    `mapstructure:"x"`
	Y     int    `mapstructure:"y"`
	Field string `mapstructure:"field"`
	Value any    `mapstructure:"value"`
}

type LandEvents struct {
	svc *app.WorldService
	log logx.Logger
}

var _ rpc.LandEventsServer = (*LandEvents)(nil)

func NewLandEvents(svc *app.WorldService, l logx.Logger) *LandEvents {
	return &LandEvents{svc: svc, log: logx.OrNop(l)}
}

func (h *LandEvents) Publish(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	ctx = tracex.WithSpanID(ctx, "land_events")

	in, err := decode(req)
	if err != nil {
		err = errx.ErrInvalidParam.WithMsg("地块事件格式错误").WithCause(err)
		logx.ReportErrorWithLoggerContext(ctx, h.log, "land_events.publish", err)
		return nil, toRPCError(err)
	}
	if _, err := h.svc.Publish(ctx, in.X, in.Y, in.Field, in.Value); err != nil {
		logx.ReportErrorWithLoggerContext(ctx, h.log, "land_events.publish", err,
			zap.Int("x", in.X), zap.Int("y", in.Y), zap.String("field", in.Field))
		return nil, toRPCError(err)
	}
	return &emptypb.Empty{}, nil
}

// decode 要求 x、y、field、value 四个键都在，value 可以是 null。
func decode(req *structpb.Struct) (publishReq, error) {
	var out publishReq
	if req == nil {
		return out, errors.New("empty request")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnset:       true,
		ErrorUnused:      true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(req.AsMap()); err != nil {
		return out, err
	}
	if out.Field == "" {
		return out, errors.New("field is empty")
	}
	return out, nil
}

func toRPCError(err error) error {
	msg := errx.MsgOf(err)
	if code := errx.CodeOf(err); code != "" {
		msg = string(code) + ": " + msg
	}
	if errors.Is(err, errx.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, msg)
	}
	switch transport.CodeFromError(err) {
	case transport.InvalidParam:
		return status.Error(codes.InvalidArgument, msg)
	case transport.NotFound:
		return status.Error(codes.NotFound, msg)
	case transport.Unauthenticated:
		return status.Error(codes.Unauthenticated, msg)
	case transport.RateLimited:
		return status.Error(codes.ResourceExhausted, msg)
	case transport.Unavailable:
		return status.Error(codes.Unavailable, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}
