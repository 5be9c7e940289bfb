// Package telemetry exposes system snapshots over gRPC. Messages are
// google.protobuf.Struct values carrying the same JSON shape as the REST API.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"

	core "github.com/KevinKickass/OpenMotionCore/internal/telemetry"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Source is what the service reads from.
type Source interface {
	Snapshot() core.Snapshot
	Streamer() *core.Streamer
}

type Service struct {
	source Source
	logger *zap.Logger
}

func NewService(source Source, logger *zap.Logger) *Service {
	return &Service{source: source, logger: logger}
}

func (s *Service) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := toStruct(s.source.Snapshot())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode snapshot: %v", err)
	}
	return out, nil
}

// WatchAxes sends the current snapshot, then every sampled snapshot until
// the client goes away or the streamer closes.
func (s *Service) WatchAxes(_ *emptypb.Empty, stream Telemetry_WatchAxesServer) error {
	id, feed := s.source.Streamer().Subscribe()
	defer s.source.Streamer().Unsubscribe(id)

	if err := s.send(stream, s.source.Snapshot()); err != nil {
		return err
	}

	s.logger.Debug("Telemetry stream opened")
	defer s.logger.Debug("Telemetry stream closed")

	for {
		select {
		case msg, ok := <-feed:
			if !ok {
				return nil
			}
			if msg.Kind != core.KindSnapshot || msg.Snapshot == nil {
				continue
			}
			if err := s.send(stream, *msg.Snapshot); err != nil {
				return err
			}

		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

func (s *Service) send(stream Telemetry_WatchAxesServer, snap core.Snapshot) error {
	out, err := toStruct(snap)
	if err != nil {
		return status.Errorf(codes.Internal, "failed to encode snapshot: %v", err)
	}
	return stream.Send(out)
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("failed to build struct: %w", err)
	}
	return out, nil
}
