package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/crosswalk/internal/crossing"
	"github.com/banshee-data/crosswalk/internal/monitoring"
	"github.com/banshee-data/crosswalk/internal/stream"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "crosswalk.DecisionStream"

const subscribeMethod = "/" + ServiceName + "/Subscribe"

// subscriberBuffer bounds how far a slow client may lag before events are
// dropped for it.
const subscriberBuffer = 32

// DecisionServer fans decision events out to gRPC subscribers. Each
// subscriber has its own buffer; a full buffer drops the event for that
// subscriber only.
type DecisionServer struct {
	deviceID string

	mu      sync.Mutex
	nextID  int
	clients map[int]chan *structpb.Struct

	dropped atomic.Uint64
}

var _ stream.Listener = (*DecisionServer)(nil)

// NewDecisionServer returns a server tagging payloads with deviceID.
func NewDecisionServer(deviceID string) *DecisionServer {
	return &DecisionServer{deviceID: deviceID, clients: make(map[int]chan *structpb.Struct)}
}

// DecisionStreamDesc describes the service for registration and for clients.
var DecisionStreamDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*interface{})(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Subscribe",
		Handler:       subscribeHandler,
		ServerStreams: true,
	}},
	Metadata: "crosswalk/decision_stream",
}

func subscribeHandler(srv interface{}, ss grpc.ServerStream) error {
	var req emptypb.Empty
	if err := ss.RecvMsg(&req); err != nil {
		return err
	}
	return srv.(*DecisionServer).serve(ss)
}

// NewGRPCServer returns a gRPC server exposing the decision stream and the
// standard health service.
func NewGRPCServer(ds *DecisionServer, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	s.RegisterService(&DecisionStreamDesc, ds)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s
}

// OnDecision implements stream.Listener.
func (ds *DecisionServer) OnDecision(ev crossing.Event) {
	msg, err := NewPayload(ds.deviceID, ev).toStruct()
	if err != nil {
		monitoring.Logf("publish: encode event %d: %v", ev.Seq, err)
		return
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for _, ch := range ds.clients {
		select {
		case ch <- msg:
		default:
			ds.dropped.Add(1)
		}
	}
}

// Subscribers reports the number of connected clients.
func (ds *DecisionServer) Subscribers() int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return len(ds.clients)
}

// Dropped reports events dropped for slow subscribers.
func (ds *DecisionServer) Dropped() uint64 { return ds.dropped.Load() }

func (ds *DecisionServer) serve(ss grpc.ServerStream) error {
	ch := make(chan *structpb.Struct, subscriberBuffer)
	ds.mu.Lock()
	id := ds.nextID
	ds.nextID++
	ds.clients[id] = ch
	ds.mu.Unlock()
	defer func() {
		ds.mu.Lock()
		delete(ds.clients, id)
		ds.mu.Unlock()
	}()

	ctx := ss.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			if err := ss.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// Subscribe opens the decision stream on conn and calls fn for every
// payload until ctx ends, the server closes the stream, or fn fails.
func Subscribe(ctx context.Context, conn grpc.ClientConnInterface, fn func(Payload) error) error {
	cs, err := conn.NewStream(ctx, &DecisionStreamDesc.Streams[0], subscribeMethod)
	if err != nil {
		return fmt.Errorf("open decision stream: %w", err)
	}
	if err := cs.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := cs.CloseSend(); err != nil {
		return err
	}
	for {
		var msg structpb.Struct
		if err := cs.RecvMsg(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		p, err := payloadFromStruct(&msg)
		if err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if err := fn(p); err != nil {
			return err
		}
	}
}
