package grpcclient

import (
	"context"
	"errors"
	"net"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HacksterAman/Clean-Bounty/internal/imageprocessor"
	"github.com/HacksterAman/Clean-Bounty/internal/waste"
)

type classifyHandler func(req *structpb.Struct) (*structpb.Struct, error)

func startServer(t *testing.T, handle classifyHandler) *RemoteClassifier {
	t.Helper()

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "cleanbounty.v1.WasteClassifier",
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Classify",
			Handler: func(_ interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
				req := &structpb.Struct{}
				if err := dec(req); err != nil {
					return nil, err
				}
				return handle(req)
			},
		}},
	}, struct{}{})
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	client, conn, err := DialClassifier(context.Background(), "bufnet", zap.NewNop(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return client
}

var testImage = imageprocessor.Image{Data: []byte{0xFF, 0xD8, 0xFF}, MIMEType: "image/jpeg", SHA1: "0123456789abcdef"}

func TestRemoteClassifierRoundTrip(t *testing.T) {
	var gotMIME string
	client := startServer(t, func(req *structpb.Struct) (*structpb.Struct, error) {
		gotMIME = req.GetFields()["mime_type"].GetStringValue()
		return structpb.NewStruct(map[string]any{
			"waste_types": []any{
				map[string]any{"type": "Metal", "confidence": 0.8, "description": "can", "points": 15},
				map[string]any{"type": "Plastic", "confidence": 0.5, "description": "lid", "points": 10},
			},
		})
	})

	res, err := client.Classify(context.Background(), testImage)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if gotMIME != "image/jpeg" {
		t.Fatalf("server saw mime %q", gotMIME)
	}
	if len(res.Candidates) != 2 || res.Candidates[0].Type != "Metal" || res.Candidates[0].Points != 15 {
		t.Fatalf("unexpected candidates: %+v", res.Candidates)
	}
	if sum := waste.ConfidenceSum(res.Candidates); sum <= 1 {
		t.Fatalf("client must not normalize, got sum %v", sum)
	}
}

func TestRemoteClassifierMapsStatusCodes(t *testing.T) {
	cases := map[string]struct {
		err  error
		want error
	}{
		"unavailable":      {err: status.Error(codes.Unavailable, "down"), want: waste.ErrUpstream},
		"deadline":         {err: status.Error(codes.DeadlineExceeded, "slow"), want: waste.ErrUpstream},
		"invalid argument": {err: status.Error(codes.InvalidArgument, "not an image"), want: waste.ErrEncoding},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			client := startServer(t, func(*structpb.Struct) (*structpb.Struct, error) { return nil, tc.err })

			_, err := client.Classify(context.Background(), testImage)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRemoteClassifierSchemaError(t *testing.T) {
	client := startServer(t, func(*structpb.Struct) (*structpb.Struct, error) {
		return structpb.NewStruct(map[string]any{"labels": []any{"Plastic"}})
	})

	_, err := client.Classify(context.Background(), testImage)
	if !errors.Is(err, waste.ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
}
