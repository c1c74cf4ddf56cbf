package grpcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HacksterAman/Clean-Bounty/internal/classifier"
	"github.com/HacksterAman/Clean-Bounty/internal/imageprocessor"
	"github.com/HacksterAman/Clean-Bounty/internal/logging"
	"github.com/HacksterAman/Clean-Bounty/internal/waste"
)

// ClassifyMethod is the full gRPC method name of the remote classifier. Both
// request and response are google.protobuf.Struct values.
const ClassifyMethod = "/cleanbounty.v1.WasteClassifier/Classify"

// DialClassifier returns a ready-to-use classifier backed by a gRPC service.
func DialClassifier(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (*RemoteClassifier, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)
	conn, err := grpc.DialContext(dialCtx, addr, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
		logger.Error("failed to dial classifier", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewRemoteClassifier(conn, logger), conn, nil
}

// RemoteClassifier implements classifier.Classifier over gRPC.
type RemoteClassifier struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

var _ classifier.Classifier = (*RemoteClassifier)(nil)

// NewRemoteClassifier wraps an existing connection.
func NewRemoteClassifier(conn grpc.ClientConnInterface, logger *zap.Logger) *RemoteClassifier {
	return &RemoteClassifier{conn: conn, logger: logger.Named("grpc_classifier")}
}

// Classify sends the image and decodes the waste_types reply.
func (g *RemoteClassifier) Classify(ctx context.Context, img imageprocessor.Image) (waste.ClassificationResult, error) {
	req, err := structpb.NewStruct(map[string]any{
		"image":     img.Base64(),
		"mime_type": img.MIMEType,
		"sha1":      img.SHA1,
	})
	if err != nil {
		return waste.ClassificationResult{}, fmt.Errorf("grpc classify: %w: %v", waste.ErrEncoding, err)
	}

	reply := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, ClassifyMethod, req, reply); err != nil {
		wrapped := logging.NewOperationError("grpcclient.classify", img.Ref(), err)
		g.logger.Error("classifier call failed", zap.Error(wrapped), zap.String("code", status.Code(err).String()))
		if status.Code(err) == codes.InvalidArgument {
			return waste.ClassificationResult{}, fmt.Errorf("grpc classify: %w: %w", waste.ErrEncoding, wrapped)
		}
		return waste.ClassificationResult{}, fmt.Errorf("grpc classify: %w: %w", waste.ErrUpstream, wrapped)
	}

	raw, err := json.Marshal(reply.AsMap())
	if err != nil {
		return waste.ClassificationResult{}, fmt.Errorf("grpc classify: %w: %v", waste.ErrSchema, err)
	}
	return classifier.ParseClassification(string(raw))
}
