package grpcx

import (
	"context"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/agendei/libs/httpx"
	"google.golang.org/grpc/metadata"
)

// RequestIDMetadataKey is httpx.RequestIDHeader in gRPC's lowercase metadata form.
const RequestIDMetadataKey = "x-request-id"

// RequestIDFromContext shares its context key with httpx, so code below either transport
// reads the id the same way.
func RequestIDFromContext(ctx context.Context) string {
	return httpx.RequestIDFromContext(ctx)
}

// incomingRequestID returns the caller's id when it passes the same checks as HTTP ids,
// or a fresh UUID.
func incomingRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 && httpx.ValidRequestID(vals[0]) {
			return vals[0]
		}
	}
	return uuid.NewString()
}
