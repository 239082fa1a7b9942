package pkg

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"strings"
)

// GRPCServiceExtended is the interface a registered GRPCService must also
// implement to actually answer unary calls dispatched by RouterEngine.GRPC
// (§4.11); a service that only implements GRPCService can still be
// registered (for discovery/routing) but every call returns Unimplemented.
type GRPCServiceExtended interface {
	GRPCService

	HandleUnary(ctx context.Context, method string, req interface{}) (interface{}, error)
}

// GRPCStatusCode mirrors the standard gRPC status codes used in the
// grpc-status trailer (spec.md "Response protocols").
type GRPCStatusCode int

const (
	GRPCStatusOK                 GRPCStatusCode = 0
	GRPCStatusCanceled           GRPCStatusCode = 1
	GRPCStatusUnknown            GRPCStatusCode = 2
	GRPCStatusInvalidArgument    GRPCStatusCode = 3
	GRPCStatusDeadlineExceeded   GRPCStatusCode = 4
	GRPCStatusNotFound           GRPCStatusCode = 5
	GRPCStatusAlreadyExists      GRPCStatusCode = 6
	GRPCStatusPermissionDenied   GRPCStatusCode = 7
	GRPCStatusResourceExhausted  GRPCStatusCode = 8
	GRPCStatusFailedPrecondition GRPCStatusCode = 9
	GRPCStatusAborted            GRPCStatusCode = 10
	GRPCStatusOutOfRange         GRPCStatusCode = 11
	GRPCStatusUnimplemented      GRPCStatusCode = 12
	GRPCStatusInternal           GRPCStatusCode = 13
	GRPCStatusUnavailable        GRPCStatusCode = 14
	GRPCStatusDataLoss           GRPCStatusCode = 15
	GRPCStatusUnauthenticated    GRPCStatusCode = 16
)

// grpcStatusFromError maps an error coming out of the worker pool / unary
// handler to a gRPC status code. A *FrameworkError carries an HTTP status
// that maps onto the closest gRPC equivalent; anything else is Unknown.
func grpcStatusFromError(err error) GRPCStatusCode {
	fe, ok := err.(*FrameworkError)
	if !ok {
		return GRPCStatusUnknown
	}
	switch fe.StatusCode {
	case http.StatusBadRequest:
		return GRPCStatusInvalidArgument
	case http.StatusUnauthorized:
		return GRPCStatusUnauthenticated
	case http.StatusForbidden:
		return GRPCStatusPermissionDenied
	case http.StatusNotFound:
		return GRPCStatusNotFound
	case http.StatusConflict:
		return GRPCStatusAlreadyExists
	case http.StatusTooManyRequests:
		return GRPCStatusResourceExhausted
	case http.StatusNotImplemented:
		return GRPCStatusUnimplemented
	case http.StatusServiceUnavailable:
		return GRPCStatusUnavailable
	case http.StatusGatewayTimeout:
		return GRPCStatusDeadlineExceeded
	default:
		return GRPCStatusInternal
	}
}

// grpcEncodingFor picks a grpc-encoding from the client's grpc-accept-encoding
// header, restricted to the two algorithms spec.md's response-protocols
// section names for gRPC (gzip, deflate) — unlike HTTP's Compression
// middleware (§4.8), which also offers br/zstd.
func grpcEncodingFor(acceptEncoding string) (CompressionAlgorithm, bool) {
	for _, part := range strings.Split(acceptEncoding, ",") {
		switch strings.TrimSpace(part) {
		case string(CompressionGzip):
			return CompressionGzip, true
		case string(CompressionDeflate):
			return CompressionDeflate, true
		}
	}
	return "", false
}

// encodeGRPCMessage marshals a unary response as JSON (no protobuf codec is
// available in this stack) and frames it with the standard gRPC length-prefix
// header: a 1-byte compressed-flag followed by a 4-byte big-endian length,
// per the wire format content-type: application/grpc implies.
func encodeGRPCMessage(v interface{}, encoding CompressionAlgorithm) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	compressedFlag := byte(0)
	if encoding != "" {
		compressed, err := compressWith(encoding, payload)
		if err != nil {
			return nil, err
		}
		payload = compressed
		compressedFlag = 1
	}

	var buf bytes.Buffer
	buf.WriteByte(compressedFlag)
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(payload)))
	buf.Write(length[:])
	buf.Write(payload)
	return buf.Bytes(), nil
}
