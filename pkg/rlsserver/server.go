// Package rlsserver implements the envoy.service.ratelimit.v3 gRPC
// interface on top of the Limiter, so Envoy (and any other RLS client)
// can enforce the same policies as the HTTP surfaces.
//
// Descriptor entries map onto the limiter's inputs:
//
//	policy          → the x-ratelimit-policy value
//	organization_id → the bucket owner (falls back to the request domain)
//	user_id         → the s=user segment value
//	<anything else> → a request property, for s=<property> policies
//
// A hits_addend greater than zero is taken as the explicit cost in cents
// for u=cents policies; request-unit policies always cost 1 regardless.
package rlsserver

import (
	"context"
	"fmt"
	"math"
	"net"
	"time"

	ratelimitv3common "github.com/envoyproxy/go-control-plane/envoy/extensions/common/ratelimit/v3"
	ratelimitv3 "github.com/envoyproxy/go-control-plane/envoy/service/ratelimit/v3"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/gatewaylabs/ratelimit/pkg/observability/logging"
	"github.com/gatewaylabs/ratelimit/pkg/ratelimit"
)

// Server implements ratelimitv3.RateLimitServiceServer.
type Server struct {
	ratelimitv3.UnimplementedRateLimitServiceServer

	limiter *ratelimit.Limiter
}

// NewServer creates the RLS server.
func NewServer(limiter *ratelimit.Limiter) *Server {
	return &Server{limiter: limiter}
}

// Init starts the gRPC rate limit service and blocks until it exits.
func Init(port int, limiter *ratelimit.Limiter) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}

	grpcServer := grpc.NewServer()
	ratelimitv3.RegisterRateLimitServiceServer(grpcServer, NewServer(limiter))

	logging.Infof("Envoy rate limit service listening on port %d", port)
	return grpcServer.Serve(lis)
}

// ShouldRateLimit checks every descriptor and denies overall when any
// one of them is over its limit, matching Envoy's own semantics.
func (s *Server) ShouldRateLimit(ctx context.Context, req *ratelimitv3.RateLimitRequest) (*ratelimitv3.RateLimitResponse, error) {
	descriptors := req.GetDescriptors()
	resp := &ratelimitv3.RateLimitResponse{
		OverallCode: ratelimitv3.RateLimitResponse_OK,
		Statuses:    make([]*ratelimitv3.RateLimitResponse_DescriptorStatus, 0, len(descriptors)),
	}

	for _, desc := range descriptors {
		result := s.limiter.Check(ctx, s.checkRequest(req, desc))
		status := descriptorStatus(result)
		if !result.Allowed {
			resp.OverallCode = ratelimitv3.RateLimitResponse_OVER_LIMIT
		}
		resp.Statuses = append(resp.Statuses, status)
	}

	return resp, nil
}

func (s *Server) checkRequest(req *ratelimitv3.RateLimitRequest, desc *ratelimitv3common.RateLimitDescriptor) ratelimit.CheckRequest {
	out := ratelimit.CheckRequest{
		OrganizationID: req.GetDomain(),
		Properties:     map[string]string{},
	}
	for _, entry := range desc.GetEntries() {
		switch entry.GetKey() {
		case "policy":
			out.PolicyHeader = entry.GetValue()
		case "organization_id":
			out.OrganizationID = entry.GetValue()
		case "user_id":
			out.UserID = entry.GetValue()
		default:
			out.Properties[entry.GetKey()] = entry.GetValue()
		}
	}
	if hits := req.GetHitsAddend(); hits > 0 {
		cost := float64(hits)
		out.CostCents = &cost
	}
	return out
}

func descriptorStatus(result ratelimit.CheckResult) *ratelimitv3.RateLimitResponse_DescriptorStatus {
	status := &ratelimitv3.RateLimitResponse_DescriptorStatus{}
	if result.Allowed {
		status.Code = ratelimitv3.RateLimitResponse_OK
	} else {
		status.Code = ratelimitv3.RateLimitResponse_OVER_LIMIT
	}
	if result.Policy == nil {
		return status
	}

	status.CurrentLimit = &ratelimitv3.RateLimitResponse_RateLimit{
		RequestsPerUnit: uint32(math.Ceil(result.Limit)),
		Unit:            windowUnit(result.Policy.WindowSeconds),
	}
	status.LimitRemaining = uint32(result.Remaining)
	if result.ResetSeconds > 0 {
		status.DurationUntilReset = durationpb.New(time.Duration(result.ResetSeconds) * time.Second)
	}
	return status
}

// windowUnit maps a policy window onto Envoy's coarse unit enum. Windows
// that don't line up with a named unit report UNKNOWN; the duration until
// reset still carries the precise timing.
func windowUnit(windowSeconds int) ratelimitv3.RateLimitResponse_RateLimit_Unit {
	switch windowSeconds {
	case 60:
		return ratelimitv3.RateLimitResponse_RateLimit_MINUTE
	case 3600:
		return ratelimitv3.RateLimitResponse_RateLimit_HOUR
	case 86400:
		return ratelimitv3.RateLimitResponse_RateLimit_DAY
	default:
		return ratelimitv3.RateLimitResponse_RateLimit_UNKNOWN
	}
}
