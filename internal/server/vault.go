package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"VaultLedger/internal/core"
	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/query"
	"VaultLedger/internal/service"
	"VaultLedger/internal/state"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const ServiceName = "vault.v1.VaultService"

// Metadata keys. The caller identity is asserted by the upstream gateway;
// this process does not authenticate it.
const (
	CallerKey    = "x-vault-caller"
	RequestIDKey = "x-request-id"
)

// Mutator is the write surface of the vault service.
type Mutator interface {
	Deposit(ctx context.Context, requestID string, owner uuid.UUID, amount int64) (service.Result, error)
	Withdraw(ctx context.Context, requestID string, owner uuid.UUID, amount int64) (service.Result, error)
	Borrow(ctx context.Context, requestID string, caller, owner uuid.UUID, amount int64) (service.Result, error)
	Repay(ctx context.Context, requestID string, owner uuid.UUID, amount int64) (service.Result, error)
	Liquidate(ctx context.Context, requestID string, liquidator, owner uuid.UUID, repay int64) (service.Result, error)
	SetParam(ctx context.Context, requestID string, caller uuid.UUID, name string, value int64) (service.Result, error)
	Pause(ctx context.Context, caller uuid.UUID) error
	Unpause(ctx context.Context, caller uuid.UUID) error
	Grant(ctx context.Context, caller, target uuid.UUID, c core.Capability) error
	Revoke(ctx context.Context, caller, target uuid.UUID, c core.Capability) error
}

// VaultAPI is vault.v1.VaultService.
type VaultAPI interface {
	Deposit(context.Context, *AmountRequest) (*query.ReceiptResponse, error)
	Withdraw(context.Context, *AmountRequest) (*query.ReceiptResponse, error)
	Borrow(context.Context, *AmountRequest) (*query.ReceiptResponse, error)
	Repay(context.Context, *AmountRequest) (*query.ReceiptResponse, error)
	Liquidate(context.Context, *AmountRequest) (*query.ReceiptResponse, error)
	GetPosition(context.Context, *OwnerRequest) (*query.PositionResponse, error)
	GetPositionHistory(context.Context, *OwnerRequest) (*PositionHistoryResponse, error)
	QuoteLiquidation(context.Context, *QuoteRequest) (*query.LiquidationQuoteResponse, error)
	ListLiquidations(context.Context, *HistoryRequest) (*LiquidationsResponse, error)
	ListLiquidatable(context.Context, *Empty) (*query.LiquidatableResponse, error)
	GetVaultStats(context.Context, *Empty) (*query.VaultStatsResponse, error)
	GetParams(context.Context, *Empty) (*query.ParamsResponse, error)
	SetParam(context.Context, *SetParamRequest) (*query.ReceiptResponse, error)
	Pause(context.Context, *Empty) (*AdminResponse, error)
	Unpause(context.Context, *Empty) (*AdminResponse, error)
	Grant(context.Context, *CapabilityRequest) (*AdminResponse, error)
	Revoke(context.Context, *CapabilityRequest) (*AdminResponse, error)
}

// VaultServiceDesc registers a VaultAPI on a grpc.Server.
var VaultServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VaultAPI)(nil),
	Methods: []grpc.MethodDesc{
		unary("Deposit", VaultAPI.Deposit),
		unary("Withdraw", VaultAPI.Withdraw),
		unary("Borrow", VaultAPI.Borrow),
		unary("Repay", VaultAPI.Repay),
		unary("Liquidate", VaultAPI.Liquidate),
		unary("GetPosition", VaultAPI.GetPosition),
		unary("GetPositionHistory", VaultAPI.GetPositionHistory),
		unary("QuoteLiquidation", VaultAPI.QuoteLiquidation),
		unary("ListLiquidations", VaultAPI.ListLiquidations),
		unary("ListLiquidatable", VaultAPI.ListLiquidatable),
		unary("GetVaultStats", VaultAPI.GetVaultStats),
		unary("GetParams", VaultAPI.GetParams),
		unary("SetParam", VaultAPI.SetParam),
		unary("Pause", VaultAPI.Pause),
		unary("Unpause", VaultAPI.Unpause),
		unary("Grant", VaultAPI.Grant),
		unary("Revoke", VaultAPI.Revoke),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vault/v1/vault.proto",
}

func unary[Req, Resp any](name string, call func(VaultAPI, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "decode %s request: %v", name, err)
			}
			if interceptor == nil {
				return call(srv.(VaultAPI), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(VaultAPI), ctx, req.(*Req))
			})
		},
	}
}

// vaultServer implements VaultAPI on top of the vault service. Every error
// leaves as a status error.
type vaultServer struct {
	svc Mutator
	qs  *query.QueryService
}

func NewVaultServer(svc Mutator, qs *query.QueryService) VaultAPI {
	return &vaultServer{svc: svc, qs: qs}
}

// --- Mutations ---

func (s *vaultServer) Deposit(ctx context.Context, req *AmountRequest) (*query.ReceiptResponse, error) {
	return s.ownerMutation(ctx, req, s.svc.Deposit)
}

func (s *vaultServer) Withdraw(ctx context.Context, req *AmountRequest) (*query.ReceiptResponse, error) {
	return s.ownerMutation(ctx, req, s.svc.Withdraw)
}

func (s *vaultServer) Repay(ctx context.Context, req *AmountRequest) (*query.ReceiptResponse, error) {
	return s.ownerMutation(ctx, req, s.svc.Repay)
}

// ownerMutation runs an operation only the owner may perform on its own
// position.
func (s *vaultServer) ownerMutation(
	ctx context.Context,
	req *AmountRequest,
	op func(context.Context, string, uuid.UUID, int64) (service.Result, error),
) (*query.ReceiptResponse, error) {
	caller, owner, amount, err := parseMutation(ctx, req)
	if err != nil {
		return nil, err
	}
	if caller != owner {
		return nil, status.Errorf(codes.PermissionDenied, "%s may not act on the position of %s", caller, owner)
	}
	res, err := op(ctx, requestID(ctx, req.RequestID), owner, amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return query.Receipt(res), nil
}

func (s *vaultServer) Borrow(ctx context.Context, req *AmountRequest) (*query.ReceiptResponse, error) {
	caller, owner, amount, err := parseMutation(ctx, req)
	if err != nil {
		return nil, err
	}
	res, err := s.svc.Borrow(ctx, requestID(ctx, req.RequestID), caller, owner, amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return query.Receipt(res), nil
}

func (s *vaultServer) Liquidate(ctx context.Context, req *AmountRequest) (*query.ReceiptResponse, error) {
	caller, owner, amount, err := parseMutation(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Owner == "" {
		return nil, status.Error(codes.InvalidArgument, "owner is required")
	}
	res, err := s.svc.Liquidate(ctx, requestID(ctx, req.RequestID), caller, owner, amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return query.Receipt(res), nil
}

func (s *vaultServer) SetParam(ctx context.Context, req *SetParamRequest) (*query.ReceiptResponse, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	value, err := ParseParamValue(req.Name, req.Value)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.svc.SetParam(ctx, requestID(ctx, req.RequestID), caller, req.Name, value)
	if err != nil {
		return nil, toStatus(err)
	}
	return query.Receipt(res), nil
}

func (s *vaultServer) Pause(ctx context.Context, _ *Empty) (*AdminResponse, error) {
	return s.admin(ctx, s.svc.Pause)
}

func (s *vaultServer) Unpause(ctx context.Context, _ *Empty) (*AdminResponse, error) {
	return s.admin(ctx, s.svc.Unpause)
}

func (s *vaultServer) admin(ctx context.Context, op func(context.Context, uuid.UUID) error) (*AdminResponse, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := op(ctx, caller); err != nil {
		return nil, toStatus(err)
	}
	return &AdminResponse{OK: true}, nil
}

func (s *vaultServer) Grant(ctx context.Context, req *CapabilityRequest) (*AdminResponse, error) {
	return s.capability(ctx, req, s.svc.Grant)
}

func (s *vaultServer) Revoke(ctx context.Context, req *CapabilityRequest) (*AdminResponse, error) {
	return s.capability(ctx, req, s.svc.Revoke)
}

func (s *vaultServer) capability(
	ctx context.Context,
	req *CapabilityRequest,
	op func(context.Context, uuid.UUID, uuid.UUID, core.Capability) error,
) (*AdminResponse, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	target, err := parseID("target", req.Target)
	if err != nil {
		return nil, err
	}
	c, err := core.ParseCapability(req.Capability)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := op(ctx, caller, target, c); err != nil {
		return nil, toStatus(err)
	}
	return &AdminResponse{OK: true}, nil
}

// --- Reads ---

func (s *vaultServer) GetPosition(ctx context.Context, req *OwnerRequest) (*query.PositionResponse, error) {
	owner, err := ownerOrCaller(ctx, req.Owner)
	if err != nil {
		return nil, err
	}
	resp, err := s.qs.GetPosition(ctx, owner)
	return resp, toStatus(err)
}

func (s *vaultServer) GetPositionHistory(ctx context.Context, req *OwnerRequest) (*PositionHistoryResponse, error) {
	owner, err := ownerOrCaller(ctx, req.Owner)
	if err != nil {
		return nil, err
	}
	out, err := s.qs.GetPositionHistory(ctx, owner)
	if err != nil {
		return nil, toStatus(err)
	}
	return &PositionHistoryResponse{Owner: owner.String(), Positions: out}, nil
}

func (s *vaultServer) QuoteLiquidation(ctx context.Context, req *QuoteRequest) (*query.LiquidationQuoteResponse, error) {
	owner, err := ownerOrCaller(ctx, req.Owner)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	resp, err := s.qs.QuoteLiquidation(ctx, owner, amount)
	return resp, toStatus(err)
}

func (s *vaultServer) ListLiquidations(ctx context.Context, req *HistoryRequest) (*LiquidationsResponse, error) {
	owner := uuid.Nil
	if req.Owner != "" {
		var err error
		if owner, err = parseID("owner", req.Owner); err != nil {
			return nil, err
		}
	}
	out, err := s.qs.GetLiquidationHistory(ctx, owner, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return &LiquidationsResponse{Liquidations: out}, nil
}

func (s *vaultServer) ListLiquidatable(ctx context.Context, _ *Empty) (*query.LiquidatableResponse, error) {
	resp, err := s.qs.ListLiquidatable(ctx)
	return resp, toStatus(err)
}

func (s *vaultServer) GetVaultStats(ctx context.Context, _ *Empty) (*query.VaultStatsResponse, error) {
	resp, err := s.qs.GetVaultStats(ctx)
	return resp, toStatus(err)
}

func (s *vaultServer) GetParams(ctx context.Context, _ *Empty) (*query.ParamsResponse, error) {
	resp, err := s.qs.GetParams(ctx)
	return resp, toStatus(err)
}

// --- Helpers ---

func parseMutation(ctx context.Context, req *AmountRequest) (caller, owner uuid.UUID, amount int64, err error) {
	if caller, err = callerFrom(ctx); err != nil {
		return
	}
	owner = caller
	if req.Owner != "" {
		if owner, err = parseID("owner", req.Owner); err != nil {
			return
		}
	}
	amount, err = parseAmount(req.Amount)
	return
}

func callerFrom(ctx context.Context) (uuid.UUID, error) {
	v := firstMetadata(ctx, CallerKey)
	if v == "" {
		return uuid.Nil, status.Errorf(codes.Unauthenticated, "%s is required", CallerKey)
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.Unauthenticated, "invalid %s: %v", CallerKey, err)
	}
	return id, nil
}

func ownerOrCaller(ctx context.Context, owner string) (uuid.UUID, error) {
	if owner != "" {
		return parseID("owner", owner)
	}
	return callerFrom(ctx)
}

// requestID prefers the id in the request body over the metadata header.
func requestID(ctx context.Context, body string) string {
	if body != "" {
		return body
	}
	return firstMetadata(ctx, RequestIDKey)
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

func parseID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid %s: %v", field, err)
	}
	return id, nil
}

func parseAmount(s string) (int64, error) {
	if s == "" {
		return 0, status.Error(codes.InvalidArgument, "amount is required")
	}
	v, err := fpmath.ParseAmount(s)
	if err != nil {
		return 0, status.Error(codes.InvalidArgument, err.Error())
	}
	return v, nil
}

// ParseParamValue converts the human form of a parameter value into the
// unit SetParam expects.
func ParseParamValue(name, value string) (int64, error) {
	switch name {
	case state.ParamMinCollateralRatio, state.ParamLiquidationThreshold,
		state.ParamLiquidationPenalty, state.ParamStabilityFee:
		return fpmath.ParsePercent(value)
	case state.ParamDebtCeiling:
		return fpmath.ParseAmount(value)
	case state.ParamMaxPriceAge:
		if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
			return secs, nil
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("parse %s %q: %w", name, value, err)
		}
		return int64(d / time.Second), nil
	default:
		return 0, fmt.Errorf("unknown parameter %q (known: %v)", name, state.ParamNames())
	}
}
