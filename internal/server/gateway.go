package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"VaultLedger/internal/observability"
	"VaultLedger/internal/query"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// gatewayHandler answers one route. It returns the response message or a
// status error.
type gatewayHandler func(ctx context.Context, r *http.Request, params map[string]string) (any, error)

type gateway struct {
	mux     *runtime.ServeMux
	api     VaultAPI
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewGateway maps the HTTP/JSON routes onto api. The caller identity and
// request id travel in the X-Vault-Caller and X-Request-Id headers.
func NewGateway(api VaultAPI, metrics *observability.Metrics, logger zerolog.Logger) (*runtime.ServeMux, error) {
	g := &gateway{
		mux: runtime.NewServeMux(
			runtime.WithMarshalerOption(runtime.MIMEWildcard, &runtime.JSONBuiltin{}),
			runtime.WithErrorHandler(writeError),
		),
		api:     api,
		metrics: metrics,
		logger:  logger,
	}

	routes := []struct {
		method  string
		pattern string
		handler gatewayHandler
	}{
		{"POST", "/v1/positions/{owner}/deposit", g.amount(api.Deposit)},
		{"POST", "/v1/positions/{owner}/withdraw", g.amount(api.Withdraw)},
		{"POST", "/v1/positions/{owner}/borrow", g.amount(api.Borrow)},
		{"POST", "/v1/positions/{owner}/repay", g.amount(api.Repay)},
		{"POST", "/v1/positions/{owner}/liquidate", g.amount(api.Liquidate)},
		{"GET", "/v1/positions/{owner}", g.getPosition},
		{"GET", "/v1/positions/{owner}/history", g.positionHistory},
		{"GET", "/v1/positions/{owner}/liquidation-quote", g.quote},
		{"GET", "/v1/positions/{owner}/liquidations", g.liquidations},
		{"GET", "/v1/vault/liquidations", g.liquidations},
		{"GET", "/v1/vault/stats", empty(api.GetVaultStats)},
		{"GET", "/v1/vault/liquidatable", empty(api.ListLiquidatable)},
		{"GET", "/v1/vault/params", empty(api.GetParams)},
		{"PUT", "/v1/admin/params/{name}", g.setParam},
		{"POST", "/v1/admin/pause", empty(api.Pause)},
		{"POST", "/v1/admin/unpause", empty(api.Unpause)},
		{"POST", "/v1/admin/grants", g.grant},
		{"DELETE", "/v1/admin/grants/{target}/{capability}", g.revoke},
	}
	for _, rt := range routes {
		if err := g.handle(rt.method, rt.pattern, rt.handler); err != nil {
			return nil, err
		}
	}
	return g.mux, nil
}

func (g *gateway) handle(method, pattern string, h gatewayHandler) error {
	name := method + " " + pattern
	return g.mux.HandlePath(method, pattern, func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		ctx := incomingContext(r)
		_, outbound := runtime.MarshalerForRequest(g.mux, r)

		resp, err := h(ctx, r, params)
		observe(g.metrics, g.logger, name, start, err)
		if err != nil {
			runtime.HTTPError(ctx, g.mux, outbound, w, r, err)
			return
		}

		buf, err := outbound.Marshal(resp)
		if err != nil {
			runtime.HTTPError(ctx, g.mux, outbound, w, r, status.Errorf(codes.Internal, "marshal response: %v", err))
			return
		}
		w.Header().Set("Content-Type", outbound.ContentType(resp))
		w.WriteHeader(http.StatusOK)
		w.Write(buf)
	})
}

func (g *gateway) amount(call func(context.Context, *AmountRequest) (*query.ReceiptResponse, error)) gatewayHandler {
	return func(ctx context.Context, r *http.Request, params map[string]string) (any, error) {
		var req AmountRequest
		if err := g.decode(r, &req); err != nil {
			return nil, err
		}
		req.Owner = params["owner"]
		return call(ctx, &req)
	}
}

func (g *gateway) getPosition(ctx context.Context, _ *http.Request, params map[string]string) (any, error) {
	return g.api.GetPosition(ctx, &OwnerRequest{Owner: params["owner"]})
}

func (g *gateway) positionHistory(ctx context.Context, _ *http.Request, params map[string]string) (any, error) {
	return g.api.GetPositionHistory(ctx, &OwnerRequest{Owner: params["owner"]})
}

func (g *gateway) quote(ctx context.Context, r *http.Request, params map[string]string) (any, error) {
	return g.api.QuoteLiquidation(ctx, &QuoteRequest{
		Owner:  params["owner"],
		Amount: r.URL.Query().Get("amount"),
	})
}

func (g *gateway) liquidations(ctx context.Context, r *http.Request, params map[string]string) (any, error) {
	req := &HistoryRequest{Owner: params["owner"]}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid limit %q", v)
		}
		req.Limit = limit
	}
	return g.api.ListLiquidations(ctx, req)
}

func (g *gateway) setParam(ctx context.Context, r *http.Request, params map[string]string) (any, error) {
	var req SetParamRequest
	if err := g.decode(r, &req); err != nil {
		return nil, err
	}
	req.Name = params["name"]
	return g.api.SetParam(ctx, &req)
}

func (g *gateway) grant(ctx context.Context, r *http.Request, _ map[string]string) (any, error) {
	var req CapabilityRequest
	if err := g.decode(r, &req); err != nil {
		return nil, err
	}
	return g.api.Grant(ctx, &req)
}

func (g *gateway) revoke(ctx context.Context, _ *http.Request, params map[string]string) (any, error) {
	return g.api.Revoke(ctx, &CapabilityRequest{Target: params["target"], Capability: params["capability"]})
}

func empty[Resp any](call func(context.Context, *Empty) (*Resp, error)) gatewayHandler {
	return func(ctx context.Context, _ *http.Request, _ map[string]string) (any, error) {
		return call(ctx, &Empty{})
	}
}

// decode reads the JSON body into v. An empty body leaves v untouched.
func (g *gateway) decode(r *http.Request, v any) error {
	inbound, _ := runtime.MarshalerForRequest(g.mux, r)
	if err := inbound.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return status.Errorf(codes.InvalidArgument, "decode body: %v", err)
	}
	return nil
}

// incomingContext exposes the identity headers as gRPC metadata so the
// gateway and gRPC share one VaultAPI implementation.
func incomingContext(r *http.Request) context.Context {
	md := metadata.MD{}
	if v := r.Header.Get(CallerKey); v != "" {
		md.Set(CallerKey, v)
	}
	if v := r.Header.Get(RequestIDKey); v != "" {
		md.Set(RequestIDKey, v)
	}
	return metadata.NewIncomingContext(r.Context(), md)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

// writeError renders status errors as {"code": ..., "error": ...} with the
// HTTP status derived from the gRPC code.
func writeError(ctx context.Context, _ *runtime.ServeMux, m runtime.Marshaler, w http.ResponseWriter, _ *http.Request, err error) {
	st := status.Convert(err)
	buf, merr := m.Marshal(errorBody{Code: st.Code().String(), Message: st.Message()})
	if merr != nil {
		buf = []byte(`{"code":"Internal","error":"failed to marshal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(runtime.HTTPStatusFromCode(st.Code()))
	w.Write(buf)
}
