package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"marketwatch/internal/chart"
	"marketwatch/internal/dividend"
	"marketwatch/internal/domain"
	"marketwatch/internal/pipeline"
	"marketwatch/internal/util"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "marketwatch.v1.MarketWatch"

// Method names of the MarketWatch service. Requests and responses are
// google.protobuf.Struct messages carrying the same JSON documents as the
// HTTP API.
const (
	MethodGetChart     = "GetChart"
	MethodGetIndices   = "GetIndices"
	MethodGetDividends = "GetDividends"
	MethodListTickers  = "ListTickers"
)

// MarketWatchServer is the server API of the MarketWatch service.
type MarketWatchServer interface {
	GetChart(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetIndices(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetDividends(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListTickers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MarketWatchServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodGetChart, MarketWatchServer.GetChart),
		unary(MethodGetIndices, MarketWatchServer.GetIndices),
		unary(MethodGetDividends, MarketWatchServer.GetDividends),
		unary(MethodListTickers, MarketWatchServer.ListTickers),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "marketwatch/v1/marketwatch.proto",
}

// RegisterMarketWatchServer registers srv on gs.
func RegisterMarketWatchServer(gs grpc.ServiceRegistrar, srv MarketWatchServer) {
	gs.RegisterService(&serviceDesc, srv)
}

type unaryMethod func(MarketWatchServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MarketWatchServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(MarketWatchServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// ---------------------------------------------------------------------------
// Service implementation
// ---------------------------------------------------------------------------

// Backend is the pipeline surface the service exposes.
type Backend interface {
	Chart(ctx context.Context, inst domain.Instrument) (pipeline.ChartResult, error)
	Indices() (chart.Panel, bool)
	DividendTable(ctx context.Context, ticker string) dividend.Table
}

var _ Backend = (*pipeline.Pipeline)(nil)

// MarketWatchService implements MarketWatchServer on top of the pipeline.
type MarketWatchService struct {
	backend Backend
	catalog *pipeline.Catalog
	log     *slog.Logger
}

var _ MarketWatchServer = (*MarketWatchService)(nil)

// NewMarketWatchService creates the gRPC service.
func NewMarketWatchService(backend Backend, catalog *pipeline.Catalog, log *slog.Logger) *MarketWatchService {
	if log == nil {
		log = util.Discard()
	}
	return &MarketWatchService{backend: backend, catalog: catalog, log: log.With("component", "grpc")}
}

// GetChart runs the chart pipeline. Request fields: symbol (required),
// timeframe (optional).
func (s *MarketWatchService) GetChart(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	symbol := stringField(req, "symbol")
	if symbol == "" {
		return nil, status.Error(codes.InvalidArgument, "symbol is required")
	}
	inst := s.catalog.Instrument(symbol)
	if tf := stringField(req, "timeframe"); tf != "" {
		parsed, err := domain.ParseTimeframe(tf)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		inst.Timeframe = parsed
	}

	res, err := s.backend.Chart(ctx, inst)
	if err != nil {
		return nil, status.FromContextError(err).Err()
	}
	return toStruct(res)
}

// GetIndices returns the last refreshed index panel.
func (s *MarketWatchService) GetIndices(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	panel, ok := s.backend.Indices()
	if !ok {
		return nil, status.Error(codes.Unavailable, "index panel not ready")
	}
	return toStruct(panel)
}

// GetDividends returns the dividend table of ticker.
func (s *MarketWatchService) GetDividends(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ticker := strings.ToUpper(stringField(req, "ticker"))
	if ticker == "" {
		return nil, status.Error(codes.InvalidArgument, "ticker is required")
	}
	table := s.backend.DividendTable(ctx, ticker)
	return toStruct(struct {
		Ticker string `json:"ticker"`
		dividend.Table
	}{ticker, table})
}

// ListTickers returns the selectable tickers and the default selection.
func (s *MarketWatchService) ListTickers(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	tickers := make([]any, 0, len(s.catalog.Tickers()))
	for _, t := range s.catalog.Tickers() {
		tickers = append(tickers, t)
	}
	out, err := structpb.NewStruct(map[string]any{
		"tickers": tickers,
		"default": s.catalog.Default(),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s.GetFields()[key].GetStringValue())
}

// toStruct converts v to a Struct through its JSON encoding.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return out, nil
}

// fromStruct decodes s into v through its JSON encoding.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := s.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client calls the MarketWatch service.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient creates a client on conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) call(ctx context.Context, method string, req map[string]any, out any) error {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(method), in, resp); err != nil {
		return err
	}
	if err := fromStruct(resp, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	return nil
}

// GetChart runs the chart pipeline for symbol. An empty timeframe uses the
// instrument's configured one.
func (c *Client) GetChart(ctx context.Context, symbol, timeframe string) (pipeline.ChartResult, error) {
	req := map[string]any{"symbol": symbol}
	if timeframe != "" {
		req["timeframe"] = timeframe
	}
	var res pipeline.ChartResult
	err := c.call(ctx, MethodGetChart, req, &res)
	return res, err
}

// GetIndices returns the index panel.
func (c *Client) GetIndices(ctx context.Context) (chart.Panel, error) {
	var p chart.Panel
	err := c.call(ctx, MethodGetIndices, map[string]any{}, &p)
	return p, err
}

// GetDividends returns the dividend table of ticker.
func (c *Client) GetDividends(ctx context.Context, ticker string) (dividend.Table, error) {
	var t dividend.Table
	err := c.call(ctx, MethodGetDividends, map[string]any{"ticker": ticker}, &t)
	return t, err
}

// ListTickers returns the selectable tickers and the default selection.
func (c *Client) ListTickers(ctx context.Context) ([]string, string, error) {
	var out struct {
		Tickers []string `json:"tickers"`
		Default string   `json:"default"`
	}
	err := c.call(ctx, MethodListTickers, map[string]any{}, &out)
	return out.Tickers, out.Default, err
}

// IsUnavailable reports whether err is a gRPC Unavailable status.
func IsUnavailable(err error) bool {
	return status.Code(err) == codes.Unavailable
}
