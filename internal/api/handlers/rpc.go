package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/randytsao24/velib/internal/apperr"
	"github.com/randytsao24/velib/internal/geo"
	"github.com/randytsao24/velib/internal/query"
)

// JSON-RPC 2.0 error codes not tied to an error kind
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
)

const protocolVersion = "2024-11-05"

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Tool describes one callable query
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

var pointSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"latitude":  map[string]any{"type": "number", "minimum": geo.MetroBounds.South, "maximum": geo.MetroBounds.North},
		"longitude": map[string]any{"type": "number", "minimum": geo.MetroBounds.West, "maximum": geo.MetroBounds.East},
	},
	"required": []string{"latitude", "longitude"},
}

var tools = []Tool{
	{
		Name:        "find_nearby_stations",
		Description: "Find Velib stations within a radius of coordinates",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"latitude":      map[string]any{"type": "number", "minimum": geo.MetroBounds.South, "maximum": geo.MetroBounds.North},
				"longitude":     map[string]any{"type": "number", "minimum": geo.MetroBounds.West, "maximum": geo.MetroBounds.East},
				"radius_meters": map[string]any{"type": "integer", "minimum": 1, "maximum": query.MaxSearchRadius, "default": query.DefaultRadius},
				"limit":         map[string]any{"type": "integer", "minimum": 1, "maximum": query.MaxResultLimit, "default": query.DefaultLimit},
				"availability_filter": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"min_bikes": map[string]any{"type": "integer", "minimum": 0},
						"min_docks": map[string]any{"type": "integer", "minimum": 0},
						"bike_type": map[string]any{"type": "string", "enum": []string{"any", "mechanical", "electric"}},
					},
				},
			},
			"required": []string{"latitude", "longitude"},
		},
	},
	{
		Name:        "get_station_by_code",
		Description: "Get detailed information about a specific station",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"station_code":      map[string]any{"type": "string"},
				"include_real_time": map[string]any{"type": "boolean", "default": true},
			},
			"required": []string{"station_code"},
		},
	},
	{
		Name:        "search_stations_by_name",
		Description: "Search stations by name with optional fuzzy matching",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "minLength": query.MinQueryLength},
				"limit": map[string]any{"type": "integer", "minimum": 1, "maximum": query.MaxNameResults, "default": query.DefaultLimit},
				"fuzzy": map[string]any{"type": "boolean", "default": true},
			},
			"required": []string{"query"},
		},
	},
	{
		Name:        "get_area_statistics",
		Description: "Get aggregated statistics for a geographic area",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"bounds": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"north": map[string]any{"type": "number"},
						"south": map[string]any{"type": "number"},
						"east":  map[string]any{"type": "number"},
						"west":  map[string]any{"type": "number"},
					},
					"required": []string{"north", "south", "east", "west"},
				},
				"include_real_time": map[string]any{"type": "boolean", "default": true},
			},
			"required": []string{"bounds"},
		},
	},
	{
		Name:        "plan_bike_journey",
		Description: "Plan a bike journey with pickup and dropoff suggestions",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"origin":      pointSchema,
				"destination": pointSchema,
				"preferences": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"bike_type":         map[string]any{"type": "string", "enum": []string{"any", "mechanical", "electric"}},
						"max_walk_distance": map[string]any{"type": "integer", "minimum": 1, "maximum": query.MaxWalkDistance, "default": query.DefaultWalkDistance},
					},
				},
			},
			"required": []string{"origin", "destination"},
		},
	},
}

type RPCHandler struct {
	q         StationQuerier
	resources *ResourceHandler
}

func NewRPCHandler(q StationQuerier, resources *ResourceHandler) *RPCHandler {
	return &RPCHandler{q: q, resources: resources}
}

// Serve handles one JSON-RPC 2.0 request. Notifications (no id) get 204.
func (h *RPCHandler) Serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, rpcResponse{
			JSONRPC: "2.0",
			Error: &rpcError{
				Code:    rpcParseError,
				Message: "Parse error",
				Data:    map[string]any{"error_type": string(apperr.KindJSON), "original_error": err.Error()},
			},
		})
		return
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	if req.JSONRPC != "2.0" || req.Method == "" {
		resp.Error = &rpcError{Code: rpcInvalidRequest, Message: "Invalid request: jsonrpc must be \"2.0\" and method is required"}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	result, rerr := h.dispatch(r.Context(), req)
	if len(req.ID) == 0 || string(req.ID) == "null" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	resp.Result = result
	resp.Error = rerr
	writeJSON(w, http.StatusOK, resp)
}

func (h *RPCHandler) dispatch(ctx context.Context, req rpcRequest) (any, *rpcError) {
	slog.Debug("rpc call", "method", req.Method)

	switch req.Method {
	case "initialize":
		return map[string]any{
			"protocolVersion": protocolVersion,
			"serverInfo":      map[string]any{"name": "velib", "version": Version},
			"capabilities":    map[string]any{"tools": map[string]any{}, "resources": map[string]any{}},
		}, nil

	case "notifications/initialized", "ping":
		return map[string]any{}, nil

	case "tools/list":
		return map[string]any{"tools": tools}, nil

	case "tools/call":
		var params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
			return nil, &rpcError{Code: rpcInvalidParams, Message: "Invalid params: tool name is required"}
		}
		output, err := h.callTool(ctx, params.Name, params.Arguments)
		if err != nil {
			return nil, toRPCError(err)
		}
		text, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return nil, toRPCError(apperr.Wrap(apperr.KindInternal, err, "encoding tool output"))
		}
		return map[string]any{
			"content": []map[string]any{{"type": "text", "text": string(text)}},
		}, nil

	case "resources/list":
		return map[string]any{"resources": resources}, nil

	case "resources/read":
		var params struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
			return nil, &rpcError{Code: rpcInvalidParams, Message: "Invalid params: uri is required"}
		}
		body, err := h.resources.Read(ctx, params.URI)
		if err != nil {
			return nil, toRPCError(err)
		}
		text, err := json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, toRPCError(apperr.Wrap(apperr.KindInternal, err, "encoding resource"))
		}
		return map[string]any{
			"contents": []map[string]any{{"uri": params.URI, "mimeType": "application/json", "text": string(text)}},
		}, nil

	default:
		return nil, &rpcError{
			Code:    rpcMethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
	}
}

// callTool decodes arguments over a request prefilled with defaults and runs the query
func (h *RPCHandler) callTool(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case "find_nearby_stations":
		req := query.NearbyRequest{RadiusMeters: query.DefaultRadius, Limit: query.DefaultLimit}
		if err := decodeArgs(args, &req, "latitude", "longitude"); err != nil {
			return nil, err
		}
		return h.q.FindNearbyStations(ctx, req)

	case "get_station_by_code":
		req := query.CodeRequest{IncludeRealtime: true}
		if err := decodeArgs(args, &req, "station_code"); err != nil {
			return nil, err
		}
		res, err := h.q.GetStationByCode(ctx, req)
		if err != nil {
			return nil, err
		}
		if !res.Found {
			return nil, apperr.NotFound(req.StationCode)
		}
		return res, nil

	case "search_stations_by_name":
		req := query.NameRequest{Limit: query.DefaultLimit, Fuzzy: true}
		if err := decodeArgs(args, &req, "query"); err != nil {
			return nil, err
		}
		return h.q.SearchStationsByName(ctx, req)

	case "get_area_statistics":
		req := query.AreaRequest{IncludeRealtime: true}
		if err := decodeArgs(args, &req, "bounds"); err != nil {
			return nil, err
		}
		return h.q.GetAreaStatistics(ctx, req)

	case "plan_bike_journey":
		var req query.JourneyRequest
		if err := decodeArgs(args, &req, "origin", "destination"); err != nil {
			return nil, err
		}
		return h.q.PlanBikeJourney(ctx, req)

	default:
		return nil, apperr.Validation("name", name, "unknown tool %q", name)
	}
}

// decodeArgs checks the required top-level fields are present, then
// unmarshals args into dst
func decodeArgs(args json.RawMessage, dst any, required ...string) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(args, &fields); err != nil {
		return apperr.Validation("arguments", nil, "arguments must be an object: %v", err)
	}
	for _, name := range required {
		if v, ok := fields[name]; !ok || string(v) == "null" {
			return apperr.Validation(name, nil, "%s is required", name)
		}
	}
	if err := json.Unmarshal(args, dst); err != nil {
		return apperr.Validation("arguments", nil, "invalid arguments: %v", err)
	}
	return nil
}

func toRPCError(err error) *rpcError {
	kind := apperr.KindOf(err)
	if apperr.HTTPStatus(kind) >= http.StatusInternalServerError {
		slog.Error("rpc call failed", "kind", kind, "error", err)
	}
	return &rpcError{
		Code:    apperr.RPCCode(kind),
		Message: err.Error(),
		Data:    errorDetails(err),
	}
}
