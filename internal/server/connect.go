package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/callmeahab/catalog-search/internal/cachestore"
	"github.com/callmeahab/catalog-search/internal/search"
)

// ServiceName is the Connect service every procedure lives under.
const ServiceName = "catalog.v1.CatalogService"

// Procedures. Request and response bodies are google.protobuf.Struct.
const (
	ProcedureQuery        = "/" + ServiceName + "/Query"
	ProcedureReload       = "/" + ServiceName + "/Reload"
	ProcedureFeatured     = "/" + ServiceName + "/Featured"
	ProcedureAutocomplete = "/" + ServiceName + "/Autocomplete"
	ProcedureHealth       = "/" + ServiceName + "/Health"
)

type structRequest = connect.Request[structpb.Struct]
type structResponse = connect.Response[structpb.Struct]

func (s *Server) mountConnect(r chi.Router) {
	r.Handle(ProcedureQuery, connect.NewUnaryHandler(ProcedureQuery, s.connectQuery))
	r.Handle(ProcedureReload, connect.NewUnaryHandler(ProcedureReload, s.connectReload))
	r.Handle(ProcedureFeatured, connect.NewUnaryHandler(ProcedureFeatured, s.connectFeatured))
	r.Handle(ProcedureAutocomplete, connect.NewUnaryHandler(ProcedureAutocomplete, s.connectAutocomplete))
	r.Handle(ProcedureHealth, connect.NewUnaryHandler(ProcedureHealth, s.connectHealth))
}

func (s *Server) connectQuery(ctx context.Context, req *structRequest) (*structResponse, error) {
	fields := req.Msg.GetFields()
	filter, err := filterFromValue(fields["filter_groups"])
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	resp, err := s.Query(ctx, fields["query"].GetStringValue(), filter)
	if err != nil {
		return nil, s.connectError(err)
	}
	return structResponseOf(resp)
}

func (s *Server) connectReload(ctx context.Context, _ *structRequest) (*structResponse, error) {
	resp, err := s.Reload(ctx)
	if err != nil {
		return nil, s.connectError(err)
	}
	return structResponseOf(resp)
}

func (s *Server) connectFeatured(ctx context.Context, req *structRequest) (*structResponse, error) {
	limit := int(req.Msg.GetFields()["limit"].GetNumberValue())
	groups, err := s.Featured(ctx, limit)
	if err != nil {
		return nil, s.connectError(err)
	}
	return structResponseOf(map[string]interface{}{"status": "ok", "info": groups})
}

func (s *Server) connectAutocomplete(ctx context.Context, req *structRequest) (*structResponse, error) {
	fields := req.Msg.GetFields()
	q := fields["q"].GetStringValue()
	limit := int(fields["limit"].GetNumberValue())
	out, err := s.Autocomplete(ctx, q, limit)
	if err != nil {
		return nil, s.connectError(err)
	}
	return structResponseOf(map[string]interface{}{"status": "ok", "query": q, "suggestions": out})
}

func (s *Server) connectHealth(ctx context.Context, _ *structRequest) (*structResponse, error) {
	return structResponseOf(s.Health(ctx))
}

// filterFromValue accepts a space separated string, a list of numbers or a
// single number. An absent value means no filter.
func filterFromValue(v *structpb.Value) (search.FilterSet, error) {
	if v == nil {
		return nil, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_StringValue:
		return search.ParseFilterGroups(kind.StringValue)
	case *structpb.Value_NumberValue:
		return search.FilterOf(int(kind.NumberValue)), nil
	case *structpb.Value_ListValue:
		ids := make([]int, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			n, ok := item.GetKind().(*structpb.Value_NumberValue)
			if !ok {
				return nil, fmt.Errorf("filter_groups must hold numbers")
			}
			ids = append(ids, int(n.NumberValue))
		}
		return search.FilterOf(ids...), nil
	default:
		return nil, fmt.Errorf("filter_groups must be a string or a list of ids")
	}
}

func (s *Server) connectError(err error) error {
	switch {
	case errors.Is(err, ErrQueryRequired):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, cachestore.ErrNoGeneration):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		s.logger.Error().Err(err).Msg("rpc failed")
		return connect.NewError(connect.CodeInternal, err)
	}
}

func structResponseOf(v interface{}) (*structResponse, error) {
	st, err := toStructPB(v)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(st), nil
}

// toStructPB converts any JSON-encodable value to a Struct. Typed values
// are round-tripped through JSON so structpb only sees plain maps.
func toStructPB(v interface{}) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
