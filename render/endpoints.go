package render

import (
	"context"
	"fmt"

	"github.com/hazyhaar/domshift/kit"
)

// RenderResponse is the body of a render call.
type RenderResponse struct {
	Results []Result `json:"results"`
}

// BreakpointsResponse lists the breakpoint table.
type BreakpointsResponse struct {
	Breakpoints map[string]string `json:"breakpoints"`
	Names       []string          `json:"names"`
	Version     int               `json:"version"`
}

// RenderEndpoint serves *Request.
func RenderEndpoint(rd *Renderer) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		r, ok := req.(*Request)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected request %T", ErrInvalidInput, req)
		}
		results, err := rd.Do(ctx, *r)
		if err != nil {
			return nil, err
		}
		return &RenderResponse{Results: results}, nil
	}
}

// BreakpointsEndpoint ignores its request.
func BreakpointsEndpoint(rd *Renderer) kit.Endpoint {
	return func(context.Context, any) (any, error) {
		bp := rd.Breakpoints()
		return &BreakpointsResponse{Breakpoints: bp, Names: bp.Names(), Version: rd.Version()}, nil
	}
}
