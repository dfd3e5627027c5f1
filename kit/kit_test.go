package kit

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}

	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(mw("a"), mw("b"), mw("c"))(base)(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, []string{"a_before", "b_before", "c_before", "endpoint", "c_after", "b_after", "a_after"}, order)
}

func TestChain_ErrorPropagation(t *testing.T) {
	errFail := errors.New("fail")
	base := func(_ context.Context, _ any) (any, error) { return nil, errFail }

	chained := Chain(Logging(nil, "base"))(base)
	_, err := chained(context.Background(), nil)
	assert.ErrorIs(t, err, errFail)
}

func TestContext_Defaults(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "http", GetTransport(ctx))
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetRemoteAddr(ctx))

	ctx = WithTransport(ctx, "mcp")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithRemoteAddr(ctx, "10.0.0.1:4000")
	assert.Equal(t, "mcp", GetTransport(ctx))
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "10.0.0.1:4000", GetRemoteAddr(ctx))
}

type echoReq struct {
	Text string `json:"text"`
}

var testImpl = &mcp.Implementation{Name: "kit-test", Version: "0.1.0"}

func session(t *testing.T, register func(*mcp.Server)) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testImpl, nil)
	register(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	cs, err := mcp.NewClient(testImpl, nil).Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func TestRegisterMCPTool(t *testing.T) {
	var transport string
	endpoint := func(ctx context.Context, req any) (any, error) {
		transport = GetTransport(ctx)
		r := req.(*echoReq)
		if r.Text == "" {
			return nil, errors.New("text is required")
		}
		return map[string]string{"echo": r.Text, "request_id": GetRequestID(ctx)}, nil
	}
	decode := func(req *mcp.CallToolRequest) (*MCPDecodeResult, error) {
		res, err := DecodeArgs[echoReq](req)
		if err != nil {
			return nil, err
		}
		res.EnrichCtx = func(ctx context.Context) context.Context { return WithRequestID(ctx, "mcp-1") }
		return res, nil
	}
	cs := session(t, func(srv *mcp.Server) {
		RegisterMCPTool(srv, &mcp.Tool{
			Name:        "echo",
			Description: "Echo text",
			InputSchema: ObjectSchema(map[string]any{"text": map[string]any{"type": "string"}}, []string{"text"}),
		}, endpoint, decode)
	})

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"text": "hi"},
	})
	require.NoError(t, err)
	require.NoError(t, res.GetError())
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.JSONEq(t, `{"echo":"hi","request_id":"mcp-1"}`, tc.Text)
	assert.Equal(t, "mcp", transport)

	res, err = cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"text": ""},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
