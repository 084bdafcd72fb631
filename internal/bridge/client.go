package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
)

// ClientResponse is a Response with the result left undecoded.
type ClientResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Call sends one request to the bridge socket at path.
func Call(ctx context.Context, path, method string, args any) (ClientResponse, error) {
	req := Request{Method: method}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return ClientResponse{}, fmt.Errorf("encode arguments: %w", err)
		}
		req.Args = raw
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return ClientResponse{}, fmt.Errorf("connect to daemon: %w (is posbridged running?)", err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return ClientResponse{}, fmt.Errorf("send request: %w", err)
	}
	var resp ClientResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return ClientResponse{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}
