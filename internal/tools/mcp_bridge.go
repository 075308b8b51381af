package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Unicorn/Radium-sub010/internal/mcp"
)

// MCPBridge mirrors a proxy's current catalog into a Registry (§4.7:
// "MCP integration bridge... wires MCP-discovered tools into the same
// tool registry the orchestrator reads"). Each bridged tool's handler
// calls back through the proxy, so it follows the proxy's current
// healthy flag for its server without re-registering.
type MCPBridge struct {
	Proxy *mcp.Proxy
}

// Register adds one Tool per catalog entry present at call time. It
// does not track later catalog changes; call it again after the
// catalog changes (e.g. a server is registered with new tools) to pick up
// the additions.
func (b MCPBridge) Register(reg *Registry) error {
	for _, d := range b.Proxy.Descriptors() {
		d := d
		schema := d.SchemaJSON
		if schema == "" {
			schema = `{"type":"object"}`
		}
		tool := Tool{
			Name:        d.Name,
			Description: d.Description,
			SchemaJSON:  schema,
			Handler: func(ctx context.Context, argsJSON json.RawMessage) (Result, error) {
				segments, err := b.Proxy.Call(ctx, d.Name, string(argsJSON))
				if err != nil {
					return Result{Content: err.Error(), IsError: true}, nil
				}
				var parts []string
				for _, seg := range segments {
					if seg.Type == "text" {
						parts = append(parts, seg.Data)
					} else {
						parts = append(parts, "["+seg.Type+" content omitted]")
					}
				}
				return Result{Content: strings.Join(parts, "\n")}, nil
			},
		}
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
