package mcp

import (
	"github.com/bobmcallan/vire-gateway/internal/gateway"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// BuildMCPTool converts a gateway operation into an mcp.Tool with the
// operation's parameters in declared order.
func BuildMCPTool(op gateway.Operation) mcp.Tool {
	d := op.Descriptor()
	opts := []mcp.ToolOption{mcp.WithDescription(d.Description)}
	for _, p := range d.Parameters {
		opts = append(opts, buildParamOption(p))
	}
	return mcp.NewTool(d.Name, opts...)
}

// buildParamOption maps a gateway.Parameter to the matching mcp-go tool option.
func buildParamOption(p gateway.Parameter) mcp.ToolOption {
	var opts []mcp.PropertyOption
	if p.Description != "" {
		opts = append(opts, mcp.Description(p.Description))
	}
	if p.Required {
		opts = append(opts, mcp.Required())
	}
	if p.HasDefault {
		opts = append(opts, defaultOption(p.Default))
	}

	switch p.Kind {
	case gateway.ParamNumber, gateway.ParamInteger:
		return mcp.WithNumber(p.Name, opts...)
	case gateway.ParamBoolean:
		return mcp.WithBoolean(p.Name, opts...)
	case gateway.ParamArray:
		items := p.ItemKind
		if items == "" || items == gateway.ParamAny {
			items = gateway.ParamString
		}
		opts = append([]mcp.PropertyOption{mcp.Items(map[string]any{"type": string(items)})}, opts...)
		return mcp.WithArray(p.Name, opts...)
	case gateway.ParamObject:
		return mcp.WithObject(p.Name, opts...)
	default:
		// string, any or unknown: all passed as string
		return mcp.WithString(p.Name, opts...)
	}
}

// defaultOption sets a schema default of any JSON type.
func defaultOption(v any) mcp.PropertyOption {
	switch d := v.(type) {
	case string:
		return mcp.DefaultString(d)
	case float64:
		return mcp.DefaultNumber(d)
	case bool:
		return mcp.DefaultBool(d)
	}
	return func(schema map[string]any) {
		schema["default"] = v
	}
}

// serverTools builds the tool set for the current operations plus get_version.
func serverTools(gw Gateway) []server.ServerTool {
	ops := gw.Operations()
	tools := make([]server.ServerTool, 0, len(ops)+1)
	for _, op := range ops {
		if op.Name() == versionToolName {
			continue
		}
		tools = append(tools, server.ServerTool{Tool: BuildMCPTool(op), Handler: OperationHandler(op)})
	}
	tools = append(tools, server.ServerTool{Tool: VersionTool(), Handler: VersionToolHandler(gw)})
	return tools
}
