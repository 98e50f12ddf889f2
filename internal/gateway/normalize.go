package gateway

import (
	"fmt"
	"sort"
	"strings"
)

// aliasTable maps alternate argument names to a canonical name.
type aliasTable map[string]string

var (
	pluralSymbolAliases = aliasTable{
		"symbol":      "symbols",
		"symbol_list": "symbols",
		"stocks":      "symbols",
		"stock":       "symbols",
	}
	singularSymbolAliases = aliasTable{
		"symbols":     "symbol",
		"symbol_list": "symbol",
		"stocks":      "symbol",
		"stock":       "symbol",
	}
)

// aliasOverride pins the alias table and canonical kinds for a capability
// regardless of its declared schema.
type aliasOverride struct {
	aliases aliasTable
	kinds   map[string]ParamKind
}

var aliasOverrides = map[string]aliasOverride{
	"get_price_board": {
		aliases: pluralSymbolAliases,
		kinds:   map[string]ParamKind{"symbols": ParamArray},
	},
}

// Normalizer rewrites caller arguments into the shape a descriptor declares.
type Normalizer struct {
	desc    Descriptor
	aliases aliasTable
	kinds   map[string]ParamKind
}

// NewNormalizer builds the alias table and kind map for d.
func NewNormalizer(d Descriptor) *Normalizer {
	n := &Normalizer{desc: d, kinds: make(map[string]ParamKind, len(d.Parameters))}
	for _, p := range d.Parameters {
		n.kinds[p.Name] = p.Kind
	}

	if o, ok := aliasOverrides[d.Name]; ok {
		n.aliases = o.aliases
		for name, kind := range o.kinds {
			n.kinds[name] = kind
		}
		return n
	}

	if _, ok := d.Parameter("symbols"); ok {
		n.aliases = pluralSymbolAliases
	} else if _, ok := d.Parameter("symbol"); ok {
		n.aliases = singularSymbolAliases
	}
	return n
}

// Canonical returns the canonical name for an argument name.
func (n *Normalizer) Canonical(name string) string {
	if c, ok := n.aliases[name]; ok {
		return c
	}
	return name
}

// Normalize renames aliases and coerces values to their declared kinds.
// A canonical name supplied explicitly wins over any alias; among aliases
// the lexically first wins. Unknown names pass through.
func (n *Normalizer) Normalize(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	var aliased []string
	for k, v := range args {
		if _, isAlias := n.aliases[k]; isAlias {
			aliased = append(aliased, k)
			continue
		}
		out[k] = v
	}
	sort.Strings(aliased)
	for _, k := range aliased {
		canonical := n.aliases[k]
		if _, exists := out[canonical]; exists {
			continue
		}
		out[canonical] = args[k]
	}

	for k, v := range out {
		switch n.kinds[k] {
		case ParamArray:
			out[k] = coerceArray(v)
		case ParamString:
			out[k] = coerceString(v)
		}
	}
	return out
}

// Bind fills defaults and checks required parameters. Optional parameters
// without a default that are absent or nil are omitted.
func (n *Normalizer) Bind(args map[string]any) (map[string]any, *Error) {
	var missing []string
	for _, p := range n.desc.Parameters {
		v, present := args[p.Name]
		if present && v != nil {
			continue
		}
		switch {
		case p.HasDefault:
			args[p.Name] = p.Default
		case p.Required:
			missing = append(missing, p.Name)
		default:
			delete(args, p.Name)
		}
	}
	if len(missing) > 0 {
		return nil, &Error{
			Kind:       KindValidation,
			Message:    fmt.Sprintf("missing required parameter(s): %s", strings.Join(missing, ", ")),
			Capability: n.desc.Name,
		}
	}
	return args, nil
}

// coerceArray wraps scalars, passes sequences and stringifies anything else
// into a one-element list. Nil stays nil.
func coerceArray(v any) any {
	switch {
	case v == nil:
		return nil
	case isSequence(v):
		return v
	case isScalar(v):
		return []any{v}
	default:
		return []any{stringify(v)}
	}
}

// coerceString takes the first element of a sequence ("" when empty) and
// stringifies everything else. Nil stays nil.
func coerceString(v any) any {
	switch {
	case v == nil:
		return nil
	case isSequence(v):
		first, ok := firstElement(v)
		if !ok {
			return ""
		}
		return stringify(first)
	default:
		return stringify(v)
	}
}
