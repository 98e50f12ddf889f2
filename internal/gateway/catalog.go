package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bobmcallan/vire-gateway/internal/common"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// maxCatalogSize caps a tools/list result.
const maxCatalogSize = 1 << 20

// ParamKind is the declared JSON schema kind of a parameter.
type ParamKind string

const (
	ParamString  ParamKind = "string"
	ParamInteger ParamKind = "integer"
	ParamNumber  ParamKind = "number"
	ParamBoolean ParamKind = "boolean"
	ParamArray   ParamKind = "array"
	ParamObject  ParamKind = "object"
	ParamAny     ParamKind = "any"
)

// Parameter is one declared input of a capability.
type Parameter struct {
	Name        string    `json:"name"`
	Kind        ParamKind `json:"kind"`
	ItemKind    ParamKind `json:"item_kind,omitempty"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	HasDefault  bool      `json:"has_default"`
	Description string    `json:"description,omitempty"`
}

// Descriptor describes a remote capability. Parameters keep the order the
// peer declared them in.
type Descriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// Parameter looks up a declared parameter by name.
func (d Descriptor) Parameter(name string) (Parameter, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

type schemaProperty struct {
	Type        json.RawMessage  `json:"type"`
	AnyOf       []schemaProperty `json:"anyOf"`
	Items       *schemaProperty  `json:"items"`
	Default     json.RawMessage  `json:"default"`
	Description string           `json:"description"`
	Title       string           `json:"title"`
}

type wireTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema struct {
		Properties *orderedmap.OrderedMap[string, schemaProperty] `json:"properties"`
		Required   []string                                       `json:"required"`
	} `json:"inputSchema"`
}

// kind resolves the declared kind from type (string or list) or anyOf.
func (p schemaProperty) kind() ParamKind {
	if k := kindFromType(p.Type); k != "" && k != "null" {
		return k
	}
	for _, alt := range p.AnyOf {
		if k := alt.kind(); k != "" && k != "null" {
			return k
		}
	}
	return ""
}

// itemKind resolves the element kind of an array property.
func (p schemaProperty) itemKind() ParamKind {
	if p.Items != nil {
		return p.Items.kind()
	}
	for _, alt := range p.AnyOf {
		if alt.kind() == ParamArray && alt.Items != nil {
			return alt.Items.kind()
		}
	}
	return ""
}

func kindFromType(raw json.RawMessage) ParamKind {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if json.Unmarshal(raw, &single) == nil {
		return ParamKind(single)
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		// Prefer array when a union admits it so scalars still get wrapped.
		for _, t := range list {
			if t == string(ParamArray) {
				return ParamArray
			}
		}
		for _, t := range list {
			if t != "null" {
				return ParamKind(t)
			}
		}
	}
	return ""
}

// ParseDescriptors decodes a tools/list result into descriptors, skipping
// unnamed and duplicate entries.
func ParseDescriptors(raw json.RawMessage, logger *common.Logger) ([]Descriptor, error) {
	if len(raw) > maxCatalogSize {
		return nil, fmt.Errorf("catalog response too large: %d bytes (max %d)", len(raw), maxCatalogSize)
	}
	var list struct {
		Tools []json.RawMessage `json:"tools"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("failed to parse tool catalog: %w", err)
	}

	seen := make(map[string]bool, len(list.Tools))
	descs := make([]Descriptor, 0, len(list.Tools))
	for i, entry := range list.Tools {
		var wt wireTool
		if err := json.Unmarshal(entry, &wt); err != nil {
			logger.Warn().Int("index", i).Str("error", err.Error()).Msg("skipping malformed catalog tool")
			continue
		}
		if wt.Name == "" {
			logger.Warn().Int("index", i).Msg("skipping catalog tool with empty name")
			continue
		}
		if seen[wt.Name] {
			logger.Warn().Str("name", wt.Name).Msg("skipping duplicate catalog tool")
			continue
		}
		seen[wt.Name] = true
		descs = append(descs, wt.descriptor())
	}
	return descs, nil
}

func (wt wireTool) descriptor() Descriptor {
	required := make(map[string]bool, len(wt.InputSchema.Required))
	for _, name := range wt.InputSchema.Required {
		required[name] = true
	}

	d := Descriptor{Name: wt.Name, Description: wt.Description}
	props := wt.InputSchema.Properties
	if props == nil {
		return d
	}
	for pair := props.Oldest(); pair != nil; pair = pair.Next() {
		prop := pair.Value
		p := Parameter{
			Name:        pair.Key,
			Kind:        prop.kind(),
			Required:    required[pair.Key],
			Description: prop.Description,
		}
		if p.Kind == "" {
			p.Kind = ParamAny
		}
		if p.Kind == ParamArray {
			p.ItemKind = prop.itemKind()
		}
		if p.Description == "" {
			p.Description = prop.Title
		}
		if len(prop.Default) > 0 && !bytes.Equal(bytes.TrimSpace(prop.Default), []byte("null")) {
			var def any
			if json.Unmarshal(prop.Default, &def) == nil {
				p.Default = def
				p.HasDefault = true
			}
		}
		d.Parameters = append(d.Parameters, p)
	}
	return d
}

// RawCaller returns undecoded result bytes for a method.
type RawCaller interface {
	CallRaw(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// Catalog caches the peer's capability list until reloaded.
type Catalog struct {
	caller RawCaller
	logger *common.Logger

	mu       sync.RWMutex
	snapshot []Descriptor
	loaded   bool
}

// NewCatalog creates an empty, unloaded catalog.
func NewCatalog(caller RawCaller, logger *common.Logger) *Catalog {
	return &Catalog{caller: caller, logger: logger}
}

// List returns the cached snapshot, loading it on first use.
func (c *Catalog) List(ctx context.Context) []Descriptor {
	c.mu.RLock()
	if c.loaded {
		descs := c.snapshot
		c.mu.RUnlock()
		return descs
	}
	c.mu.RUnlock()
	descs, _ := c.Reload(ctx)
	return descs
}

// Reload fetches the catalog and replaces the snapshot. A failure leaves an
// empty snapshot and is returned for the caller to report.
func (c *Catalog) Reload(ctx context.Context) ([]Descriptor, error) {
	descs, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn().Str("error", err.Error()).Msg("failed to list remote capabilities")
		descs = []Descriptor{}
	}

	c.mu.Lock()
	c.snapshot = descs
	c.loaded = true
	c.mu.Unlock()

	c.logger.Info().Int("capabilities", len(descs)).Msg("capability catalog loaded")
	return descs, err
}

func (c *Catalog) fetch(ctx context.Context) ([]Descriptor, error) {
	raw, err := c.caller.CallRaw(ctx, methodToolsList, map[string]any{})
	if err != nil {
		return nil, err
	}
	return ParseDescriptors(raw, c.logger)
}
