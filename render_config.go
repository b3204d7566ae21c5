package checkout

import (
	"encoding/json"

	"github.com/oapi-codegen/runtime"
)

// RenderConfigBuilder assembles the configuration passed to the provider
// when rendering a payment method. Layers are merged in the order they are
// added, later layers overriding earlier ones, so override precedence stays
// auditable: framework defaults first, then surface-provided values, then
// caller overrides.
type RenderConfigBuilder struct {
	layers []json.RawMessage
	err    error
}

// NewRenderConfigBuilder builds an empty builder.
func NewRenderConfigBuilder() *RenderConfigBuilder {
	return &RenderConfigBuilder{}
}

// Layer appends v as the next override layer. Nil layers are skipped.
func (b *RenderConfigBuilder) Layer(v any) *RenderConfigBuilder {
	if b.err != nil || v == nil {
		return b
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		b.err = NewValidationError("encode render config layer: "+err.Error(), WithCause(err))
		return b
	}
	b.layers = append(b.layers, encoded)
	return b
}

// Build folds the layers into one JSON document.
func (b *RenderConfigBuilder) Build() (json.RawMessage, error) {
	if b.err != nil {
		return nil, b.err
	}
	merged := json.RawMessage(`{}`)
	for _, layer := range b.layers {
		next, err := runtime.JSONMerge(merged, layer)
		if err != nil {
			return nil, NewValidationError("merge render config layers: "+err.Error(), WithCause(err))
		}
		merged = next
	}
	return merged, nil
}

// renderDefaults are the framework's base layer per method.
func renderDefaults(method Method) map[string]any {
	switch method {
	case MethodCard:
		return map[string]any{
			"fields": map[string]any{
				"card_number": map[string]any{"placeholder": "1234 1234 1234 1234"},
				"card_expiry": map[string]any{"placeholder": "MM/YY"},
				"card_cvv":    map[string]any{"placeholder": "CVC"},
			},
			"submit_on_enter": true,
		}
	default:
		return map[string]any{
			"button": map[string]any{"theme": "dark", "corner_radius": 4},
		}
	}
}

// buildRenderConfig layers defaults, surface values, and caller overrides
// for one payment method.
func buildRenderConfig(method Method, surface Surface, overrides map[string]any) (json.RawMessage, error) {
	builder := NewRenderConfigBuilder().Layer(renderDefaults(method))
	if surface != nil {
		builder.Layer(surface.RenderDefaults(method))
	}
	return builder.Layer(overrides).Build()
}
