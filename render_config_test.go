package checkout

import (
	"encoding/json"
	"testing"
)

func TestRenderConfigBuilderLayerPrecedence(t *testing.T) {
	t.Parallel()

	raw, err := NewRenderConfigBuilder().
		Layer(map[string]any{
			"submit_on_enter": true,
			"button":          map[string]any{"theme": "dark", "corner_radius": 4},
		}).
		Layer(nil).
		Layer(map[string]any{
			"button": map[string]any{"theme": "light"},
		}).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var got struct {
		SubmitOnEnter bool `json:"submit_on_enter"`
		Button        struct {
			Theme        string `json:"theme"`
			CornerRadius int    `json:"corner_radius"`
		} `json:"button"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !got.SubmitOnEnter {
		t.Error("base layer value was lost")
	}
	if got.Button.Theme != "light" {
		t.Errorf("button.theme = %q, want the later layer to win", got.Button.Theme)
	}
	if got.Button.CornerRadius != 4 {
		t.Errorf("button.corner_radius = %d, want 4 preserved from the base layer", got.Button.CornerRadius)
	}
}

func TestRenderConfigBuilderEmpty(t *testing.T) {
	t.Parallel()

	raw, err := NewRenderConfigBuilder().Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if string(raw) != "{}" {
		t.Errorf("Build() = %s, want {}", raw)
	}
}

func TestRenderConfigBuilderUnencodableLayer(t *testing.T) {
	t.Parallel()

	_, err := NewRenderConfigBuilder().
		Layer(map[string]any{"bad": func() {}}).
		Layer(map[string]any{"later": true}).
		Build()
	if err == nil {
		t.Fatal("Build() error = nil, want encode failure")
	}
	if KindOf(err) != ErrorKindValidation {
		t.Errorf("KindOf(err) = %q, want %q", KindOf(err), ErrorKindValidation)
	}
}

func TestBuildRenderConfigUsesSurfaceDefaults(t *testing.T) {
	t.Parallel()

	surface := &renderDefaultsSurface{
		fakeSurface: newFakeSurface(),
		defaults:    map[string]any{"submit_on_enter": false},
	}
	raw, err := buildRenderConfig(MethodCard, surface, map[string]any{
		"fields": map[string]any{"card_cvv": map[string]any{"placeholder": "CVV"}},
	})
	if err != nil {
		t.Fatalf("buildRenderConfig() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got["submit_on_enter"] != false {
		t.Error("surface defaults must override framework defaults")
	}
	fields := got["fields"].(map[string]any)
	cvv := fields["card_cvv"].(map[string]any)
	if cvv["placeholder"] != "CVV" {
		t.Error("caller overrides must override surface defaults")
	}
	if _, ok := fields["card_number"]; !ok {
		t.Error("untouched framework defaults must survive the merge")
	}
}

type renderDefaultsSurface struct {
	*fakeSurface
	defaults map[string]any
}

func (s *renderDefaultsSurface) RenderDefaults(Method) map[string]any {
	return s.defaults
}
