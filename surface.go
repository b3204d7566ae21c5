package checkout

// Surface is the pluggable presentation adapter. It supplies the anchors
// payment methods render into and receives lifecycle feedback to update its
// UI. The SDK only talks to it through this interface; any skin satisfying
// it can be swapped in.
type Surface interface {
	// CardAnchors returns the render targets for the hosted card fields.
	CardAnchors() CardAnchors

	// MethodAnchor returns the render target for a wallet button.
	MethodAnchor(method Method) Anchor

	// RenderDefaults returns the surface's render-config layer for method,
	// merged between the framework defaults and caller overrides. May
	// return nil.
	RenderDefaults(method Method) map[string]any

	// SetLoading reflects the aggregated loading signal.
	SetLoading(loading bool)

	// ShowFieldError displays a validation message next to a card field.
	ShowFieldError(field, message string)

	// ShowError displays a recoverable purchase failure.
	ShowError(message string)

	// ShowSuccess displays the final success screen.
	ShowSuccess(result PaymentResult)
}

// bindSurface routes lifecycle events into the surface. The surface is just
// another set of listeners on the single notification path; it is never
// called outside an emission.
func bindSurface(c *Checkout, surface Surface) {
	if surface == nil {
		return
	}
	c.On(EventLoaderChange, func(args ...any) {
		if loading, ok := argAt[bool](args, 0); ok {
			surface.SetLoading(loading)
		}
	})
	c.On(EventInputError, func(args ...any) {
		field, okField := argAt[string](args, 0)
		message, okMessage := argAt[string](args, 1)
		if okField && okMessage {
			surface.ShowFieldError(field, message)
		}
	})
	c.On(EventPurchaseFailure, func(args ...any) {
		if err, ok := argAt[*Error](args, 0); ok {
			surface.ShowError(err.Message)
		}
	})
	c.On(EventSuccess, func(args ...any) {
		if result, ok := argAt[PaymentResult](args, 0); ok {
			surface.ShowSuccess(result)
		}
	})
}

// argAt extracts a typed event argument by position.
func argAt[T any](args []any, i int) (T, bool) {
	var zero T
	if i >= len(args) {
		return zero, false
	}
	value, ok := args[i].(T)
	return value, ok
}
