package codec

// Binding is a variant bound to one precision class with its own engine
// instance. A Binding is owned by a single transcode call.
type Binding struct {
	variant Variant
	params  Params
	binding
}

func (b *Binding) Variant() Variant { return b.variant }

// PrecisionClass is the bit depth the engine instance was built for.
func (b *Binding) PrecisionClass() int { return b.class }

// Mode names the coding mode, e.g. "baseline", "near-lossless", "irreversible".
func (b *Binding) Mode() string { return b.mode }

// Params returns the validated parameters the binding runs with.
func (b *Binding) Params() Params { return b.params }

// Select binds v to the precision class serving bitsStored. A nil p, or one
// of another family, selects the variant defaults.
func Select(v Variant, bitsStored int, p Params) (*Binding, error) {
	params := resolve(v, p)
	if err := params.Validate(); err != nil {
		return nil, annotate(err, v.Syntax, -1)
	}
	inner, err := v.bind(bitsStored, params)
	if err != nil {
		return nil, annotate(err, v.Syntax, -1)
	}
	return &Binding{variant: v, params: params, binding: inner}, nil
}
