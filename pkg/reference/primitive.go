package reference

import "unicode/utf8"

// PrimitiveReference is a constant value. It has no children except a
// string's length.
type PrimitiveReference struct {
	value any
}

var (
	// UndefinedReference is the shared sentinel for missing values.
	UndefinedReference = &PrimitiveReference{}

	// NullReference is an explicit null. Its value is nil like undefined,
	// but it is a distinct sentinel.
	NullReference = &PrimitiveReference{}

	TrueReference  = &PrimitiveReference{value: true}
	FalseReference = &PrimitiveReference{value: false}
)

// NewPrimitive returns a constant reference, reusing the shared sentinels
// for nil and booleans.
func NewPrimitive(value any) Reference {
	switch v := value.(type) {
	case nil:
		return UndefinedReference
	case bool:
		return BoolReference(v)
	}
	return &PrimitiveReference{value: value}
}

// BoolReference returns the shared true or false reference.
func BoolReference(b bool) Reference {
	if b {
		return TrueReference
	}
	return FalseReference
}

// Value returns the constant.
func (p *PrimitiveReference) Value() any {
	return p.value
}

// Get answers `length` on strings and undefined for everything else.
func (p *PrimitiveReference) Get(key string) Reference {
	if s, ok := p.value.(string); ok && key == "length" {
		return &PrimitiveReference{value: utf8.RuneCountInString(s)}
	}
	return UndefinedReference
}

// IsUndefined reports whether ref is the shared undefined sentinel.
func IsUndefined(ref any) bool {
	r, ok := ref.(*PrimitiveReference)
	return ok && r == UndefinedReference
}
