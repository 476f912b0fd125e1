package layer

import "errors"

var (
	ErrLayerNotFound       = errors.New("layer: layer not found")
	ErrStructuralInvariant = errors.New("layer: structural invariant violated")
	ErrDuplicateLayer      = errors.New("layer: duplicate layer id")
	ErrNotGroup            = errors.New("layer: layer is not a group")
	ErrInvalidIndex        = errors.New("layer: invalid index")
)
