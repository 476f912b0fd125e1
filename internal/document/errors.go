package document

import (
	"errors"

	"github.com/danmuck/layermirror/internal/layer"
)

var (
	ErrProtocolMismatch    = errors.New("document: protocol mismatch")
	ErrTimestampRegression = errors.New("document: out of order timestamp")
	ErrDocumentClosed      = errors.New("document: document is closed")
	ErrReentrantChange     = errors.New("document: change applied from inside a listener")

	ErrLayerNotFound       = layer.ErrLayerNotFound
	ErrStructuralInvariant = layer.ErrStructuralInvariant
)
