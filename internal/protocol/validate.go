package protocol

import (
	"fmt"
	"strings"
)

// Validate checks the snapshot shape before a document is built from it.
func (s Snapshot) Validate() error {
	if strings.TrimSpace(s.Version) == "" {
		return fmt.Errorf("%w: snapshot %d", ErrMissingVersion, s.ID)
	}
	if s.Count < 0 {
		return fmt.Errorf("%w: snapshot %d count=%d", ErrNegativeCount, s.ID, s.Count)
	}
	for i, l := range s.Layers {
		if l.Removed {
			return fmt.Errorf("%w: layers[%d] id=%d removed in snapshot", ErrInvalidLayer, i, l.ID)
		}
		if err := validateLayer(l, fmt.Sprintf("layers[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks record shape only. Ordering and id agreement with the
// target document are enforced by the document itself.
func (c Change) Validate() error {
	if strings.TrimSpace(c.Version) == "" {
		return fmt.Errorf("%w: change %d/%d", ErrMissingVersion, c.ID, c.Count)
	}
	if c.Count < 0 {
		return fmt.Errorf("%w: change %d count=%d", ErrNegativeCount, c.ID, c.Count)
	}
	for i, l := range c.Layers {
		if err := validateLayer(l, fmt.Sprintf("layers[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func validateLayer(l RawLayer, path string) error {
	if l.ID < 0 {
		return fmt.Errorf("%w: %s negative id %d", ErrInvalidLayer, path, l.ID)
	}
	if idx, ok := l.Index.Get(); ok && idx < 0 {
		return fmt.Errorf("%w: %s id=%d negative index %d", ErrInvalidLayer, path, l.ID, idx)
	}
	if l.Added && l.Removed {
		return fmt.Errorf("%w: %s id=%d both added and removed", ErrInvalidLayer, path, l.ID)
	}
	for i, child := range l.Layers {
		if err := validateLayer(child, fmt.Sprintf("%s.layers[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}
