package repository

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrStoreUnavailable = errors.New("product store unavailable")
)

// PartialWriteError reports that the product row was written but an owned
// image or variation write failed. RolledBack tells whether the product row
// was undone.
type PartialWriteError struct {
	ProductID  string
	Stage      string
	RolledBack bool
	Err        error
}

func (e *PartialWriteError) Error() string {
	state := "rolled back"
	if !e.RolledBack {
		state = "rollback failed"
	}
	return fmt.Sprintf("partial write of product %s at %s (%s): %v", e.ProductID, e.Stage, state, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

func unavailable(action string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", action, ErrStoreUnavailable, err)
}
