package helpers

import (
	pkgerrors "github.com/dariomatias/vendora-backend/pkg/errors"
)

const maxLineQty = 99

// ValidateLines rejects empty checkouts and nonsense quantities before any
// catalog lookup happens.
func ValidateLines(lines []Line) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout requires at least one line")
	}
	for _, line := range lines {
		if line.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive").
				WithDetails(map[string]string{"variant_id": line.VariantID.String()})
		}
		if line.Qty > maxLineQty {
			return pkgerrors.New(pkgerrors.CodeValidation, "line quantity exceeds limit").
				WithDetails(map[string]string{"variant_id": line.VariantID.String()})
		}
	}
	return nil
}
