package hcl

import (
	"context"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/trustgo/internal/ctxlog"
)

// isExprDefined checks if an HCL expression was actually present in the source
// code. The decoder fills omitted optional expression fields with a
// zero-width placeholder, so a nil check is insufficient.
func isExprDefined(ctx context.Context, expr hcl.Expression, attrName string) bool {
	logger := ctxlog.FromContext(ctx)

	if expr == nil {
		logger.Debug("Expression is nil, considering it undefined.", "attribute", attrName)
		return false
	}

	// A real attribute occupies bytes in the file; the placeholder has a
	// range whose start and end byte are the same.
	exprRange := expr.Range()
	isDefined := exprRange.End.Byte > exprRange.Start.Byte

	logger.Debug("Checking if HCL attribute was explicitly defined.",
		"attribute", attrName,
		"hcl_range", exprRange.String(),
		"is_defined", isDefined,
	)
	return isDefined
}
