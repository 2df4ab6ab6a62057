package rpc

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/FACorreiaa/quick-capture/internal/domain/common"
)

// ToConnectError maps domain sentinel errors onto Connect codes. Errors that
// are already *connect.Error pass through unchanged.
func ToConnectError(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	switch {
	case errors.Is(err, common.ErrBadRequest):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrNothingToFix):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, common.ErrConflict):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, common.ErrUnauthenticated):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, common.ErrForbidden), errors.Is(err, common.ErrNotAllowed):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, common.ErrUnavailable):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	default:
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}
}
