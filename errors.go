package registry

import (
	"errors"

	"github.com/twitchtv/twirp"
)

var (
	ErrNotInitialized     = errors.New("registry not initialized")
	ErrAlreadyInitialized = errors.New("registry already initialized")

	ErrUnauthorized          = errors.New("caller is not a current admin")
	ErrProposalNotFound      = errors.New("proposal not found")
	ErrAlreadyExecuted       = errors.New("proposal already executed")
	ErrProposalExpired       = errors.New("proposal expired")
	ErrAlreadyApproved       = errors.New("proposal already approved by caller")
	ErrInsufficientApprovals = errors.New("insufficient approvals")
	ErrInvalidThreshold      = errors.New("invalid threshold")
	ErrAdminAlreadyExists    = errors.New("admin already exists")
	ErrAdminNotFound         = errors.New("admin not found")
	ErrCannotRemoveLastAdmin = errors.New("cannot remove last admin")
	ErrInvalidProposalArgs   = errors.New("invalid proposal args")

	ErrEventAlreadyExists = errors.New("event already exists")
	ErrEventNotFound      = errors.New("event not found")
	ErrEventInactive      = errors.New("event inactive")
	ErrMaxSupplyExceeded  = errors.New("max supply exceeded")
	ErrTierNotFound       = errors.New("tier not found")
	ErrTierSupplyExceeded = errors.New("tier supply exceeded")
	ErrTierLimitTooLarge  = errors.New("tier limits exceed max supply")
	ErrInvalidMetadataCID = errors.New("invalid metadata cid")
	ErrInvalidFeePercent  = errors.New("invalid fee percent")
)

// twirpError maps a domain error onto the twirp code vocabulary for wire
// rendering. Unknown errors map to Internal.
func twirpError(err error) twirp.Error {
	var te twirp.Error
	if errors.As(err, &te) {
		return te
	}

	code := twirp.Internal

	switch {
	case errors.Is(err, ErrUnauthorized):
		code = twirp.PermissionDenied
	case errors.Is(err, ErrProposalNotFound),
		errors.Is(err, ErrEventNotFound),
		errors.Is(err, ErrAdminNotFound),
		errors.Is(err, ErrTierNotFound):
		code = twirp.NotFound
	case errors.Is(err, ErrAlreadyApproved),
		errors.Is(err, ErrAdminAlreadyExists),
		errors.Is(err, ErrEventAlreadyExists),
		errors.Is(err, ErrAlreadyInitialized):
		code = twirp.AlreadyExists
	case errors.Is(err, ErrInvalidThreshold),
		errors.Is(err, ErrInvalidProposalArgs),
		errors.Is(err, ErrInvalidMetadataCID),
		errors.Is(err, ErrInvalidFeePercent),
		errors.Is(err, ErrTierLimitTooLarge):
		code = twirp.InvalidArgument
	case errors.Is(err, ErrAlreadyExecuted),
		errors.Is(err, ErrProposalExpired),
		errors.Is(err, ErrInsufficientApprovals),
		errors.Is(err, ErrCannotRemoveLastAdmin),
		errors.Is(err, ErrEventInactive),
		errors.Is(err, ErrMaxSupplyExceeded),
		errors.Is(err, ErrTierSupplyExceeded),
		errors.Is(err, ErrNotInitialized):
		code = twirp.FailedPrecondition
	}

	return twirp.NewError(code, err.Error())
}
