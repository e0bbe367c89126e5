package stake

import (
	"errors"

	nativecommon "ecmstaking/native/common"
)

var (
	errNilState = errors.New("stake engine: state not configured")
	errNilQuote = errors.New("stake engine: price quoter not configured")

	// ErrPoolNotFound indicates the pool identifier is unknown.
	ErrPoolNotFound = errors.New("stake engine: pool not found")
	// ErrPoolExists indicates a create collided with an existing pool.
	ErrPoolExists = errors.New("stake engine: pool already exists")
	// ErrPoolInactive indicates the pool has been deactivated.
	ErrPoolInactive = errors.New("stake engine: pool inactive")
	// ErrInvalidAmount indicates a zero or negative amount.
	ErrInvalidAmount = errors.New("stake engine: amount must be positive")
	// ErrBelowMinimum indicates the purchase or stake is below the pool minimum.
	ErrBelowMinimum = errors.New("stake engine: amount below minimum purchase")
	// ErrAmountQuantum indicates the amount is not a multiple of the purchase quantum.
	ErrAmountQuantum = errors.New("stake engine: amount not aligned to purchase quantum")
	// ErrDurationNotAllowed indicates the requested lock duration is not in the
	// pool's allowed set or exceeds the maximum.
	ErrDurationNotAllowed = errors.New("stake engine: duration not allowed")
	// ErrDurationMismatch indicates a top-up tried to change the lock duration.
	ErrDurationMismatch = errors.New("stake engine: top-up cannot change duration")
	// ErrNoOpenPosition indicates a close or claim with nothing staked.
	ErrNoOpenPosition = errors.New("stake engine: no open position")
	// ErrExceedsSaleAllocation indicates the purchase exceeds remaining sale capacity.
	ErrExceedsSaleAllocation = errors.New("stake engine: exceeds remaining sale allocation")
	// ErrSlippageExceeded indicates the required spend breached the caller's bound.
	ErrSlippageExceeded = errors.New("stake engine: slippage bound exceeded")
	// ErrRateRoundsToZero indicates the computed linear rate truncated to zero.
	ErrRateRoundsToZero = errors.New("stake engine: linear rate rounds to zero")
	// ErrNoRemainingRewards indicates the reward allocation is fully accrued.
	ErrNoRemainingRewards = errors.New("stake engine: no remaining reward allocation")
	// ErrInsufficientBalance indicates the caller lacks funds for the operation.
	ErrInsufficientBalance = errors.New("stake engine: insufficient balance")
	// ErrUnauthorized indicates the caller lacks the required role.
	ErrUnauthorized = errors.New("stake engine: caller not authorized")
	// ErrCapacityExceeded indicates a liquidity movement beyond the tracked ceiling.
	ErrCapacityExceeded = errors.New("stake engine: liquidity capacity exceeded")
	// ErrRecoverySurplus indicates an emergency recovery would touch custodied funds.
	ErrRecoverySurplus = errors.New("stake engine: recovery exceeds uncustodied surplus")
	// ErrEmptySchedule indicates a tranche schedule without tranches.
	ErrEmptySchedule = errors.New("stake engine: tranche schedule empty")
)

// ErrorKind buckets engine failures into the closed taxonomy exposed over RPC.
type ErrorKind uint8

const (
	// KindInternal covers wiring and persistence failures.
	KindInternal ErrorKind = iota
	// KindValidation covers malformed or out-of-policy inputs.
	KindValidation
	// KindAuthorization covers role failures.
	KindAuthorization
	// KindState covers missing-position style conditions.
	KindState
	// KindCapacity covers ceiling breaches on liquidity movements.
	KindCapacity
)

// Classify maps an engine error onto its taxonomy bucket.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrUnauthorized):
		return KindAuthorization
	case errors.Is(err, ErrNoOpenPosition):
		return KindState
	case errors.Is(err, ErrCapacityExceeded), errors.Is(err, ErrRecoverySurplus):
		return KindCapacity
	case errors.Is(err, ErrPoolNotFound),
		errors.Is(err, ErrPoolExists),
		errors.Is(err, ErrPoolInactive),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrBelowMinimum),
		errors.Is(err, ErrAmountQuantum),
		errors.Is(err, ErrDurationNotAllowed),
		errors.Is(err, ErrDurationMismatch),
		errors.Is(err, ErrExceedsSaleAllocation),
		errors.Is(err, ErrSlippageExceeded),
		errors.Is(err, ErrRateRoundsToZero),
		errors.Is(err, ErrNoRemainingRewards),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrEmptySchedule),
		errors.Is(err, nativecommon.ErrModulePaused):
		return KindValidation
	default:
		return KindInternal
	}
}
