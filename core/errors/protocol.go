package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is the stable numeric identifier attached to every protocol failure.
// Codes are part of the public contract and must never be renumbered.
type Code uint32

// ProtocolError is a coded failure returned by the CDP, pool and token
// modules. Callers compare with errors.Is against the exported sentinels.
type ProtocolError struct {
	Code Code
	Name string
	msg  string
}

func (e *ProtocolError) Error() string {
	return e.msg
}

// Is matches protocol errors by code so wrapped copies still compare equal.
func (e *ProtocolError) Is(target error) bool {
	other, ok := target.(*ProtocolError)
	if !ok {
		return false
	}
	return other.Code == e.Code
}

var registry = map[Code]*ProtocolError{}

func define(code Code, name, msg string) *ProtocolError {
	if _, exists := registry[code]; exists {
		panic(fmt.Sprintf("errors: duplicate protocol code %d", code))
	}
	err := &ProtocolError{Code: code, Name: name, msg: msg}
	registry[code] = err
	return err
}

var (
	ErrInsufficientCollateralization               = define(1, "InsufficientCollateralization", "cdp: insufficient collateralization")
	ErrCDPAlreadyExists                            = define(2, "CDPAlreadyExists", "cdp: position already exists")
	ErrCDPNotFound                                 = define(3, "CDPNotFound", "cdp: position not found")
	ErrCDPNotInsolvent                             = define(4, "CDPNotInsolvent", "cdp: position is not insolvent")
	ErrCDPNotOpen                                  = define(5, "CDPNotOpen", "cdp: position is not open")
	ErrInsufficientCollateral                      = define(6, "InsufficientCollateral", "cdp: insufficient collateral")
	ErrInsufficientBalance                         = define(7, "InsufficientBalance", "token: insufficient balance")
	ErrRepaymentExceedsDebt                        = define(8, "RepaymentExceedsDebt", "cdp: repayment exceeds debt")
	ErrOutstandingDebt                             = define(9, "OutstandingDebt", "cdp: outstanding debt")
	ErrInvalidMerge                                = define(10, "InvalidMerge", "cdp: invalid merge")
	ErrInvalidLiquidation                          = define(11, "InvalidLiquidation", "cdp: invalid liquidation")
	ErrInvalidWithdrawal                           = define(12, "InvalidWithdrawal", "cdp: withdrawal would undercollateralize position")
	ErrCDPNotOpenOrInsolvent                       = define(13, "CDPNotOpenOrInsolvent", "cdp: position is not open or insolvent")
	ErrCDPNotOpenOrInsolventForRepay               = define(14, "CDPNotOpenOrInsolventForRepay", "cdp: position is not open or insolvent for repayment")
	ErrStakeAlreadyExists                          = define(15, "StakeAlreadyExists", "pool: stake already exists")
	ErrStakeDoesntExist                            = define(16, "StakeDoesntExist", "pool: stake does not exist")
	ErrInvalidLedgerSequence                       = define(17, "InvalidLedgerSequence", "token: expiration ledger is in the past")
	ErrOraclePriceFetchFailed                      = define(18, "OraclePriceFetchFailed", "oracle: price fetch failed")
	ErrOracleDecimalsFetchFailed                   = define(19, "OracleDecimalsFetchFailed", "oracle: decimals fetch failed")
	ErrXLMTransferFailed                           = define(20, "XLMTransferFailed", "native: transfer failed")
	ErrClaimRewardsFirst                           = define(21, "ClaimRewardsFirst", "pool: claim rewards first")
	ErrInsufficientStake                           = define(22, "InsufficientStake", "pool: insufficient stake")
	ErrInsufficientInterest                        = define(23, "InsufficientInterest", "cdp: insufficient interest")
	ErrPaymentExceedsInterestDue                   = define(24, "PaymentExceedsInterestDue", "cdp: payment exceeds interest due")
	ErrInterestMustBePaidFirst                     = define(25, "InterestMustBePaidFirst", "cdp: interest must be paid first")
	ErrInsufficientXLMForInterest                  = define(26, "InsufficientXLMForInterest", "cdp: insufficient native balance for interest")
	ErrInsufficientApprovedXLMForInterestRepayment = define(27, "InsufficientApprovedXLMForInterestRepayment", "cdp: insufficient native allowance for interest repayment")
	ErrXLMInvocationFailed                         = define(28, "XLMInvocationFailed", "native: invocation failed")
	ErrValueNotPositive                            = define(29, "ValueNotPositive", "amount must be positive")
	ErrInsufficientAllowance                       = define(30, "InsufficientAllowance", "token: insufficient allowance")
	ErrArithmetic                                  = define(31, "ArithmeticError", "arithmetic overflow")
	ErrCannotTransferToSelf                        = define(32, "CannotTransferToSelf", "token: cannot transfer to self")
)

// ErrUnauthorized is returned when the caller did not prove control of the
// account an operation acts for.
var ErrUnauthorized = stderrors.New("auth: caller not authorized")

// CodeOf extracts the protocol code carried by err, if any.
func CodeOf(err error) (Code, bool) {
	var perr *ProtocolError
	if stderrors.As(err, &perr) {
		return perr.Code, true
	}
	return 0, false
}

// Lookup returns the sentinel registered for code.
func Lookup(code Code) (*ProtocolError, bool) {
	err, ok := registry[code]
	return err, ok
}
