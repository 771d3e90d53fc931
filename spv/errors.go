package spv

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	SPV_ERR_HASH_LENGTH            ErrorCode = "SPV_ERR_HASH_LENGTH"
	SPV_ERR_INVALID_HEADER_LENGTH  ErrorCode = "SPV_ERR_INVALID_HEADER_LENGTH"
	SPV_ERR_HEADER_HEIGHT_MISMATCH ErrorCode = "SPV_ERR_HEADER_HEIGHT_MISMATCH"
	SPV_ERR_INVALID_MERKLE_PROOF   ErrorCode = "SPV_ERR_INVALID_MERKLE_PROOF"
	SPV_ERR_PROOF_TOO_SHORT        ErrorCode = "SPV_ERR_PROOF_TOO_SHORT"
	SPV_ERR_PROOF_TOO_LONG         ErrorCode = "SPV_ERR_PROOF_TOO_LONG"
	SPV_ERR_LEAF_INDEX_RANGE       ErrorCode = "SPV_ERR_LEAF_INDEX_RANGE"
	SPV_ERR_POW_INVALID            ErrorCode = "SPV_ERR_POW_INVALID"

	SPV_ERR_PARSE        ErrorCode = "SPV_ERR_PARSE"
	SPV_ERR_TX_INDEX     ErrorCode = "SPV_ERR_TX_INDEX"
	SPV_ERR_EMPTY        ErrorCode = "SPV_ERR_EMPTY"
	SPV_ERR_BLOCK_HEIGHT ErrorCode = "SPV_ERR_BLOCK_HEIGHT"
)

type SpvError struct {
	Code ErrorCode
	Msg  string
}

func (e *SpvError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func spverr(code ErrorCode, msg string) error {
	return &SpvError{Code: code, Msg: msg}
}

// IsCode reports whether err (or anything it wraps) is an *SpvError carrying code.
func IsCode(err error, code ErrorCode) bool {
	var se *SpvError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == code
}

// CodeOf returns the code of the first *SpvError in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var se *SpvError
	if !errors.As(err, &se) {
		return ""
	}
	return se.Code
}
