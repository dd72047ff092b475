package order

import (
	"errors"
	"fmt"
)

// ValidationCode 枚举校验失败的原因。
type ValidationCode string

const (
	CodeUnknownSymbol                 ValidationCode = "UnknownSymbol"
	CodeInvalidSide                   ValidationCode = "InvalidSide"
	CodeInvalidQuantity               ValidationCode = "InvalidQuantity"
	CodeQuantityOutOfRange            ValidationCode = "QuantityOutOfRange"
	CodeQuantityTooSmallAfterRounding ValidationCode = "QuantityTooSmallAfterRounding"
	CodeInvalidPrice                  ValidationCode = "InvalidPrice"
	CodeInvalidStopPriceDirection     ValidationCode = "InvalidStopPriceDirection"
	CodeBelowMinNotional              ValidationCode = "BelowMinNotional"
)

// ValidationError 表示委托在本地校验阶段被拒绝，不会产生任何网络调用。
type ValidationError struct {
	Code   ValidationCode
	Symbol string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("order: 校验失败 [%s] %s: %s", e.Code, e.Symbol, e.Detail)
}

// AsValidation 提取错误链中的 ValidationError。
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func validationErr(code ValidationCode, symbol, format string, args ...interface{}) error {
	return &ValidationError{
		Code:   code,
		Symbol: symbol,
		Detail: fmt.Sprintf(format, args...),
	}
}
