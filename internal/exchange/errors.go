package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrMaintenance 表示交易所处于维护状态，调用方应放弃本次请求。
	ErrMaintenance = errors.New("exchange on maintenance")
)

// ApiError 为传输层之上统一的交易所错误形态。
type ApiError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("exchange: api error [%s]: %s", e.Code, e.Message)
}

// AsApiError 提取错误链中的 ApiError。
func AsApiError(err error) (*ApiError, bool) {
	var ae *ApiError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsRetryable 判断错误是否可安全重试，只对只读调用有意义。
func IsRetryable(err error) bool {
	if ae, ok := AsApiError(err); ok {
		return ae.Retryable
	}
	return false
}

// normalizeError 将底层错误归一化为 ApiError 或维护/取消信号。
func normalizeError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return &ApiError{
				Code:      string(ccxtErr.Type),
				Message:   ccxtErr.Message,
				Retryable: true,
			}
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message)
		default:
			return &ApiError{
				Code:      string(ccxtErr.Type),
				Message:   ccxtErr.Message,
				Retryable: false,
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ApiError{
			Code:      "NetworkError",
			Message:   netErr.Error(),
			Retryable: true,
		}
	}

	return &ApiError{
		Code:      "Unknown",
		Message:   err.Error(),
		Retryable: false,
	}
}
