package order

import (
	"math"

	"github.com/shopspring/decimal"
)

// IsFinite 判断数值是否为有限浮点数。NaN 与 ±Inf 不可进入十进制运算，
// decimal.NewFromFloat 遇到它们会 panic。
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FloorToStep 将 value 向下取整到 step 的整数倍。
// 使用十进制运算避免浮点累积误差，保证结果不超过原值且为 step 的倍数。
func FloorToStep(value, step float64) float64 {
	if !IsFinite(value) || !IsFinite(step) {
		return 0
	}
	if step <= 0 || value <= 0 {
		return 0
	}

	dValue := decimal.NewFromFloat(value)
	dStep := decimal.NewFromFloat(step)

	out, _ := dValue.Div(dStep).Floor().Mul(dStep).Float64()
	return out
}

// IsStepMultiple 判断 value 是否已经是 step 的整数倍。
func IsStepMultiple(value, step float64) bool {
	if !IsFinite(value) || !IsFinite(step) || step <= 0 {
		return false
	}
	return decimal.NewFromFloat(value).
		Mod(decimal.NewFromFloat(step)).
		IsZero()
}

// Notional 计算 price*quantity 的名义价值。
func Notional(price, quantity float64) float64 {
	if !IsFinite(price) || !IsFinite(quantity) {
		return 0
	}
	out, _ := decimal.NewFromFloat(price).
		Mul(decimal.NewFromFloat(quantity)).
		Float64()
	return out
}

// SplitEven 将 total 平均分为 parts 份并按 step 向下取整，
// 返回常规份额与吸收取整余量的末份额。保证
// slice*(parts-1)+last ≤ total，且与 total 的偏差小于一个 step。
func SplitEven(total float64, parts int, step float64) (slice, last float64) {
	if !IsFinite(total) || !IsFinite(step) {
		return 0, 0
	}
	if parts <= 0 || step <= 0 || total <= 0 {
		return 0, 0
	}

	dTotal := decimal.NewFromFloat(total)
	dStep := decimal.NewFromFloat(step)

	dSlice := dTotal.
		Div(decimal.NewFromInt(int64(parts))).
		Div(dStep).Floor().Mul(dStep)

	remainder := dTotal.Sub(dSlice.Mul(decimal.NewFromInt(int64(parts - 1))))
	dLast := remainder.Div(dStep).Floor().Mul(dStep)
	if dLast.IsNegative() {
		dLast = decimal.Zero
	}

	slice, _ = dSlice.Float64()
	last, _ = dLast.Float64()
	return slice, last
}
