package helper

import (
	"github.com/shopspring/decimal"
)

var (
	OneDecimal = decimal.NewFromInt(1)
)

/*
* @Description: decimal对像四舍五入到2位小数
* @Author: awen
* @Date: 2021/10/17 10:08
* @LastEditTime: 2025/08/28 16:00
* @LastEditors: bruce
* @Fixed: 修复截断BUG，改为四舍五入
 */
func TrimDecimal(val decimal.Decimal) string {
	// 直接使用 StringFixed(2) 进行四舍五入到2位小数
	// 这样可以避免截断导致的精度丢失问题
	return val.StringFixed(2)
}

// MulFixed2 金额乘法后四舍五入到2位小数（派彩 = 本金 × 倍数）
func MulFixed2(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Round(2)
}

// PercentOf 按百分比取金额并保留2位小数（充值赠送）
func PercentOf(amount decimal.Decimal, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(decimal.NewFromInt(100)).Round(2)
}

// IsMoneyScale 校验金额小数位不超过2位（入参防御）
func IsMoneyScale(val decimal.Decimal) bool {
	return val.Exponent() >= -2
}
