package constant

// 账变类型常量定义
const (
	ChangeTypeBetDebit      = 1 // 投注扣款
	ChangeTypePayoutCredit  = 2 // 逃离派彩
	ChangeTypeRefundCredit  = 3 // 回合取消退款
	ChangeTypeRecharge      = 4 // 充值到账
	ChangeTypeRechargeBonus = 5 // 充值赠送
	ChangeTypeAdjust        = 6 // 人工调整
)

// 账变类型描述映射
var BalanceChangeTypeDesc = map[int]string{
	ChangeTypeBetDebit:      "bet_debit",
	ChangeTypePayoutCredit:  "payout_credit",
	ChangeTypeRefundCredit:  "refund_credit",
	ChangeTypeRecharge:      "recharge",
	ChangeTypeRechargeBonus: "recharge_bonus",
	ChangeTypeAdjust:        "adjust",
}

// GetBalanceChangeTypeDesc 获取账变类型描述
func GetBalanceChangeTypeDesc(changeType int) string {
	if desc, exists := BalanceChangeTypeDesc[changeType]; exists {
		return desc
	}
	return "未知类型"
}

// IsValidBalanceChangeType 验证账变类型是否有效
func IsValidBalanceChangeType(changeType int) bool {
	_, exists := BalanceChangeTypeDesc[changeType]
	return exists
}

// 常用账变类型分组
var (
	// 收入类型
	IncomeTypes = []int{ChangeTypePayoutCredit, ChangeTypeRefundCredit, ChangeTypeRecharge, ChangeTypeRechargeBonus}

	// 支出类型
	ExpenseTypes = []int{ChangeTypeBetDebit}

	// 奖励类型
	RewardTypes = []int{ChangeTypeRechargeBonus}
)

// IsIncomeType 判断是否为收入类型
func IsIncomeType(changeType int) bool {
	for _, t := range IncomeTypes {
		if t == changeType {
			return true
		}
	}
	return false
}

// IsExpenseType 判断是否为支出类型
func IsExpenseType(changeType int) bool {
	for _, t := range ExpenseTypes {
		if t == changeType {
			return true
		}
	}
	return false
}

// IsRewardType 判断是否为奖励类型
func IsRewardType(changeType int) bool {
	for _, t := range RewardTypes {
		if t == changeType {
			return true
		}
	}
	return false
}
