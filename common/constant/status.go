package constant

// user status
const (
	StatusNormal  = 1 // 状态：正常
	StatusBanned  = 2 // 状态：禁止投注
	StatusDeleted = 3 // 状态：已删除
)

// balance mode 资金模式（真实余额 / 试玩余额）
const (
	ModeReal = 0 // 真实资金
	ModePlay = 1 // 试玩资金
)

// ModeToString 资金模式描述
func ModeToString(mode int8) string {
	if mode == ModePlay {
		return "play"
	}
	return "real"
}
