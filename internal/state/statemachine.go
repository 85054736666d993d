package state

import "fmt"

// State 回合状态
const (
	StateInit      = "init"      // 初始化/未开始
	StateBetting   = "betting"   // 下注窗口开放(open~launch)
	StateRunning   = "running"   // 倍率攀升中(launch~crash)
	StateSettling  = "settling"  // 已崩盘，结算中(crash)
	StateCompleted = "completed" // 结算完成
	StateCancelled = "cancelled" // 已取消（人工或恢复流程）
)

// Event 回合事件
const (
	EvtOpen     = "open"
	EvtLaunch   = "launch"
	EvtCrash    = "crash"
	EvtComplete = "complete"
	EvtCancel   = "cancel"
)

// NextState 根据当前状态与事件计算下一个状态，非法转换报错
// cancel 事件对 betting/running/settling 三个中间态均合法，供恢复流程使用
func NextState(cur, evt string) (string, error) {
	if evt == EvtCancel {
		switch cur {
		case StateBetting, StateRunning, StateSettling:
			return StateCancelled, nil
		}
		return cur, fmt.Errorf("invalid transition: %s --%s--> ?", cur, evt)
	}
	switch cur {
	case StateInit:
		if evt == EvtOpen {
			return StateBetting, nil
		}
	case StateBetting:
		if evt == EvtLaunch {
			return StateRunning, nil
		}
	case StateRunning:
		if evt == EvtCrash {
			return StateSettling, nil
		}
	case StateSettling:
		if evt == EvtComplete {
			return StateCompleted, nil
		}
	}
	return cur, fmt.Errorf("invalid transition: %s --%s--> ?", cur, evt)
}

// IsTerminal 返回状态是否为终态
func IsTerminal(s string) bool {
	return s == StateCompleted || s == StateCancelled
}

// IsOrphanable 返回进程重启后应被恢复流程接管的中间态
func IsOrphanable(s string) bool {
	return s == StateBetting || s == StateRunning || s == StateSettling
}
