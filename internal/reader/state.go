package reader

// State 读取器状态
//
//	Uninitialized -> Ready -> {Advancing <-> Retrying} -> Exhausted | Failed -> Closed
//
// 任意状态都可以进入Closed。
type State int

const (
	StateUninitialized State = iota
	StateReady               // 已定位到起始offset
	StateAdvancing           // 最近一次Next产出了记录
	StateRetrying            // 空拉取后等待重试
	StateExhausted           // nextOffset == EndOffset
	StateFailed              // 重试耗尽或连接错误
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateAdvancing:
		return "advancing"
	case StateRetrying:
		return "retrying"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal 是否为终止状态
func (s State) Terminal() bool {
	return s == StateExhausted || s == StateFailed || s == StateClosed
}
