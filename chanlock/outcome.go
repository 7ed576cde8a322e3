package chanlock

// Outcome 锁操作的结果类型
//
// 锁被占用、非持有者释放这类"拒绝"是正常结果，不是错误；
// 只有存储故障和非法请求会得到 OutcomeFailed。
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeAcquired
	OutcomeExtended
	OutcomeQueued
	OutcomeAlreadyQueued
	OutcomeForbidden
	OutcomeNothingToRelease
	OutcomeReleased
	OutcomeFree
	OutcomeHeld
)

var outcomeNames = [...]string{
	OutcomeFailed:           "failed",
	OutcomeAcquired:         "acquired",
	OutcomeExtended:         "extended",
	OutcomeQueued:           "queued",
	OutcomeAlreadyQueued:    "already_queued",
	OutcomeForbidden:        "forbidden",
	OutcomeNothingToRelease: "nothing_to_release",
	OutcomeReleased:         "released",
	OutcomeFree:             "free",
	OutcomeHeld:             "held",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// Result 锁操作的返回值
type Result struct {
	Outcome Outcome

	// Message 给用户看的文本，传输层原样转发
	Message string

	// Lock 操作完成后的锁快照，锁已释放或不存在时为 nil
	Lock *Lock

	// Posted Message 已经由 Notifier 发到频道里，传输层无需再回显
	Posted bool

	// Err 仅在 OutcomeFailed 时非空
	Err error
}

func failed(message string, err error) Result {
	return Result{Outcome: OutcomeFailed, Message: message, Err: err}
}
