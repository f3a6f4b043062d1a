package sos

import (
	"context"
	"time"

	"SafeBuddyGuardian/pkg/logger"
	"SafeBuddyGuardian/pkg/scheduler"

	"go.uber.org/zap"
)

// DialFunc 向指定用户的设备下发拨号指令
type DialFunc func(ctx context.Context, userID uint, number string) error

// DialReceipt 单个号码的排队回执
type DialReceipt struct {
	Number    string    `json:"number"`
	QueuedAt  time.Time `json:"queuedAt"`
	Immediate bool      `json:"immediate"`
	Delay     string    `json:"delay,omitempty"`
}

// Dialer 紧急服务升级呼叫：第一个号码立即拨出，
// 其余号码按固定间隔错峰排队。拨号是 fire-and-forget，
// 失败只记日志（接通与否由人工处置）。
type Dialer struct {
	numbers []string
	stagger time.Duration
	dial    DialFunc
}

func NewDialer(numbers []string, stagger time.Duration, dial DialFunc) *Dialer {
	return &Dialer{numbers: numbers, stagger: stagger, dial: dial}
}

// DialSequence 按错峰序列排队所有号码，返回回执列表。
// 定时任务挂到调用方传入的 scheduler 上，会话结束时统一取消。
func (d *Dialer) DialSequence(ctx context.Context, sched *scheduler.Scheduler, userID uint, numbers []string) []DialReceipt {
	if len(numbers) == 0 {
		numbers = d.numbers
	}
	receipts := make([]DialReceipt, 0, len(numbers))
	now := time.Now()
	for i, number := range numbers {
		num := number
		attempt := func(ctx context.Context) {
			if err := d.dial(ctx, userID, num); err != nil {
				logger.Warn("emergency dial command failed",
					zap.Uint("user_id", userID),
					zap.String("number", num),
					zap.Error(err))
				return
			}
			logger.Info("emergency dial command issued",
				zap.Uint("user_id", userID),
				zap.String("number", num))
		}
		r := DialReceipt{Number: num, QueuedAt: now, Immediate: i == 0}
		if i == 0 {
			go attempt(ctx)
		} else {
			delay := time.Duration(i) * d.stagger
			r.Delay = delay.String()
			sched.OnceAfter(delay, scheduler.FuncJob(attempt))
		}
		receipts = append(receipts, r)
	}
	return receipts
}
