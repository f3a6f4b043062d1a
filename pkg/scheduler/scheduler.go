package scheduler

import (
	"context"
	"sync"
	"time"
)

type Job interface{ Run(ctx context.Context) }

type FuncJob func(ctx context.Context)

func (f FuncJob) Run(ctx context.Context) { f(ctx) }

// Task 一个已调度任务的句柄。Cancel 幂等，任务退出后 Done 关闭。
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Cancel 取消任务并等待其退出
func (t *Task) Cancel() {
	t.once.Do(t.cancel)
	<-t.done
}

// Cancelled reports whether the task has finished or been cancelled.
func (t *Task) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the task has exited.
func (t *Task) Done() <-chan struct{} { return t.done }

// Scheduler 管理一组可取消的定时任务；Stop 取消全部。
// Stop 之后再调度的任务直接以已完成态返回，不会执行。
type Scheduler struct {
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{ctx: ctx, cancel: cancel}
}

// Stop 取消所有任务并等待退出
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// spawn 在调度器未停止时登记一个任务 goroutine
func (s *Scheduler) spawn(t *Task, run func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		close(t.done)
		return false
	}
	s.wg.Add(1)
	go run()
	return true
}

// Every 先立即执行一次，然后按固定间隔执行，直至句柄被取消。
// 每次执行串行完成后才等待下一个周期，任务不会并发重入。
func (s *Scheduler) Every(d time.Duration, job Job) *Task {
	ctx, cancel := context.WithCancel(s.ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	s.spawn(t, func() {
		defer s.wg.Done()
		defer close(t.done)
		select {
		case <-ctx.Done():
			return
		default:
		}
		job.Run(ctx)
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				job.Run(ctx)
			}
		}
	})
	return t
}

// OnceAfter 延迟 d 后执行一次；取消发生在触发前则任务不执行
func (s *Scheduler) OnceAfter(d time.Duration, job Job) *Task {
	ctx, cancel := context.WithCancel(s.ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	s.spawn(t, func() {
		defer s.wg.Done()
		defer close(t.done)
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			job.Run(ctx)
		}
	})
	return t
}
