package eventbus

// Scheduler runs a task on a later turn, off the caller's goroutine.
type Scheduler interface {
	Schedule(task func()) error
}

// SchedulerFunc adapts a plain function to the Scheduler interface
type SchedulerFunc func(task func()) error

// Schedule calls f(task)
func (f SchedulerFunc) Schedule(task func()) error {
	return f(task)
}

// goScheduler starts one goroutine per task
type goScheduler struct{}

func (goScheduler) Schedule(task func()) error {
	go task()
	return nil
}
