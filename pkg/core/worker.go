package core

// Result is the outcome of one task, or the running total of several.
// Read and Written reflect progress up to the failure point when Code is not OK.
type Result struct {
	Code    Code
	Read    uint64
	Written uint64
}

// Runner is a unit of work pulled from a BoundedQueue.
type Runner interface {
	Run() Result
}

// Worker runs tasks from a shared queue one after the other.
type Worker struct {
	queue *BoundedQueue[Runner]
}

// NewWorker creates a worker consuming queue.
func NewWorker(queue *BoundedQueue[Runner]) *Worker {
	return &Worker{queue: queue}
}

// Run pulls and executes tasks until the queue is empty or a task fails. The
// returned totals cover every task this worker executed; Code is the failing
// task's code, or OK. Aborting the queue is left to the caller.
func (w *Worker) Run() Result {
	var total Result
	for total.Code == OK {
		task, ok := w.queue.Pull()
		if !ok {
			break
		}
		res := task.Run()
		total.Code = res.Code
		total.Read += res.Read
		total.Written += res.Written
	}
	return total
}
