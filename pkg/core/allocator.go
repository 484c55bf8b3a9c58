package core

// ComputeJobsPerTask spreads jobs over tasks as evenly as possible and writes
// the share of each task in dst. Earlier tasks receive the remainder, so the
// caller must keep tasks in a stable order. The shares always sum to jobs:
// with fewer jobs than tasks the last tasks get 0 and their sink runs on a
// single goroutine. dst is left untouched if jobs or tasks is not positive.
func ComputeJobsPerTask(dst []int, jobs, tasks int) {
	if jobs <= 0 || tasks <= 0 {
		return
	}

	q := jobs / tasks
	r := jobs - q*tasks

	for i := 0; i < tasks; i++ {
		dst[i] = q
	}

	for n := 0; r != 0; r-- {
		dst[n]++
		n++
		if n == tasks {
			n = 0
		}
	}
}

// JobsPerTask returns a fresh allocation of jobs over tasks.
func JobsPerTask(jobs, tasks int) []int {
	if tasks <= 0 {
		return nil
	}
	dst := make([]int, tasks)
	ComputeJobsPerTask(dst, jobs, tasks)
	return dst
}
