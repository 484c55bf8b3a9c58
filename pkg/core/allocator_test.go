package core

import (
	"reflect"
	"testing"
)

func TestJobsPerTask(t *testing.T) {
	tests := []struct {
		jobs, tasks int
		want        []int
	}{
		{1, 1, []int{1}},
		{4, 1, []int{4}},
		{4, 4, []int{1, 1, 1, 1}},
		{7, 3, []int{3, 2, 2}},
		{8, 3, []int{3, 3, 2}},
		{2, 5, []int{1, 1, 0, 0, 0}},
		{5, 5, []int{1, 1, 1, 1, 1}},
		{16, 5, []int{4, 3, 3, 3, 3}},
	}
	for _, tc := range tests {
		if got := JobsPerTask(tc.jobs, tc.tasks); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("JobsPerTask(%d, %d) = %v, want %v", tc.jobs, tc.tasks, got, tc.want)
		}
	}
}

func TestJobsPerTaskProperties(t *testing.T) {
	for tasks := 1; tasks <= 12; tasks++ {
		for jobs := 1; jobs <= 64; jobs++ {
			got := JobsPerTask(jobs, tasks)
			if len(got) != tasks {
				t.Fatalf("jobs=%d tasks=%d: length %d", jobs, tasks, len(got))
			}
			sum := 0
			for _, n := range got {
				sum += n
				if n < jobs/tasks || n > jobs/tasks+1 {
					t.Fatalf("jobs=%d tasks=%d: share %d not within 1 of %d", jobs, tasks, n, jobs/tasks)
				}
			}
			if sum != jobs {
				t.Fatalf("jobs=%d tasks=%d: sum %d", jobs, tasks, sum)
			}
			if again := JobsPerTask(jobs, tasks); !reflect.DeepEqual(got, again) {
				t.Fatalf("jobs=%d tasks=%d: not deterministic", jobs, tasks)
			}
		}
	}
}

func TestComputeJobsPerTaskNoop(t *testing.T) {
	for _, tc := range []struct{ jobs, tasks int }{{0, 3}, {-1, 3}, {4, 0}, {4, -2}} {
		dst := []int{9, 9, 9}
		ComputeJobsPerTask(dst, tc.jobs, tc.tasks)
		if !reflect.DeepEqual(dst, []int{9, 9, 9}) {
			t.Errorf("jobs=%d tasks=%d modified dst: %v", tc.jobs, tc.tasks, dst)
		}
	}
	if got := JobsPerTask(3, 0); got != nil {
		t.Errorf("JobsPerTask(3, 0) = %v, want nil", got)
	}
	if got := JobsPerTask(0, 2); !reflect.DeepEqual(got, []int{0, 0}) {
		t.Errorf("JobsPerTask(0, 2) = %v, want [0 0]", got)
	}
}
