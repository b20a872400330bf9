package queue

import (
	"container/heap"

	"github.com/aluiziolira/go-scrape-rentals/models"
)

// queuedJob is a heap entry. seq is the submission order and survives a
// stall requeue so the job keeps its place.
type queuedJob struct {
	job    *models.ScrapeJob
	seq    uint64
	stalls int
	index  int
}

// jobHeap orders by priority, highest first, then by submission order.
type jobHeap []*queuedJob

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	qj := x.(*queuedJob)
	qj.index = len(*h)
	*h = append(*h, qj)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	qj := old[n-1]
	old[n-1] = nil
	qj.index = -1
	*h = old[:n-1]
	return qj
}

func (h *jobHeap) push(qj *queuedJob) { heap.Push(h, qj) }

func (h *jobHeap) pop() *queuedJob { return heap.Pop(h).(*queuedJob) }

func (h *jobHeap) remove(qj *queuedJob) { heap.Remove(h, qj.index) }

// countByPriority reports pending jobs per priority class name.
func (h jobHeap) countByPriority() map[string]int {
	out := make(map[string]int, len(models.Priorities))
	for _, p := range models.Priorities {
		out[p.String()] = 0
	}
	for _, qj := range h {
		out[qj.job.Priority.String()]++
	}
	return out
}
