package remote

import "sync"

// progress turns counts of planned and finished sub-operations into a
// completion value. The final fan-in counts as one more outstanding step,
// so only finish reports 1.
type progress struct {
	mu    sync.Mutex
	fn    func(float64)
	total int
	done  int
	last  float64
}

func newProgress(fn func(float64)) *progress {
	return &progress{fn: fn}
}

// add plans n more sub-operations.
func (p *progress) add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total += n
}

// step marks one sub-operation as finished.
func (p *progress) step() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	p.reportLocked(float64(p.done) / float64(p.total+1))
}

func (p *progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reportLocked(1)
}

func (p *progress) reportLocked(v float64) {
	if p.fn == nil || v <= p.last {
		return
	}
	if v > 1 {
		v = 1
	}
	p.last = v
	p.fn(v)
}
