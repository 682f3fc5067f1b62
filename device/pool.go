package device

import (
	"runtime"
	"sync"
)

// parallelThreshold is the minimum item count to use the workers.
// Below this, a single inline call is faster than the channel round trips.
const parallelThreshold = 256

// Kernel processes items [start, end). part is the chunk number, in
// [0, Parts(n)), and may index per-chunk scratch such as partial sums.
type Kernel func(start, end, part int)

// workChunk represents a range of items for a worker to process.
type workChunk struct {
	start, end int
	part       int
	fn         Kernel
}

// Pool runs kernels on persistent worker goroutines. Run blocks until every
// chunk has finished, so the caller may mutate shared state after it returns.
type Pool struct {
	numWorkers int

	workChan chan workChunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool

	mu sync.Mutex // serializes Run
}

// NewPool creates a pool with the given worker count (0 = GOMAXPROCS).
// Workers are not started until Start.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{numWorkers: workers}
}

// Workers returns the worker count.
func (p *Pool) Workers() int { return p.numWorkers }

// Start launches the worker goroutines.
func (p *Pool) Start() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop signals all workers to exit and waits for them.
func (p *Pool) Stop() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case c := <-p.workChan:
			c.fn(c.start, c.end, c.part)
			p.doneChan <- struct{}{}
		}
	}
}

// Parts returns the number of chunks Run splits n items into.
func (p *Pool) Parts(n int) int {
	if n <= 0 {
		return 0
	}
	if p == nil || !p.running || n < parallelThreshold {
		return 1
	}
	size := p.chunkSize(n)
	return (n + size - 1) / size
}

func (p *Pool) chunkSize(n int) int {
	return (n + p.numWorkers - 1) / p.numWorkers
}

// Run applies fn over [0, n) and waits for completion.
// A nil or stopped pool runs fn inline as a single chunk.
func (p *Pool) Run(n int, fn Kernel) {
	if n <= 0 {
		return
	}
	if p == nil {
		fn(0, n, 0)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running || n < parallelThreshold {
		fn(0, n, 0)
		return
	}

	size := p.chunkSize(n)
	parts := 0
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		p.workChan <- workChunk{start: start, end: end, part: parts, fn: fn}
		parts++
	}
	for i := 0; i < parts; i++ {
		<-p.doneChan
	}
}
