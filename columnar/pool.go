package columnar

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/gbam/record"
	"v.io/x/lib/vlog"
)

// Task is the unit of work submitted to the Pool: compress exactly one
// field's closed block, preserving enough bookkeeping (OrderingKey,
// NumItems) for the writer to place the result in the footer.
type Task struct {
	OrderingKey       int
	Field             record.Field
	Name              string // footer Fields key: Field.String(), or its ".index" companion
	NumItems          uint32
	UncompressedBytes []byte
	Codec             Codec
}

// Result is what a worker hands back once it finishes a Task. Buf is nil
// for the sentinel results the pool yields before real work starts
// flowing.
type Result struct {
	OrderingKey int
	Field       record.Field
	Name        string
	NumItems    uint32
	Buf         []byte
}

// Pool is a work-stealing pool of N workers that compress field blocks.
// Submission blocks once ThreadCount tasks are in flight. Results are
// available in FIFO-of-completion order, not submission order -- callers
// rely on Result.OrderingKey to place the block correctly.
type Pool struct {
	threadCount int
	submit      chan Task
	complete    chan Result
	err         errors.Once
}

// NewPool starts a pool of threadCount workers. threadCount must be >= 1.
//
// Invariant maintained by callers: every Submit is preceded by a
// GetCompressedBlock. Under that invariant, exactly
// threadCount results (the priming sentinels, or real in-flight blocks that
// have replaced them one-for-one) are ever outstanding at once, which is
// what Finish drains.
func NewPool(threadCount int) *Pool {
	if threadCount < 1 {
		threadCount = 1
	}
	p := &Pool{
		threadCount: threadCount,
		submit:      make(chan Task, threadCount),
		complete:    make(chan Result, threadCount),
	}
	for i := 0; i < threadCount; i++ {
		go p.worker()
	}
	// Prime the completion channel with sentinels so the first ThreadCount
	// calls to GetCompressedBlock return immediately with empty results.
	for i := 0; i < threadCount; i++ {
		p.complete <- Result{}
	}
	return p
}

func (p *Pool) worker() {
	for task := range p.submit {
		buf, err := task.Codec.Compress(nil, task.UncompressedBytes)
		if err != nil {
			p.err.Set(err)
			vlog.Errorf("columnar: compress field %v block: %v", task.Field, err)
			buf = nil
		} else if buf == nil {
			// An empty block can compress to a nil slice (CodecNone); keep it
			// distinguishable from a priming sentinel.
			buf = []byte{}
		}
		p.complete <- Result{
			OrderingKey: task.OrderingKey,
			Field:       task.Field,
			Name:        task.Name,
			NumItems:    task.NumItems,
			Buf:         buf,
		}
	}
}

// Submit enqueues a task for compression. It blocks if ThreadCount tasks are
// already in flight.
func (p *Pool) Submit(t Task) {
	p.submit <- t
}

// GetCompressedBlock fetches the next completed task in readiness order. The
// first ThreadCount calls (before any real work has completed) return a
// sentinel Result with a nil Buf; callers must skip writing those.
func (p *Pool) GetCompressedBlock() Result {
	return <-p.complete
}

// Finish stops accepting new submissions and drains every task still in
// flight (or still a priming sentinel), returning the real results in
// completion order. Sentinels (nil Buf) are filtered out.
func (p *Pool) Finish() []Result {
	close(p.submit)
	results := make([]Result, 0, p.threadCount)
	for i := 0; i < p.threadCount; i++ {
		if r := <-p.complete; r.Buf != nil {
			results = append(results, r)
		}
	}
	return results
}

// Err returns the first error observed by any worker, if any.
func (p *Pool) Err() error {
	return p.err.Err()
}
