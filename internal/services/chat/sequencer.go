package chat

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Sequencer runs submitted work one job at a time per room.
//
// Rooms are hashed onto a fixed set of shards. Each shard is a single worker
// draining its own queue, so jobs for one room execute in submission order
// while different rooms spread across shards.
type Sequencer struct {
	shards  []chan job
	wg      sync.WaitGroup
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	log     *zap.Logger
}

const (
	jobQueued int32 = iota
	jobRunning
	jobAbandoned
)

type job struct {
	room   string
	run    func()
	result chan struct{}
	state  *atomic.Int32
}

func NewSequencer(shards, queueSize int, log *zap.Logger) *Sequencer {
	if shards <= 0 {
		shards = 1
	}
	s := &Sequencer{
		shards:  make([]chan job, shards),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		log:     log,
	}
	for i := range s.shards {
		s.shards[i] = make(chan job, queueSize)
	}
	return s
}

// Start spawns one worker per shard.
func (s *Sequencer) Start() {
	for i, queue := range s.shards {
		s.wg.Add(1)
		go s.worker(i, queue)
	}
	s.log.Info("message sequencer started", zap.Int("shards", len(s.shards)))
}

func (s *Sequencer) worker(id int, queue chan job) {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			// Drain what was accepted before shutdown.
			for {
				select {
				case j := <-queue:
					s.execute(j)
				default:
					s.log.Debug("sequencer shard stopped", zap.Int("shard", id))
					return
				}
			}
		case j := <-queue:
			s.execute(j)
		}
	}
}

func (s *Sequencer) execute(j job) {
	defer close(j.result)
	// A job its caller gave up on while queued never runs.
	if !j.state.CompareAndSwap(jobQueued, jobRunning) {
		return
	}
	j.run()
}

// Do runs fn on room's shard and waits for it to finish.
//
// If ctx ends while the job is still queued, the job is abandoned and Do
// returns ctx.Err(). Once a worker has picked the job up, Do waits for it
// regardless of ctx, so a nil error always means fn ran to completion and a
// non-nil error means it never started.
func (s *Sequencer) Do(ctx context.Context, room string, fn func()) error {
	j := job{room: room, run: fn, result: make(chan struct{}), state: new(atomic.Int32)}

	select {
	case <-s.done:
		return ErrShuttingDown
	default:
	}

	select {
	case s.shards[s.shardFor(room)] <- j:
	case <-s.done:
		return ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-j.result:
		return nil
	case <-s.stopped:
		// Workers are gone; the job ran only if its result was closed.
		select {
		case <-j.result:
			return nil
		default:
			return ErrShuttingDown
		}
	case <-ctx.Done():
		if j.state.CompareAndSwap(jobQueued, jobAbandoned) {
			return ctx.Err()
		}
		<-j.result
		return nil
	}
}

func (s *Sequencer) shardFor(room string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(room))
	return int(h.Sum32() % uint32(len(s.shards)))
}

// Shutdown stops accepting jobs, finishes queued ones and waits for workers.
func (s *Sequencer) Shutdown() {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		close(s.stopped)
		s.log.Info("message sequencer stopped")
	})
}

// QueueLength returns the number of jobs waiting across all shards.
func (s *Sequencer) QueueLength() int {
	n := 0
	for _, queue := range s.shards {
		n += len(queue)
	}
	return n
}
