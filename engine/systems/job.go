// Package systems holds the background services shared by the engine
// subsystems.
package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/vulkanmonkey/engine/core"
)

var (
	ErrNoWorkers           = fmt.Errorf("attempting to create worker pool with less than 1 worker")
	ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
	ErrJobSystemClosed     = errors.New("job system is shut down")
)

/**
 * @brief Describes a job to be run.
 */
type Job struct {
	/** @brief Used in log messages. */
	Name string
	/** @brief Invoked on a worker goroutine. Required. */
	Run func() error
	/** @brief Invoked on the worker after Run succeeded. Optional. */
	OnComplete func()
	/** @brief Invoked on the worker after Run failed. Optional. */
	OnFailure func(err error)
}

// JobSystem runs jobs on a fixed number of worker goroutines.
type JobSystem struct {
	numWorkers int
	jobQueue   chan Job
	wg         sync.WaitGroup

	mutex  sync.RWMutex
	closed bool
}

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan Job, channelSize),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job Job) {
	if err := job.Run(); err != nil {
		core.LogError("job %s failed: %s", job.Name, err)
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
		return
	}
	if job.OnComplete != nil {
		job.OnComplete()
	}
}

// Workers is the number of worker goroutines.
func (js *JobSystem) Workers() int {
	return js.numWorkers
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 */
func (js *JobSystem) Submit(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s has no Run function", job.Name)
	}
	js.mutex.RLock()
	defer js.mutex.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.jobQueue <- job
	return nil
}

/**
 * @brief Shuts the job system down. Queued jobs still run; the call returns
 * once every worker exited.
 */
func (js *JobSystem) Shutdown() error {
	js.mutex.Lock()
	if js.closed {
		js.mutex.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.mutex.Unlock()

	js.wg.Wait()
	return nil
}
