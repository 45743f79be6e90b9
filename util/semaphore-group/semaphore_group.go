package semaphoregroup

import (
	"context"
	"sync"
)

// SemaphoreGroup combines sync.WaitGroup and a semaphore. Jobs started with Do run on their own
// goroutine so a job that blocks in a system call only holds its slot, never the caller.
type SemaphoreGroup struct {
	semaphore chan struct{}
	wg        sync.WaitGroup
}

// NewSemaphoreGroup creates a new SemaphoreGroup with the specified semaphore limit.
// A limit below 1 is raised to 1.
func NewSemaphoreGroup(limit int) *SemaphoreGroup {
	if limit < 1 {
		limit = 1
	}
	return &SemaphoreGroup{
		semaphore: make(chan struct{}, limit),
	}
}

// Add acquire a slot
func (sg *SemaphoreGroup) Add(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case sg.semaphore <- struct{}{}:
		sg.wg.Add(1)
		return nil
	}
}

// Done releases a slot. Must be called after a successful Add.
func (sg *SemaphoreGroup) Done() {
	<-sg.semaphore
	sg.wg.Done()
}

// Do waits for a free slot, runs fn on a separate goroutine and returns its result.
// If ctx ends first Do returns ctx.Err() while fn keeps the slot until it returns.
func (sg *SemaphoreGroup) Do(ctx context.Context, fn func() error) error {
	if err := sg.Add(ctx); err != nil {
		return err
	}

	result := make(chan error, 1)
	go func() {
		defer sg.Done()
		result <- fn()
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every acquired slot is released
func (sg *SemaphoreGroup) Wait() {
	sg.wg.Wait()
}

// Limit returns the number of slots
func (sg *SemaphoreGroup) Limit() int {
	return cap(sg.semaphore)
}
