package collab

import (
	"context"
	"errors"
)

// 通道实现的计数信号量：容量即最大并发数
// 用在两处：限制 Kafka 并发发送量；限制单进程同时进行的落库保存数
type SemaphoreControl struct {
	ch chan struct{}
}

const DefaultMaxSemaphore = 100

func NewSemaphoreControl(capacity int) *SemaphoreControl {
	if capacity <= 0 {
		capacity = DefaultMaxSemaphore
	}
	return &SemaphoreControl{ch: make(chan struct{}, capacity)}
}

func (s *SemaphoreControl) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errors.New("Acquire Reach time limit")
	}
}

// AcquireBlocking 后台 worker 用，允许无限等
func (s *SemaphoreControl) AcquireBlocking() error {
	s.ch <- struct{}{}
	return nil
}

func (s *SemaphoreControl) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return errors.New("Release Failed, semaphore is not acquired")
	}
}
