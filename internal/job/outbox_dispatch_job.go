package job

import (
	"context"
)

// maxDispatchRounds bounds one run so a flood of events cannot pin the job.
const maxDispatchRounds = 10

type outboxDispatcher interface {
	Dispatch(ctx context.Context) (int, error)
}

type OutboxDispatchJob struct {
	dispatcher outboxDispatcher
	batchSize  int
}

func NewOutboxDispatchJob(dispatcher outboxDispatcher, batchSize int) *OutboxDispatchJob {
	return &OutboxDispatchJob{dispatcher: dispatcher, batchSize: batchSize}
}

func (j *OutboxDispatchJob) Name() string {
	return "outbox_dispatch"
}

// Run keeps leasing batches while they come back full.
func (j *OutboxDispatchJob) Run(ctx context.Context) error {
	if j.dispatcher == nil {
		return nil
	}
	for round := 0; round < maxDispatchRounds; round++ {
		delivered, err := j.dispatcher.Dispatch(ctx)
		if err != nil {
			return err
		}
		if delivered < j.batchSize {
			return nil
		}
	}
	return nil
}
