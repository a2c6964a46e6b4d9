package worker

import (
	"context"

	"bidflow/engine"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SequenceWorker owns the periodic trigger for the sequence processor. The
// processor itself is stateless between runs; each tick processes one
// bounded batch and returns.
type SequenceWorker struct {
	Processor *engine.Processor
	Schedule  string
	Logger    *logrus.Logger

	cron *cron.Cron
}

func NewSequenceWorker(processor *engine.Processor, schedule string, logger *logrus.Logger) *SequenceWorker {
	return &SequenceWorker{
		Processor: processor,
		Schedule:  schedule,
		Logger:    logger,
	}
}

func (sw *SequenceWorker) Start(ctx context.Context) error {
	sw.cron = cron.New()

	_, err := sw.cron.AddFunc(sw.Schedule, func() {
		if _, err := sw.Processor.ProcessDue(ctx); err != nil {
			sw.Logger.WithError(err).Error("Scheduled sequence processing failed")
		}
	})
	if err != nil {
		return err
	}

	sw.cron.Start()
	sw.Logger.WithField("schedule", sw.Schedule).Info("Sequence worker started")

	go func() {
		<-ctx.Done()
		sw.Logger.Info("Sequence worker shutting down...")
		<-sw.cron.Stop().Done()
	}()

	return nil
}
