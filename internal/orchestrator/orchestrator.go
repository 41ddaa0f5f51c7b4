package orchestrator

import (
	"context"
	"sync"

	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/broadcast"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/model"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/recovery"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/scheduler"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/internal/telemetry"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/interfaces"
	"github.com/Avi-Lezerovich/3D-Printer-Project-sub003/pkg/logger"
)

// Orchestrator is the glue layer: it owns every component event subscription,
// fans events into the broadcaster, and issues cross-component reactions.
// Components never talk to each other directly.
type Orchestrator struct {
	processor   *telemetry.Processor
	scheduler   *scheduler.Scheduler
	coordinator *recovery.Coordinator
	broadcaster *broadcast.Broadcaster
	commands    interfaces.CommandChannel

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func New(
	processor *telemetry.Processor,
	sched *scheduler.Scheduler,
	coordinator *recovery.Coordinator,
	broadcaster *broadcast.Broadcaster,
	commands interfaces.CommandChannel,
) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		processor:   processor,
		scheduler:   sched,
		coordinator: coordinator,
		broadcaster: broadcaster,
		commands:    commands,
		ctx:         ctx,
		cancel:      cancel,
		stopCh:      make(chan struct{}),
	}
}

// Start launches one pump per component event stream.
func (o *Orchestrator) Start() {
	o.pump(o.processor.Events())
	o.pump(o.scheduler.Events())
	o.pump(o.coordinator.Events())
	logger.Info("orchestrator started")
}

// Stop cancels the pumps and any in-flight recovery, then waits for the
// pumps to drain.
func (o *Orchestrator) Stop() {
	o.once.Do(func() {
		close(o.stopCh)
		o.cancel()
	})
	o.wg.Wait()
	logger.Info("orchestrator stopped")
}

func (o *Orchestrator) pump(events <-chan model.Event) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-o.stopCh:
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				o.dispatch(event)
			}
		}
	}()
}

// dispatch forwards an event to the broadcaster and applies cross-component
// reactions. Reactions run inline; components are internally synchronized.
func (o *Orchestrator) dispatch(event model.Event) {
	o.broadcaster.Publish(event)

	if event.Type == model.EventAnomalyDetected && event.Severity == model.SeverityHigh {
		if anomaly, ok := event.Payload.(model.Anomaly); ok {
			o.handleCriticalAnomaly(event.DeviceID, anomaly)
		}
	}
}

// handleCriticalAnomaly pauses the affected print before handing the fault to
// the recovery coordinator. The pause is a safety action and is attempted even
// when the device later turns out to be blacklisted.
func (o *Orchestrator) handleCriticalAnomaly(deviceID string, anomaly model.Anomaly) {
	// Tied to Stop so a recovery backoff cannot outlive the orchestrator.
	ctx := o.ctx

	if o.commands != nil {
		if err := o.commands.PausePrint(ctx, deviceID); err != nil {
			logger.Warnf("failed to pause device %s on critical anomaly: %v", deviceID, err)
		}
	}

	devErr := model.DeviceError{
		Code:      errorCodeFor(anomaly.Kind),
		Message:   anomaly.Message,
		Timestamp: anomaly.Timestamp,
		Context:   map[string]string{"anomaly": anomaly.Kind},
	}
	if _, err := o.coordinator.HandleError(ctx, deviceID, devErr); err != nil {
		logger.Errorf("recovery for device %s failed: %v", deviceID, err)
	}
}

// ReportDeviceError is the entry point for errors raised by device I/O.
// The error is broadcast and handed to the recovery coordinator.
func (o *Orchestrator) ReportDeviceError(ctx context.Context, deviceID string, devErr model.DeviceError) (bool, error) {
	o.broadcaster.BroadcastPrinterError(deviceID, devErr, model.SeverityMedium)
	return o.coordinator.HandleError(ctx, deviceID, devErr)
}

// errorCodeFor maps anomaly kinds onto the recovery error-code vocabulary.
func errorCodeFor(kind string) string {
	switch kind {
	case model.AnomalyTemperatureSpike:
		return model.ErrorMaxTemp
	default:
		return model.ErrorGeneric
	}
}
