// Copyright 2026 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package devices

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/de1soc/socperiph/pkg/service/bridge"
	"github.com/de1soc/socperiph/pkg/service/events"
	"github.com/de1soc/socperiph/pkg/service/regmap"
)

const (
	regInterruptMask = 0
	regEdgeCapture   = 1
	buttonRegisters  = 2
)

type pushbutton struct {
	log      zerolog.Logger
	config   Config
	bAPI     bridge.API
	onActive func()

	accepted  prometheus.Counter
	dropped   prometheus.Counter
	readBytes prometheus.Counter

	mutex   sync.Mutex
	window  regmap.Window
	queue   *events.Queue
	irq     bridge.IRQ
	irqDone chan struct{}
}

var _ Button = &pushbutton{}

// newPushbutton creates an interrupt driven pushbutton bank for the given config.
func newPushbutton(log zerolog.Logger, config Config, bAPI bridge.API, onActive func()) (Button, error) {
	if config.Compatible != CompatiblePushbutton {
		return nil, InvalidArgument("Invalid compatible '%s'", config.Compatible)
	}
	if config.Region.Words() < buttonRegisters {
		return nil, InvalidArgument("Region %s of device '%s' is too small, need %d registers",
			config.Region, config.ID, buttonRegisters)
	}
	if config.IRQ < 0 {
		return nil, InvalidArgument("Device '%s' has invalid interrupt line %d", config.ID, config.IRQ)
	}
	if config.Button.QueueCapacity <= 0 {
		return nil, InvalidArgument("Queue capacity of device '%s' must be positive", config.ID)
	}
	if config.Button.EdgeMask == 0 || config.Button.EdgeMask > 0xFF {
		return nil, InvalidArgument("Edge mask 0x%x of device '%s' must fit in a single byte", config.Button.EdgeMask, config.ID)
	}
	return &pushbutton{
		log:       log,
		config:    config,
		bAPI:      bAPI,
		onActive:  onActive,
		accepted:  eventsAcceptedTotal.WithLabelValues(config.ID),
		dropped:   eventsDroppedTotal.WithLabelValues(config.ID),
		readBytes: readBytesTotal.WithLabelValues(config.ID),
	}, nil
}

// ID returns the identifier of the device.
func (d *pushbutton) ID() string {
	return d.config.ID
}

// Configure allocates the event queue, maps the registers, attaches the
// interrupt handler and finally unmasks the button interrupts.
// On failure everything acquired so far is released again.
func (d *pushbutton) Configure(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.window != nil {
		return nil
	}
	queue, err := events.NewQueue(d.config.Button.QueueCapacity)
	if err != nil {
		return SetupFailure(err, "NewQueue[%s] failed", d.config.ID)
	}
	window, err := d.bAPI.MapRegion(d.config.Region)
	if err != nil {
		queue.Close()
		return SetupFailure(err, "MapRegion[%s] failed", d.config.ID)
	}
	// Stale edges from before activation are not reported
	window.Write(regEdgeCapture, d.config.Button.EdgeMask)

	edgeMask := d.config.Button.EdgeMask
	handler := func() {
		d.capture(window, queue, edgeMask)
	}
	irq, err := d.bAPI.RequestIRQ(d.config.IRQ, handler)
	if err != nil {
		if rerr := window.Release(); rerr != nil {
			d.log.Warn().Err(rerr).Msg("Failed to release registers after failed activation")
		}
		queue.Close()
		return SetupFailure(err, "RequestIRQ[%s] failed", d.config.ID)
	}
	irqDone := make(chan struct{})
	go func() {
		defer close(irqDone)
		if err := irq.Serve(); err != nil {
			d.log.Error().Err(err).Int("irq", d.config.IRQ).Msg("Interrupt handling failed")
		}
	}()
	window.Write(regInterruptMask, d.config.Button.InterruptMask)

	d.window = window
	d.queue = queue
	d.irq = irq
	d.irqDone = irqDone
	d.log.Debug().
		Int("irq", d.config.IRQ).
		Int("queue-capacity", queue.Cap()).
		Msg("Pushbutton device active")
	d.onActive()
	return nil
}

// capture runs once per interrupt.
// It must not block: the edge register is acknowledged even when the
// event is dropped, otherwise the interrupt fires again right away.
func (d *pushbutton) capture(window regmap.Window, queue *events.Queue, edgeMask uint32) {
	edges := window.Read(regEdgeCapture) & edgeMask
	ev := events.Event(edges)
	if queue.Push(ev) {
		d.accepted.Inc()
	} else {
		d.dropped.Inc()
	}
	window.Write(regEdgeCapture, edgeMask)
	d.onActive()
}

// Close masks the interrupts, waits for the interrupt handler to finish,
// wakes all readers and unmaps the registers.
func (d *pushbutton) Close(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.window == nil {
		return nil
	}
	d.window.Write(regInterruptMask, 0)
	irqErr := d.irq.Release()
	<-d.irqDone
	d.queue.Close()
	winErr := d.window.Release()

	d.window = nil
	d.irq = nil
	d.irqDone = nil
	d.onActive()
	if irqErr != nil {
		return maskAny(irqErr)
	}
	if winErr != nil {
		return maskAny(winErr)
	}
	return nil
}

// Open starts a new read session.
func (d *pushbutton) Open() (File, error) {
	return &buttonFile{dev: d}, nil
}

// QueuedEvents returns the number of events waiting to be read.
func (d *pushbutton) QueuedEvents() int {
	if q := d.currentQueue(); q != nil {
		return q.Len()
	}
	return 0
}

// DroppedEvents returns the number of events dropped because the queue was full.
func (d *pushbutton) DroppedEvents() uint64 {
	if q := d.currentQueue(); q != nil {
		return q.Dropped()
	}
	return 0
}

// currentQueue returns the queue of the last activation (if any).
func (d *pushbutton) currentQueue() *events.Queue {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.queue
}

// buttonFile is a read session on a pushbutton device.
type buttonFile struct {
	dev *pushbutton
}

// Read waits for button events and returns them, one byte per event.
func (f *buttonFile) Read(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, InvalidArgument("empty buffer")
	}
	d := f.dev
	d.mutex.Lock()
	queue, active := d.queue, d.window != nil
	d.mutex.Unlock()
	if !active {
		return 0, maskAny(NotActiveError)
	}
	n, err := queue.Read(ctx, p)
	if events.IsQueueClosed(err) {
		return n, maskAny(NotActiveError)
	} else if err != nil {
		return n, maskAny(err)
	}
	d.readBytes.Add(float64(n))
	d.onActive()
	return n, nil
}

// Write is not supported, the device is read-only.
func (f *buttonFile) Write(ctx context.Context, p []byte) (int, error) {
	return 0, InvalidArgument("device '%s' is read-only", f.dev.config.ID)
}

// Close ends the session.
func (f *buttonFile) Close() error {
	return nil
}
