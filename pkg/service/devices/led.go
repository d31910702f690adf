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
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"

	"github.com/de1soc/socperiph/pkg/service/bridge"
	"github.com/de1soc/socperiph/pkg/service/pwm"
	"github.com/de1soc/socperiph/pkg/service/regmap"
)

const (
	// Largest number of bytes accepted by a single write.
	MaxLEDWriteSize = 64
)

type ledPWM struct {
	log      zerolog.Logger
	config   Config
	bAPI     bridge.API
	onActive func()
	writeSem *semaphore.Weighted

	userWrites prometheus.Counter
	readBytes  prometheus.Counter
	writeBytes prometheus.Counter

	mutex       sync.Mutex
	window      regmap.Window
	engine      *pwm.Engine
	closing     chan struct{}
	lastPercent atomic.Uint32
}

var _ LED = &ledPWM{}

// newLEDPWM creates a PWM driven LED array for the given config.
func newLEDPWM(log zerolog.Logger, config Config, bAPI bridge.API, onActive func()) (LED, error) {
	if config.Compatible != CompatibleLEDPWM {
		return nil, InvalidArgument("Invalid compatible '%s'", config.Compatible)
	}
	lc := config.LED
	if lc.Channels == 0 {
		return nil, InvalidArgument("Device '%s' must have at least 1 channel", config.ID)
	}
	if lc.Channels > config.Region.Words() {
		return nil, InvalidArgument("Device '%s' has %d channels, region %s holds only %d registers",
			config.ID, lc.Channels, config.Region, config.Region.Words())
	}
	if lc.UserChannel != NoUserChannel && (lc.UserChannel < 0 || uint(lc.UserChannel) >= lc.Channels) {
		return nil, InvalidArgument("User channel %d of device '%s' is out of range. Range [0..%d)",
			lc.UserChannel, config.ID, lc.Channels)
	}
	if lc.Pacing < 0 {
		return nil, InvalidArgument("Pacing of device '%s' must not be negative", config.ID)
	}
	if err := lc.engineConfig().Validate(); err != nil {
		return nil, InvalidArgument("Pattern of device '%s' is invalid: %v", config.ID, err)
	}
	return &ledPWM{
		log:        log,
		config:     config,
		bAPI:       bAPI,
		onActive:   onActive,
		writeSem:   semaphore.NewWeighted(1),
		userWrites: userDutyWritesTotal.WithLabelValues(config.ID),
		readBytes:  readBytesTotal.WithLabelValues(config.ID),
		writeBytes: writeBytesTotal.WithLabelValues(config.ID),
	}, nil
}

// ID returns the identifier of the device.
func (d *ledPWM) ID() string {
	return d.config.ID
}

// ChannelCount returns the number of PWM channels of the device
func (d *ledPWM) ChannelCount() uint {
	return d.config.LED.Channels
}

// UserChannel returns the channel reserved for user writes.
func (d *ledPWM) UserChannel() (uint, bool) {
	if d.config.LED.UserChannel == NoUserChannel {
		return 0, false
	}
	return uint(d.config.LED.UserChannel), true
}

// managedChannels returns all channels driven by the pattern engine.
func (d *ledPWM) managedChannels() []uint {
	all := make([]uint, d.config.LED.Channels)
	for i := range all {
		all[i] = uint(i)
	}
	return lo.Filter(all, func(ch uint, _ int) bool {
		return int(ch) != d.config.LED.UserChannel
	})
}

// Configure maps the registers, turns all LEDs fully on and arms the pattern.
func (d *ledPWM) Configure(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.window != nil {
		return nil
	}
	window, err := d.bAPI.MapRegion(d.config.Region)
	if err != nil {
		return SetupFailure(err, "MapRegion[%s] failed", d.config.ID)
	}
	var engine *pwm.Engine
	if managed := d.managedChannels(); len(managed) > 0 {
		engine, err = pwm.NewEngine(d.config.ID, window, managed, d.config.LED.engineConfig())
		if err != nil {
			if rerr := window.Release(); rerr != nil {
				d.log.Warn().Err(rerr).Msg("Failed to release registers after failed activation")
			}
			return SetupFailure(err, "NewEngine[%s] failed", d.config.ID)
		}
	}
	for ch := uint(0); ch < d.config.LED.Channels; ch++ {
		window.Write(ch, pwm.MaxDuty)
	}
	d.lastPercent.Store(100)
	d.window = window
	d.engine = engine
	d.closing = make(chan struct{})
	if engine != nil {
		engine.Start()
	}
	d.log.Debug().
		Uint("channels", d.config.LED.Channels).
		Int("user-channel", d.config.LED.UserChannel).
		Dur("arm-delay", d.config.LED.ArmDelay).
		Msg("LED device active")
	d.onActive()
	return nil
}

// Close stops the pattern, turns all LEDs off and unmaps the registers.
func (d *ledPWM) Close(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.window == nil {
		return nil
	}
	close(d.closing)
	// The pattern must be quiet before the window goes away
	if d.engine != nil {
		d.engine.Stop()
	}
	for ch := uint(0); ch < d.config.LED.Channels; ch++ {
		d.window.Write(ch, 0)
	}
	err := d.window.Release()
	d.window = nil
	d.engine = nil
	d.onActive()
	if err != nil {
		return maskAny(err)
	}
	return nil
}

// Open starts a new read/write session.
func (d *ledPWM) Open() (File, error) {
	return &ledFile{dev: d}, nil
}

// LastPercent returns the last percentage written by a user.
func (d *ledPWM) LastPercent() byte {
	return byte(d.lastPercent.Load())
}

// PatternRunning returns true when the pattern engine is ticking.
func (d *ledPWM) PatternRunning() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.engine != nil && d.engine.Running()
}

// PatternDuty returns the duty value written by the last pattern tick.
func (d *ledPWM) PatternDuty() uint32 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.engine == nil {
		return 0
	}
	return d.engine.Duty()
}

// applyPercent writes the duty value of the given percentage to the user channel.
// Returns the channel that is closed when the device is closing.
func (d *ledPWM) applyPercent(ch uint, percent byte) (<-chan struct{}, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.window == nil {
		return nil, maskAny(NotActiveError)
	}
	d.window.Write(ch, pwm.ToDuty(int(percent)))
	d.lastPercent.Store(uint32(percent))
	d.userWrites.Inc()
	return d.closing, nil
}

// write applies the given percentages one by one to the user channel.
// After each value the call waits for the pacing interval, so the hardware
// shows every value. Concurrent writers are served one at a time.
func (d *ledPWM) write(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, InvalidArgument("empty buffer")
	}
	if len(p) > MaxLEDWriteSize {
		return 0, InvalidArgument("write of %d bytes exceeds maximum of %d", len(p), MaxLEDWriteSize)
	}
	ch, ok := d.UserChannel()
	if !ok {
		return 0, InvalidArgument("device '%s' has no user channel", d.config.ID)
	}
	if err := d.writeSem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer d.writeSem.Release(1)

	d.onActive()
	for i, percent := range p {
		closing, err := d.applyPercent(ch, percent)
		if err != nil {
			return i, err
		}
		d.writeBytes.Inc()
		timer := time.NewTimer(d.config.LED.Pacing)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return i + 1, ctx.Err()
		case <-closing:
			timer.Stop()
			return i + 1, maskAny(NotActiveError)
		}
	}
	return len(p), nil
}

// ledFile is a read/write session on a LED device.
type ledFile struct {
	dev    *ledPWM
	offset int64
}

// Read returns the last written percentage as a single byte on the
// first call, and end-of-stream afterwards.
func (f *ledFile) Read(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, InvalidArgument("empty buffer")
	}
	d := f.dev
	d.mutex.Lock()
	active := d.window != nil
	d.mutex.Unlock()
	if !active {
		return 0, maskAny(NotActiveError)
	}
	if f.offset != 0 {
		return 0, io.EOF
	}
	p[0] = d.LastPercent()
	f.offset++
	d.readBytes.Inc()
	d.onActive()
	return 1, nil
}

// Write applies the given percentages to the user channel.
func (f *ledFile) Write(ctx context.Context, p []byte) (int, error) {
	return f.dev.write(ctx, p)
}

// Close ends the session.
func (f *ledFile) Close() error {
	return nil
}
