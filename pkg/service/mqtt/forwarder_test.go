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

package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/de1soc/socperiph/pkg/service/bridge"
	"github.com/de1soc/socperiph/pkg/service/devices"
	"github.com/de1soc/socperiph/pkg/service/regmap"
)

const (
	testLEDBase    = 0xFF203080
	testButtonBase = 0xFF200050
	testButtonIRQ  = 3
)

func newTestService(t *testing.T) (devices.Service, *bridge.VirtualBridge) {
	b := bridge.NewVirtualBridge()
	b.SetWriteOneToClear(testButtonBase, 1)
	led := devices.Config{
		ID:         "leds",
		Compatible: devices.CompatibleLEDPWM,
		Region:     regmap.Region{Base: testLEDBase, Length: 4},
		LED:        devices.DefaultLEDConfig(),
	}
	led.LED.Channels = 1
	led.LED.UserChannel = 0
	led.LED.Pacing = time.Millisecond
	btn := devices.Config{
		ID:         "keys",
		Compatible: devices.CompatiblePushbutton,
		Region:     regmap.Region{Base: testButtonBase, Length: 16},
		IRQ:        testButtonIRQ,
		Button:     devices.DefaultButtonConfig(),
	}
	svc, err := devices.NewService([]devices.Config{led, btn}, b, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Configure(context.Background()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	t.Cleanup(func() { svc.Close(context.Background()) })
	return svc, b
}

func newTestForwarder(t *testing.T, svc devices.Service) *Forwarder {
	f, err := NewForwarder(Config{BrokerAddress: "localhost:1883", ClientID: "test", TopicPrefix: "/de1soc/"}, svc, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewForwarder: %v", err)
	}
	return f
}

func TestTopics(t *testing.T) {
	if s := EventTopic("/de1soc", "keys"); s != "/de1soc/keys/event" {
		t.Errorf("unexpected event topic '%s'", s)
	}
	if s := PercentTopic("/de1soc", "leds"); s != "/de1soc/leds/percent/set" {
		t.Errorf("unexpected percent topic '%s'", s)
	}
	if id, ok := deviceIDFromPercentTopic("/de1soc", "/de1soc/leds/percent/set"); !ok || id != "leds" {
		t.Errorf("expected leds, got '%s' %v", id, ok)
	}
	for _, topic := range []string{"/other/leds/percent/set", "/de1soc/leds/event", "/de1soc//percent/set", "/de1soc/a/b/percent/set"} {
		if _, ok := deviceIDFromPercentTopic("/de1soc", topic); ok {
			t.Errorf("topic '%s' must not match", topic)
		}
	}
}

func TestFormatEvent(t *testing.T) {
	if s := FormatEvent(0x2); s != "0x02" {
		t.Errorf("expected 0x02, got '%s'", s)
	}
}

func TestParsePercent(t *testing.T) {
	if v, err := ParsePercent(" 150\n"); err != nil || v != 150 {
		t.Errorf("expected 150, got %d (%v)", v, err)
	}
	for _, payload := range []string{"", "-1", "256", "abc"} {
		if _, err := ParsePercent(payload); err == nil {
			t.Errorf("payload '%s' must be rejected", payload)
		}
	}
}

func TestNewForwarderRequiresBroker(t *testing.T) {
	if _, err := NewForwarder(Config{}, nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeviceIDs(t *testing.T) {
	svc, _ := newTestService(t)
	f := newTestForwarder(t, svc)
	leds, buttons := f.deviceIDs()
	if len(leds) != 1 || leds[0] != "leds" {
		t.Errorf("unexpected LED devices %v", leds)
	}
	if len(buttons) != 1 || buttons[0] != "keys" {
		t.Errorf("unexpected button devices %v", buttons)
	}
}

type published struct {
	topic, payload string
}

func TestForwardEvents(t *testing.T) {
	svc, b := newTestService(t)
	f := newTestForwarder(t, svc)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mutex sync.Mutex
	var messages []published
	got := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- f.forwardEvents(ctx, "keys", func(topic, payload string) error {
			mutex.Lock()
			messages = append(messages, published{topic, payload})
			mutex.Unlock()
			got <- struct{}{}
			return nil
		})
	}()

	mem := b.Memory(testButtonBase)
	for _, edges := range []uint32{0x1, 0x8} {
		mem.Poke(1, edges)
		b.IRQLine(testButtonIRQ).Fire()
		select {
		case <-got:
		case <-time.After(time.Second):
			t.Fatal("event not published")
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("forwardEvents: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("forwardEvents did not stop")
	}
	mutex.Lock()
	defer mutex.Unlock()
	expected := []published{{"/de1soc/keys/event", "0x01"}, {"/de1soc/keys/event", "0x08"}}
	for i, e := range expected {
		if messages[i] != e {
			t.Errorf("message %d: expected %v, got %v", i, e, messages[i])
		}
	}
}

func TestApplyPercent(t *testing.T) {
	svc, b := newTestService(t)
	f := newTestForwarder(t, svc)
	ctx := context.Background()
	if err := f.applyPercent(ctx, "/de1soc/leds/percent/set", "50"); err != nil {
		t.Fatalf("applyPercent: %v", err)
	}
	dev, _ := svc.DeviceByID("leds")
	if p := dev.(devices.LED).LastPercent(); p != 50 {
		t.Errorf("expected last percent 50, got %d", p)
	}
	if v := b.Memory(testLEDBase).Peek(0); v != 1023 {
		t.Errorf("expected duty 1023, got %d", v)
	}
	if err := f.applyPercent(ctx, "/de1soc/keys/percent/set", "50"); !devices.IsInvalidArgument(err) {
		t.Errorf("expected InvalidArgument for button device, got %v", err)
	}
	if err := f.applyPercent(ctx, "/de1soc/nope/percent/set", "50"); !devices.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}
	if err := f.applyPercent(ctx, "/de1soc/leds/percent/set", "x"); err == nil {
		t.Error("expected parse error")
	}
}
