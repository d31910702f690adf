// Copyright 2023 Ewout Prangsma
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

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/de1soc/socperiph/pkg/service/bridge"
	"github.com/de1soc/socperiph/pkg/service/devices"
	"github.com/de1soc/socperiph/pkg/service/regmap"
)

const (
	testButtonBase = 0xFF200050
	testButtonIRQ  = 2
)

func newTestServer(t *testing.T) (*httptest.Server, *bridge.VirtualBridge) {
	b := bridge.NewVirtualBridge()
	b.SetWriteOneToClear(testButtonBase, 1)
	led := devices.Config{
		ID:         "leds",
		Compatible: devices.CompatibleLEDPWM,
		Region:     regmap.Region{Base: 0xFF203080, Length: 4},
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
	s, err := New(Config{}, zerolog.Nop(), svc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(s.newRouter())
	t.Cleanup(func() {
		ts.Close()
		svc.Close(context.Background())
	})
	return ts, b
}

func TestListDevices(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/devices")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var list deviceList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(list.Configured) != 2 || list.Configured[0] != "keys" || list.Configured[1] != "leds" {
		t.Errorf("unexpected device list %v", list.Configured)
	}
}

func TestWriteAndReadLED(t *testing.T) {
	ts, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/devices/leds", bytes.NewReader([]byte{50, 150}))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	var result writeResult
	json.NewDecoder(resp.Body).Decode(&result)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || result.Written != 2 {
		t.Fatalf("expected 2 bytes written, got status %d written %d", resp.StatusCode, result.Written)
	}

	resp, err = http.Get(ts.URL + "/devices/leds?count=4")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !bytes.Equal(buf.Bytes(), []byte{150}) {
		t.Errorf("expected [150], got %v", buf.Bytes())
	}
}

func TestReadButton(t *testing.T) {
	ts, b := newTestServer(t)
	mem := b.Memory(testButtonBase)
	for _, edges := range []uint32{0x1, 0x2} {
		mem.Poke(1, edges)
		b.IRQLine(testButtonIRQ).Fire()
	}
	resp, err := http.Get(ts.URL + "/devices/keys?count=8")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !bytes.Equal(buf.Bytes(), []byte{0x1, 0x2}) {
		t.Errorf("expected [1 2], got %v", buf.Bytes())
	}
}

func TestErrorStatusCodes(t *testing.T) {
	ts, _ := newTestServer(t)
	tests := []struct {
		method, path string
		body         []byte
		code         int
	}{
		{http.MethodGet, "/devices/nope", nil, http.StatusNotFound},
		{http.MethodGet, "/devices/leds?count=0", nil, http.StatusBadRequest},
		{http.MethodGet, "/devices/leds?count=x", nil, http.StatusBadRequest},
		{http.MethodPut, "/devices/keys", []byte{1}, http.StatusBadRequest},
		{http.MethodPut, "/devices/leds", nil, http.StatusBadRequest},
	}
	for _, test := range tests {
		req, _ := http.NewRequest(test.method, ts.URL+test.path, bytes.NewReader(test.body))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", test.method, test.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != test.code {
			t.Errorf("%s %s: expected %d, got %d", test.method, test.path, test.code, resp.StatusCode)
		}
	}
}

func TestWriteBodyLimit(t *testing.T) {
	ts, _ := newTestServer(t)
	oversized := bytes.Repeat([]byte{50}, 1000)
	bodies := map[string]io.Reader{
		"sized":   bytes.NewReader(oversized),
		"chunked": io.MultiReader(bytes.NewReader(oversized)),
	}
	for name, body := range bodies {
		req, _ := http.NewRequest(http.MethodPut, ts.URL+"/devices/leds", body)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusRequestEntityTooLarge {
			t.Errorf("%s: expected %d, got %d", name, http.StatusRequestEntityTooLarge, resp.StatusCode)
		}
	}
	// A write at the limit is accepted
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/devices/leds", bytes.NewReader(oversized[:devices.MaxLEDWriteSize]))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(buf.Bytes(), []byte("socperiph_devices_")) {
		t.Errorf("expected device metrics, got status %d", resp.StatusCode)
	}
}
