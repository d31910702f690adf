// Copyright 2018 Ewout Prangsma
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

package logging

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
)

// MQTTWriter is a log output that publishes every log line on an MQTT topic.
type MQTTWriter interface {
	io.Writer
	Enable(enable bool)
}

type mqttLogger struct {
	mutex  sync.Mutex
	queue  chan []byte
	topic  string
	enable bool
}

const (
	mqttQueueSize      = 512
	mqttPublishTimeout = time.Millisecond * 200
	mqttConnectRetry   = time.Second * 5
)

// NewMQTTWriter creates a new MQTT output for logs.
// The MQTT sender is closed when the given context is canceled.
func NewMQTTWriter(ctx context.Context, brokerAddress, clientID, topic string) MQTTWriter {
	l := newMQTTLogger(topic)
	opts := mqttapi.NewClientOptions().
		AddBroker("tcp://" + brokerAddress).
		SetClientID(clientID).
		SetAutoReconnect(true)
	go l.run(ctx, mqttapi.NewClient(opts))
	return l
}

func newMQTTLogger(topic string) *mqttLogger {
	return &mqttLogger{
		queue:  make(chan []byte, mqttQueueSize),
		topic:  topic,
		enable: true,
	}
}

// Write queues a copy of p. When the queue is full the oldest line is dropped.
func (l *mqttLogger) Write(p []byte) (n int, err error) {
	if len(p) == 0 || !l.isEnabled() {
		return len(p), nil
	}
	msg := append([]byte(nil), p...)
	for attempt := 0; attempt < 10; attempt++ {
		select {
		case l.queue <- msg:
			return len(p), nil
		default:
			// Queue full; Take 1 out and try again
			select {
			case <-l.queue:
				// Continue
			default:
				// Also continue
			}
		}
	}
	// Ignore errors
	return len(p), nil
}

func (l *mqttLogger) Enable(enable bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.enable = enable
}

func (l *mqttLogger) isEnabled() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.enable
}

type logMsg struct {
	Message string `json:"message"`
}

// encodeLogMsg wraps a log line in the published JSON message.
func encodeLogMsg(p []byte) ([]byte, error) {
	return json.Marshal(logMsg{Message: string(p)})
}

func (l *mqttLogger) run(ctx context.Context, client mqttapi.Client) {
	defer client.Disconnect(250)
	for !client.IsConnected() {
		if token := client.Connect(); token.Wait() && token.Error() == nil {
			break
		}
		select {
		case <-time.After(mqttConnectRetry):
			// Retry
		case <-ctx.Done():
			return
		}
	}
	for {
		select {
		case msg := <-l.queue:
			payload, err := encodeLogMsg(msg)
			if err != nil {
				continue
			}
			// Logging a failure here would feed back into this writer
			client.Publish(l.topic, 0, false, payload).WaitTimeout(mqttPublishTimeout)
		case <-ctx.Done():
			return
		}
	}
}
