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

// Package mqtt bridges devices to an MQTT broker.
// Button events are published, LED percentages can be set.
package mqtt

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/de1soc/socperiph/pkg/service/devices"
	"github.com/de1soc/socperiph/pkg/service/util"
)

const (
	publishTimeout    = time.Millisecond * 200
	disconnectQuiesce = 250
	eventBufferSize   = 8
	percentSetSuffix  = "/percent/set"
)

// Config of the forwarder.
type Config struct {
	// Host:port of the MQTT broker
	BrokerAddress string
	// Client ID used to connect
	ClientID string
	// Prefix of all topics
	TopicPrefix string
}

// Forwarder publishes button events and applies LED percentage commands.
type Forwarder struct {
	log        zerolog.Logger
	config     Config
	devService devices.Service

	mutex  sync.Mutex
	client mqttapi.Client
	ctx    context.Context
}

// NewForwarder creates a forwarder for the devices of the given service.
func NewForwarder(config Config, devService devices.Service, log zerolog.Logger) (*Forwarder, error) {
	if config.BrokerAddress == "" {
		return nil, errors.New("MQTT broker address is empty")
	}
	config.TopicPrefix = strings.TrimSuffix(config.TopicPrefix, "/")
	return &Forwarder{
		log:        log.With().Str("component", "mqtt-forwarder").Logger(),
		config:     config,
		devService: devService,
	}, nil
}

// EventTopic returns the topic button events of the given device are published on.
func EventTopic(prefix, deviceID string) string {
	return fmt.Sprintf("%s/%s/event", prefix, deviceID)
}

// PercentTopic returns the topic used to set the percentage of the given device.
func PercentTopic(prefix, deviceID string) string {
	return prefix + "/" + deviceID + percentSetSuffix
}

// FormatEvent formats a button event as MQTT payload.
func FormatEvent(ev byte) string {
	return fmt.Sprintf("0x%02x", ev)
}

// ParsePercent parses a percentage payload.
// Values above 100 are accepted, the device saturates them.
func ParsePercent(payload string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(payload), 10, 8)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid percentage '%s'", payload)
	}
	return byte(v), nil
}

// deviceIDFromPercentTopic extracts the device ID from a percentage topic.
func deviceIDFromPercentTopic(prefix, topic string) (string, bool) {
	id, found := strings.CutPrefix(topic, prefix+"/")
	if !found {
		return "", false
	}
	id, found = strings.CutSuffix(id, percentSetSuffix)
	if !found || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// defaultClientOptions creates the MQTT client options.
func defaultClientOptions(brokerAddress, clientID string) *mqttapi.ClientOptions {
	opts := mqttapi.NewClientOptions().
		AddBroker("tcp://" + brokerAddress).
		SetClientID(clientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetDefaultPublishHandler(func(c mqttapi.Client, m mqttapi.Message) {
		// Ignore messages when no subscription match
	})
	return opts
}

// Run the forwarder until the given context is canceled.
func (f *Forwarder) Run(ctx context.Context) error {
	log := f.log
	ledIDs, buttonIDs := f.deviceIDs()

	opts := defaultClientOptions(f.config.BrokerAddress, f.config.ClientID)
	opts.SetOnConnectHandler(func(c mqttapi.Client) {
		log.Debug().Msg("Connected to MQTT")
		for _, id := range ledIDs {
			topic := PercentTopic(f.config.TopicPrefix, id)
			if token := c.Subscribe(topic, 0, f.onPercentMessage); token.Wait() && token.Error() != nil {
				log.Error().Err(token.Error()).Msgf("failed to subscribe to '%s'", topic)
			} else {
				log.Debug().Msgf("Subscribed to MQTT topic '%s'", topic)
			}
		}
	})
	client := mqttapi.NewClient(opts)

	f.mutex.Lock()
	f.client = client
	f.ctx = ctx
	f.mutex.Unlock()

	log.Debug().Str("broker", f.config.BrokerAddress).Msg("Connecting to MQTT...")
	if err := util.UntilCanceled(ctx, log, "connect to MQTT", func() error {
		if client.IsConnected() {
			return nil
		}
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			return errors.Wrap(token.Error(), "failed to connect to mqtt")
		}
		return nil
	}, util.UntilSuccess); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	defer client.Disconnect(disconnectQuiesce)

	g, ctx := errgroup.WithContext(ctx)
	for _, id := range buttonIDs {
		id := id
		g.Go(func() error {
			return util.UntilCanceled(ctx, log, "forward events of "+id, func() error {
				return f.forwardEvents(ctx, id, f.publish)
			})
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}

// deviceIDs returns the IDs of the configured LED and button devices.
func (f *Forwarder) deviceIDs() (ledIDs, buttonIDs []string) {
	for _, id := range f.devService.GetConfiguredDeviceIDs() {
		dev, found := f.devService.DeviceByID(id)
		if !found {
			continue
		}
		switch dev.(type) {
		case devices.LED:
			ledIDs = append(ledIDs, id)
		case devices.Button:
			buttonIDs = append(buttonIDs, id)
		}
	}
	return ledIDs, buttonIDs
}

// publish a single message.
func (f *Forwarder) publish(topic, payload string) error {
	f.mutex.Lock()
	client := f.client
	f.mutex.Unlock()
	if client == nil {
		return errors.New("not connected")
	}
	token := client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Errorf("failed to deliver '%s' on '%s' in time", payload, topic)
	}
	return token.Error()
}

// forwardEvents reads events of the button with given ID and publishes them.
// Returns on the first read or publish failure.
func (f *Forwarder) forwardEvents(ctx context.Context, id string, publish func(topic, payload string) error) error {
	dev, found := f.devService.DeviceByID(id)
	if !found {
		return errors.Wrapf(devices.NotFoundError, "device '%s'", id)
	}
	file, err := dev.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	topic := EventTopic(f.config.TopicPrefix, id)
	buf := make([]byte, eventBufferSize)
	for {
		n, err := file.Read(ctx, buf)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		for _, ev := range buf[:n] {
			payload := FormatEvent(ev)
			if err := publish(topic, payload); err != nil {
				f.log.Error().Err(err).
					Str("topic", topic).
					Str("payload", payload).
					Msg("failed to deliver MQTT event")
			}
		}
	}
}

// onPercentMessage handles a percentage command.
func (f *Forwarder) onPercentMessage(client mqttapi.Client, msg mqttapi.Message) {
	f.mutex.Lock()
	ctx := f.ctx
	f.mutex.Unlock()
	if ctx == nil {
		return
	}
	if err := f.applyPercent(ctx, msg.Topic(), string(msg.Payload())); err != nil {
		f.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("Failed to apply percentage")
	}
}

// applyPercent writes the percentage in the given payload to the LED
// device addressed by the topic.
func (f *Forwarder) applyPercent(ctx context.Context, topic, payload string) error {
	id, ok := deviceIDFromPercentTopic(f.config.TopicPrefix, topic)
	if !ok {
		return errors.Errorf("unexpected topic '%s'", topic)
	}
	percent, err := ParsePercent(payload)
	if err != nil {
		return err
	}
	dev, found := f.devService.DeviceByID(id)
	if !found {
		return errors.Wrapf(devices.NotFoundError, "device '%s'", id)
	}
	if _, isLED := dev.(devices.LED); !isLED {
		return devices.InvalidArgument("device '%s' is not a LED device", id)
	}
	file, err := dev.Open()
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.Write(ctx, []byte{percent}); err != nil {
		return err
	}
	f.log.Debug().Str("device-id", id).Uint8("percent", percent).Msg("Applied percentage")
	return nil
}
