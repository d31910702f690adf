//    Copyright 2017 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/de1soc/socperiph/pkg/environment"
	"github.com/de1soc/socperiph/pkg/logging"
	"github.com/de1soc/socperiph/pkg/server"
	"github.com/de1soc/socperiph/pkg/service"
	"github.com/de1soc/socperiph/pkg/service/bridge"
	"github.com/de1soc/socperiph/pkg/service/devices"
	"github.com/de1soc/socperiph/pkg/service/mqtt"
	"github.com/de1soc/socperiph/pkg/service/regmap"
)

const (
	projectName       = "DE1-SoC Peripheral Worker"
	defaultServerPort = 7130

	defaultLEDBase    = 0xFF203080
	defaultButtonBase = 0xFF200050
	defaultButtonIRQ  = 0
	buttonRegionSize  = 16
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
)

func main() {
	var levelFlag string
	var bridgeType string
	var serverHost string
	var serverPort int
	var logFile string
	var statusLEDPin int
	var mqttBroker string
	var mqttTopicPrefix string
	var mqttLog bool
	var ledBase uint64
	var ledChannels uint
	var ledUserChannel int
	var buttonBase uint64
	var buttonIRQ int
	var noLED, noButton bool

	pflag.StringVarP(&levelFlag, "level", "l", "info", "Set log level")
	pflag.StringVarP(&bridgeType, "bridge", "b", "", "Type of bridge to use (devmem|virtual), autodetected when empty")
	pflag.StringVar(&serverHost, "host", "0.0.0.0", "Host address the HTTP server will listen on")
	pflag.IntVar(&serverPort, "port", defaultServerPort, "Port the HTTP server will listen on")
	pflag.StringVar(&logFile, "log-file", "", "Also write logs to this file")
	pflag.IntVar(&statusLEDPin, "status-led-pin", -1, "GPIO pin of the status LED (-1 for none)")
	pflag.StringVar(&mqttBroker, "mqtt-broker", "", "Host:port of the MQTT broker (empty to disable MQTT)")
	pflag.StringVar(&mqttTopicPrefix, "mqtt-topic-prefix", "/de1soc", "Prefix of all MQTT topics")
	pflag.BoolVar(&mqttLog, "mqtt-log", false, "Publish logs on <mqtt-topic-prefix>/logs")
	pflag.Uint64Var(&ledBase, "led-base", defaultLEDBase, "Physical base address of the LED PWM registers")
	pflag.UintVar(&ledChannels, "led-channels", 8, "Number of LED PWM channels")
	pflag.IntVar(&ledUserChannel, "led-user-channel", 0, "LED channel controlled by users (-1 for none)")
	pflag.Uint64Var(&buttonBase, "button-base", defaultButtonBase, "Physical base address of the pushbutton registers")
	pflag.IntVar(&buttonIRQ, "button-irq", defaultButtonIRQ, "Interrupt line (UIO index) of the pushbuttons")
	pflag.BoolVar(&noLED, "no-led", false, "Do not activate the LED device")
	pflag.BoolVar(&noButton, "no-button", false, "Do not activate the pushbutton device")
	pflag.Parse()

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())

	var logOutput io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	logWriters := logging.NewMultiWriter(logOutput)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			Exitf("Failed to open log file '%s': %v\n", logFile, err)
		}
		defer f.Close()
		logWriters.Add(f)
	}
	if mqttLog && mqttBroker != "" {
		logWriters.Add(logging.NewMQTTWriter(ctx, mqttBroker, projectClientID("log"), mqttTopicPrefix+"/logs"))
	}
	logger := zerolog.New(logWriters).With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(levelFlag); err != nil {
		Exitf("Invalid log level '%s': %v\n", levelFlag, err)
	} else {
		logger = logger.Level(level)
	}

	if bridgeType == "" {
		bridgeType = environment.AutoDetectBridgeType(logger)
	}
	var br bridge.API
	var err error
	switch bridgeType {
	case environment.BridgeTypeDevMem:
		br, err = bridge.NewDevMemBridge(bridge.DevMemConfig{
			MemDevice:        bridge.DefaultMemDevice,
			UIODevicePattern: bridge.DefaultUIODevicePattern,
			StatusLEDPin:     statusLEDPin,
		})
		if err != nil {
			Exitf("Failed to initialize devmem bridge: %v\n", err)
		}
	case environment.BridgeTypeVirtual:
		br = bridge.NewVirtualBridge()
	default:
		Exitf("Unknown bridge type '%s' (devmem|virtual)\n", bridgeType)
	}

	var devConfigs []devices.Config
	if !noLED {
		ledConfig := devices.DefaultLEDConfig()
		ledConfig.Channels = ledChannels
		ledConfig.UserChannel = ledUserChannel
		devConfigs = append(devConfigs, devices.Config{
			ID:         "leds",
			Compatible: devices.CompatibleLEDPWM,
			Region:     regmap.Region{Base: uintptr(ledBase), Length: int(ledChannels) * 4},
			LED:        ledConfig,
		})
	}
	if !noButton {
		devConfigs = append(devConfigs, devices.Config{
			ID:         "keys",
			Compatible: devices.CompatiblePushbutton,
			Region:     regmap.Region{Base: uintptr(buttonBase), Length: buttonRegionSize},
			IRQ:        buttonIRQ,
			Button:     devices.DefaultButtonConfig(),
		})
	}

	svc, err := service.NewService(service.Config{
		Devices: devConfigs,
		MQTT: mqtt.Config{
			BrokerAddress: mqttBroker,
			ClientID:      projectClientID("devices"),
			TopicPrefix:   mqttTopicPrefix,
		},
	}, service.Dependencies{
		Logger: logger,
		Bridge: br,
	})
	if err != nil {
		Exitf("Failed to initialize Service: %v\n", err)
	}

	httpServer, err := server.New(server.Config{
		Host:     serverHost,
		HTTPPort: serverPort,
	}, logger, svc.Devices())
	if err != nil {
		Exitf("Failed to initialize Server: %v\n", err)
	}

	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)
	logger.Info().
		Str("bridge", bridgeType).
		Int("devices", len(devConfigs)).
		Msg("Starting")
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return httpServer.Run(ctx) })
	if err := g.Wait(); err != nil {
		Exitf("Service run failed: %#v\n", err)
	}
	// Allow queued log lines to leave
	time.Sleep(time.Millisecond * 100)
}

// projectClientID returns an MQTT client ID for the given purpose.
func projectClientID(purpose string) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("socperiph-%s-%s", host, purpose)
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
