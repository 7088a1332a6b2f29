package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chengloutai/emg-ble-receiver/internal/config"
	"github.com/chengloutai/emg-ble-receiver/internal/logger"
	"github.com/chengloutai/emg-ble-receiver/internal/metrics"
	"github.com/chengloutai/emg-ble-receiver/internal/processing"
	"github.com/chengloutai/emg-ble-receiver/internal/rserial"
	"github.com/chengloutai/emg-ble-receiver/internal/web"
)

const DEFAULT_CONFIG_PATH = "config.yaml"

var STOP_SEQUENCE = []byte{'\r', '\n'}

func main() {
	configPath := DEFAULT_CONFIG_PATH
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		panic(err)
	}

	// context handler for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// first initialize the main logger
	logger, err := logger.NewLogger(cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	collector := metrics.NewCollector()
	go metrics.ListenAndServe(ctx, cfg.Metrics.Addr, logger)

	// the receive pipeline: every bridge port feeds the same queue, the
	// packet header decides which device a payload belongs to
	messageQueue := make(chan []byte, cfg.Serial.QueueLen)
	processor := processing.NewProcessor(messageQueue, cfg.Window.Size(), logger, collector)

	for _, port := range cfg.Serial.Ports {
		bridge := rserial.NewRSerial(port, cfg.Serial.BaudRate, messageQueue, logger, processing.MinPayloadLen, STOP_SEQUENCE)
		defer bridge.Close()
		go bridge.Run(ctx)
	}

	// the display side: websocket/HTTP live view, plus telegraf if configured
	hub := web.NewHub(logger)
	go hub.Run(ctx)

	server := web.NewServer(hub, logger)
	go server.Run(ctx, cfg.Web.Addr)

	sinks := []processing.FrameSink{server}
	if cfg.Influx.Addr != "" {
		udpAddr, err := net.ResolveUDPAddr("udp", cfg.Influx.Addr)
		if err != nil {
			panic(err)
		}
		udpConn, err := net.DialUDP("udp", nil, udpAddr)
		if err != nil {
			panic(err)
		}
		defer udpConn.Close()
		sinks = append(sinks, processing.NewInfluxSink(udpConn))
	}

	sampler := processing.NewSampler(cfg.Publish.Interval(), processor, sinks, logger, collector)

	go processor.Run(ctx)
	go sampler.Run(ctx)

	logger.Info(
		"receiver running",
		zap.Strings("ports", cfg.Serial.Ports),
		zap.Int("windowSize", cfg.Window.Size()),
		zap.Duration("publishInterval", cfg.Publish.Interval()),
	)

	<-sigCh
	cancel()

	time.Sleep(500 * time.Millisecond)

	summary := processor.Summary()
	logger.Info(
		"session finished",
		zap.Duration("elapsed", summary.Elapsed),
		zap.Uint64("unknownDropped", summary.UnknownDropped),
	)
	fmt.Println(summary.String())
}
