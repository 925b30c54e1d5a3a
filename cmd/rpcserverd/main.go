// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// rpcserverd runs an MQTT5 RPC command endpoint: it subscribes to the
// configured command topic space and answers every request with an echo of
// its payload. Replace the handler to serve real commands.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/absmach/mqttrpc/config"
	"github.com/absmach/mqttrpc/otel"
	"github.com/absmach/mqttrpc/packets"
	"github.com/absmach/mqttrpc/pipeline"
	"github.com/absmach/mqttrpc/rpc"
	"github.com/absmach/mqttrpc/transport/mqtt"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Info("Starting RPC endpoint",
		"broker", cfg.Broker.Addr,
		"model_id", cfg.RPC.ModelID,
		"client_id", cfg.RPC.ClientID,
		"command", cfg.RPC.CommandName)

	connOpts := []rpc.ConnectionOption{rpc.WithLogger(logger)}
	if cfg.Otel.Enabled {
		shutdown, err := otel.InitProvider(cfg.Otel, cfg.RPC.ClientID)
		if err != nil {
			slog.Error("Failed to initialize OpenTelemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				slog.Error("OpenTelemetry shutdown failed", "error", err)
			}
		}()

		metrics, err := otel.NewMetrics()
		if err != nil {
			slog.Error("Failed to create metrics", "error", err)
			os.Exit(1)
		}
		connOpts = append(connOpts, rpc.WithMetrics(metrics))
	}

	session := mqtt.NewSession(mqtt.Config{
		Address:        cfg.Broker.Addr,
		WebSocketURL:   cfg.Broker.WSURL,
		ClientID:       cfg.Broker.ClientID,
		Username:       cfg.Broker.Username,
		Password:       []byte(cfg.Broker.Password),
		KeepAlive:      cfg.Broker.KeepAlive,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		CleanStart:     cfg.Broker.CleanStart,
		InboundRate:    cfg.Broker.InboundRate,
		InboundBurst:   cfg.Broker.InboundBurst,
		Logger:         logger,
	})

	// Received commands are queued here and completed by the worker below;
	// the callback itself must not call back into the policy.
	requests := make(chan rpc.Request, 64)
	conn := rpc.NewConnection(session.Outbound, func(ev pipeline.Event) error {
		switch ev.Kind {
		case pipeline.KindExecuteRequest:
			req := ev.Data.(*rpc.Request)
			cp := *req
			cp.CorrelationID = append([]byte(nil), req.CorrelationID...)
			cp.RequestData = append([]byte(nil), req.RequestData...)
			select {
			case requests <- cp:
			default:
				slog.Warn("request queue full, dropping command", "topic", req.RequestTopic)
			}
		case pipeline.KindError:
			slog.Error("pipeline error surfaced", "data", ev.Data)
		}
		return nil
	}, connOpts...)

	opts := rpc.Options{
		SubscribeQoS:     cfg.RPC.SubscribeQoS,
		ResponseQoS:      cfg.RPC.ResponseQoS,
		SubscribeTimeout: cfg.RPC.SubscribeTimeout,
	}
	server, err := rpc.New(conn, &packets.PublishProperties{}, cfg.RPC.ModelID, cfg.RPC.ClientID, cfg.RPC.CommandName, &opts)
	if err != nil {
		slog.Error("Failed to create RPC server", "error", err)
		os.Exit(1)
	}

	if err := session.Connect(conn.Pipeline()); err != nil {
		slog.Error("Failed to connect to broker", "error", err)
		os.Exit(1)
	}

	if err := server.Register(); err != nil {
		slog.Error("Failed to register command subscription", "error", err)
		os.Exit(1)
	}
	slog.Info("Command subscription registered", "filter", server.Filter())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for req := range requests {
			slog.Info("Executing command", "topic", req.RequestTopic, "bytes", len(req.RequestData))
			rsp := &rpc.Response{
				CorrelationID: req.CorrelationID,
				ResponseTopic: req.ResponseTopic,
				RequestTopic:  req.RequestTopic,
				Status:        200,
				ContentType:   req.ContentType,
				Response:      req.RequestData,
			}
			if err := server.ExecutionFinish(rsp); err != nil {
				slog.Error("Failed to publish response", "error", err)
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("Shutting down", "signal", sig.String())

	close(requests)
	<-done
	if err := session.Close(); err != nil {
		slog.Error("Session close failed", "error", err)
	}
	slog.Info("Shutdown complete")
}
