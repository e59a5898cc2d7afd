// Command handlerchain-demo wires a sample handler chain (validate ->
// transform -> fan out to HTTP and/or gRPC when their flags are set)
// behind a gin HTTP ingress,
// modeled on the gateway's cmd/basic-http-server / cmd/stargate-node
// pattern: flag-parsed config path, config.Load, a goroutine-started
// server, and signal-based graceful shutdown. This binary is example
// wiring, not part of the importable library surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/songzhibin97/handlerchain/chain"
	"github.com/songzhibin97/handlerchain/config"
	"github.com/songzhibin97/handlerchain/destinations"
	"github.com/songzhibin97/handlerchain/handler"
	"github.com/songzhibin97/handlerchain/log"
	"github.com/songzhibin97/handlerchain/log/driver/stdout"
	"github.com/songzhibin97/handlerchain/message"
	"github.com/songzhibin97/handlerchain/processors"
	"github.com/songzhibin97/handlerchain/replaylistener"
	"github.com/songzhibin97/handlerchain/replaystore"
)

var (
	configFile = flag.String("config", "", "Configuration file path")
	addr       = flag.String("addr", ":8080", "HTTP ingress address")
	grpcTarget = flag.String("grpc-target", "", "gRPC destination target (disabled when empty)")
	webhookURL = flag.String("webhook-url", "", "HTTP destination URL (disabled when empty)")
	version    = flag.Bool("version", false, "Show version information")
)

const Version = "v0.1.0"

type order struct {
	ID     string  `json:"id" validate:"required"`
	Amount float64 `json:"amount" validate:"gt=0"`
}

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("handlerchain-demo %s\n", Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := stdout.New(&stdout.Config{Level: parseLevel(cfg.LogLevel)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	failureStore, err := config.BuildStore(cfg.FailureStore)
	if err != nil {
		logger.Error("failed to build failure store", log.Error(err))
		os.Exit(1)
	}

	c, err := buildChain(cfg, failureStore, logger)
	if err != nil {
		logger.Error("failed to build handler chain", log.Error(err))
		os.Exit(1)
	}
	defer c.Close(context.Background())

	router := gin.New()
	router.POST("/orders", func(gc *gin.Context) {
		var payload order
		if err := gc.ShouldBindJSON(&payload); err != nil {
			gc.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		success, err := c.Execute(gc.Request.Context(), payload)
		if err != nil {
			if execErr, ok := err.(*chain.ExecutionError); ok {
				gc.JSON(http.StatusUnprocessableEntity, gin.H{"error": execErr.Error(), "message": execErr.Message})
				return
			}
			gc.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		gc.JSON(http.StatusOK, success)
	})

	server := &http.Server{Addr: *addr, Handler: router}

	go func() {
		logger.Info("handlerchain-demo listening", log.String("addr", *addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", log.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", log.Error(err))
	}
}

// buildChain assembles the sample validate -> transform -> approve
// pipeline with an HTTP destination when -webhook-url is set (a local
// no-op destination otherwise) and a gRPC destination added only when
// -grpc-target is set.
func buildChain(cfg *config.Config, failureStore replaystore.Store, logger log.Logger) (*chain.HandlerChain, error) {
	validateOrder := processors.Validate("validate-order", &order{})
	normalizeAmount := processors.JSONTransform("round-amount", func(raw []byte) ([]byte, error) {
		return raw, nil
	})
	approve := handler.NewGeneric("approve", func(ctx *message.Context) error {
		ctx.SetProperty("approved", true)
		return nil
	})

	dests := []handler.Destination{}

	if *webhookURL != "" {
		dests = append(dests, destinations.HTTPDestination("webhook", *webhookURL, http.DefaultClient,
			&handler.RetryConfig{MaxRetries: 3, RetryInterval: time.Second}))
	} else {
		// No webhook configured: fall back to a local no-op so the chain
		// always has at least one destination to satisfy construction.
		dests = append(dests, handler.NewDestination("noop", func(ctx *message.Context) (any, error) {
			return "accepted", nil
		}, nil))
	}

	if *grpcTarget != "" {
		conn, err := grpc.NewClient(*grpcTarget, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to dial grpc target %q: %w", *grpcTarget, err)
		}
		dests = append(dests, destinations.GRPCDestination("approval-service", "/orders.OrderService/Approve", conn,
			&handler.RetryConfig{MaxRetries: 2, RetryInterval: time.Second}))
	}

	opts := []chain.ChainOption{
		chain.WithLogger(logger),
	}
	if cfg.ReplayListener.Enabled {
		dlq, err := config.BuildStore(cfg.ReplayListener.DeadLetterStore)
		if err != nil {
			return nil, fmt.Errorf("failed to build dead letter store: %w", err)
		}
		opts = append(opts, replaylistener.ChainOption(replaylistener.Config{
			PollingInterval: cfg.ReplayListener.PollingInterval,
			MaxRetries:      cfg.ReplayListener.MaxRetries,
			RetryInterval:   cfg.ReplayListener.RetryInterval,
			DeadLetterStore: dlq,
			Logger:          logger,
		}))
	}

	return chain.New("orders", []handler.Processor{validateOrder, normalizeAmount, approve}, dests, failureStore, opts...)
}

func parseLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
