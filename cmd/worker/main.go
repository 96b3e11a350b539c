package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/atlaskb/backend/internal/queue"
	"github.com/atlaskb/backend/internal/server"
	"github.com/atlaskb/backend/internal/util"
	"github.com/atlaskb/backend/pkg/knowledge"
	"github.com/atlaskb/backend/pkg/logger"
	"github.com/atlaskb/backend/pkg/logger/console"
	"github.com/atlaskb/backend/pkg/store"
	"github.com/atlaskb/backend/pkg/store/memory"
	pgxstore "github.com/atlaskb/backend/pkg/store/pgx"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.New(console.Params{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	aiClient := server.NewTextModelClient()

	var docStore store.DocumentStore
	if databaseURL := util.GetEnv("DATABASE_URL"); databaseURL != "" {
		if err := pgxstore.Migrate(databaseURL); err != nil {
			logger.Fatal("Failed to run migrations", "err", err)
		}
		pool, err := pgxstore.NewPool(ctx, databaseURL)
		if err != nil {
			logger.Fatal("Unable to connect to database", "err", err)
		}
		defer pool.Close()
		docStore = pgxstore.New(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory document store")
		docStore = memory.New()
	}

	svc := knowledge.New(aiClient, docStore, server.KnowledgeParams())
	if loaded, err := svc.LoadIndex(ctx); err != nil {
		logger.Error("Failed to load embedding index", "err", err)
	} else {
		logger.Info("Embedding index ready", "vectors", loaded)
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.JobQueues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	logger.Info("Listening for messages")

	// Single consumer channel with prefetch=1 so only one batch runs at a
	// time across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queue.JobQueues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				var processingErr error
				switch qm.queueName {
				case queue.ExtractQueue:
					processingErr = queue.ProcessExtractMessage(ctx, svc, string(qm.msg.Body))
				case queue.EmbedQueue:
					processingErr = queue.ProcessEmbedMessage(ctx, svc, string(qm.msg.Body))
				}

				// On error send to retry or dead-letter, otherwise ack.
				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					queue.HandleProcessingError(consumerCh, qm.msg, qm.queueName)
				} else {
					if err := qm.msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				if aiClient != nil {
					metrics := aiClient.GetMetrics()
					logger.Info(
						"AI Metrics",
						"input_tokens", metrics.InputTokens,
						"output_tokens", metrics.OutputTokens,
						"total_tokens", metrics.TotalTokens,
						"duration_ms", metrics.DurationMs,
					)
					aiClient.ResetMetrics()
				}

				logger.Info("Processing time", "duration", time.Since(startTime).Round(time.Second).String())
				logger.Info("Waiting for next message")
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}
