package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/psds-microservice/task-service/internal/config"
	"github.com/psds-microservice/task-service/internal/database"
	"github.com/psds-microservice/task-service/internal/kafka"
	"github.com/psds-microservice/task-service/internal/model"
	"github.com/psds-microservice/task-service/internal/searchindex"
	"github.com/spf13/cobra"
)

var reindexSearchCmd = &cobra.Command{
	Use:   "reindex-search",
	Short: "Reindex all tasks into search. Prefers Kafka; falls back to HTTP if SEARCH_SERVICE_URL set.",
	RunE:  runReindexSearch,
}

func init() {
	rootCmd.AddCommand(reindexSearchCmd)
}

func runReindexSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	conn, err := database.Open(cfg.DSN(), cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}

	var tasks []model.Task
	if err := conn.Order("id ASC").Find(&tasks).Error; err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	log.Printf("reindex-search: found %d tasks", len(tasks))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopicTask != "" {
		log.Println("reindex-search: using Kafka for reindexing")
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTask)
		defer producer.Close()
		return reindex(len(tasks), "sent events to Kafka", func(i int) error {
			producer.ProduceTaskEvent(ctx, kafka.EventTaskUpdated, kafka.TaskPayload(&tasks[i]))
			return nil
		})
	}
	if cfg.SearchServiceURL != "" {
		log.Println("reindex-search: using HTTP for reindexing")
		client := searchindex.NewClient(cfg.SearchServiceURL)
		return reindex(len(tasks), "indexed via HTTP", func(i int) error {
			return client.IndexTask(ctx, &tasks[i])
		})
	}
	log.Println("reindex-search: neither KAFKA_BROKERS nor SEARCH_SERVICE_URL set")
	log.Printf("reindex-search: found %d tasks (not reindexed)", len(tasks))
	return nil
}

// reindex runs send for every task, logging progress every 50 items. Failed
// items are logged and counted, not retried.
func reindex(n int, what string, send func(i int) error) error {
	failed := 0
	for i := 0; i < n; i++ {
		if err := send(i); err != nil {
			failed++
			log.Printf("reindex-search: task #%d: %v", i, err)
		}
		if (i+1)%50 == 0 || i == n-1 {
			log.Printf("reindex-search: %d/%d %s", i+1, n, what)
		}
	}
	if failed > 0 {
		return fmt.Errorf("reindex-search: %d of %d tasks failed", failed, n)
	}
	log.Printf("reindex-search: done, %d tasks %s", n, what)
	return nil
}
