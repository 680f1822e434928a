package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"libactivities/internal/config"
	"libactivities/internal/enrollment"
	"libactivities/internal/queue"
	"libactivities/internal/store"
)

// enrollmentEvent mirrors the payload published by the API on
// enroll/unenroll. The worker records each one to the audit log so
// staff can trace confirmations and cancellations.
type enrollmentEvent struct {
	EnrollmentID string `json:"enrollment_id"`
	ActivityID   string `json:"activity_id"`
}

func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "library:enrollments")
	}

	repo := enrollment.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "enrolled" && msg.Type != "unenrolled" {
			continue
		}

		var evt enrollmentEvent
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Printf("bad message body: %v", err)
			continue
		}

		if err := repo.RecordEvent(ctx, evt.EnrollmentID, evt.ActivityID, msg.Type); err != nil {
			log.Printf("record %s event for activity %s failed: %v", msg.Type, evt.ActivityID, err)
			continue
		}
		log.Printf("recorded %s event for activity %s", msg.Type, evt.ActivityID)
	}

	log.Println("worker exited")
}
