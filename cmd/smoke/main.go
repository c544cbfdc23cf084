package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/coverage-cache/internal/core/httpclient"
)

func getenv(key, def string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return def
}

func testRedis(ctx context.Context, addr string) error {
	fmt.Println("Redis test")
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 2 * time.Second,
	})
	defer func() { _ = client.Close() }()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	if err := client.Set(ctx, "cov:smoke", "ok", 30*time.Second).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	val, err := client.Get(ctx, "cov:smoke").Result()
	if err != nil {
		return fmt.Errorf("redis get: %w", err)
	}

	fmt.Println("redis GET cov:smoke:", val)
	return nil
}

func testPostGIS(ctx context.Context, url string) error {
	fmt.Println("PostGIS test")
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	var version string
	if err := conn.QueryRow(ctx, "SELECT PostGIS_Version()").Scan(&version); err != nil {
		return fmt.Errorf("postgis version: %w", err)
	}
	var rows int64
	if err := conn.QueryRow(ctx, "SELECT count(*) FROM coverage_table").Scan(&rows); err != nil {
		return fmt.Errorf("count coverage rows: %w", err)
	}
	fmt.Printf("postgis %s, coverage rows: %d\n", version, rows)
	return nil
}

func testCheckCoverage(ctx context.Context, baseURL string, lat, lon float64) error {
	fmt.Println("check-coverage test")

	body, _ := json.Marshal(map[string]any{
		"latitude":  lat,
		"longitude": lon,
		"address":   nil,
	})
	u := strings.TrimRight(baseURL, "/") + "/check-coverage"
	client := httpclient.NewOutbound(5 * time.Second)

	// second call should be served from cache
	for i := range 2 {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("post check-coverage: %w", err)
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		_ = resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("check-coverage status %d: %s", resp.StatusCode, string(b))
		}
		fmt.Printf("call %d X-Cache=%s body=%s\n", i+1, resp.Header.Get("X-Cache"), string(b))
	}
	return nil
}

func testKafka(brokers []string, topic string, lat, lon float64) error {
	fmt.Println("Kafka test")

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Version = sarama.V3_6_0_0
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lon), 8)
	if err != nil {
		return fmt.Errorf("h3 cell: %w", err)
	}
	payload := map[string]any{
		"lat":     lat,
		"lon":     lon,
		"cell":    cell.String(),
		"covered": false,
		"cache":   "SMOKE",
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
	}

	msgBytes, _ := json.Marshal(payload)
	part, off, err := prod.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(cell.String()),
		Value: sarama.ByteEncoder(msgBytes),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	fmt.Printf("produced one lookup event to %s[%d]@%d\n", topic, part, off)
	return nil
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	lat, lon := 59.3293, 18.0686
	redisAddr := getenv("REDIS_ADDR", "localhost:6379")
	dbURL := getenv("DATABASE_URL", "postgres://localhost:5432/coverage?sslmode=disable")
	server := getenv("SERVER_URL", "http://localhost:8090")
	brokers := strings.Split(getenv("KAFKA_BROKERS", "localhost:9092"), ",")
	topic := getenv("LOOKUP_EVENTS_TOPIC", "coverage-lookups")

	if err := testRedis(ctx, redisAddr); err != nil {
		fmt.Println("Redis error:", err)
		os.Exit(1)
	}
	if err := testPostGIS(ctx, dbURL); err != nil {
		fmt.Println("PostGIS error:", err)
		os.Exit(1)
	}
	if err := testCheckCoverage(ctx, server, lat, lon); err != nil {
		fmt.Println("check-coverage error:", err)
		os.Exit(1)
	}
	if os.Getenv("SMOKE_KAFKA") == "true" {
		if err := testKafka(brokers, topic, lat, lon); err != nil {
			fmt.Println("Kafka error:", err)
			os.Exit(1)
		}
	}
	fmt.Println("All tests completed")
}
