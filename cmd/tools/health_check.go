// Command health_check probes the Redis KV store, ClickHouse alert sink,
// and the process's own /health endpoint, for use in deploy smoke tests.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/andreirk/bscwatch/config"
	"github.com/andreirk/bscwatch/internal/infrastructure/kvstore"
	"github.com/andreirk/bscwatch/internal/infrastructure/storage"
)

func main() {
	cfg := config.LoadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok := true

	kv := kvstore.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if _, err := kv.CooldownTTL(ctx, "health-check-probe"); err != nil {
		fmt.Printf("redis: FAIL (%v)\n", err)
		ok = false
	} else {
		fmt.Println("redis: OK")
	}
	_ = kv.Close()

	if sink, err := storage.NewClickHouseSink(storage.Config{
		Addr:     cfg.ClickhouseAddr,
		Username: cfg.ClickhouseUsername,
		Password: cfg.ClickhousePassword,
		Timeout:  cfg.ClickhouseTimeout,
	}); err != nil {
		fmt.Printf("clickhouse: FAIL (%v)\n", err)
		ok = false
	} else {
		fmt.Println("clickhouse: OK")
		_ = sink.Close()
	}

	if healthy, err := checkHTTPHealth(fmt.Sprintf("http://localhost:%s/health", cfg.HTTPPort)); err != nil || !healthy {
		fmt.Printf("http /health: FAIL (%v)\n", err)
		ok = false
	} else {
		fmt.Println("http /health: OK")
	}

	if !ok {
		os.Exit(1)
	}
}

func checkHTTPHealth(url string) (bool, error) {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, err
	}
	return body["status"] == "ok", nil
}
