// Command loadtest seeds synthetic profiles into the Redis directory and
// drives concurrent POST /api/match traffic against a running matchmaker,
// then prints latency percentiles and a status code breakdown.
//
// Usage:
//
//	loadtest -url http://localhost:8080 -users 1000 -requests 5000
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/globetalk/matchmaking/internal/auth"
	"github.com/globetalk/matchmaking/internal/config"
	"github.com/globetalk/matchmaking/internal/directory"
	"github.com/globetalk/matchmaking/internal/loadtest"
	"github.com/globetalk/matchmaking/internal/profile"
	"github.com/redis/go-redis/v9"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Matchmaker base URL")
	users := flag.Int("users", 1000, "Number of synthetic profiles to seed")
	requests := flag.Int("requests", 5000, "Total match requests to send")
	concurrency := flag.Int("concurrency", 50, "Concurrent workers")
	languages := flag.String("languages", "English,Spanish,French,Japanese", "Comma-separated languages to draw from")
	regions := flag.String("regions", "EU,NA,APAC", "Comma-separated regions to draw from")
	prefix := flag.String("prefix", "lt", "User ID prefix for seeded profiles")
	seed := flag.Bool("seed", true, "Seed profiles before sending traffic")
	flag.Parse()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required to mint test tokens")
	}

	langs := splitList(*languages)
	regs := splitList(*regions)
	if len(langs) == 0 || len(regs) == 0 || *users < 2 || *concurrency < 1 {
		log.Fatal("need at least one language, one region, two users and one worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	profiles := makeProfiles(*prefix, *users, langs, regs)

	if *seed {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := directory.NewRedisStore(rdb)
		start := time.Now()
		for _, p := range profiles {
			if err := store.Save(ctx, p); err != nil {
				log.Fatalf("failed to seed %s: %v", p.ID, err)
			}
		}
		rdb.Close()
		fmt.Printf("Seeded %d profiles in %s\n", len(profiles), time.Since(start).Round(time.Millisecond))
	}

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	tokens := make([]string, len(profiles))
	for i, p := range profiles {
		tokens[i], err = verifier.Issue(p.ID, time.Hour)
		if err != nil {
			log.Fatalf("failed to issue token: %v", err)
		}
	}

	fmt.Printf("Match test: %d requests from %d users to %s (concurrency=%d)\n",
		*requests, len(profiles), *baseURL, *concurrency)

	collector := loadtest.NewCollector()
	client := &http.Client{Timeout: 10 * time.Second}
	endpoint := strings.TrimRight(*baseURL, "/") + "/api/match"

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				p := profiles[i]
				status, d, err := matchOnce(ctx, client, endpoint, tokens[i], p.Languages[0], p.Region)
				if err != nil {
					collector.AddError()
					continue
				}
				collector.AddResponse(status, d)
			}
		}()
	}

feed:
	for n := 0; n < *requests; n++ {
		select {
		case jobs <- rand.IntN(len(profiles)):
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	collector.Report(os.Stdout)
}

func matchOnce(ctx context.Context, client *http.Client, endpoint, token, language, region string) (int, time.Duration, error) {
	body, err := json.Marshal(map[string]string{"language": language, "region": region})
	if err != nil {
		return 0, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, time.Since(start), nil
}

func makeProfiles(prefix string, n int, langs, regs []string) []profile.UserProfile {
	out := make([]profile.UserProfile, n)
	for i := range out {
		out[i] = profile.UserProfile{
			ID:        fmt.Sprintf("%s-%d", prefix, i),
			Username:  fmt.Sprintf("user%d", i),
			Languages: []string{langs[i%len(langs)]},
			Region:    regs[(i/len(langs))%len(regs)],
		}
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
