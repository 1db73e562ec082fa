// Command traffic_simulator drives a running adshell control API with a mix
// of interstitial, rewarded and app-open show requests and reports the
// outcome distribution. It can also seed the Redis-backed remote config and
// VIP status before the run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickwarner/adshell/internal/config"
	"github.com/patrickwarner/adshell/internal/db"
	"github.com/patrickwarner/adshell/internal/models"
	"github.com/patrickwarner/adshell/internal/observability"
	"github.com/patrickwarner/adshell/internal/remoteconfig"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	server       string
	totalReq     int
	conc         int
	rate         float64
	surfacesCSV  string
	rewardedPct  float64
	appOpenPct   float64
	debug        bool
	redisAddr    string
	seedVIP      string
	seedUser     string
	seedCooldown string
)

var logger *zap.Logger

var httpClient = &http.Client{Timeout: 2 * time.Minute}

var (
	countSent   uint64
	countErrors uint64

	outcomesMu sync.Mutex
	outcomes   = map[string]int{}
)

type showResponse struct {
	Outcome models.Outcome `json:"outcome"`
	Reward  *models.Reward `json:"reward,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func main() {
	flag.StringVar(&server, "server", "http://localhost:8790", "adshell base URL")
	flag.IntVar(&totalReq, "requests", 200, "total show requests to send")
	flag.IntVar(&conc, "concurrency", 4, "concurrent requests")
	flag.Float64Var(&rate, "rate", 0, "requests per second (0 for unlimited)")
	flag.StringVar(&surfacesCSV, "surfaces", strings.Join([]string{
		models.SurfaceInterstitialExportTrim, models.SurfaceInterstitialSaveVideo, models.SurfaceInterstitialSplash,
	}, ","), "comma-separated interstitial surfaces")
	flag.Float64Var(&rewardedPct, "rewarded", 0.2, "share of rewarded shows")
	flag.Float64Var(&appOpenPct, "app-open", 0.1, "share of app-open shows")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.StringVar(&redisAddr, "redis", "", "redis address for seeding (defaults to REDIS_ADDR)")
	flag.StringVar(&seedVIP, "vip", "", "seed VIP status for -user before the run (true/false)")
	flag.StringVar(&seedUser, "user", "", "user id for -vip (defaults to AD_USER_ID)")
	flag.StringVar(&seedCooldown, "cooldown", "", "seed the remote interstitial cooldown in seconds")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	var err error
	logger, err = observability.InitLoggerWithLevel(level, "traffic-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if seedVIP != "" || seedCooldown != "" {
		if err := seed(); err != nil {
			logger.Fatal("seed redis", zap.Error(err))
		}
	}

	surfaces := strings.Split(surfacesCSV, ",")
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < conc; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)))
			for range jobs {
				send(r, surfaces)
			}
		}(w)
	}

	start := time.Now()
	var interval time.Duration
	if rate > 0 {
		interval = time.Duration(float64(time.Second) / rate)
	}
	for i := 0; i < totalReq; i++ {
		jobs <- i
		if interval > 0 {
			time.Sleep(interval)
		}
	}
	close(jobs)
	wg.Wait()

	report(time.Since(start))
}

func seed() error {
	cfg := config.Load()
	addr := redisAddr
	if addr == "" {
		addr = cfg.RedisAddr
	}
	store, err := db.InitRedis(addr)
	if err != nil {
		return err
	}
	defer store.Close()

	if seedCooldown != "" {
		if err := store.SetRemoteConfigValue(remoteconfig.KeyDistanceTimeToShowInterstitial, seedCooldown); err != nil {
			return err
		}
		logger.Info("seeded interstitial cooldown", zap.String("seconds", seedCooldown))
	}
	if seedVIP != "" {
		user := seedUser
		if user == "" {
			user = cfg.UserID
		}
		vip := seedVIP == "true" || seedVIP == "1"
		if err := store.SetVIP(user, vip, 0); err != nil {
			return err
		}
		logger.Info("seeded vip status", zap.String("user_id", user), zap.Bool("vip", vip))
	}
	return nil
}

func send(r *rand.Rand, surfaces []string) {
	var path string
	p := r.Float64()
	switch {
	case p < rewardedPct:
		path = "/ads/rewarded/show"
	case p < rewardedPct+appOpenPct:
		path = "/ads/app-open/show"
	default:
		path = "/ads/interstitial/" + surfaces[r.Intn(len(surfaces))] + "/show"
	}

	atomic.AddUint64(&countSent, 1)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, server+path, nil)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("request build error", zap.Error(err))
		return
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("show request error", zap.String("path", path), zap.Error(err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	var body showResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		atomic.AddUint64(&countErrors, 1)
		logger.Error("decode response", zap.String("path", path), zap.Int("status", resp.StatusCode), zap.Error(err))
		return
	}
	if resp.StatusCode != http.StatusOK {
		atomic.AddUint64(&countErrors, 1)
	}
	label := body.Outcome.Label()
	if body.Error != "" {
		label = "error"
	}
	logger.Debug("show", zap.String("path", path), zap.Int("status", resp.StatusCode), zap.String("outcome", label))

	kind := strings.Split(strings.TrimPrefix(path, "/ads/"), "/")[0]
	outcomesMu.Lock()
	outcomes[kind+"/"+label]++
	outcomesMu.Unlock()
}

func report(elapsed time.Duration) {
	outcomesMu.Lock()
	defer outcomesMu.Unlock()
	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := []zap.Field{
		zap.Uint64("sent", atomic.LoadUint64(&countSent)),
		zap.Uint64("errors", atomic.LoadUint64(&countErrors)),
		zap.Duration("elapsed", elapsed),
	}
	for _, k := range keys {
		fields = append(fields, zap.Int(k, outcomes[k]))
	}
	logger.Info("simulation complete", fields...)
}
