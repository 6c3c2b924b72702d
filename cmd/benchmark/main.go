package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankportal/internal/api"
	"github.com/punchamoorthee/bankportal/internal/config"
	"github.com/punchamoorthee/bankportal/internal/domain"
	"github.com/punchamoorthee/bankportal/internal/logging"
	"github.com/punchamoorthee/bankportal/internal/models"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	accounts    int
	maxAmount   string
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "base URL of the portal API")
	flag.IntVar(&concurrency, "workers", 10, "concurrent transfer clients")
	flag.DurationVar(&duration, "duration", 30*time.Second, "how long to generate load")
	flag.StringVar(&workload, "workload", "uniform", "account selection: uniform or hotspot")
	flag.IntVar(&accounts, "accounts", 1000, "Seeded account ids are 1..accounts")
	flag.StringVar(&maxAmount, "max-amount", "5.00", "Upper bound of a random transfer amount")
}

// tally counts responses by HTTP status and by failure kind.
type tally struct {
	mu       sync.Mutex
	byStatus map[int]uint64
	byKind   map[string]uint64
	errors   uint64
}

func (t *tally) record(status int, kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byStatus[status]++
	if kind != "" {
		t.byKind[kind]++
	}
}

func (t *tally) fail() {
	t.mu.Lock()
	t.errors++
	t.mu.Unlock()
}

func main() {
	flag.Parse()
	logger := logging.New(os.Stderr, config.Log{Level: "info", Prefix: "benchmark", TimeFormat: time.Kitchen})

	ceiling, err := decimal.NewFromString(maxAmount)
	if err != nil || !ceiling.IsPositive() {
		logger.Error("invalid -max-amount", "value", maxAmount)
		os.Exit(2)
	}
	if accounts < 2 {
		logger.Error("need at least two accounts", "accounts", accounts)
		os.Exit(2)
	}
	logger.Info("starting benchmark", "workload", workload, "workers", concurrency, "duration", duration)

	t := &tally{byStatus: make(map[int]uint64), byKind: make(map[string]uint64)}
	deadline := time.Now().Add(duration)
	var wg sync.WaitGroup
	for range concurrency {
		wg.Go(func() { worker(t, deadline, ceiling) })
	}
	wg.Wait()
	printResults(logger, t, duration)
}

func worker(t *tally, deadline time.Time, ceiling decimal.Decimal) {
	client := &http.Client{Timeout: 5 * time.Second}
	cents := max(ceiling.Shift(2).IntPart(), 1)

	for time.Now().Before(deadline) {
		payer, receiver := generateAccounts()
		amount := decimal.New(rand.Int64N(cents)+1, -2)

		body, _ := json.Marshal(models.TransferRequest{
			PayerID:    payer,
			ReceiverID: receiver,
			Amount:     amount.StringFixed(2),
		})
		req, _ := http.NewRequest(http.MethodPost, targetURL+"/api/v1/transfers", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(api.HeaderRequestID, uuid.NewString())
		// accounts belong to many customers, so load runs as an operator
		req.Header.Set(api.HeaderRole, string(domain.RoleAdmin))
		req.Header.Set(api.HeaderPerson, "2")

		status, kind, err := send(client, req)
		if err != nil {
			t.fail()
		} else {
			t.record(status, kind)
		}
	}
}

func send(client *http.Client, req *http.Request) (int, string, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	var out models.OperationResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out.Kind, nil
}

func generateAccounts() (int64, int64) {
	if workload == "hotspot" {
		// nine in ten transfers contend for accounts 1 and 2
		if rand.IntN(10) < 9 {
			if rand.IntN(2) == 0 {
				return 1, 2
			}
			return 2, 1
		}
	}

	a := rand.IntN(accounts) + 1
	b := rand.IntN(accounts-1) + 1
	if b >= a {
		b++
	}
	return int64(a), int64(b)
}

func printResults(logger *slog.Logger, t *tally, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total uint64
	statuses := make(map[string]uint64, len(t.byStatus))
	codes := make([]int, 0, len(t.byStatus))
	for code, n := range t.byStatus {
		total += n
		statuses[strconv.Itoa(code)] = n
		codes = append(codes, code)
	}
	sort.Ints(codes)

	results := map[string]any{
		"workload":       workload,
		"duration_sec":   d.Seconds(),
		"total_requests": total,
		"throughput_tps": float64(total) / d.Seconds(),
		"committed":      t.byStatus[http.StatusOK],
		"by_status":      statuses,
		"by_kind":        t.byKind,
		"errors":         t.errors,
	}
	if total > 0 {
		results["decline_rate_pct"] = float64(t.byKind["LOW_BALANCE"]+t.byKind["FORBIDDEN_STATUS"]) / float64(total) * 100
	}
	for _, code := range codes {
		logger.Info("responses", "status", code, "count", t.byStatus[code])
	}

	pretty, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(pretty))

	name := fmt.Sprintf("results_%s.json", workload)
	out, err := os.Create(name)
	if err != nil {
		logger.Error("cannot save results", "file", name, "error", err)
		return
	}
	defer out.Close()
	_ = json.NewEncoder(out).Encode(results)
}
