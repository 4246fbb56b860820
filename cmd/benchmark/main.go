// Benchmark tool for load-testing Kestrel with synthetic businesses.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -tenants 50
//
// This tool:
//   1. Generates synthetic business ledgers (sales, invoices, inventory, customers)
//   2. Syncs them to Kestrel across many tenants
//   3. Hammers GET /score and POST /prequalify concurrently
//   4. Reports throughput, latency, rating distribution, and determinism
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// BusinessProfile drives what the synthetic ledgers look like.
type BusinessProfile struct {
	TenantID      string
	MonthsTrading int
	MonthlySales  float64
	Volatility    float64 // stddev as a fraction of monthly sales
	InvoiceCount  int
	PaidRate      float64
	CustomerCount int
	ItemCount     int
}

// ScoreResponse mirrors the GET /score payload.
type ScoreResponse struct {
	Score  int    `json:"score"`
	Rating string `json:"rating"`
}

// PreQualifyRequest mirrors the POST /prequalify payload.
type PreQualifyRequest struct {
	ProductID       string  `json:"productId"`
	RequestedAmount float64 `json:"requestedAmount"`
}

// PreQualifyResponse mirrors the POST /prequalify payload.
type PreQualifyResponse struct {
	Qualified bool     `json:"qualified"`
	MaxAmount float64  `json:"maxAmount"`
	Reasons   []string `json:"reasons"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	ScoreRequests   int64
	PrequalRequests int64
	Qualified       int64
	Declined        int64
	TotalErrors     int64
	DriftingTenants int64 // tenants whose score changed between reads

	mu        sync.Mutex
	latencies []time.Duration
	ratings   map[string]int
}

func (m *Metrics) record(latency time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) countRating(rating string) {
	m.mu.Lock()
	if m.ratings == nil {
		m.ratings = make(map[string]int)
	}
	m.ratings[rating]++
	m.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenants := flag.Int("tenants", 25, "Number of synthetic businesses")
	requests := flag.Int("requests", 20, "Scoring requests per tenant")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", 42, "Random seed for ledger generation")
	verbose := flag.Bool("verbose", false, "Print each scoring result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        KESTREL BENCHMARK - Synthetic Business Scoring         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenants:     %d\n", *tenants)
	fmt.Printf("Requests:    %d per tenant\n", *requests)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Seed:        %d\n", *seed)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	rng := rand.New(rand.NewSource(*seed))
	profiles := make([]BusinessProfile, *tenants)
	for i := range profiles {
		profiles[i] = generateProfile(rng, i)
	}

	fmt.Printf("\nSeeding %d synthetic businesses...\n", *tenants)
	client := &http.Client{Timeout: 30 * time.Second}
	for _, p := range profiles {
		if err := seedBusiness(client, *baseURL, rng, p); err != nil {
			fmt.Printf("ERROR: failed to seed %s: %v\n", p.TenantID, err)
			os.Exit(1)
		}
	}
	fmt.Println("✓ Ledgers synced")

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(profiles, *baseURL, *requests, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func generateProfile(rng *rand.Rand, n int) BusinessProfile {
	return BusinessProfile{
		TenantID:      fmt.Sprintf("bench-%04d", n),
		MonthsTrading: 3 + rng.Intn(58),
		MonthlySales:  2000 + rng.Float64()*48000,
		Volatility:    rng.Float64() * 0.6,
		InvoiceCount:  5 + rng.Intn(45),
		PaidRate:      0.4 + rng.Float64()*0.6,
		CustomerCount: rng.Intn(60),
		ItemCount:     2 + rng.Intn(30),
	}
}

type sale struct {
	ID          string    `json:"id"`
	TotalAmount float64   `json:"totalAmount"`
	SaleDate    time.Time `json:"saleDate"`
}

type invoice struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	TotalAmount float64   `json:"totalAmount"`
	InvoiceDate time.Time `json:"invoiceDate"`
}

type inventoryItem struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	StockQuantity int     `json:"stockQuantity"`
	UnitPrice     float64 `json:"unitPrice"`
	IsActive      bool    `json:"isActive"`
}

type customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type loanProduct struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	MinAmount      float64 `json:"minAmount"`
	MaxAmount      float64 `json:"maxAmount"`
	InterestRate   float64 `json:"interestRate"`
	TermMonths     int     `json:"termMonths"`
	ProductType    string  `json:"productType"`
	MinCreditScore int     `json:"minCreditScore"`
	IsActive       bool    `json:"isActive"`
}

func seedBusiness(client *http.Client, baseURL string, rng *rand.Rand, p BusinessProfile) error {
	now := time.Now()

	sales := make([]sale, 0, p.MonthsTrading)
	for m := 0; m < p.MonthsTrading; m++ {
		amount := p.MonthlySales * (1 + (rng.Float64()*2-1)*p.Volatility)
		if amount < 100 {
			amount = 100
		}
		sales = append(sales, sale{
			ID:          fmt.Sprintf("%s-sale-%03d", p.TenantID, m),
			TotalAmount: amount,
			SaleDate:    now.AddDate(0, -m, 0),
		})
	}
	if err := postJSON(client, baseURL, p.TenantID, "/sales", sales); err != nil {
		return err
	}

	invoices := make([]invoice, 0, p.InvoiceCount)
	for i := 0; i < p.InvoiceCount; i++ {
		status := "paid"
		if rng.Float64() > p.PaidRate {
			status = "overdue"
		}
		invoices = append(invoices, invoice{
			ID:          fmt.Sprintf("%s-inv-%03d", p.TenantID, i),
			Status:      status,
			TotalAmount: 100 + rng.Float64()*2000,
			InvoiceDate: now.AddDate(0, 0, -rng.Intn(180)),
		})
	}
	if err := postJSON(client, baseURL, p.TenantID, "/invoices", invoices); err != nil {
		return err
	}

	items := make([]inventoryItem, 0, p.ItemCount)
	for i := 0; i < p.ItemCount; i++ {
		items = append(items, inventoryItem{
			ID:            fmt.Sprintf("%s-item-%03d", p.TenantID, i),
			Name:          fmt.Sprintf("Item %d", i),
			StockQuantity: rng.Intn(50),
			UnitPrice:     5 + rng.Float64()*500,
			IsActive:      true,
		})
	}
	if err := postJSON(client, baseURL, p.TenantID, "/inventory", items); err != nil {
		return err
	}

	customers := make([]customer, 0, p.CustomerCount)
	for i := 0; i < p.CustomerCount; i++ {
		c := customer{
			ID:   fmt.Sprintf("%s-cust-%03d", p.TenantID, i),
			Name: fmt.Sprintf("Customer %d", i),
		}
		if rng.Float64() < 0.7 {
			c.Email = fmt.Sprintf("c%d@%s.test", i, p.TenantID)
		}
		customers = append(customers, c)
	}
	if err := postJSON(client, baseURL, p.TenantID, "/customers", customers); err != nil {
		return err
	}

	// Shared test product for prequalification
	product := loanProduct{
		ID:             "bench-product",
		Name:           "Benchmark Working Capital",
		MinAmount:      1000,
		MaxAmount:      100000,
		InterestRate:   14.0,
		TermMonths:     12,
		ProductType:    "working_capital",
		MinCreditScore: 550,
		IsActive:       true,
	}
	return postJSON(client, baseURL, p.TenantID, "/products", product)
}

func runBenchmark(profiles []BusinessProfile, baseURL string, requests, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan BusinessProfile, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for p := range work {
				firstScore := -1
				drifted := false

				for r := 0; r < requests; r++ {
					start := time.Now()
					score, err := fetchScore(client, baseURL, p.TenantID)
					metrics.record(time.Since(start))
					atomic.AddInt64(&metrics.ScoreRequests, 1)

					if err != nil {
						atomic.AddInt64(&metrics.TotalErrors, 1)
						continue
					}

					// An unchanged ledger must keep scoring the same
					if firstScore == -1 {
						firstScore = score.Score
						metrics.countRating(score.Rating)
					} else if score.Score != firstScore {
						drifted = true
					}
				}

				if drifted {
					atomic.AddInt64(&metrics.DriftingTenants, 1)
				}

				start := time.Now()
				pq, err := preQualify(client, baseURL, p.TenantID, 25000)
				metrics.record(time.Since(start))
				atomic.AddInt64(&metrics.PrequalRequests, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					continue
				}
				if pq.Qualified {
					atomic.AddInt64(&metrics.Qualified, 1)
				} else {
					atomic.AddInt64(&metrics.Declined, 1)
				}

				if verbose {
					fmt.Printf("%-12s | Score: %4d | Qualified: %-5v | MaxAmount: $%10.2f\n",
						p.TenantID, firstScore, pq.Qualified, pq.MaxAmount)
				}
			}
		}()
	}

	for _, p := range profiles {
		work <- p
	}
	close(work)

	wg.Wait()
	return metrics
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func postJSON(client *http.Client, baseURL, tenantID, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	return nil
}

func fetchScore(client *http.Client, baseURL, tenantID string) (*ScoreResponse, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL+"/score", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func preQualify(client *http.Client, baseURL, tenantID string, amount float64) (*PreQualifyResponse, error) {
	body, _ := json.Marshal(PreQualifyRequest{
		ProductID:       "bench-product",
		RequestedAmount: amount,
	})

	req, err := http.NewRequest(http.MethodPost, baseURL+"/prequalify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result PreQualifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	total := m.ScoreRequests + m.PrequalRequests

	fmt.Printf("\n📊 REQUEST STATISTICS\n")
	fmt.Printf("   Score Requests:    %d\n", m.ScoreRequests)
	fmt.Printf("   Prequal Requests:  %d\n", m.PrequalRequests)
	fmt.Printf("   Errors:            %d\n", m.TotalErrors)
	fmt.Printf("   Duration:          %s\n", duration.Round(time.Millisecond))
	if duration > 0 {
		fmt.Printf("   Throughput:        %.1f req/s\n", float64(total)/duration.Seconds())
	}

	fmt.Printf("\n⏱  LATENCY\n")
	m.mu.Lock()
	lats := append([]time.Duration(nil), m.latencies...)
	m.mu.Unlock()
	if len(lats) > 0 {
		sort.Slice(lats, func(i, j int) bool { return lats[i] < lats[j] })
		var sum time.Duration
		for _, l := range lats {
			sum += l
		}
		fmt.Printf("   Average:  %s\n", (sum / time.Duration(len(lats))).Round(time.Microsecond))
		fmt.Printf("   p50:      %s\n", lats[len(lats)/2].Round(time.Microsecond))
		fmt.Printf("   p95:      %s\n", lats[len(lats)*95/100].Round(time.Microsecond))
		fmt.Printf("   p99:      %s\n", lats[len(lats)*99/100].Round(time.Microsecond))
	}

	fmt.Printf("\n🏦 UNDERWRITING OUTCOMES\n")
	fmt.Printf("   Qualified:  %d\n", m.Qualified)
	fmt.Printf("   Declined:   %d\n", m.Declined)

	fmt.Printf("\n⭐ RATING DISTRIBUTION\n")
	for _, rating := range []string{"Excellent", "Very Good", "Good", "Fair", "Poor"} {
		fmt.Printf("   %-10s %d\n", rating, m.ratings[rating])
	}

	fmt.Printf("\n🔁 DETERMINISM\n")
	if m.DriftingTenants == 0 {
		fmt.Println("   ✓ every tenant scored identically on repeated reads")
	} else {
		fmt.Printf("   ✗ %d tenants drifted between reads\n", m.DriftingTenants)
	}
	fmt.Println()
}
