// Benchmark tool for testing settlecore's failure predictions against
// labeled settlement outcomes.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/settlements.csv -url http://localhost:8080
//   go run cmd/benchmark/main.go -synthetic 5000 -url http://localhost:8080
//
// This tool:
//   1. Reads labeled settlement records (or generates a synthetic set)
//   2. Registers each instruction and requests a failure prediction
//   3. Compares the predicted verdict with the actual outcome label
//   4. Reports the outcome back so the model metrics accumulate
//   5. Calculates precision, recall, F1-score, and confusion matrix
//
// CSV columns: tradeId,counterpartyId,securityId,securityType,notional,
// currency,method,priority,daysToSettle,outcome
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// SettlementRecord is one labeled instruction to replay.
type SettlementRecord struct {
	TradeID        string
	CounterpartyID string
	SecurityID     string
	SecurityType   string
	Notional       float64
	Currency       string
	Method         string
	Priority       string
	DaysToSettle   int
	Outcome        string // SETTLED, FAILED, or DELAYED
	DelayDays      float64
}

// InstructionRequest is the settlecore intake format.
type InstructionRequest struct {
	TradeID        string    `json:"tradeId"`
	CounterpartyID string    `json:"counterpartyId"`
	SecurityID     string    `json:"securityId"`
	SecurityType   string    `json:"securityType"`
	NotionalAmount float64   `json:"notionalAmount"`
	Currency       string    `json:"currency"`
	TradeDate      time.Time `json:"tradeDate"`
	SettlementDate time.Time `json:"settlementDate"`
	Method         string    `json:"settlementMethod"`
	Priority       string    `json:"priority,omitempty"`
}

// PredictionResponse is the settlecore prediction format.
type PredictionResponse struct {
	ID                 string  `json:"id"`
	InstructionID      string  `json:"instructionId"`
	FailureProbability float64 `json:"failureProbability"`
	RiskTier           string  `json:"riskTier"`
	Confidence         float64 `json:"confidence"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // failure predicted, settlement failed
	FalsePositives int64 // failure predicted, settlement succeeded
	TrueNegatives  int64 // no failure predicted, settlement succeeded
	FalseNegatives int64 // no failure predicted, settlement failed

	TotalProcessed int64
	TotalFailed    int64
	TotalSettled   int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled settlement CSV file")
	synthetic := flag.Int("synthetic", 0, "Generate N synthetic records instead of reading a CSV")
	baseURL := flag.String("url", "http://localhost:8080", "settlecore base URL")
	limit := flag.Int("limit", 10000, "Maximum records to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	threshold := flag.Float64("threshold", 0.5, "Probability above which a prediction counts as a failure verdict")
	verbose := flag.Bool("verbose", false, "Print each record result")
	seed := flag.Int64("seed", 42, "Seed for synthetic generation")
	flag.Parse()

	if *csvPath == "" && *synthetic <= 0 {
		fmt.Println("Usage: benchmark -csv /path/to/settlements.csv [-url http://localhost:8080]")
		fmt.Println("       benchmark -synthetic 5000 [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("SETTLECORE BENCHMARK - settlement failure prediction")
	fmt.Println()
	if *csvPath != "" {
		fmt.Printf("CSV File:    %s\n", *csvPath)
	} else {
		fmt.Printf("Synthetic:   %d records (seed %d)\n", *synthetic, *seed)
	}
	fmt.Printf("Target URL:  %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Threshold:   %.2f\n", *threshold)
	fmt.Println()

	// Check settlecore is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: settlecore not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure settlecore is running:")
		fmt.Println("  go run cmd/settlecore/main.go")
		os.Exit(1)
	}
	fmt.Println("settlecore is healthy")

	var records []SettlementRecord
	var err error
	if *csvPath != "" {
		fmt.Printf("\nReading settlement records from %s...\n", *csvPath)
		records, err = readSettlementCSV(*csvPath, *limit)
		if err != nil {
			fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
			os.Exit(1)
		}
	} else {
		records = generateSynthetic(*synthetic, *seed)
	}
	fmt.Printf("Loaded %d records\n", len(records))

	failedCount := 0
	for _, rec := range records {
		if rec.Outcome == "FAILED" {
			failedCount++
		}
	}
	fmt.Printf("  - Failed:  %d (%.2f%%)\n", failedCount, 100*float64(failedCount)/float64(len(records)))
	fmt.Printf("  - Settled: %d (%.2f%%)\n", len(records)-failedCount, 100*float64(len(records)-failedCount)/float64(len(records)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(records, *baseURL, *workers, *threshold, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
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

func readSettlementCSV(path string, limit int) ([]SettlementRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[col] = i
	}

	var records []SettlementRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		notional, _ := strconv.ParseFloat(row[colIndex["notional"]], 64)
		days, _ := strconv.Atoi(row[colIndex["daysToSettle"]])
		delayDays := 0.0
		if i, ok := colIndex["delayDays"]; ok {
			delayDays, _ = strconv.ParseFloat(row[i], 64)
		}

		records = append(records, SettlementRecord{
			TradeID:        row[colIndex["tradeId"]],
			CounterpartyID: row[colIndex["counterpartyId"]],
			SecurityID:     row[colIndex["securityId"]],
			SecurityType:   row[colIndex["securityType"]],
			Notional:       notional,
			Currency:       row[colIndex["currency"]],
			Method:         row[colIndex["method"]],
			Priority:       row[colIndex["priority"]],
			DaysToSettle:   days,
			Outcome:        row[colIndex["outcome"]],
			DelayDays:      delayDays,
		})

		if limit > 0 && len(records) >= limit {
			break
		}
	}

	return records, nil
}

// generateSynthetic builds a labeled record set where weak counterparties
// and large structured-product trades fail more often, so predictions have
// signal to find.
func generateSynthetic(n int, seed int64) []SettlementRecord {
	rng := rand.New(rand.NewSource(seed))

	securityTypes := []string{"EQUITY", "CORPORATE_BOND", "GOVERNMENT_BOND", "MONEY_MARKET", "STRUCTURED_PRODUCT", "DERIVATIVE"}
	methods := []string{"DVP", "RVP", "FOP", "DFP"}
	priorities := []string{"LOW", "NORMAL", "HIGH", "URGENT"}

	records := make([]SettlementRecord, 0, n)
	for i := 0; i < n; i++ {
		cp := fmt.Sprintf("cp-%03d", rng.Intn(40))
		secType := securityTypes[rng.Intn(len(securityTypes))]
		notional := 10_000 + rng.Float64()*100_000_000

		// Counterparties with a high index are the unreliable ones.
		failBias := 0.02
		if cp >= "cp-030" {
			failBias += 0.25
		}
		if secType == "STRUCTURED_PRODUCT" && notional > 50_000_000 {
			failBias += 0.15
		}

		outcome := "SETTLED"
		delayDays := 0.0
		switch roll := rng.Float64(); {
		case roll < failBias:
			outcome = "FAILED"
		case roll < failBias+0.10:
			outcome = "DELAYED"
			delayDays = 1 + rng.Float64()*4
		}

		records = append(records, SettlementRecord{
			TradeID:        fmt.Sprintf("trade-%06d", i),
			CounterpartyID: cp,
			SecurityID:     fmt.Sprintf("sec-%04d", rng.Intn(500)),
			SecurityType:   secType,
			Notional:       notional,
			Currency:       "USD",
			Method:         methods[rng.Intn(len(methods))],
			Priority:       priorities[rng.Intn(len(priorities))],
			DaysToSettle:   1 + rng.Intn(3),
			Outcome:        outcome,
			DelayDays:      delayDays,
		})
	}
	return records
}

func runBenchmark(records []SettlementRecord, baseURL string, numWorkers int, threshold float64, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan SettlementRecord, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for rec := range work {
				start := time.Now()
				result, err := predictRecord(client, baseURL, rec)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", rec.TradeID, err)
					}
					continue
				}

				// Track actual labels
				actual := rec.Outcome == "FAILED"
				if actual {
					atomic.AddInt64(&metrics.TotalFailed, 1)
				} else {
					atomic.AddInt64(&metrics.TotalSettled, 1)
				}

				// Confusion matrix
				predicted := result.FailureProbability > threshold
				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					mark := "ok  "
					if predicted != actual {
						mark = "MISS"
					}
					fmt.Printf("%s %-12s | %-18s | $%14.2f | outcome: %-7s | predicted: %.3f (%s)\n",
						mark,
						rec.TradeID,
						rec.SecurityType,
						rec.Notional,
						rec.Outcome,
						result.FailureProbability,
						result.RiskTier,
					)
				}
			}
		}()
	}

	// Send work
	for _, rec := range records {
		work <- rec
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

// predictRecord registers the instruction, requests a prediction, and
// reports the labeled outcome back so the counterparty history and model
// metrics accumulate as the run progresses.
func predictRecord(client *http.Client, baseURL string, rec SettlementRecord) (*PredictionResponse, error) {
	now := time.Now().UTC()
	intake := InstructionRequest{
		TradeID:        rec.TradeID,
		CounterpartyID: rec.CounterpartyID,
		SecurityID:     rec.SecurityID,
		SecurityType:   rec.SecurityType,
		NotionalAmount: rec.Notional,
		Currency:       rec.Currency,
		TradeDate:      now,
		SettlementDate: now.AddDate(0, 0, rec.DaysToSettle),
		Method:         rec.Method,
		Priority:       rec.Priority,
	}

	var created struct {
		Instruction struct {
			ID string `json:"id"`
		} `json:"instruction"`
	}
	if err := postJSON(client, baseURL+"/api/v1/instructions", intake, http.StatusCreated, &created); err != nil {
		return nil, fmt.Errorf("intake: %w", err)
	}

	var prediction PredictionResponse
	predictURL := fmt.Sprintf("%s/api/v1/instructions/%s/predict", baseURL, created.Instruction.ID)
	if err := postJSON(client, predictURL, nil, http.StatusOK, &prediction); err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	outcome := map[string]any{
		"outcome":         rec.Outcome,
		"actualDelayDays": rec.DelayDays,
	}
	outcomeURL := fmt.Sprintf("%s/api/v1/instructions/%s/outcome", baseURL, created.Instruction.ID)
	if err := postJSON(client, outcomeURL, outcome, http.StatusOK, nil); err != nil {
		return nil, fmt.Errorf("outcome: %w", err)
	}

	return &prediction, nil
}

func postJSON(client *http.Client, url string, payload any, wantStatus int, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Failed:     %d\n", m.TotalFailed)
	fmt.Printf("   Total Settled:    %d\n", m.TotalSettled)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    FAIL        OK")
	fmt.Printf("   Actual  FAIL  %8d  %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("           OK    %8d  %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of failure verdicts, how many failed)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of failures, how many were flagged)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f instructions/sec\n", tps)
	}

	fmt.Println()
}
