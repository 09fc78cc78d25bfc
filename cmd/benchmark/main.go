// Benchmark tool for testing Kestrel against labeled detection data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/detections.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled detection signals (with confirmed-fraud labels)
//   2. Sends each signal to Kestrel for classification
//   3. Compares Kestrel's risk level (high/critical vs below) with the labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// Expected CSV columns: subject_id, source, district, context, score,
// confidence, amount, is_fraud
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledDetection represents a row from the labeled detection dataset
type LabeledDetection struct {
	SubjectID  string
	Source     string
	District   string
	Context    string
	Score      float64
	Confidence float64
	Amount     float64
	IsFraud    bool
}

// ClassifyRequest is the Kestrel API request format
type ClassifyRequest struct {
	SubjectID  string  `json:"subjectId"`
	Source     string  `json:"source"`
	District   string  `json:"district"`
	Context    string  `json:"context"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Amount     float64 `json:"amount,omitempty"`
}

// ClassifyResponse is the Kestrel API response format
type ClassifyResponse struct {
	ClassificationID   string  `json:"classificationId"`
	CatalogID          string  `json:"catalogId"`
	RiskLevel          string  `json:"riskLevel"`
	Confidence         float64 `json:"confidence"`
	EscalationRequired bool    `json:"escalationRequired"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Fraud classified high/critical
	FalsePositives int64 // Non-fraud classified high/critical
	TrueNegatives  int64 // Non-fraud classified low/medium
	FalseNegatives int64 // Fraud classified low/medium (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled detections CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum detections to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only test confirmed-fraud detections")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for non-fraud (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each detection result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/detections.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("KESTREL BENCHMARK - Labeled Detection Classification")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Fraud Only:  %v\n", *fraudOnly)
	fmt.Printf("Sample Rate: %.2f\n", *sampleRate)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	// Read labeled data
	fmt.Printf("\nReading labeled detections from %s...\n", *csvPath)
	detections, err := readDetectionsCSV(*csvPath, *limit, *fraudOnly, *sampleRate)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d detections\n", len(detections))

	// Count fraud vs non-fraud
	fraudCount := 0
	for _, d := range detections {
		if d.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(detections)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(detections)-fraudCount, 100*float64(len(detections)-fraudCount)/float64(len(detections)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(detections, *baseURL, *tenantID, *workers, *verbose)
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

func readDetectionsCSV(path string, limit int, fraudOnly bool, sampleRate float64) ([]LabeledDetection, error) {
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
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	var detections []LabeledDetection
	sampleCounter := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isFraud := record[colIndex["is_fraud"]] == "1"

		// Apply filters
		if fraudOnly && !isFraud {
			continue
		}

		// Sample non-fraud detections
		if !isFraud && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		score, _ := strconv.ParseFloat(record[colIndex["score"]], 64)
		confidence, _ := strconv.ParseFloat(record[colIndex["confidence"]], 64)
		amount, _ := strconv.ParseFloat(record[colIndex["amount"]], 64)

		d := LabeledDetection{
			SubjectID:  record[colIndex["subject_id"]],
			Source:     record[colIndex["source"]],
			District:   record[colIndex["district"]],
			Context:    record[colIndex["context"]],
			Score:      score,
			Confidence: confidence,
			Amount:     amount,
			IsFraud:    isFraud,
		}

		detections = append(detections, d)

		if limit > 0 && len(detections) >= limit {
			break
		}
	}

	return detections, nil
}

func runBenchmark(detections []LabeledDetection, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan LabeledDetection, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for d := range work {
				start := time.Now()
				result, err := classifyDetection(client, baseURL, tenantID, d)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", d.SubjectID, err)
					}
					continue
				}

				// Track actual labels
				if d.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNonFraud, 1)
				}

				// Calculate confusion matrix
				predicted := result.RiskLevel == "high" || result.RiskLevel == "critical"
				actual := d.IsFraud

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
					status := "OK  "
					if (predicted && !actual) || (!predicted && actual) {
						status = "MISS"
					}
					fmt.Printf("%s %-12s | Source: %-11s | Score: %6.2f | Fraud: %-5v | Kestrel: %-8s (%.2f) | Escalate: %v\n",
						status,
						d.SubjectID,
						d.Source,
						d.Score,
						d.IsFraud,
						result.RiskLevel,
						result.Confidence,
						result.EscalationRequired,
					)
				}
			}
		}()
	}

	// Send work
	for _, d := range detections {
		work <- d
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func classifyDetection(client *http.Client, baseURL, tenantID string, d LabeledDetection) (*ClassifyResponse, error) {
	req := ClassifyRequest{
		SubjectID:  d.SubjectID,
		Source:     d.Source,
		District:   d.District,
		Context:    d.Context,
		Score:      d.Score,
		Confidence: d.Confidence,
		Amount:     d.Amount,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ClassifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    HIGH        LOW")
	fmt.Printf("   Actual  F     %8d    %8d    (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("          NF     %8d    %8d    (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

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
	fmt.Printf("   Precision:  %.4f  (of high-risk classifications, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we flag)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\nDETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Flagged:     %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%)\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalNonFraud > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalNonFraud) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNonFraud, falseAlarmRate)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f signals/sec\n", tps)
	}

	fmt.Println()
}
