// Benchmark tool for testing Kestrel against labeled mail data.
//
// Usage:
//
//	go run cmd/kestrel-bench/main.go -csv /path/to/messages.csv -url http://localhost:8080
//
// This tool:
//  1. Reads labeled messages from a CSV file (or generates synthetic ones)
//  2. Sends each message to Kestrel for classification
//  3. Compares Kestrel's category with the expected label
//  4. Reports accuracy, match rate, latency, and throughput
//
// CSV columns: from, to, subject, snippet, hasattachment, unread, starred, expected
// The "expected" column holds the category NAME the message should land in
// (empty means the message should not match any category).
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
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledMessage is a message plus the category it should classify into.
type LabeledMessage struct {
	From          string
	To            string
	Subject       string
	Snippet       string
	HasAttachment bool
	Unread        bool
	Starred       bool
	Expected      string // category name, empty = expect no match
}

// ClassifyRequest is the Kestrel API request format
type ClassifyRequest struct {
	ID            string `json:"id,omitempty"`
	From          string `json:"from,omitempty"`
	To            string `json:"to,omitempty"`
	Subject       string `json:"subject,omitempty"`
	Snippet       string `json:"snippet,omitempty"`
	HasAttachment bool   `json:"hasAttachment,omitempty"`
	Unread        bool   `json:"isUnread,omitempty"`
	Starred       bool   `json:"isStarred,omitempty"`
}

// ClassifyResponse is the Kestrel API response format
type ClassifyResponse struct {
	ClassificationID string `json:"classificationId"`
	Matched          bool   `json:"matched"`
	CategoryID       string `json:"categoryId,omitempty"`
	CategoryName     string `json:"categoryName,omitempty"`
	Cached           bool   `json:"cached"`
}

// Metrics tracks benchmark results
type Metrics struct {
	Correct        int64 // Expected category matched
	Wrong          int64 // Matched a different category
	MissedMatch    int64 // Expected a category, got no match
	FalseMatch     int64 // Expected no match, got one
	CorrectNoMatch int64 // Expected no match, got none

	TotalProcessed int64
	TotalMatched   int64
	TotalCached    int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled message CSV file (empty = synthetic messages)")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	accountID := flag.String("account", "benchmark-test", "Account ID for requests")
	count := flag.Int("count", 1000, "Number of synthetic messages when no CSV is given")
	limit := flag.Int("limit", 0, "Maximum CSV rows to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each message result")
	flag.Parse()

	fmt.Println("KESTREL BENCHMARK - mail classification")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Account ID:  %s\n", *accountID)
	fmt.Printf("Workers:     %d\n", *workers)
	if *csvPath != "" {
		fmt.Printf("CSV File:    %s\n", *csvPath)
	} else {
		fmt.Printf("Synthetic:   %d messages\n", *count)
	}
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Load messages
	var messages []LabeledMessage
	var err error
	if *csvPath != "" {
		fmt.Printf("\nReading messages from %s...\n", *csvPath)
		messages, err = readMessageCSV(*csvPath, *limit)
		if err != nil {
			fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
			os.Exit(1)
		}
	} else {
		messages = syntheticMessages(*count)
	}
	fmt.Printf("✓ Loaded %d messages\n", len(messages))

	labeled := 0
	for _, m := range messages {
		if m.Expected != "" {
			labeled++
		}
	}
	fmt.Printf("  - Labeled:   %d (%.2f%%)\n", labeled, 100*float64(labeled)/float64(len(messages)))
	fmt.Printf("  - Unlabeled: %d\n", len(messages)-labeled)

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(messages, *baseURL, *accountID, *workers, *verbose)
	duration := time.Since(startTime)

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

func readMessageCSV(path string, limit int) ([]LabeledMessage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	field := func(record []string, name string) string {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var messages []LabeledMessage
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		msg := LabeledMessage{
			From:          field(record, "from"),
			To:            field(record, "to"),
			Subject:       field(record, "subject"),
			Snippet:       field(record, "snippet"),
			HasAttachment: field(record, "hasattachment") == "1" || field(record, "hasattachment") == "true",
			Unread:        field(record, "unread") == "1" || field(record, "unread") == "true",
			Starred:       field(record, "starred") == "1" || field(record, "starred") == "true",
			Expected:      field(record, "expected"),
		}

		messages = append(messages, msg)
		if limit > 0 && len(messages) >= limit {
			break
		}
	}

	return messages, nil
}

// syntheticMessages fabricates a mixed workload. Expected labels are left
// empty since the server's categories are unknown, so the run measures
// throughput and match rate rather than accuracy.
func syntheticMessages(count int) []LabeledMessage {
	senders := []string{
		"boss@acme.com",
		"noreply@newsletter.example.com",
		"friend@gmail.com",
		"billing@stripe.com",
		"team@github.com",
	}
	subjects := []string{
		"Quarterly planning review",
		"Your weekly newsletter",
		"Re: weekend plans",
		"Invoice #%d is ready",
		"Security alert for your account",
	}

	messages := make([]LabeledMessage, 0, count)
	for i := 0; i < count; i++ {
		subject := subjects[i%len(subjects)]
		if strings.Contains(subject, "%d") {
			subject = fmt.Sprintf(subject, i)
		}
		messages = append(messages, LabeledMessage{
			From:          senders[i%len(senders)],
			Subject:       subject,
			Snippet:       fmt.Sprintf("Synthetic message body %d", i),
			HasAttachment: i%7 == 0,
			Unread:        i%2 == 0,
		})
	}
	return messages
}

func runBenchmark(messages []LabeledMessage, baseURL, accountID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabeledMessage, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for msg := range work {
				start := time.Now()
				result, err := classifyMessage(client, baseURL, accountID, msg)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", msg.From, err)
					}
					continue
				}

				if result.Matched {
					atomic.AddInt64(&metrics.TotalMatched, 1)
				}
				if result.Cached {
					atomic.AddInt64(&metrics.TotalCached, 1)
				}

				// Compare with expected label
				switch {
				case msg.Expected != "" && result.CategoryName == msg.Expected:
					atomic.AddInt64(&metrics.Correct, 1)
				case msg.Expected != "" && result.Matched:
					atomic.AddInt64(&metrics.Wrong, 1)
				case msg.Expected != "" && !result.Matched:
					atomic.AddInt64(&metrics.MissedMatch, 1)
				case msg.Expected == "" && result.Matched:
					atomic.AddInt64(&metrics.FalseMatch, 1)
				default:
					atomic.AddInt64(&metrics.CorrectNoMatch, 1)
				}

				if verbose {
					status := "✓"
					if msg.Expected != "" && result.CategoryName != msg.Expected {
						status = "✗"
					}
					got := result.CategoryName
					if !result.Matched {
						got = "(none)"
					}
					fmt.Printf("%s %-30s | Subject: %-35s | Expected: %-15s | Got: %s\n",
						status, msg.From, truncate(msg.Subject, 35), orNone(msg.Expected), got)
				}
			}
		}()
	}

	for _, msg := range messages {
		work <- msg
	}
	close(work)

	wg.Wait()

	return metrics
}

func classifyMessage(client *http.Client, baseURL, accountID string, msg LabeledMessage) (*ClassifyResponse, error) {
	req := ClassifyRequest{
		From:          msg.From,
		To:            msg.To,
		Subject:       msg.Subject,
		Snippet:       msg.Snippet,
		HasAttachment: msg.HasAttachment,
		Unread:        msg.Unread,
		Starred:       msg.Starred,
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
	httpReq.Header.Set("X-Account-ID", accountID)

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
	fmt.Printf("   Total Matched:    %d\n", m.TotalMatched)
	fmt.Printf("   Cache Hits:       %d\n", m.TotalCached)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	labeled := m.Correct + m.Wrong + m.MissedMatch
	if labeled > 0 || m.FalseMatch > 0 {
		fmt.Printf("\nCLASSIFICATION ACCURACY\n")
		fmt.Printf("   Correct Category:  %d\n", m.Correct)
		fmt.Printf("   Wrong Category:    %d\n", m.Wrong)
		fmt.Printf("   Missed Match:      %d\n", m.MissedMatch)
		fmt.Printf("   False Match:       %d\n", m.FalseMatch)
		fmt.Printf("   Correct No-Match:  %d\n", m.CorrectNoMatch)

		if labeled > 0 {
			accuracy := float64(m.Correct) / float64(labeled)
			fmt.Printf("   Accuracy:          %.4f (of labeled messages)\n", accuracy)
		}
	}

	if m.TotalProcessed > 0 {
		matchRate := float64(m.TotalMatched) / float64(m.TotalProcessed) * 100
		fmt.Printf("\nMATCH ANALYSIS\n")
		fmt.Printf("   Match Rate:        %.2f%%\n", matchRate)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		mps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f msg/sec\n", mps)
	}

	fmt.Println()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
