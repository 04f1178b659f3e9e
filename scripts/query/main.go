// Command query asks a running ledger-api for records or statistics, over
// HTTP or gRPC.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"PcapLedger/internal/engine/filter"
	"PcapLedger/internal/rpc"
)

func main() {
	mode := flag.String("mode", "api", "Query mode: 'api' for the HTTP API, 'grpc' for the report service.")
	what := flag.String("what", "statistics", "What to fetch: 'records' or 'statistics'.")
	httpAddr := flag.String("http", "http://localhost:8080", "HTTP API base URL.")
	grpcAddr := flag.String("grpc", "localhost:50051", "gRPC server address.")

	var raw filter.RawSpec
	flag.StringVar(&raw.Protocol, "protocol", "", "Protocol label filter.")
	flag.StringVar(&raw.Address, "ip", "", "Address filter.")
	flag.StringVar(&raw.Port, "port", "", "Port filter.")
	flag.StringVar(&raw.MinSize, "min-size", "", "Minimum size filter.")
	flag.StringVar(&raw.MaxSize, "max-size", "", "Maximum size filter.")
	flag.StringVar(&raw.StartTime, "start", "", "Start time filter.")
	flag.StringVar(&raw.EndTime, "end", "", "End time filter.")
	flag.Parse()

	if *what != "records" && *what != "statistics" {
		log.Fatalf("Invalid -what: %s. Use 'records' or 'statistics'.", *what)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		result any
		err    error
	)
	switch *mode {
	case "api":
		result, err = queryViaAPI(ctx, *httpAddr, *what, raw)
	case "grpc":
		result, err = queryViaGRPC(ctx, *grpcAddr, *what, raw)
	default:
		log.Fatalf("Invalid mode: %s. Use 'api' or 'grpc'.", *mode)
	}
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("Failed to print result: %v", err)
	}
}

func queryViaAPI(ctx context.Context, base, what string, raw filter.RawSpec) (any, error) {
	params := url.Values{}
	for key, v := range map[string]string{
		"protocol": raw.Protocol, "ip": raw.Address, "port": raw.Port,
		"min_size": raw.MinSize, "max_size": raw.MaxSize,
		"start_time": raw.StartTime, "end_time": raw.EndTime,
	} {
		if v != "" {
			params.Set(key, v)
		}
	}
	u := fmt.Sprintf("%s/api/v1/%s?%s", base, what, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned %s: %s", resp.Status, body)
	}
	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}

func queryViaGRPC(ctx context.Context, addr, what string, raw filter.RawSpec) (any, error) {
	c, err := rpc.Dial(addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if what == "records" {
		return c.Records(ctx, raw)
	}
	return c.Summarize(ctx, raw)
}
