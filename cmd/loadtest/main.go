// Command loadtest fires concurrent cart adds at a running server to verify
// stock accounting under contention: with stock S and N > S single-unit
// requests, exactly S must succeed and N-S must be rejected.
package main

import (
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	totalRequests = 50
)

func main() {
	baseURL := getEnv("TARGET_URL", "http://localhost:8080")
	token := os.Getenv("TOKEN")
	if token == "" {
		log.Fatal("TOKEN is required (bearer token for an existing user)")
	}
	productID := getEnv("PRODUCT_ID", "")
	if productID == "" {
		log.Fatal("PRODUCT_ID is required")
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetTimeout(10 * time.Second)

	var successCount, stockFailCount, otherFailCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			resp, err := client.R().
				SetBody(map[string]any{"productId": productID, "quantity": 1}).
				Post("/api/v1/cart/add")
			switch {
			case err != nil:
				otherFailCount.Add(1)
			case resp.StatusCode() == 200:
				successCount.Add(1)
			case resp.StatusCode() == 400:
				stockFailCount.Add(1)
			default:
				otherFailCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("========== LOAD TEST RESULTS ==========")
	fmt.Printf("Total Requests:     %d\n", totalRequests)
	fmt.Printf("Added to cart:      %d\n", successCount.Load())
	fmt.Printf("Out of stock:       %d\n", stockFailCount.Load())
	fmt.Printf("Other failures:     %d\n", otherFailCount.Load())
	fmt.Printf("Duration:           %v\n", elapsed)
	fmt.Println("=======================================")

	if otherFailCount.Load() > 0 {
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
