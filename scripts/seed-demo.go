//go:build ignore
// +build ignore

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// Seeds a running local server with a month of demo data through the sync
// endpoint. Run with: go run scripts/seed-demo.go

func main() {
	baseURL := os.Getenv("FLOW_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	now := time.Now()
	day := func(offset, hour int) string {
		return now.AddDate(0, 0, -offset).
			Truncate(24 * time.Hour).
			Add(time.Duration(hour) * time.Hour).
			Format("2006-01-02T15:04:05")
	}

	payload := map[string]any{
		"incremental": false,
		"merchantRules": []map[string]string{
			{"patternText": "starbucks", "displayName": "Starbucks", "consolidatedName": "Starbucks", "category": "Coffee"},
			{"patternText": "carrefour", "displayName": "Carrefour", "consolidatedName": "Carrefour", "category": "Groceries"},
			{"patternText": "netflix", "displayName": "Netflix", "consolidatedName": "Netflix", "category": "Entertainment"},
			{"patternText": "karwa", "displayName": "Karwa Taxi", "consolidatedName": "Karwa", "category": "Transport"},
		},
		"recipients": []map[string]string{
			{"id": "r-1", "phone": "97455123456", "shortName": "Sam", "longName": "Samir Haddad"},
		},
		"fxRates": map[string]float64{"USD": 3.64, "EUR": 3.98},
		"userContext": []map[string]string{
			{"type": "income", "key": "salary day", "value": "25"},
		},
		"goals": []map[string]any{
			{"category": "Dining", "monthlyLimit": 1500},
			{"category": "Coffee", "monthlyLimit": 300},
		},
		"rows": []map[string]any{
			{"timestamp": day(1, 9), "direction": "OUT", "amount": 22.5, "currency": "QAR",
				"rawText": "POS purchase STARBUCKS DOHA", "counterparty": "STARBUCKS DOHA"},
			{"timestamp": day(2, 20), "direction": "OUT", "amount": 310, "currency": "QAR",
				"rawText": "POS purchase CARREFOUR CITY CENTER", "counterparty": "CARREFOUR CITY CENTER"},
			{"timestamp": day(3, 23), "direction": "OUT", "amount": 180, "currency": "QAR",
				"rawText": "POS purchase SKY LOUNGE", "counterparty": "SKY LOUNGE", "category": "Bars & Nightlife"},
			{"timestamp": day(3, 23), "direction": "OUT", "amount": 95, "currency": "QAR",
				"rawText": "POS purchase LATE BITES", "counterparty": "LATE BITES", "category": "Dining"},
			{"timestamp": day(5, 10), "direction": "OUT", "amount": 57, "currency": "QAR",
				"rawText": "NETFLIX.COM subscription", "counterparty": "NETFLIX.COM"},
			{"timestamp": day(35, 10), "direction": "OUT", "amount": 57, "currency": "QAR",
				"rawText": "NETFLIX.COM subscription", "counterparty": "NETFLIX.COM"},
			{"timestamp": day(6, 14), "direction": "OUT", "amount": 2400, "currency": "QAR",
				"rawText": "Transfer to 55123456 via Fawran", "counterparty": "55123456", "txnType": "transfer"},
			{"timestamp": day(7, 8), "direction": "IN", "amount": 18000, "currency": "QAR",
				"rawText": "SALARY CREDIT ACME CORP", "counterparty": "ACME CORP"},
			{"timestamp": day(37, 8), "direction": "IN", "amount": 18000, "currency": "QAR",
				"rawText": "SALARY CREDIT ACME CORP", "counterparty": "ACME CORP"},
			{"timestamp": day(4, 12), "direction": "OUT", "amount": 120, "currency": "USD",
				"rawText": "AMAZON MKTPLACE", "counterparty": "AMAZON MKTPLACE"},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("marshal payload: %v", err)
	}

	resp, err := http.Post(baseURL+"/api/sync", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("sync request failed: %v", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatalf("decode response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("sync returned %d: %v", resp.StatusCode, result)
	}
	fmt.Printf("Seeded demo data: %v\n", result)
}
