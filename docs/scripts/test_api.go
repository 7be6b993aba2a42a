// Minimal end-to-end smoke test for the ContentMaker API.
//
// Run from repo root:
//
//	go run ./docs/scripts/test_api.go
//
// Environment:
//
//	API_URL         – base URL (default http://localhost:8090/v1)
//	API_ADMIN_TOKEN – operator token (default letmein)
//
// Flow:
//
//  1. POST /auth/login        → JWT
//  2. GET  /blocks            → assert reachable
//  3. GET  /schedule          → assert reachable
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	base := env("API_URL", "http://localhost:8090/v1")
	adminToken := env("API_ADMIN_TOKEN", "letmein")

	client := &http.Client{Timeout: 10 * time.Second}

	// 1. login
	body, _ := json.Marshal(map[string]string{"token": adminToken})
	resp, err := client.Post(base+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("login: %s: %s", resp.Status, raw)
	}
	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &loginResp); err != nil || loginResp.Token == "" {
		log.Fatalf("login response: %v: %s", err, raw)
	}
	fmt.Println("login ok")

	get := func(path string) {
		req, _ := http.NewRequest(http.MethodGet, base+path, nil)
		req.Header.Set("Authorization", "Bearer "+loginResp.Token)
		resp, err := client.Do(req)
		if err != nil {
			log.Fatalf("GET %s: %v", path, err)
		}
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			log.Fatalf("GET %s: %s: %s", path, resp.Status, raw)
		}
		fmt.Printf("GET %s ok (%d bytes)\n", path, len(raw))
	}

	// 2. blocks
	get("/blocks")

	// 3. schedule
	get("/schedule")

	fmt.Println("all checks passed")
}
