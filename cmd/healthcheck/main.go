// Command healthcheck probes a running rtprovision server from inside its
// container. Exit codes: 0 healthy, 1 server unreachable or unhealthy,
// 2 server up but no usable session credential (only with -require-credential).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"
)

const (
	exitHealthy      = 0
	exitUnhealthy    = 1
	exitNoCredential = 2

	defaultAddr  = "127.0.0.1:8080"
	probeTimeout = 2 * time.Second
)

func main() {
	requireCredential := flag.Bool("require-credential", false, "also fail when no valid session credential is stored")
	flag.Parse()

	os.Exit(check(os.Getenv("RTPROVISION_LISTEN_ADDR"), *requireCredential))
}

type healthBody struct {
	Status string `json:"status"`
}

type authBody struct {
	Valid bool `json:"valid"`
}

func check(rawAddr string, requireCredential bool) int {
	base := "http://" + normalizeAddr(rawAddr)
	client := &http.Client{Timeout: probeTimeout}

	var health healthBody
	if err := probe(client, base+"/api/v1/health", &health); err != nil || health.Status != "ok" {
		return exitUnhealthy
	}
	if !requireCredential {
		return exitHealthy
	}

	var auth authBody
	if err := probe(client, base+"/api/v1/auth/status", &auth); err != nil {
		return exitUnhealthy
	}
	if !auth.Valid {
		return exitNoCredential
	}
	return exitHealthy
}

// probe GETs url and decodes a 200 response into out.
func probe(client *http.Client, url string, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(out)
}

// normalizeAddr swaps a bind-all or missing host for loopback; the probe runs
// inside the same container as the server.
func normalizeAddr(raw string) string {
	if raw == "" {
		return defaultAddr
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}

	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
