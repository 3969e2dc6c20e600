//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("NUKA_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3210"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// call sends a JSON request and decodes the response into out when non-nil.
func call(t *testing.T, method, path string, in, out interface{}) int {
	t.Helper()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("unmarshal response: %v (body: %s)", err, string(raw))
		}
	}
	return resp.StatusCode
}

type agent struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

type status struct {
	WorldTime time.Time `json:"world_time"`
	Ticks     int64     `json:"ticks"`
	Agents    int       `json:"agents"`
}

func TestWorldAdvances(t *testing.T) {
	var before status
	if code := call(t, http.MethodGet, "/api/world/status", nil, &before); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if code := call(t, http.MethodPost, "/api/tick?n=6", nil, nil); code != http.StatusOK {
		t.Fatalf("tick = %d", code)
	}
	var after status
	call(t, http.MethodGet, "/api/world/status", nil, &after)
	if after.Ticks < before.Ticks+6 {
		t.Errorf("ticks %d -> %d", before.Ticks, after.Ticks)
	}
	if !after.WorldTime.After(before.WorldTime) {
		t.Errorf("world time did not advance: %v -> %v", before.WorldTime, after.WorldTime)
	}
	t.Logf("world at %s with %d agents", after.WorldTime, after.Agents)
}

func TestAgentLifecycle(t *testing.T) {
	var a agent
	code := call(t, http.MethodPost, "/api/agents", map[string]string{"name": "Smoke", "location": "square"}, &a)
	if code != http.StatusCreated || a.ID == "" {
		t.Fatalf("create agent = %d %+v", code, a)
	}

	var got agent
	if code := call(t, http.MethodGet, "/api/agents/"+a.ID, nil, &got); code != http.StatusOK || got.Name != "Smoke" {
		t.Errorf("get agent = %d %+v", code, got)
	}
	var narrative struct {
		Summary string `json:"summary"`
	}
	if code := call(t, http.MethodGet, "/api/agents/"+a.ID+"/narrative", nil, &narrative); code != http.StatusOK {
		t.Errorf("narrative = %d", code)
	}
	if code := call(t, http.MethodGet, "/api/agents/nobody", nil, nil); code != http.StatusNotFound {
		t.Errorf("missing agent = %d", code)
	}
}

func TestFactionFounding(t *testing.T) {
	var a agent
	call(t, http.MethodPost, "/api/agents", map[string]string{"name": "Founder"}, &a)

	var f struct {
		ID string `json:"id"`
	}
	code := call(t, http.MethodPost, "/api/factions", map[string]interface{}{
		"founder_id": a.ID,
		"name":       fmt.Sprintf("Smoke Society %d", time.Now().UnixNano()),
		"beliefs":    []string{"order"},
	}, &f)
	if code != http.StatusCreated || f.ID == "" {
		t.Fatalf("create faction = %d %+v", code, f)
	}
	if code := call(t, http.MethodPost, "/api/factions/"+f.ID+"/members", map[string]string{"agent_id": a.ID}, nil); code != http.StatusConflict {
		t.Errorf("founder joined twice = %d", code)
	}
}

func TestScanAndDetect(t *testing.T) {
	if code := call(t, http.MethodPost, "/api/life-events/scan", nil, nil); code != http.StatusOK {
		t.Errorf("scan = %d", code)
	}
	if code := call(t, http.MethodPost, "/api/arcs/detect", nil, nil); code != http.StatusOK {
		t.Errorf("detect = %d", code)
	}
	var arcs []json.RawMessage
	if code := call(t, http.MethodGet, "/api/arcs?open=true", nil, &arcs); code != http.StatusOK {
		t.Errorf("arcs = %d", code)
	}
	t.Logf("%d open arcs", len(arcs))
}
