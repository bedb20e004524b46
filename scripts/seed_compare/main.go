// Command seed_compare posts the same seeded catalogs to two deployments and reports whether
// they produce identical timetables. Run it before promoting a build that touches the search.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
)

type target struct {
	Name     string `json:"name"`
	Payload  string `json:"payload"`
	Critical bool   `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

type comparison struct {
	Target            target
	BaselineStatus    int
	CandidateStatus   int
	StatusMatch       bool
	BodyMatch         bool
	Error             error
	DurationBaseline  time.Duration
	DurationCandidate time.Duration
}

// volatileFields differ between otherwise identical runs.
var volatileFields = []string{"runId", "durationMs", "cached"}

func main() {
	var (
		baselineBase  string
		candidateBase string
		targetsPath   string
		token         string
		timeout       time.Duration
	)

	flag.StringVar(&baselineBase, "baseline", "http://localhost:8080/api/v1", "Baseline API base URL")
	flag.StringVar(&candidateBase, "candidate", "http://localhost:8081/api/v1", "Candidate API base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "seed_compare", "targets.json"), "Path to JSON targets file")
	flag.StringVar(&token, "token", os.Getenv("TIMETABLE_TOKEN"), "Bearer token sent to both deployments")
	flag.DurationVar(&timeout, "timeout", 60*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}
	baseDir := filepath.Dir(targetsPath)

	client := &http.Client{Timeout: timeout}
	var (
		comparisons  []comparison
		breaking     int
		optionalDiff int
	)

	for _, t := range targets {
		comp := compareTarget(client, baselineBase, candidateBase, token, baseDir, t)
		switch {
		case comp.Error != nil, !comp.StatusMatch, !comp.BodyMatch:
			if t.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		}
		comparisons = append(comparisons, comp)
	}

	printReport(comparisons)

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg.Targets, nil
}

func compareTarget(client *http.Client, baselineBase, candidateBase, token, baseDir string, tgt target) comparison {
	comp := comparison{Target: tgt}

	payloadPath := tgt.Payload
	if !filepath.IsAbs(payloadPath) {
		payloadPath = filepath.Join(baseDir, payloadPath)
	}
	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		comp.Error = fmt.Errorf("read payload: %w", err)
		return comp
	}
	if err := requireSeed(payload); err != nil {
		comp.Error = err
		return comp
	}

	baseline, baselineDur, err := generate(client, baselineBase, token, payload)
	if err != nil {
		comp.Error = fmt.Errorf("baseline request failed: %w", err)
		return comp
	}
	candidate, candidateDur, err := generate(client, candidateBase, token, payload)
	if err != nil {
		comp.Error = fmt.Errorf("candidate request failed: %w", err)
		return comp
	}

	comp.DurationBaseline = baselineDur
	comp.DurationCandidate = candidateDur
	comp.BaselineStatus = baseline.status
	comp.CandidateStatus = candidate.status
	comp.StatusMatch = comp.BaselineStatus == comp.CandidateStatus
	comp.BodyMatch = bodiesEqual(baseline.body, candidate.body)
	return comp
}

// requireSeed rejects payloads without options.seed; unseeded runs are not expected to match.
func requireSeed(payload []byte) error {
	var probe struct {
		Options *struct {
			Seed *int64 `json:"seed"`
		} `json:"options"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if probe.Options == nil || probe.Options.Seed == nil {
		return errors.New("payload must pin options.seed")
	}
	return nil
}

type generateResult struct {
	status int
	body   []byte
}

func generate(client *http.Client, base, token string, payload []byte) (*generateResult, time.Duration, error) {
	if client == nil {
		return nil, 0, errors.New("nil client")
	}
	url := strings.TrimRight(base, "/") + "/timetables/generate"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}
	return &generateResult{status: resp.StatusCode, body: body}, time.Since(start), nil
}

func bodiesEqual(a, b []byte) bool {
	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	normalize(&aj)
	normalize(&bj)
	return reflect.DeepEqual(aj, bj)
}

func normalize(v *interface{}) {
	switch val := (*v).(type) {
	case map[string]interface{}:
		for _, field := range volatileFields {
			delete(val, field)
		}
		delete(val, "meta")
		for k, v2 := range val {
			normalize(&v2)
			val[k] = v2
		}
	case []interface{}:
		for i, v2 := range val {
			normalize(&v2)
			val[i] = v2
		}
	case float64:
		if val == float64(int64(val)) {
			*v = int64(val)
		}
	}
}

func printReport(results []comparison) {
	fmt.Println("Seed Compare Report")
	fmt.Println("===================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.StatusMatch || !res.BodyMatch {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s (%s)\n", status, res.Target.Name, res.Target.Payload)
		fmt.Printf("  Baseline Status: %d (%s)\n", res.BaselineStatus, res.DurationBaseline)
		fmt.Printf("  Candidate Status: %d (%s)\n", res.CandidateStatus, res.DurationCandidate)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		} else {
			fmt.Printf("  Status match: %t | Timetable match: %t | Critical: %t\n", res.StatusMatch, res.BodyMatch, res.Target.Critical)
		}
	}
}
