package deployments

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

// exportedMetrics lists the series askdb-api registers. Histogram suffixes
// are stripped before comparison.
var exportedMetrics = map[string]bool{
	"askdb_pipeline_stage_duration_seconds": true,
	"askdb_answers_total":                   true,
	"askdb_connects_total":                  true,
	"askdb_model_retries_total":             true,
	"askdb_active_sessions":                 true,
	"askdb_http_requests_total":             true,
	"askdb_http_request_duration_seconds":   true,
}

var metricRefPattern = regexp.MustCompile(`askdb_[a-z_]+`)

func TestGrafanaDashboardJSONIsValid(t *testing.T) {
	content := readAsset(t, "grafana", "askdb_slo_dashboard.json")

	var decoded struct {
		Title  string `json:"title"`
		Panels []struct {
			Title   string `json:"title"`
			Targets []struct {
				Expr string `json:"expr"`
			} `json:"targets"`
		} `json:"panels"`
	}
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		t.Fatalf("dashboard JSON parse error: %v", err)
	}
	if strings.TrimSpace(decoded.Title) == "" {
		t.Fatal("dashboard title is required")
	}
	if len(decoded.Panels) == 0 {
		t.Fatal("dashboard must include at least one panel")
	}
	for _, panel := range decoded.Panels {
		if len(panel.Targets) == 0 {
			t.Fatalf("panel %q has no targets", panel.Title)
		}
		for _, target := range panel.Targets {
			if strings.TrimSpace(target.Expr) == "" {
				t.Fatalf("panel %q has an empty expression", panel.Title)
			}
		}
	}
	assertKnownMetrics(t, "dashboard", content)
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	text := readAsset(t, "prometheus", "askdb_rules.yaml")

	requiredAlerts := []string{
		"AskDBAnswerLatencyP95High",
		"AskDBAnswerErrorRatioHigh",
		"AskDBConnectFailuresDetected",
		"AskDBModelRetriesHigh",
		"AskDBHTTPErrorRateHigh",
	}
	for _, alertName := range requiredAlerts {
		if !strings.Contains(text, "alert: "+alertName) {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}

	requiredRecords := []string{
		"askdb:slo_answer_latency_seconds_p95",
		"askdb:slo_answer_error_ratio_15m",
		"askdb:slo_connect_failures_15m",
		"askdb:slo_model_retries_15m",
		"askdb:slo_http_error_rate_5m",
	}
	for _, record := range requiredRecords {
		if !strings.Contains(text, record) {
			t.Fatalf("rules missing record reference %q", record)
		}
	}
}

func TestPrometheusRecordingRulesContainExpectedRecords(t *testing.T) {
	text := readAsset(t, "prometheus", "askdb_recording_rules.yaml")

	requiredRecords := []string{
		"askdb:slo_answer_latency_seconds_p95",
		"askdb:slo_synthesize_latency_seconds_p95",
		"askdb:slo_execute_latency_seconds_p95",
		"askdb:slo_answer_error_ratio_15m",
		"askdb:slo_connect_failures_15m",
		"askdb:slo_model_retries_15m",
		"askdb:slo_http_error_rate_5m",
	}
	for _, recordName := range requiredRecords {
		if !strings.Contains(text, "record: "+recordName) {
			t.Fatalf("recording rules missing record %q", recordName)
		}
	}
	assertKnownMetrics(t, "recording rules", text)
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	text := readAsset(t, "prometheus", "prometheus-scrape.example.yaml")

	for _, token := range []string{
		"metrics_path: /v1/metrics",
		"askdb_rules.yaml",
		"askdb_recording_rules.yaml",
		"job_name: askdb-api",
	} {
		if !strings.Contains(text, token) {
			t.Fatalf("scrape example missing %q", token)
		}
	}
}

func assertKnownMetrics(t *testing.T, asset, text string) {
	t.Helper()
	for _, ref := range metricRefPattern.FindAllString(text, -1) {
		name := ref
		for _, suffix := range []string{"_bucket", "_sum", "_count"} {
			name = strings.TrimSuffix(name, suffix)
		}
		if !exportedMetrics[name] {
			t.Fatalf("%s references unknown metric %q", asset, ref)
		}
	}
}

func readAsset(t *testing.T, parts ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{repoRoot(t), "deployments", "observability"}, parts...)...)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(content)
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
