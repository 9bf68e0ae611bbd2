package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/scitrue/internal/model"
	"github.com/ppiankov/scitrue/internal/pipeline"
	"github.com/ppiankov/scitrue/internal/prompt"
)

func resetViper(t *testing.T, configPath string) {
	t.Helper()
	viper.Reset()
	cfgFile = configPath
	t.Cleanup(func() {
		viper.Reset()
		cfgFile = ""
	})
	initConfig()
}

func TestLoadConfig_Layers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `llm:
  provider: ollama
  model: llama3.1:8b
retriever:
  kind: file
  file: evidence.json
  timeout: 45s
limits:
  min_evidence: 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCITRUE_LLM_MAX_TOKENS", "1234")
	t.Setenv("SCITRUE_RETRIEVER_API_KEY", "from-env")
	t.Setenv("OLLAMA_BASE_URL", "http://ollama.internal:11434")
	resetViper(t, path)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.LLM.Provider != "ollama" || cfg.LLM.Model != "llama3.1:8b" {
		t.Errorf("expected file values, got %s/%s", cfg.LLM.Provider, cfg.LLM.Model)
	}
	if cfg.LLM.MaxTokens != 1234 {
		t.Errorf("expected env max tokens, got %d", cfg.LLM.MaxTokens)
	}
	if cfg.Retriever.APIKey != "from-env" {
		t.Errorf("expected env api key, got %q", cfg.Retriever.APIKey)
	}
	if cfg.Retriever.Timeout != 45*time.Second {
		t.Errorf("expected 45s timeout, got %v", cfg.Retriever.Timeout)
	}
	if cfg.LLM.BaseURL != "http://ollama.internal:11434" {
		t.Errorf("expected OLLAMA_BASE_URL fallback, got %q", cfg.LLM.BaseURL)
	}
	if cfg.Limits.MinEvidence != 2 || cfg.Limits.MaxClaimLength != model.DefaultMaxClaimLength {
		t.Errorf("expected merged limits, got %+v", cfg.Limits)
	}
	if cfg.Journal.DiskTTL != 30*24*time.Hour {
		t.Errorf("expected default disk ttl, got %v", cfg.Journal.DiskTTL)
	}
}

func TestApplyProviderEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg := model.DefaultConfig()
	applyProviderEnv(cfg)
	if cfg.LLM.APIKey != "sk-openai" {
		t.Errorf("expected openai key, got %q", cfg.LLM.APIKey)
	}

	cfg = model.DefaultConfig()
	cfg.LLM.Provider = "Anthropic"
	applyProviderEnv(cfg)
	if cfg.LLM.APIKey != "sk-ant" {
		t.Errorf("expected anthropic key, got %q", cfg.LLM.APIKey)
	}

	cfg = model.DefaultConfig()
	cfg.LLM.APIKey = "explicit"
	applyProviderEnv(cfg)
	if cfg.LLM.APIKey != "explicit" {
		t.Errorf("expected explicit key to win, got %q", cfg.LLM.APIKey)
	}
}

func TestMaskSecrets(t *testing.T) {
	cfg := *model.DefaultConfig()
	cfg.LLM.APIKey = "sk-1234567890abcdef"
	cfg.Retriever.APIKey = "short"

	masked := maskSecrets(cfg)
	if masked.LLM.APIKey != "sk-1****cdef" {
		t.Errorf("unexpected mask %q", masked.LLM.APIKey)
	}
	if masked.Retriever.APIKey != "****" {
		t.Errorf("unexpected mask %q", masked.Retriever.APIKey)
	}
	if masked.Activity.RedisPassword != "" {
		t.Errorf("expected empty secret to stay empty, got %q", masked.Activity.RedisPassword)
	}
	if cfg.LLM.APIKey != "sk-1234567890abcdef" {
		t.Error("expected the original config to be untouched")
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".scitrue", "config.yaml")

	if err := writeDefaultConfig(path); err != nil {
		t.Fatalf("writeDefaultConfig: %v", err)
	}
	if err := writeDefaultConfig(path); err == nil {
		t.Error("expected refusal to overwrite")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got model.Config
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("written config does not parse: %v", err)
	}
	if diff := cmp.Diff(*model.DefaultConfig(), got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"Coffee causes dehydration":        "coffee-causes-dehydration",
		"Is 5/10 <better> than \"7\"?":     "is-5_10-_better_-than-_7",
		"   ":                              "claim",
		strings.Repeat("long claim ", 20): strings.Repeat("long-claim-", 20)[:80],
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		Claim:    "Vitamin D improves bone density",
		Articles: 5,
		State:    pipeline.StateLogged,
		Hints:    []string{pipeline.PartialEvidenceHint(3, 5)},
		Warnings: []string{"evidence not cited in summary: https://example.org/3"},
		Report: &model.Report{
			ExecutiveSummary: `Supported (<a href="https://example.org/1">Doe et al. (2020)</a>).`,
			Accuracy:         "92/100",
			Reason:           "True",
			Subclaims: []model.SubClaim{{
				Claim:            "Vitamin D raises BMD",
				Accuracy:         "90",
				Contribution:     "corroborating",
				Title:            "Vitamin D and bone",
				URL:              "https://example.org/1",
				Authors:          "Doe",
				Year:             2020,
				JournalTitle:     "Bone Research",
				RelevantSentence: "BMD increased.",
				Metrics:          &model.MetricsBlock{RankScore: "3.1", Country: "China", HIndex: "80"},
			}},
		},
	}
}

func TestRenderMarkdown(t *testing.T) {
	md := renderMarkdown(sampleResult())

	for _, want := range []string{
		"# Vitamin D improves bone density",
		"**Accuracy:** 92/100 (high)",
		"[Doe et al. (2020)](https://example.org/1)",
		"### 1. Vitamin D raises BMD",
		"- Source: [Vitamin D and bone](https://example.org/1)",
		"- Journal: Bone Research: SJR 3.1, H index 80, China ([definitions](" + model.MetricsDefinitionsURL + "))",
		"## Notes",
		"Only 3 articles were found",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	renderText(&buf, sampleResult())
	out := buf.String()

	for _, want := range []string{"Accuracy:  92/100 (high)", "1. Vitamin D raises BMD", "Note: Only 3 articles", "Warning: evidence not cited"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q\n%s", want, out)
		}
	}

	buf.Reset()
	renderText(&buf, &pipeline.Result{})
	if buf.Len() != 0 {
		t.Error("expected nothing rendered without a report")
	}
}

// fakeOllama answers refinement, report and subclaim prompts like a model would
func fakeOllama(t *testing.T, summary string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var text string
		switch {
		case strings.HasPrefix(req.Prompt, prompt.RefinementInstruction):
			text = `{"original_query": "Vitamin D improves bone density", "revised_query": "vitamin D supplementation and bone mineral density"}`
		case strings.HasPrefix(req.Prompt, prompt.ReportInstruction):
			text = fmt.Sprintf("```json\n{\"executive summary\": %q, \"accuracy\": \"85/100\", \"reason for accuracy\": \"Mostly True\"}\n```", summary)
		default:
			text = `[{"claim": "Vitamin D raised lumbar BMD", "CorpusId": "11", "accuracy": "88", "reason for accuracy": "trial", "contribution": "corroborating"}]`
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"model": "test", "response": text, "done": true})
	}))
}

func TestBuildApp_EndToEnd(t *testing.T) {
	dir := t.TempDir()

	evidence := []model.EvidenceItem{
		{Authors: "Doe", Year: 2020, URL: "https://example.org/11", RelevantSentence: "Vitamin D raised lumbar BMD", Label: "completely supports", Relevance: "yes", CorpusID: "11", Title: "Trial A", JournalTitle: "Bone & Joint"},
		{Authors: "Roe", Year: 2019, URL: "https://example.org/12", RelevantSentence: "No hip effect", Label: "conditionally refutes", Relevance: "yes", CorpusID: "12", Title: "Trial B", Venue: "Osteoporosis Int"},
		{Authors: "Poe", Year: 2018, URL: "https://example.org/13", RelevantSentence: "Small gains", Label: "conditionally supports", Relevance: "yes", CorpusID: "13", Title: "Trial C"},
		{Authors: "Zoe", Year: 2017, URL: "https://example.org/14", RelevantSentence: "Unrelated", Label: "", Relevance: "no", CorpusID: "14"},
	}
	evidencePath := filepath.Join(dir, "evidence.json")
	data, _ := json.Marshal(evidence)
	if err := os.WriteFile(evidencePath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	csvPath := filepath.Join(dir, "scimagojr.csv")
	csvData := "Rank;Title;SJR;Country;H index\n1;Bone and Joint;\"2,5\";United Kingdom;120\n"
	if err := os.WriteFile(csvPath, []byte(csvData), 0o644); err != nil {
		t.Fatal(err)
	}

	summary := `Evidence is mixed (<a href="https://example.org/11">Doe</a>, <a href="https://example.org/12">Roe</a>, <a href="https://example.org/13">Poe</a>).`
	ollama := fakeOllama(t, summary)
	defer ollama.Close()

	cfg := model.DefaultConfig()
	cfg.LLM.Provider = "ollama"
	cfg.LLM.Model = "llama3.1:8b"
	cfg.LLM.BaseURL = ollama.URL
	cfg.Retriever.Kind = "file"
	cfg.Retriever.File = evidencePath
	cfg.Journal.CSVPath = csvPath
	cfg.Journal.CacheEnabled = false
	cfg.Activity.Backend = "sqlite"
	cfg.Activity.Path = filepath.Join(dir, "activity.db")

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer func() { _ = a.Close() }()

	res, err := a.pipeline.Verify(ctx, pipeline.Request{Claim: "Vitamin D improves bone density", Articles: 3, Email: "ada@example.org"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.State != pipeline.StateLogged {
		t.Fatalf("expected LOGGED, got %s (%v)", res.State, res.Trail)
	}
	if res.Query != "vitamin D supplementation and bone mineral density" {
		t.Errorf("expected refined query, got %q", res.Query)
	}
	if res.Blocks != 3 || len(res.Warnings) != 0 {
		t.Errorf("expected 3 cited blocks, got %d (warnings %v)", res.Blocks, res.Warnings)
	}
	if len(res.Report.Subclaims) != 1 {
		t.Fatalf("expected 1 subclaim, got %d", len(res.Report.Subclaims))
	}
	sc := res.Report.Subclaims[0]
	if sc.Title != "Trial A" || sc.Metrics == nil || sc.Metrics.RankScore != "2,5" {
		t.Errorf("expected attached evidence and metrics, got %+v (metrics %+v)", sc, sc.Metrics)
	}

	again, err := a.pipeline.Verify(ctx, pipeline.Request{Claim: "vitamin d improves bone density", Articles: 3})
	if err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if !again.Cached {
		t.Error("expected the second run to come from the activity log")
	}

	history, err := a.pipeline.History(ctx, "ada@example.org")
	if err != nil || len(history) != 1 {
		t.Errorf("expected 1 history entry, got %d (%v)", len(history), err)
	}
}

func TestNewRetriever_Unknown(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Retriever.Kind = "carrier-pigeon"
	if _, err := newRetriever(cfg, nil); err == nil {
		t.Error("expected error for unknown retriever kind")
	}

	cfg.Retriever.Kind = "file"
	if _, err := newRetriever(cfg, nil); err == nil {
		t.Error("expected error for file retriever without a path")
	}
}
