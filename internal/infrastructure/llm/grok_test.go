package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"CryptoNewsAnalyzer/internal/config"
	"CryptoNewsAnalyzer/internal/domain"
)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func testConfig(baseURL string) config.GrokConfig {
	return config.GrokConfig{
		APIKey:       "test-key",
		Model:        "grok-3",
		BaseURL:      baseURL,
		UseWebSearch: true,
		Temperature:  0.1,
		MaxTokens:    1000,
		MaxAttempts:  3,
		RetryBase:    time.Second,
		Timeout:      5 * time.Second,
	}
}

func completion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(body)
}

func posts(n int) []domain.Post {
	out := make([]domain.Post, n)
	for i := range out {
		out[i] = domain.Post{ID: int64(i + 1), URL: fmt.Sprintf("https://x.com/p/%d", i), Text: fmt.Sprintf("post number %d", i)}
	}
	return out
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*GrokClient, *recordingSleeper) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	sleeper := &recordingSleeper{}
	return NewGrokClient(testConfig(srv.URL), nil, WithSleeper(sleeper.sleep)), sleeper
}

func TestClassifyBuildsRequest(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		captured struct {
			path string
			auth string
			body chatRequest
		}
	)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		captured.path = r.URL.Path
		captured.auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&captured.body)
		_, _ = w.Write([]byte(completion(`[{"category":"trueNews","title":"t","description":"d"}]`)))
	})

	in := []domain.Post{{URL: "u", Text: "<p>Bitcoin &amp; ETF</p>\n\n news"}}
	if _, err := client.Classify(context.Background(), in); err != nil {
		t.Fatalf("Classify: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if captured.path != "/chat/completions" {
		t.Fatalf("path = %s", captured.path)
	}
	if captured.auth != "Bearer test-key" {
		t.Fatalf("auth header = %q", captured.auth)
	}
	if captured.body.Model != "grok-3" || captured.body.MaxTokens != 1000 {
		t.Fatalf("unexpected request: %+v", captured.body)
	}
	if captured.body.SearchParameters == nil || captured.body.SearchParameters.Mode != "auto" {
		t.Fatalf("web search parameters missing: %+v", captured.body.SearchParameters)
	}
	if len(captured.body.Messages) != 2 || captured.body.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", captured.body.Messages)
	}
	var sent []postPayload
	if err := json.Unmarshal([]byte(captured.body.Messages[1].Content), &sent); err != nil {
		t.Fatalf("user content is not a json array: %v", err)
	}
	if len(sent) != 1 || sent[0].Text != "Bitcoin & ETF news" {
		t.Fatalf("payload = %+v", sent)
	}
}

func TestBuildRequestWithoutWebSearch(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://unused")
	cfg.UseWebSearch = false
	req := NewGrokClient(cfg, nil).buildRequest("[]")
	if req.SearchParameters != nil {
		t.Fatalf("search parameters must be omitted: %+v", req.SearchParameters)
	}
	raw, _ := json.Marshal(req)
	if strings.Contains(string(raw), "search_parameters") {
		t.Fatalf("serialised request mentions search parameters: %s", raw)
	}
}

func TestClassifyPadsShortResults(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(completion(`[
			{"category":"trueNews","title":"BTC news","description":"Bitcoin up 5%"},
			{"category":"isSpam","title":"","description":""}
		]`)))
	})

	got, err := client.Classify(context.Background(), posts(3))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Category != domain.CategoryTrueNews || !got[0].IsValuable() {
		t.Fatalf("first = %+v", got[0])
	}
	if got[1].Category != domain.CategorySpam || got[1].IsValuable() {
		t.Fatalf("second = %+v", got[1])
	}
	if got[2] != domain.Fallback() {
		t.Fatalf("third = %+v", got[2])
	}
}

func TestClassifyLengthMatchesInput(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty array":  `[]`,
		"short array":  `[{"category":"analytics","title":"a","description":"b"}]`,
		"long array":   `[{"category":"others"},{"category":"others"},{"category":"others"},{"category":"others"},{"category":"others"}]`,
		"missing keys": `[{"title":"only title"},{}]`,
		"in prose":     `Here is the analysis: [{"category":"tutorial","title":"t","description":"d"}] That's all.`,
		"in fences":    "```json\n[{\"category\":\"trading\",\"title\":\"t\",\"description\":\"d\"}]\n```",
		"non objects":  `[1, "two", null, ["x"]]`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(completion(content)))
			})
			got, err := client.Classify(context.Background(), posts(3))
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("len = %d", len(got))
			}
		})
	}
}

func TestClassifyRepairsElements(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(completion(`[
			{"category":"bogus","title":"t","description":"d"},
			{"category":" Analitics ","title":" Chart ","description":"Support holds"},
			{"type":"inside","title":"Leak","description":"Listing soon"},
			{"category":"trueNews","title":42,"description":"numeric title"},
			"not an object"
		]`)))
	})

	got, err := client.Classify(context.Background(), posts(5))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got[0] != domain.Fallback() {
		t.Fatalf("unknown category must fall back, got %+v", got[0])
	}
	if got[1].Category != domain.CategoryAnalytics || got[1].Title != "Chart" {
		t.Fatalf("alias not normalised: %+v", got[1])
	}
	if got[2].Category != domain.CategoryInside || got[2].Title != "Leak" {
		t.Fatalf("type field not accepted: %+v", got[2])
	}
	if got[3].Category != domain.CategoryTrueNews || got[3].Title != "" || got[3].IsValuable() {
		t.Fatalf("non-string title must become empty: %+v", got[3])
	}
	if got[4] != domain.Fallback() {
		t.Fatalf("non-object must fall back, got %+v", got[4])
	}
}

func TestClassifyRetriesMalformedThenFails(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, sleeper := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(completion("This is not JSON")))
	})

	_, err := client.Classify(context.Background(), posts(2))
	var ce *domain.ClassificationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ClassificationError, got %v", err)
	}
	if !errors.Is(err, domain.ErrClassifier) {
		t.Fatalf("error must match ErrClassifier: %v", err)
	}
	if ce.Attempts != 3 || ce.Cause != domain.CauseMalformed || !ce.Retryable {
		t.Fatalf("unexpected error: %+v", ce)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d", calls.Load())
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(sleeper.delays) != len(want) || sleeper.delays[0] != want[0] || sleeper.delays[1] != want[1] {
		t.Fatalf("delays = %v", sleeper.delays)
	}
}

func TestClassifyAuthFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, sleeper := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	})

	_, err := client.Classify(context.Background(), posts(1))
	var ce *domain.ClassificationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ClassificationError, got %v", err)
	}
	if ce.Cause != domain.CauseAuth || ce.Retryable || ce.Attempts != 1 {
		t.Fatalf("unexpected error: %+v", ce)
	}
	if calls.Load() != 1 || len(sleeper.delays) != 0 {
		t.Fatalf("auth failures must not be retried: calls=%d sleeps=%d", calls.Load(), len(sleeper.delays))
	}
}

func TestClassifyRecoversFromRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(completion(`[{"category":"trueNews","title":"t","description":"d"}]`)))
	})

	got, err := client.Classify(context.Background(), posts(1))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if calls.Load() != 2 || got[0].Category != domain.CategoryTrueNews {
		t.Fatalf("calls=%d got=%+v", calls.Load(), got)
	}
}

func TestClassifyEmptyInputSkipsRequest(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	})
	got, err := client.Classify(context.Background(), nil)
	if err != nil || len(got) != 0 || calls.Load() != 0 {
		t.Fatalf("got=%v err=%v calls=%d", got, err, calls.Load())
	}
}

func TestStatusCause(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		body   string
		want   domain.FailureCause
	}{
		{http.StatusUnauthorized, "", domain.CauseAuth},
		{http.StatusForbidden, "", domain.CauseAuth},
		{http.StatusPaymentRequired, "", domain.CauseQuota},
		{http.StatusTooManyRequests, "You exceeded your current quota", domain.CauseQuota},
		{http.StatusTooManyRequests, "rate limit", domain.CauseRateLimited},
		{http.StatusGatewayTimeout, "", domain.CauseTimeout},
		{http.StatusInternalServerError, "", domain.CauseNetwork},
	}
	for _, tc := range cases {
		if got := statusCause(tc.status, tc.body); got != tc.want {
			t.Fatalf("statusCause(%d, %q) = %s, want %s", tc.status, tc.body, got, tc.want)
		}
	}
}

func TestClassifyReportsConnectionFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sleeper := &recordingSleeper{}
	client := NewGrokClient(testConfig(url), nil, WithSleeper(sleeper.sleep))
	_, err := client.Classify(context.Background(), posts(1))
	var ce *domain.ClassificationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ClassificationError, got %v", err)
	}
	if ce.Cause != domain.CauseConnection || ce.Attempts != 3 {
		t.Fatalf("unexpected error: %+v", ce)
	}
}

func TestTestConnection(t *testing.T) {
	t.Parallel()

	ok, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(completion("[]")))
	})
	if !ok.TestConnection(context.Background()) {
		t.Fatal("expected connection test to pass")
	}

	bad, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	if bad.TestConnection(context.Background()) {
		t.Fatal("expected connection test to fail")
	}

	prose, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(completion("hello there")))
	})
	if prose.TestConnection(context.Background()) {
		t.Fatal("non-array reply must fail the connection test")
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	if got := cleanText("  BTC\n\tto   the moon "); got != "BTC to the moon" {
		t.Fatalf("whitespace: %q", got)
	}
	if got := cleanText("<b>ETH</b> &gt; 4k"); got != "ETH > 4k" {
		t.Fatalf("markup: %q", got)
	}
	if got := cleanText("é"); got != "é" {
		t.Fatalf("nfc: %q", got)
	}
	long := strings.Repeat("а", maxPostRunes+50)
	if got := []rune(cleanText(long)); len(got) != maxPostRunes {
		t.Fatalf("cap: %d runes", len(got))
	}
}

func TestCleanTextKeepsLiteralAngleBrackets(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"ETH<BTC ratio keeps falling & alts bleed":             "ETH<BTC ratio keeps falling & alts bleed",
		"Funding <a lot lower than last week & shorts pile in": "Funding <a lot lower than last week & shorts pile in",
		"fees &amp; gas < 1 gwei":                              "fees & gas < 1 gwei",
		"<p>SOL<ETH today</p> <br/>still <i>up</i>":            "SOL<ETH today still up",
		`<a href="https://x.com/1">link</a> x<y`:               "link x<y",
	}
	for in, want := range cases {
		if got := cleanText(in); got != want {
			t.Fatalf("cleanText(%q) = %q, want %q", in, got, want)
		}
	}
}
