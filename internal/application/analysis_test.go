package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"obd-analyzer/internal/contract"
	"obd-analyzer/internal/domain/entity"
	"obd-analyzer/internal/domain/fault"
	"obd-analyzer/internal/domain/port"
	"obd-analyzer/internal/prompt"
)

const p0420Analysis = `{
  "codes": [{
    "code": "P0420",
    "description": "Catalyst system efficiency below threshold (Bank 1)",
    "module": "ECM",
    "severity": "moderate",
    "possibleCauses": ["Failing catalytic converter", "Faulty downstream O2 sensor"],
    "repairEstimate": {"description": "Replace catalytic converter", "partsCost": 850, "laborCost": 180},
    "urgency": "soon"
  }],
  "emissionsCheck": {"status": "fail", "testsPassed": 6, "testsFailed": 1, "monitorStatus": "Catalyst monitor incomplete"},
  "mileageRisks": [],
  "modulesScanned": ["ECM"],
  "datapointsScanned": 12,
  "summary": "Catalytic converter efficiency is low."
}`

const missingEmissions = `{
  "codes": [],
  "mileageRisks": [],
  "modulesScanned": [],
  "datapointsScanned": 0,
  "summary": "Nothing found."
}`

// step заранее заданный ответ фейкового клиента на одну попытку.
type step struct {
	content string
	err     error
	block   bool // ждать отмены контекста попытки
}

// scheduledClient отвечает по расписанию, последний шаг повторяется.
type scheduledClient struct {
	mu      sync.Mutex
	steps   []step
	calls   int
	onCall  func(call int)
	prompts []string
}

func (c *scheduledClient) Invoke(ctx context.Context, prompt string) (port.RawResult, error) {
	c.mu.Lock()
	c.calls++
	call := c.calls
	c.prompts = append(c.prompts, prompt)
	idx := call - 1
	if idx >= len(c.steps) {
		idx = len(c.steps) - 1
	}
	s := c.steps[idx]
	onCall := c.onCall
	c.mu.Unlock()

	if onCall != nil {
		onCall(call)
	}
	if s.block {
		<-ctx.Done()
		return port.RawResult{}, fault.New(fault.KindTransport, ctx.Err())
	}
	if s.err != nil {
		return port.RawResult{}, s.err
	}
	return port.RawResult{Content: json.RawMessage(s.content), Model: "fake-model"}, nil
}

func (c *scheduledClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func malformed() step {
	return step{err: fault.Newf(fault.KindMalformedJSON, "model returned invalid JSON: Sure! Here is")}
}

func conforming() step {
	return step{content: p0420Analysis}
}

func p0420Scan() *entity.ScanInput {
	return &entity.ScanInput{
		VIN:            "1HGCM82633A004352",
		MilOn:          true,
		DTCCount:       1,
		StoredDTCCodes: []string{"P0420"},
	}
}

func newTestService(client port.InferenceClient, policy RetryPolicy, logger *zap.Logger) *AnalysisService {
	return NewAnalysisService(prompt.NewBuilder(), client, contract.NewAnalysisContract(), policy, logger)
}

func instantPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, Delay: 0, Multiplier: 1, AttemptTimeout: time.Second}
}

func TestAnalyze_EndToEndP0420(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	client := &scheduledClient{steps: []step{malformed(), malformed(), conforming()}}
	svc := newTestService(client, instantPolicy(3), zap.New(core))

	outcome, err := svc.Analyze(context.Background(), p0420Scan())
	require.NoError(t, err)
	require.Equal(t, 3, outcome.Attempts)
	require.Equal(t, 3, client.Calls())
	require.NotEmpty(t, outcome.RequestID)
	require.Equal(t, "fake-model", outcome.Model)

	require.Len(t, outcome.Analysis.Codes, 1)
	require.Equal(t, "P0420", outcome.Analysis.Codes[0].Code)
	require.Equal(t, entity.SeverityModerate, outcome.Analysis.Codes[0].Severity)

	warnings := logs.FilterMessage("analysis attempt failed").All()
	require.Len(t, warnings, 2)
	for _, w := range warnings {
		require.Equal(t, zapcore.WarnLevel, w.Level)
		require.Equal(t, outcome.RequestID, w.ContextMap()["request_id"])
		require.Equal(t, string(fault.KindMalformedJSON), w.ContextMap()["kind"])
	}
	require.Equal(t, 1, logs.FilterMessage("analysis succeeded").Len())
}

func TestAnalyze_SucceedsOnAttemptK(t *testing.T) {
	for k := 1; k <= 4; k++ {
		steps := make([]step, 0, k)
		for i := 1; i < k; i++ {
			steps = append(steps, step{err: fault.Newf(fault.KindTransport, "status 503")})
		}
		steps = append(steps, conforming())

		client := &scheduledClient{steps: steps}
		outcome, err := newTestService(client, instantPolicy(4), nil).Analyze(context.Background(), p0420Scan())
		require.NoError(t, err, "k=%d", k)
		require.Equal(t, k, outcome.Attempts)
		require.Equal(t, k, client.Calls())
	}
}

func TestAnalyze_ExhaustedReturnsNoResult(t *testing.T) {
	client := &scheduledClient{steps: []step{
		{err: fault.Newf(fault.KindTransport, "status 502")},
		{err: fault.Newf(fault.KindEmptyResponse, "model returned no content")},
		malformed(),
	}}

	outcome, err := newTestService(client, instantPolicy(3), nil).Analyze(context.Background(), p0420Scan())
	require.Nil(t, outcome)
	require.ErrorIs(t, err, fault.ErrExhausted)
	require.ErrorIs(t, err, fault.ErrMalformedJSON)
	require.Equal(t, 3, client.Calls())

	var fe *fault.Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, 3, fe.Attempts)
	require.Contains(t, err.Error(), "after 3 attempts")
	require.Contains(t, err.Error(), "model returned invalid JSON")
}

func TestAnalyze_SchemaViolationIsRetried(t *testing.T) {
	client := &scheduledClient{steps: []step{{content: missingEmissions}, conforming()}}

	outcome, err := newTestService(client, instantPolicy(3), nil).Analyze(context.Background(), p0420Scan())
	require.NoError(t, err)
	require.Equal(t, 2, outcome.Attempts)
}

func TestAnalyze_OutOfEnumExhausts(t *testing.T) {
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(p0420Analysis), &doc))
	doc["codes"].([]any)[0].(map[string]any)["severity"] = "extreme"
	bad, err := json.Marshal(doc)
	require.NoError(t, err)

	client := &scheduledClient{steps: []step{{content: string(bad)}}}
	outcome, err := newTestService(client, instantPolicy(2), nil).Analyze(context.Background(), p0420Scan())
	require.Nil(t, outcome)
	require.ErrorIs(t, err, fault.ErrExhausted)
	require.ErrorIs(t, err, fault.ErrSchemaViolation)
	require.Contains(t, err.Error(), "codes[0].severity")
	require.Equal(t, 2, client.Calls())
}

func TestAnalyze_PlainClientErrorIsTransport(t *testing.T) {
	client := &scheduledClient{steps: []step{{err: errors.New("dial tcp: connection refused")}}}

	_, err := newTestService(client, instantPolicy(1), nil).Analyze(context.Background(), p0420Scan())
	require.ErrorIs(t, err, fault.ErrExhausted)
	require.ErrorIs(t, err, fault.ErrTransport)
}

func TestAnalyze_AttemptDeadline(t *testing.T) {
	client := &scheduledClient{steps: []step{{block: true}, conforming()}}
	policy := RetryPolicy{MaxAttempts: 2, AttemptTimeout: 20 * time.Millisecond}

	outcome, err := newTestService(client, policy, nil).Analyze(context.Background(), p0420Scan())
	require.NoError(t, err)
	require.Equal(t, 2, outcome.Attempts)
}

func TestAnalyze_CancelSkipsDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &scheduledClient{
		steps:  []step{malformed(), conforming()},
		onCall: func(int) { cancel() },
	}
	policy := RetryPolicy{MaxAttempts: 3, Delay: time.Hour, Multiplier: 1}

	done := make(chan struct{})
	var (
		outcome *AnalysisOutcome
		err     error
	)
	go func() {
		defer close(done)
		outcome, err = newTestService(client, policy, nil).Analyze(ctx, p0420Scan())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Analyze did not return after cancellation")
	}

	require.Nil(t, outcome)
	require.ErrorIs(t, err, fault.ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, fault.ErrExhausted)
	require.Equal(t, 1, client.Calls())
}

func TestAnalyze_CancelAbortsInflightCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &scheduledClient{
		steps:  []step{{block: true}},
		onCall: func(int) { go cancel() },
	}
	policy := RetryPolicy{MaxAttempts: 3, AttemptTimeout: time.Hour}

	_, err := newTestService(client, policy, nil).Analyze(ctx, p0420Scan())
	require.ErrorIs(t, err, fault.ErrCancelled)

	var fe *fault.Error
	require.ErrorAs(t, err, &fe)
	require.Equal(t, 1, fe.Attempts)
}

func TestAnalyze_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &scheduledClient{steps: []step{conforming()}}
	_, err := newTestService(client, instantPolicy(3), nil).Analyze(ctx, p0420Scan())
	require.ErrorIs(t, err, fault.ErrCancelled)
	require.Zero(t, client.Calls())
}

func TestAnalyze_SamePromptEveryAttempt(t *testing.T) {
	client := &scheduledClient{steps: []step{malformed(), malformed(), conforming()}}
	_, err := newTestService(client, instantPolicy(3), nil).Analyze(context.Background(), p0420Scan())
	require.NoError(t, err)

	require.Len(t, client.prompts, 3)
	require.Equal(t, client.prompts[0], client.prompts[1])
	require.Equal(t, client.prompts[0], client.prompts[2])
	require.Contains(t, client.prompts[0], "- Stored codes: P0420\n")
}

func TestAnalyze_ConcurrentCallsAreIndependent(t *testing.T) {
	client := &scheduledClient{steps: []step{conforming()}}
	svc := newTestService(client, instantPolicy(1), nil)

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := svc.Analyze(context.Background(), p0420Scan())
			if err == nil {
				ids[i] = outcome.RequestID
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range ids {
		require.NotEmpty(t, id)
		require.False(t, seen[id], "request id reused")
		seen[id] = true
	}
	require.Equal(t, n, client.Calls())
}

func TestAnalyze_UsesRequestIDFromContext(t *testing.T) {
	client := &scheduledClient{steps: []step{conforming()}}
	ctx := WithRequestID(context.Background(), "req-42")

	outcome, err := newTestService(client, instantPolicy(1), nil).Analyze(ctx, p0420Scan())
	require.NoError(t, err)
	require.Equal(t, "req-42", outcome.RequestID)
}

func TestRetryPolicy_DelayAfter(t *testing.T) {
	fixed := RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second, Multiplier: 1}
	require.Equal(t, 2*time.Second, fixed.DelayAfter(1))
	require.Equal(t, 2*time.Second, fixed.DelayAfter(5))

	backoff := RetryPolicy{MaxAttempts: 5, Delay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}
	require.Equal(t, time.Second, backoff.DelayAfter(1))
	require.Equal(t, 2*time.Second, backoff.DelayAfter(2))
	require.Equal(t, 4*time.Second, backoff.DelayAfter(3))
	require.Equal(t, 5*time.Second, backoff.DelayAfter(4))

	require.Zero(t, RetryPolicy{Delay: 0}.DelayAfter(1))
	require.Zero(t, fixed.DelayAfter(0))
}

func TestRetryPolicy_Normalized(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 0, Delay: -time.Second, Multiplier: 0}.normalized()
	require.Equal(t, 1, p.MaxAttempts)
	require.Zero(t, p.Delay)
	require.Equal(t, float64(1), p.Multiplier)
}

func TestSleep_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	require.NoError(t, sleep(context.Background(), time.Millisecond))
}
