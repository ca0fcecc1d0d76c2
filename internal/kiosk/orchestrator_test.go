package kiosk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/recycle-kiosk/internal/config"
	"github.com/wfunc/recycle-kiosk/internal/detector"
	"github.com/wfunc/recycle-kiosk/internal/gateway"
	"github.com/wfunc/recycle-kiosk/internal/hardware"
	"github.com/wfunc/recycle-kiosk/internal/realtime"
)

// fakeVerifier 可编排的身份验证/提交桩
type fakeVerifier struct {
	mu            sync.Mutex
	verifyOutcome *gateway.VerifyOutcome
	verifyErr     error
	submitOutcome *gateway.SubmitOutcome
	submitErr     error
	verifyCalls   []string
	submitCounts  []int
}

func (f *fakeVerifier) Verify(_ context.Context, cardUID string) (*gateway.VerifyOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls = append(f.verifyCalls, cardUID)
	return f.verifyOutcome, f.verifyErr
}

func (f *fakeVerifier) Submit(_ context.Context, _ string, _ string, paperCount int) (*gateway.SubmitOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCounts = append(f.submitCounts, paperCount)
	return f.submitOutcome, f.submitErr
}

func (f *fakeVerifier) verifyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.verifyCalls)
}

func (f *fakeVerifier) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitCounts)
}

// fakeCounter 可编排的计数桩
type fakeCounter struct {
	result  *detector.Result
	err     error
	panics  bool
	onCount func(int)
	called  bool
}

func (f *fakeCounter) OnCount(fn func(count int)) { f.onCount = fn }

func (f *fakeCounter) DetectUnits(_ context.Context) (*detector.Result, error) {
	f.called = true
	if f.panics {
		panic("sensor wiring gone bad")
	}
	if f.onCount != nil && f.result != nil {
		for i := 1; i <= f.result.Count; i++ {
			f.onCount(i)
		}
	}
	return f.result, f.err
}

func testIdentityConfig() config.IdentityConfig {
	return config.IdentityConfig{
		ReadTimeout:   200 * time.Millisecond,
		CheckInterval: 5 * time.Millisecond,
		ResultDwell:   0,
	}
}

func newTestOrchestrator(t *testing.T, verifier *fakeVerifier, counter *fakeCounter) (*Orchestrator, *hardware.MockController, *realtime.ScanGate) {
	t.Helper()
	mock := hardware.NewMockController()
	require.NoError(t, mock.Connect())
	gate := realtime.NewScanGate(50*time.Millisecond, 30*time.Millisecond)
	o := NewOrchestrator(testIdentityConfig(), mock, gate, verifier, counter, nil)
	return o, mock, gate
}

func displayLines(mock *hardware.MockController) []string {
	var lines []string
	for _, d := range mock.Displays() {
		lines = append(lines, d.Line1)
	}
	return lines
}

func TestRunOnceSuccessFlow(t *testing.T) {
	verifier := &fakeVerifier{
		verifyOutcome: &gateway.VerifyOutcome{Valid: true, UserID: "7", UserName: "Maria", Points: 100},
		submitOutcome: &gateway.SubmitOutcome{Accepted: true, TransactionID: "tx-1", PointsAwarded: 30, TotalPoints: 130},
	}
	counter := &fakeCounter{result: &detector.Result{Count: 3, Reason: detector.ReasonCompleted}}
	o, mock, _ := newTestOrchestrator(t, verifier, counter)
	mock.InjectCard("04A3B2C1")

	o.runOnce(context.Background())

	assert.Equal(t, []string{"04A3B2C1"}, verifier.verifyCalls)
	assert.Equal(t, []int{3}, verifier.submitCounts)
	assert.Contains(t, displayLines(mock), "Success! +30")
	assert.Equal(t, StateIdle, o.State())
	assert.Equal(t, hardware.LEDSuccess, mock.LED())
}

func TestRunOnceOfflineSubmit(t *testing.T) {
	verifier := &fakeVerifier{
		verifyOutcome: &gateway.VerifyOutcome{Valid: true, UserID: "7", UserName: "Maria"},
		submitOutcome: &gateway.SubmitOutcome{Accepted: true, Offline: true, TransactionID: "local-1", PointsAwarded: 20, TotalPoints: 120},
	}
	counter := &fakeCounter{result: &detector.Result{Count: 2, Reason: detector.ReasonCompleted}}
	o, mock, _ := newTestOrchestrator(t, verifier, counter)
	mock.InjectCard("04A3B2C1")

	o.runOnce(context.Background())

	assert.Contains(t, displayLines(mock), "Offline: +20")
}

func TestRunOnceSkipsWhenScanActive(t *testing.T) {
	verifier := &fakeVerifier{}
	counter := &fakeCounter{}
	o, mock, gate := newTestOrchestrator(t, verifier, counter)
	require.True(t, gate.Begin("req-1"))
	mock.InjectCard("04A3B2C1")

	o.runOnce(context.Background())

	// 扫卡进行中：不读卡、不验证，卡片仍留在读卡器里
	assert.Zero(t, verifier.verifyCount())
	assert.Empty(t, mock.Displays())
	_, found, err := mock.PollCard()
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRunOnceSkipsDuringCooldown(t *testing.T) {
	verifier := &fakeVerifier{}
	counter := &fakeCounter{}
	o, mock, gate := newTestOrchestrator(t, verifier, counter)
	require.True(t, gate.Begin("req-1"))
	gate.Finish("req-1", true)
	mock.InjectCard("04A3B2C1")

	o.runOnce(context.Background())

	assert.Zero(t, verifier.verifyCount())
}

func TestWaitForCardInterruptedByScanRequest(t *testing.T) {
	verifier := &fakeVerifier{}
	counter := &fakeCounter{}
	o, _, gate := newTestOrchestrator(t, verifier, counter)

	go func() {
		time.Sleep(30 * time.Millisecond)
		gate.Begin("req-2")
	}()

	start := time.Now()
	o.runOnce(context.Background())

	// 扫卡请求到达后立即让出，而不是等满读卡超时
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Zero(t, verifier.verifyCount())
}

func TestRunOnceReadTimeout(t *testing.T) {
	verifier := &fakeVerifier{}
	counter := &fakeCounter{}
	o, mock, _ := newTestOrchestrator(t, verifier, counter)

	o.runOnce(context.Background())

	assert.Zero(t, verifier.verifyCount())
	assert.False(t, counter.called)
	assert.Contains(t, displayLines(mock), "R3-Cycle Ready")
}

func TestRunOnceVerifyRejected(t *testing.T) {
	verifier := &fakeVerifier{
		verifyOutcome: &gateway.VerifyOutcome{Valid: false, Reason: "卡片未注册"},
	}
	counter := &fakeCounter{}
	o, mock, _ := newTestOrchestrator(t, verifier, counter)
	mock.InjectCard("DEADBEEF")

	o.runOnce(context.Background())

	assert.False(t, counter.called)
	assert.Zero(t, verifier.submitCount())
	assert.Contains(t, displayLines(mock), "Card not found")
	assert.Equal(t, hardware.LEDError, mock.LED())
}

func TestRunOnceZeroPapersAbandoned(t *testing.T) {
	verifier := &fakeVerifier{
		verifyOutcome: &gateway.VerifyOutcome{Valid: true, UserID: "7", UserName: "Maria"},
	}
	counter := &fakeCounter{result: &detector.Result{Count: 0, Reason: detector.ReasonTimedOut}}
	o, mock, _ := newTestOrchestrator(t, verifier, counter)
	mock.InjectCard("04A3B2C1")

	o.runOnce(context.Background())

	// 未投纸：不提交、不显示失败，静默回到待机
	assert.Zero(t, verifier.submitCount())
	assert.NotContains(t, displayLines(mock), "Transaction")
	assert.NotContains(t, displayLines(mock), "System Error")
	assert.Equal(t, StateIdle, o.State())
}

func TestRunOnceSubmitRejected(t *testing.T) {
	verifier := &fakeVerifier{
		verifyOutcome: &gateway.VerifyOutcome{Valid: true, UserID: "7", UserName: "Maria"},
		submitOutcome: &gateway.SubmitOutcome{Accepted: false, Reason: "重复交易"},
	}
	counter := &fakeCounter{result: &detector.Result{Count: 2, Reason: detector.ReasonCompleted}}
	o, mock, _ := newTestOrchestrator(t, verifier, counter)
	mock.InjectCard("04A3B2C1")

	o.runOnce(context.Background())

	assert.Contains(t, displayLines(mock), "Transaction")
	assert.Equal(t, hardware.LEDError, mock.LED())
}

func TestRunOnceCountingFeedback(t *testing.T) {
	verifier := &fakeVerifier{
		verifyOutcome: &gateway.VerifyOutcome{Valid: true, UserID: "7", UserName: "Maria"},
		submitOutcome: &gateway.SubmitOutcome{Accepted: true, PointsAwarded: 30, TotalPoints: 130},
	}
	counter := &fakeCounter{result: &detector.Result{Count: 3, Reason: detector.ReasonCompleted}}
	o, mock, _ := newTestOrchestrator(t, verifier, counter)
	mock.InjectCard("04A3B2C1")

	o.runOnce(context.Background())

	var countLines []string
	for _, d := range mock.Displays() {
		if d.Line1 == "Counting..." {
			countLines = append(countLines, d.Line2)
		}
	}
	assert.Equal(t, []string{"1 paper(s)", "2 paper(s)", "3 paper(s)"}, countLines)
}

func TestRunOncePanicRecovers(t *testing.T) {
	verifier := &fakeVerifier{
		verifyOutcome: &gateway.VerifyOutcome{Valid: true, UserID: "7", UserName: "Maria"},
	}
	counter := &fakeCounter{panics: true}
	o, mock, _ := newTestOrchestrator(t, verifier, counter)
	mock.InjectCard("04A3B2C1")

	assert.NotPanics(t, func() {
		o.runOnce(context.Background())
	})
	assert.Contains(t, displayLines(mock), "System Error")
	assert.Equal(t, StateIdle, o.State())
}

func TestTransactionIDFormat(t *testing.T) {
	id := newTransactionID("04A3B2C1")
	assert.Regexp(t, `^txn_\d+_B2C1$`, id)

	short := newTransactionID("AB")
	assert.Regexp(t, `^txn_\d+_AB$`, short)
}
