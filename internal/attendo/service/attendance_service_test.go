package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/service"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/store/memory"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/types"
)

const testIssuedAt int64 = 1000000000000

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.AttendanceEvent
}

func (p *recordingPublisher) Publish(ev types.AttendanceEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) Events() []types.AttendanceEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.AttendanceEvent(nil), p.events...)
}

type attendanceFixture struct {
	svc       *service.AttendanceService
	records   *memory.AttendanceStore
	stations  *memory.StationStore
	publisher *recordingPublisher
	now       *time.Time
}

// newTestAttendanceService builds an AttendanceService over in-memory
// stores with the clock pinned ten minutes into the test token's window.
func newTestAttendanceService(knownStations []string, policy service.AttendancePolicy) *attendanceFixture {
	now := time.UnixMilli(testIssuedAt).Add(10 * time.Minute).UTC()
	f := &attendanceFixture{
		records:   memory.NewAttendanceStore(),
		stations:  memory.NewStationStore(knownStations),
		publisher: &recordingPublisher{},
		now:       &now,
	}
	clock := func() time.Time { return *f.now }
	f.svc = service.NewAttendanceService(
		service.NewStationRegistry(f.stations),
		policy,
		f.records,
		nil,
		service.WithClock(clock),
		service.WithPublisher(f.publisher),
		service.WithReplayGuard(memory.NewReplayGuard(clock)),
	)
	return f
}

func validRequest() types.AttendanceRequest {
	return types.AttendanceRequest{
		ClassID:      "cs101",
		IssuedAtMs:   testIssuedAt,
		ValidMinutes: 30,
		StudentID:    "PES001",
		StationID:    "station-1",
		CameraID:     "video0",
	}
}

// ── Accepted ─────────────────────────────────────────────────────────────────

func TestSubmit_Marked_RecordsAndPublishes(t *testing.T) {
	f := newTestAttendanceService([]string{"station-1"}, service.AttendancePolicy{})

	resp, err := f.svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !resp.Accepted || resp.Reason != types.ReasonMarked {
		t.Fatalf("expected marked, got accepted=%v reason=%q", resp.Accepted, resp.Reason)
	}
	if resp.RecordID == "" {
		t.Error("expected record_id to be set")
	}

	recs := f.records.Records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].ID != resp.RecordID || recs[0].CameraID != "video0" {
		t.Errorf("unexpected record: %+v", recs[0])
	}

	events := f.publisher.Events()
	if len(events) != 1 || events[0].ClassID != "cs101" || events[0].StudentID != "PES001" {
		t.Errorf("unexpected published events: %+v", events)
	}

	if _, ok := f.stations.LastSeen("station-1"); !ok {
		t.Error("expected station to be marked seen")
	}
}

func TestSubmit_RawToken(t *testing.T) {
	f := newTestAttendanceService([]string{"station-1"}, service.AttendancePolicy{})

	req := types.AttendanceRequest{
		Token:     "cs101-1000000000000-30",
		StudentID: "PES001",
		StationID: "station-1",
	}
	resp, err := f.svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !resp.Accepted || resp.ClassID != "cs101" {
		t.Errorf("expected accepted for cs101, got %+v", resp)
	}
}

// ── Once per window ──────────────────────────────────────────────────────────

func TestSubmit_Duplicate_AlreadyMarked(t *testing.T) {
	f := newTestAttendanceService([]string{"station-1"}, service.AttendancePolicy{})
	ctx := context.Background()

	if _, err := f.svc.Submit(ctx, validRequest()); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	resp, err := f.svc.Submit(ctx, validRequest())
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if resp.Accepted || resp.Reason != types.ReasonAlreadyMarked {
		t.Errorf("expected already_marked, got accepted=%v reason=%q", resp.Accepted, resp.Reason)
	}
	if n := len(f.records.Records()); n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
	if n := len(f.publisher.Events()); n != 1 {
		t.Errorf("expected 1 published event, got %d", n)
	}
}

func TestSubmit_DuplicateWithoutGuard_StoreRejects(t *testing.T) {
	records := memory.NewAttendanceStore()
	svc := service.NewAttendanceService(
		service.NewStationRegistry(memory.NewStationStore([]string{"station-1"})),
		service.AttendancePolicy{},
		records,
		nil,
		service.WithClock(func() time.Time { return time.UnixMilli(testIssuedAt + 60_000) }),
	)
	ctx := context.Background()

	_, _ = svc.Submit(ctx, validRequest())
	resp, err := svc.Submit(ctx, validRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Reason != types.ReasonAlreadyMarked {
		t.Errorf("expected already_marked, got %q", resp.Reason)
	}
}

func TestSubmit_ConcurrentDuplicates_OneAccepted(t *testing.T) {
	f := newTestAttendanceService([]string{"station-1"}, service.AttendancePolicy{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.svc.Submit(context.Background(), validRequest())
			if err == nil && resp.Accepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Errorf("expected exactly 1 accepted submission, got %d", accepted)
	}
}

// ── Validity ─────────────────────────────────────────────────────────────────

func TestSubmit_Expired(t *testing.T) {
	f := newTestAttendanceService([]string{"station-1"}, service.AttendancePolicy{})
	*f.now = time.UnixMilli(testIssuedAt + 30*60_000 + 1)

	resp, err := f.svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Accepted || resp.Reason != types.ReasonTokenExpired {
		t.Errorf("expected token_expired, got accepted=%v reason=%q", resp.Accepted, resp.Reason)
	}
	if len(f.records.Records()) != 0 {
		t.Error("expected no record for expired token")
	}
}

func TestSubmit_ExactExpiryStillValid(t *testing.T) {
	f := newTestAttendanceService([]string{"station-1"}, service.AttendancePolicy{})
	*f.now = time.UnixMilli(testIssuedAt + 30*60_000)

	resp, err := f.svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !resp.Accepted {
		t.Errorf("expected acceptance at the expiry millisecond, got %q", resp.Reason)
	}
}

func TestSubmit_NotYetValid(t *testing.T) {
	f := newTestAttendanceService([]string{"station-1"}, service.AttendancePolicy{})
	*f.now = time.UnixMilli(testIssuedAt - 1)

	resp, err := f.svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Reason != types.ReasonTokenNotYetValid {
		t.Errorf("expected token_not_yet_valid, got %q", resp.Reason)
	}
}

func TestSubmit_SubmittedAtWithinGrace(t *testing.T) {
	f := newTestAttendanceService([]string{"station-1"}, service.AttendancePolicy{SubmitGrace: 30 * time.Second})
	expiry := time.UnixMilli(testIssuedAt + 30*60_000).UTC()
	*f.now = expiry.Add(5 * time.Second)

	req := validRequest()
	req.SubmittedAt = expiry.Add(-time.Second).Format(time.RFC3339Nano)

	resp, err := f.svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !resp.Accepted {
		t.Errorf("expected scan made before expiry to count, got %q", resp.Reason)
	}
	if recs := f.records.Records(); len(recs) != 1 || recs[0].SubmittedAt == nil {
		t.Error("expected submitted_at to be recorded")
	}
}

func TestSubmit_SubmittedAtOutsideGraceIgnored(t *testing.T) {
	f := newTestAttendanceService([]string{"station-1"}, service.AttendancePolicy{SubmitGrace: 30 * time.Second})
	expiry := time.UnixMilli(testIssuedAt + 30*60_000).UTC()
	*f.now = expiry.Add(10 * time.Minute)

	req := validRequest()
	req.SubmittedAt = expiry.Add(-time.Minute).Format(time.RFC3339Nano)

	resp, err := f.svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Reason != types.ReasonTokenExpired {
		t.Errorf("expected token_expired, got %q", resp.Reason)
	}
}

func TestSubmit_MalformedRawToken(t *testing.T) {
	f := newTestAttendanceService([]string{"station-1"}, service.AttendancePolicy{})

	req := types.AttendanceRequest{Token: "hello world", StudentID: "PES001", StationID: "station-1"}
	resp, err := f.svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Accepted || resp.Reason != types.ReasonTokenMalformed {
		t.Errorf("expected token_malformed, got accepted=%v reason=%q", resp.Accepted, resp.Reason)
	}
}

// ── Policy ───────────────────────────────────────────────────────────────────

func TestSubmit_UnknownStation(t *testing.T) {
	f := newTestAttendanceService([]string{"station-1"}, service.AttendancePolicy{})

	req := validRequest()
	req.StationID = "rogue"
	resp, err := f.svc.Submit(context.Background(), req)
	if !errors.Is(err, service.ErrUnknownStation) {
		t.Fatalf("expected ErrUnknownStation, got %v", err)
	}
	if resp.Reason != types.ReasonUnknownStation {
		t.Errorf("expected reason unknown_station, got %q", resp.Reason)
	}
	if len(f.records.Records()) != 0 {
		t.Error("expected no record for unknown station")
	}
	if _, ok := f.stations.LastSeen("rogue"); !ok {
		t.Error("expected unknown station to still be marked seen")
	}
}

func TestSubmit_AllowUnknownStations(t *testing.T) {
	f := newTestAttendanceService(nil, service.AttendancePolicy{AllowUnknownStations: true})

	resp, err := f.svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !resp.Accepted {
		t.Errorf("expected acceptance, got %q", resp.Reason)
	}
}

func TestSubmit_UnknownClass(t *testing.T) {
	f := newTestAttendanceService([]string{"station-1"}, service.AttendancePolicy{
		AllowedClassIDs: map[string]struct{}{"math101": {}},
	})

	resp, err := f.svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Reason != types.ReasonUnknownClass {
		t.Errorf("expected unknown_class, got %q", resp.Reason)
	}
}

// ── Validation (nothing recorded) ────────────────────────────────────────────

func TestSubmit_ValidationErrors(t *testing.T) {
	cases := map[string]struct {
		mutate func(*types.AttendanceRequest)
		want   error
	}{
		"missing station":  {func(r *types.AttendanceRequest) { r.StationID = " " }, service.ErrInvalidStationID},
		"missing student":  {func(r *types.AttendanceRequest) { r.StudentID = "" }, service.ErrInvalidStudentID},
		"empty class":      {func(r *types.AttendanceRequest) { r.ClassID = "" }, service.ErrInvalidToken},
		"negative minutes": {func(r *types.AttendanceRequest) { r.ValidMinutes = -1 }, service.ErrInvalidToken},
		"negative issued":  {func(r *types.AttendanceRequest) { r.IssuedAtMs = -1 }, service.ErrInvalidToken},
		"delimiter class":  {func(r *types.AttendanceRequest) { r.ClassID = "cs-101" }, service.ErrInvalidToken},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newTestAttendanceService([]string{"station-1"}, service.AttendancePolicy{})
			req := validRequest()
			tc.mutate(&req)

			_, err := f.svc.Submit(context.Background(), req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(f.records.Records()) != 0 {
				t.Error("expected no record for validation failure")
			}
		})
	}
}

// A zero-minute window decodes on the scanner, so the server takes the same
// fields and judges them on time alone.
func TestSubmit_ZeroMinuteWindow(t *testing.T) {
	f := newTestAttendanceService([]string{"station-1"}, service.AttendancePolicy{})
	*f.now = time.UnixMilli(testIssuedAt).UTC()

	req := validRequest()
	req.ValidMinutes = 0
	resp, err := f.svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !resp.Accepted || resp.Reason != types.ReasonMarked {
		t.Fatalf("expected marked at the issuance instant, got accepted=%v reason=%q", resp.Accepted, resp.Reason)
	}

	*f.now = time.UnixMilli(testIssuedAt + 1).UTC()
	req.StudentID = "PES002"
	resp, err = f.svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Accepted || resp.Reason != types.ReasonTokenExpired {
		t.Errorf("expected token_expired one millisecond later, got accepted=%v reason=%q", resp.Accepted, resp.Reason)
	}
}
