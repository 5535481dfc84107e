package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"calcore/internal/fibre"
	"calcore/internal/infra/persistence/memory"
	"calcore/pkg/domain"
)

type captureLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *captureLogger) Info(string, map[string]any) {}

func (l *captureLogger) Warn(msg string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *captureLogger) Error(msg string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, msg)
}

func newTestService(t *testing.T, now time.Time) (*Service, *memory.Store, *captureLogger) {
	t.Helper()
	engine := NewRulesEngine()
	engine.Register(FrequencyBoundsRule())
	engine.Register(calibrationDateRule{now: func() time.Time { return now }})
	engine.Register(DuplicateActiveRecencyRule())
	store := memory.NewStore(engine)
	logger := &captureLogger{}
	svc := NewService(store,
		WithLogger(logger),
		WithNow(func() time.Time { return now }),
	)
	return svc, store, logger
}

func TestServiceCreateInstrument(t *testing.T) {
	svc, _, _ := newTestService(t, date(2024, time.June, 1))
	ctx := context.Background()

	created, _, err := svc.CreateInstrument(ctx, domain.Instrument{Reference: "FM-1", Type: domain.InstrumentFlowmeter, Section: "asbestos"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated ID")
	}
	if created.Flag != domain.FlagActive {
		t.Fatalf("expected default active flag, got %s", created.Flag)
	}

	if _, _, err := svc.CreateInstrument(ctx, domain.Instrument{Reference: "FM-1", Type: domain.InstrumentFlowmeter}); err == nil {
		t.Fatalf("duplicate reference must be rejected")
	}
	if _, _, err := svc.CreateInstrument(ctx, domain.Instrument{Reference: "X-1", Type: "centrifuge"}); err == nil {
		t.Fatalf("unknown type must be rejected")
	}
}

func TestServiceSetFrequencyConfigUpserts(t *testing.T) {
	svc, store, _ := newTestService(t, date(2024, time.June, 1))
	ctx := context.Background()

	first, _, err := svc.SetFrequencyConfig(ctx, domain.FrequencyConfig{Type: domain.InstrumentBalance, Value: 12, Unit: domain.UnitMonths})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	second, _, err := svc.SetFrequencyConfig(ctx, domain.FrequencyConfig{Type: domain.InstrumentBalance, Value: 2, Unit: domain.UnitYears})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replacement must reuse the existing entry")
	}
	if got := len(store.ListFrequencyConfigs()); got != 1 {
		t.Fatalf("expected a single entry per type, got %d", got)
	}
	config, ok := store.GetFrequencyConfig(domain.InstrumentBalance)
	if !ok || config.Months() != 24 {
		t.Fatalf("expected 24 months, got %+v", config)
	}
}

func TestServiceSetFrequencyConfigBlocksOutOfBounds(t *testing.T) {
	svc, _, _ := newTestService(t, date(2024, time.June, 1))
	_, res, err := svc.SetFrequencyConfig(context.Background(), domain.FrequencyConfig{Type: domain.InstrumentBalance, Value: 200, Unit: domain.UnitMonths})
	var ruleErr domain.RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking result")
	}
}

func TestServiceResolveFrequencyByReference(t *testing.T) {
	svc, _, _ := newTestService(t, date(2024, time.June, 1))
	ctx := context.Background()
	if _, _, err := svc.CreateInstrument(ctx, domain.Instrument{Reference: "FC-1", Type: domain.InstrumentFumeCupboard}); err != nil {
		t.Fatalf("create: %v", err)
	}
	freq, err := svc.ResolveFrequency(ctx, "FC-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if freq.Source != SourceTypeDefault || freq.Months != 60 {
		t.Fatalf("expected type default, got %+v", freq)
	}
	if _, err := svc.ResolveFrequency(ctx, "nope"); err == nil {
		t.Fatalf("unknown instrument must error")
	}
}

func TestRecordCalibrationFullFlow(t *testing.T) {
	now := date(2024, time.June, 1)
	svc, store, _ := newTestService(t, now)
	ctx := context.Background()

	pump, _, err := svc.CreateInstrument(ctx, domain.Instrument{Reference: "AP-1", Type: domain.InstrumentAirPump})
	if err != nil {
		t.Fatalf("create instrument: %v", err)
	}
	if _, _, err := svc.SetFrequencyConfig(ctx, domain.FrequencyConfig{Type: domain.InstrumentAirPump, Value: 12, Unit: domain.UnitMonths}); err != nil {
		t.Fatalf("set frequency: %v", err)
	}

	first, outcome, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{
		InstrumentID: pump.ID,
		Date:         date(2023, time.May, 1),
		Outcome:      domain.OutcomePass,
		OperatorID:   "tech-1",
	}, "tech-1")
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if outcome.ArchivedCount != 0 {
		t.Fatalf("nothing to supersede yet, archived %d", outcome.ArchivedCount)
	}
	if first.NextCalibration == nil || !first.NextCalibration.Equal(date(2024, time.May, 1)) {
		t.Fatalf("expected due date 12 months out, got %v", first.NextCalibration)
	}
	if first.Type != domain.InstrumentAirPump {
		t.Fatalf("record type must be filled from the instrument")
	}

	second, outcome, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{
		InstrumentID: pump.ID,
		Date:         date(2024, time.May, 15),
		Outcome:      domain.OutcomePass,
		OperatorID:   "tech-1",
	}, "tech-1")
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if outcome.ArchivedCount != 1 || outcome.Strategy != domain.StrategySoftTag {
		t.Fatalf("expected the first record soft-tagged, got %+v", outcome)
	}

	active := store.ListCalibrations(pump.ID, true)
	if len(active) != 1 || active[0].ID != second.ID {
		t.Fatalf("expected only the new record active")
	}
	if got := len(store.ListCalibrations(pump.ID, false)); got != 2 {
		t.Fatalf("soft-tagged history must survive, got %d", got)
	}
}

func TestRecordCalibrationByReferenceCanonicalizes(t *testing.T) {
	now := date(2024, time.June, 1)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	pump, _, err := svc.CreateInstrument(ctx, domain.Instrument{Reference: "AP-9", Type: domain.InstrumentAirPump})
	if err != nil {
		t.Fatalf("create instrument: %v", err)
	}
	created, _, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{
		InstrumentRef: "AP-9",
		Date:          date(2024, time.May, 1),
		Outcome:       domain.OutcomePass,
	}, "tech-1")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if created.InstrumentID != pump.ID {
		t.Fatalf("expected canonical ID %s, got %s", pump.ID, created.InstrumentID)
	}
	if created.InstrumentRef != "AP-9" {
		t.Fatalf("reference must be retained, got %s", created.InstrumentRef)
	}
}

func TestRecordCalibrationSummaryWriteBack(t *testing.T) {
	now := date(2024, time.June, 1)
	svc, store, _ := newTestService(t, now)
	ctx := context.Background()

	balance, _, err := svc.CreateInstrument(ctx, domain.Instrument{Reference: "BAL-1", Type: domain.InstrumentBalance})
	if err != nil {
		t.Fatalf("create instrument: %v", err)
	}
	if _, _, err := svc.SetFrequencyConfig(ctx, domain.FrequencyConfig{Type: domain.InstrumentBalance, Value: 1, Unit: domain.UnitYears}); err != nil {
		t.Fatalf("set frequency: %v", err)
	}
	if _, _, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{
		InstrumentID: balance.ID,
		Date:         date(2024, time.May, 1),
		Outcome:      domain.OutcomePass,
	}, "tech-1"); err != nil {
		t.Fatalf("record: %v", err)
	}

	stored, ok := store.GetInstrument(balance.ID)
	if !ok {
		t.Fatalf("instrument disappeared")
	}
	if stored.LastCalibration == nil || !stored.LastCalibration.Equal(date(2024, time.May, 1)) {
		t.Fatalf("expected stored last calibration, got %v", stored.LastCalibration)
	}
	if stored.CalibrationDue == nil || !stored.CalibrationDue.Equal(date(2025, time.May, 1)) {
		t.Fatalf("expected stored due date, got %v", stored.CalibrationDue)
	}
}

func TestRecordCalibrationRejectsBadInput(t *testing.T) {
	now := date(2024, time.June, 1)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	if _, _, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{InstrumentID: "missing", Date: now}, "tech-1"); err == nil {
		t.Fatalf("unknown instrument must error")
	}

	pump, _, err := svc.CreateInstrument(ctx, domain.Instrument{Reference: "AP-5", Type: domain.InstrumentAirPump})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var vErr domain.ValidationError
	if _, _, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{InstrumentID: pump.ID}, "tech-1"); !errors.As(err, &vErr) {
		t.Fatalf("zero date must be a validation error, got %v", err)
	}
	if _, _, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{
		InstrumentID: pump.ID,
		Date:         date(2024, time.June, 2),
	}, "tech-1"); err == nil {
		t.Fatalf("future-dated record must be blocked")
	}
}

func TestRecordCalibrationRespectsExplicitDueDate(t *testing.T) {
	now := date(2024, time.June, 1)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	pump, _, err := svc.CreateInstrument(ctx, domain.Instrument{Reference: "AP-6", Type: domain.InstrumentAirPump})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	explicit := date(2024, time.December, 25)
	created, _, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{
		InstrumentID:    pump.ID,
		Date:            date(2024, time.May, 1),
		NextCalibration: &explicit,
	}, "tech-1")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !created.NextCalibration.Equal(explicit) {
		t.Fatalf("explicit due date must not be overwritten, got %v", created.NextCalibration)
	}
}

func TestAggregateSummaryDerivedAndStored(t *testing.T) {
	now := date(2024, time.June, 1)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	pump, _, err := svc.CreateInstrument(ctx, domain.Instrument{Reference: "AP-7", Type: domain.InstrumentAirPump})
	if err != nil {
		t.Fatalf("create pump: %v", err)
	}
	if _, _, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{
		InstrumentID:    pump.ID,
		Date:            date(2024, time.May, 1),
		NextCalibration: timePtr(date(2025, time.May, 1)),
	}, "tech-1"); err != nil {
		t.Fatalf("record: %v", err)
	}
	summary, err := svc.AggregateSummary(ctx, pump.ID)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if summary.LastCalibration == nil || !summary.LastCalibration.Equal(date(2024, time.May, 1)) {
		t.Fatalf("derived summary mismatch: %+v", summary)
	}

	balance, _, err := svc.CreateInstrument(ctx, domain.Instrument{
		Reference:       "BAL-7",
		Type:            domain.InstrumentBalance,
		LastCalibration: timePtr(date(2024, time.January, 1)),
		CalibrationDue:  timePtr(date(2025, time.January, 1)),
	})
	if err != nil {
		t.Fatalf("create balance: %v", err)
	}
	summary, err = svc.AggregateSummary(ctx, balance.ID)
	if err != nil {
		t.Fatalf("aggregate stored: %v", err)
	}
	if summary.CalibrationDue == nil || !summary.CalibrationDue.Equal(date(2025, time.January, 1)) {
		t.Fatalf("stored summary mismatch: %+v", summary)
	}
}

func TestAggregateSummariesBulk(t *testing.T) {
	now := date(2024, time.June, 1)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	var ids []string
	for _, ref := range []string{"AP-10", "AP-11", "AP-12"} {
		pump, _, err := svc.CreateInstrument(ctx, domain.Instrument{Reference: ref, Type: domain.InstrumentAirPump})
		if err != nil {
			t.Fatalf("create %s: %v", ref, err)
		}
		ids = append(ids, pump.ID)
	}
	if _, _, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{
		InstrumentID:    ids[0],
		Date:            date(2024, time.May, 1),
		NextCalibration: timePtr(date(2025, time.May, 1)),
	}, "tech-1"); err != nil {
		t.Fatalf("record: %v", err)
	}

	out, err := svc.AggregateSummaries(ctx, domain.InstrumentAirPump)
	if err != nil {
		t.Fatalf("aggregate all: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected summaries for all pumps, got %d", len(out))
	}
	if out[ids[0]].LastCalibration == nil {
		t.Fatalf("calibrated pump must have a summary")
	}
	if out[ids[1]].LastCalibration != nil || out[ids[2]].LastCalibration != nil {
		t.Fatalf("uncalibrated pumps must map to empty summaries")
	}
}

func TestEvaluateInstrumentAndAll(t *testing.T) {
	now := date(2024, time.June, 1)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	pump, _, err := svc.CreateInstrument(ctx, domain.Instrument{Reference: "AP-20", Type: domain.InstrumentAirPump})
	if err != nil {
		t.Fatalf("create pump: %v", err)
	}
	if _, _, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{
		InstrumentID:    pump.ID,
		Date:            date(2023, time.January, 1),
		NextCalibration: timePtr(date(2024, time.January, 1)),
	}, "tech-1"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, _, err := svc.CreateInstrument(ctx, domain.Instrument{Reference: "AP-21", Type: domain.InstrumentAirPump}); err != nil {
		t.Fatalf("create second pump: %v", err)
	}

	report, err := svc.EvaluateInstrument(ctx, "AP-20")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if report.Status != domain.StatusCalibrationOverdue {
		t.Fatalf("expected overdue, got %s", report.Status)
	}

	rows, err := svc.EvaluateAll(ctx)
	if err != nil {
		t.Fatalf("evaluate all: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	byRef := map[string]StatusReport{}
	for _, row := range rows {
		byRef[row.Instrument.Reference] = row.Report
	}
	if byRef["AP-20"].Status != domain.StatusCalibrationOverdue {
		t.Fatalf("AP-20 should be overdue, got %s", byRef["AP-20"].Status)
	}
	if byRef["AP-21"].Status != domain.StatusOutOfService {
		t.Fatalf("uncalibrated AP-21 should be out-of-service, got %s", byRef["AP-21"].Status)
	}
}

func TestServiceRestoreCalibration(t *testing.T) {
	now := date(2024, time.June, 1)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	pump, _, err := svc.CreateInstrument(ctx, domain.Instrument{Reference: "AP-30", Type: domain.InstrumentAirPump})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	first, _, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{
		InstrumentID: pump.ID,
		Date:         date(2023, time.May, 1),
	}, "tech-1")
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if _, _, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{
		InstrumentID: pump.ID,
		Date:         date(2024, time.May, 1),
	}, "tech-1"); err != nil {
		t.Fatalf("second record: %v", err)
	}

	restored, err := svc.RestoreCalibration(ctx, first.ID, "tech-2")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Archived() || restored.RestoredBy != "tech-2" {
		t.Fatalf("expected restored record with audit, got %+v", restored)
	}
}

func TestSaveSampleAnalysisValidatesGrid(t *testing.T) {
	now := date(2024, time.June, 1)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	var analysis domain.SampleAnalysis
	analysis.SampleRef = "S-1"
	analysis.Grid[0][0] = domain.Fibre(-1)
	var vErr domain.ValidationError
	if _, err := svc.SaveSampleAnalysis(ctx, analysis); !errors.As(err, &vErr) {
		t.Fatalf("negative cell must be a validation error, got %v", err)
	}

	analysis.Grid[0][0] = domain.Fibre(3)
	saved, err := svc.SaveSampleAnalysis(ctx, analysis)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID == "" {
		t.Fatalf("expected generated ID")
	}
}

func TestCalculateConcentrationUsesGraticuleCalibration(t *testing.T) {
	now := date(2024, time.June, 1)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	scope, _, err := svc.CreateInstrument(ctx, domain.Instrument{Reference: "MIC-1", Type: domain.InstrumentMicroscope})
	if err != nil {
		t.Fatalf("create microscope: %v", err)
	}
	constant := 48000.0
	if _, _, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{
		InstrumentID:      scope.ID,
		Date:              date(2024, time.May, 1),
		Outcome:           domain.OutcomePass,
		GraticuleConstant: &constant,
		FilterDiameterMM:  25,
	}, "tech-1"); err != nil {
		t.Fatalf("record graticule calibration: %v", err)
	}

	var analysis domain.SampleAnalysis
	analysis.SampleRef = "S-2"
	analysis.MicroscopeID = scope.ID
	analysis.FilterDiameterMM = 25
	analysis.FlowRate = 2.0
	analysis.Minutes = 60
	for c := 0; c < domain.GridCols; c++ {
		analysis.Grid[0][c] = domain.Fibre(1)
	}
	saved, err := svc.SaveSampleAnalysis(ctx, analysis)
	if err != nil {
		t.Fatalf("save analysis: %v", err)
	}

	valuation, err := svc.CalculateConcentration(ctx, saved.ID)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	// 48000 x (20/20) / (2 x 1000 x 60) = 0.4
	if valuation.Value != 0.4 {
		t.Fatalf("expected 0.4 from the calibrated constant, got %v", valuation.Value)
	}
	if valuation.Reported != "0.40" {
		t.Fatalf("expected reported 0.40, got %q", valuation.Reported)
	}
}

func TestCalculateConcentrationFallsBackToDefaultConstant(t *testing.T) {
	now := date(2024, time.June, 1)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	var analysis domain.SampleAnalysis
	analysis.SampleRef = "S-3"
	analysis.MicroscopeID = "no-such-scope"
	analysis.FilterDiameterMM = 25
	analysis.FlowRate = 2.0
	analysis.Minutes = 60
	for c := 0; c < domain.GridCols; c++ {
		analysis.Grid[0][c] = domain.Fibre(1)
	}
	saved, err := svc.SaveSampleAnalysis(ctx, analysis)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	valuation, err := svc.CalculateConcentration(ctx, saved.ID)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	// 50000 x (20/20) / (2 x 1000 x 60) rounded to 4dp.
	if valuation.Value != 0.4167 {
		t.Fatalf("expected 0.4167 from the default constant, got %v", valuation.Value)
	}
	if _, err := svc.CalculateConcentration(ctx, "missing"); err == nil {
		t.Fatalf("unknown analysis must error")
	}
}

func TestCalculateConcentrationUncountableDust(t *testing.T) {
	now := date(2024, time.June, 1)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	var analysis domain.SampleAnalysis
	analysis.SampleRef = "S-4"
	analysis.Dust = domain.DustFail
	analysis.FilterDiameterMM = 25
	saved, err := svc.SaveSampleAnalysis(ctx, analysis)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	valuation, err := svc.CalculateConcentration(ctx, saved.ID)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if valuation.Reported != fibre.LabelUncountable {
		t.Fatalf("expected UDD, got %q", valuation.Reported)
	}
}

func TestRecordCalibrationBackdatedWarnsOnDuplicateActive(t *testing.T) {
	now := date(2024, time.June, 1)
	svc, store, logger := newTestService(t, now)
	ctx := context.Background()

	pump, _, err := svc.CreateInstrument(ctx, domain.Instrument{Reference: "AP-60", Type: domain.InstrumentAirPump})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{
		InstrumentID: pump.ID,
		Date:         date(2024, time.May, 1),
	}, "tech-1"); err != nil {
		t.Fatalf("record: %v", err)
	}

	// A backdated record supersedes nothing, leaving two active entries. The
	// insert still goes through; the duplicate is only a warning.
	_, outcome, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{
		InstrumentID: pump.ID,
		Date:         date(2024, time.April, 1),
	}, "tech-1")
	if err != nil {
		t.Fatalf("backdated record: %v", err)
	}
	if outcome.ArchivedCount != 0 {
		t.Fatalf("nothing predates the backdated record, archived %d", outcome.ArchivedCount)
	}
	if got := len(store.ListCalibrations(pump.ID, true)); got != 2 {
		t.Fatalf("expected two active records, got %d", got)
	}
	logger.mu.Lock()
	warns := len(logger.warns)
	logger.mu.Unlock()
	if warns == 0 {
		t.Fatalf("expected a duplicate-active warning to be logged")
	}
}

func TestRecordCalibrationConcurrentSupersession(t *testing.T) {
	now := date(2024, time.June, 1)
	svc, store, _ := newTestService(t, now)
	ctx := context.Background()

	pump, _, err := svc.CreateInstrument(ctx, domain.Instrument{Reference: "AP-50", Type: domain.InstrumentAirPump})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for day := 1; day <= 8; day++ {
		wg.Add(1)
		go func(day int) {
			defer wg.Done()
			_, _, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{
				InstrumentID: pump.ID,
				Date:         date(2024, time.May, day),
			}, "tech-1")
			if err != nil {
				t.Errorf("day %d: %v", day, err)
			}
		}(day)
	}
	wg.Wait()

	// A final record dated after all of the above leaves exactly one active
	// entry regardless of the interleaving above.
	if _, _, err := svc.RecordCalibration(ctx, domain.CalibrationRecord{
		InstrumentID: pump.ID,
		Date:         date(2024, time.May, 30),
	}, "tech-1"); err != nil {
		t.Fatalf("final record: %v", err)
	}
	active := store.ListCalibrations(pump.ID, true)
	if len(active) != 1 {
		t.Fatalf("expected a single active record after supersession, got %d", len(active))
	}
	if !active[0].Date.Equal(date(2024, time.May, 30)) {
		t.Fatalf("expected the newest record to survive, got %s", active[0].Date.Format("2006-01-02"))
	}
	if got := len(store.ListCalibrations(pump.ID, false)); got != 9 {
		t.Fatalf("soft-tag must keep the full history, got %d", got)
	}
}

func TestServiceObservability(t *testing.T) {
	now := date(2024, time.June, 1)
	engine := NewDefaultRulesEngine()
	store := memory.NewStore(engine)
	metrics := NewExpvarMetricsRecorder("")
	tracer := NewJSONTracer(nil)
	svc := NewService(store, WithMetrics(metrics), WithTracer(tracer), WithNow(func() time.Time { return now }))

	if _, _, err := svc.CreateInstrument(context.Background(), domain.Instrument{Reference: "AP-40", Type: domain.InstrumentAirPump}); err != nil {
		t.Fatalf("create: %v", err)
	}
	snapshot := metrics.Snapshot()
	if snapshot.Results["create_instrument"]["success"] != 1 {
		t.Fatalf("expected one recorded success, got %+v", snapshot.Results)
	}
	entries := tracer.Entries()
	if len(entries) != 1 || entries[0].Operation != "create_instrument" || entries[0].Status != "success" {
		t.Fatalf("expected one success span, got %+v", entries)
	}
}
