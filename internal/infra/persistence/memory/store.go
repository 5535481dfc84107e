// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"calcore/pkg/domain"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain
// persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type memoryState struct {
	instruments  map[string]domain.Instrument
	calibrations map[string]domain.CalibrationRecord
	archived     map[string]domain.ArchivedCalibration
	frequencies  map[string]domain.FrequencyConfig
	samples      map[string]domain.SampleAnalysis
}

// Snapshot captures a point-in-time clone of the store state. The bucket
// names double as persistence keys for the snapshotting backends.
type Snapshot struct {
	Instruments  map[string]domain.Instrument          `json:"instruments"`
	Calibrations map[string]domain.CalibrationRecord   `json:"calibrations"`
	Archived     map[string]domain.ArchivedCalibration `json:"archived"`
	Frequencies  map[string]domain.FrequencyConfig     `json:"frequencies"`
	Samples      map[string]domain.SampleAnalysis      `json:"samples"`
}

func newMemoryState() memoryState {
	return memoryState{
		instruments:  make(map[string]domain.Instrument),
		calibrations: make(map[string]domain.CalibrationRecord),
		archived:     make(map[string]domain.ArchivedCalibration),
		frequencies:  make(map[string]domain.FrequencyConfig),
		samples:      make(map[string]domain.SampleAnalysis),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.instruments {
		cloned.instruments[k] = cloneInstrument(v)
	}
	for k, v := range s.calibrations {
		cloned.calibrations[k] = cloneCalibration(v)
	}
	for k, v := range s.archived {
		cloned.archived[k] = cloneArchived(v)
	}
	for k, v := range s.frequencies {
		cloned.frequencies[k] = v
	}
	for k, v := range s.samples {
		cloned.samples[k] = v
	}
	return cloned
}

func cloneInstrument(i domain.Instrument) domain.Instrument {
	cp := i
	cp.FrequencyMonths = cloneIntPtr(i.FrequencyMonths)
	cp.LastCalibration = cloneTimePtr(i.LastCalibration)
	cp.CalibrationDue = cloneTimePtr(i.CalibrationDue)
	return cp
}

func cloneCalibration(r domain.CalibrationRecord) domain.CalibrationRecord {
	cp := r
	cp.TestResults = append([]domain.TestResult(nil), r.TestResults...)
	cp.NextCalibration = cloneTimePtr(r.NextCalibration)
	cp.ArchivedAt = cloneTimePtr(r.ArchivedAt)
	cp.RestoredAt = cloneTimePtr(r.RestoredAt)
	cp.GraticuleConstant = cloneFloatPtr(r.GraticuleConstant)
	return cp
}

func cloneArchived(a domain.ArchivedCalibration) domain.ArchivedCalibration {
	cp := a
	cp.CalibrationRecord = cloneCalibration(a.CalibrationRecord)
	return cp
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneIntPtr(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneFloatPtr(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the transaction clock. Intended for tests.
func (s *Store) SetNow(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// transaction applies mutations to a cloned state which replaces the
// committed state only when fn and rule evaluation both succeed.
type transaction struct {
	state   memoryState
	changes []domain.Change
	now     time.Time
}

var _ domain.Transaction = (*transaction)(nil)

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		view := newView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newView(&snapshot))
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() domain.TransactionView {
	return newView(&tx.state)
}

// CreateInstrument stores a new instrument within the transaction. References
// must be unique across instruments.
func (tx *transaction) CreateInstrument(i domain.Instrument) (domain.Instrument, error) {
	if i.ID == "" {
		i.ID = newID()
	}
	if _, exists := tx.state.instruments[i.ID]; exists {
		return domain.Instrument{}, fmt.Errorf("instrument %q already exists", i.ID)
	}
	if i.Reference == "" {
		return domain.Instrument{}, domain.ValidationError{Field: "reference", Reason: "must not be empty"}
	}
	for _, existing := range tx.state.instruments {
		if existing.Reference == i.Reference {
			return domain.Instrument{}, fmt.Errorf("instrument reference %q already exists", i.Reference)
		}
	}
	if !domain.KnownInstrumentType(i.Type) {
		return domain.Instrument{}, domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown instrument type %q", i.Type)}
	}
	if i.Flag == "" {
		i.Flag = domain.FlagActive
	}
	i.CreatedAt = tx.now
	i.UpdatedAt = tx.now
	tx.state.instruments[i.ID] = cloneInstrument(i)
	tx.recordChange(domain.Change{Entity: domain.EntityInstrument, Action: domain.ActionCreate, After: cloneInstrument(i)})
	return cloneInstrument(i), nil
}

// UpdateInstrument mutates an instrument using the provided mutator function.
func (tx *transaction) UpdateInstrument(id string, mutator func(*domain.Instrument) error) (domain.Instrument, error) {
	current, ok := tx.state.instruments[id]
	if !ok {
		return domain.Instrument{}, domain.ErrNotFound{Entity: domain.EntityInstrument, ID: id}
	}
	before := cloneInstrument(current)
	if err := mutator(&current); err != nil {
		return domain.Instrument{}, err
	}
	if !domain.KnownInstrumentType(current.Type) {
		return domain.Instrument{}, domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown instrument type %q", current.Type)}
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.instruments[id] = cloneInstrument(current)
	tx.recordChange(domain.Change{Entity: domain.EntityInstrument, Action: domain.ActionUpdate, Before: before, After: cloneInstrument(current)})
	return cloneInstrument(current), nil
}

// DeleteInstrument removes an instrument from the transaction state.
func (tx *transaction) DeleteInstrument(id string) error {
	current, ok := tx.state.instruments[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityInstrument, ID: id}
	}
	delete(tx.state.instruments, id)
	tx.recordChange(domain.Change{Entity: domain.EntityInstrument, Action: domain.ActionDelete, Before: cloneInstrument(current)})
	return nil
}

// CreateCalibration stores a new calibration record.
func (tx *transaction) CreateCalibration(r domain.CalibrationRecord) (domain.CalibrationRecord, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	if _, exists := tx.state.calibrations[r.ID]; exists {
		return domain.CalibrationRecord{}, fmt.Errorf("calibration record %q already exists", r.ID)
	}
	if r.InstrumentID == "" {
		return domain.CalibrationRecord{}, domain.ValidationError{Field: "instrument_id", Reason: "must not be empty"}
	}
	if _, ok := tx.state.instruments[r.InstrumentID]; !ok {
		return domain.CalibrationRecord{}, domain.ErrNotFound{Entity: domain.EntityInstrument, ID: r.InstrumentID}
	}
	if r.Date.IsZero() {
		return domain.CalibrationRecord{}, domain.ValidationError{Field: "date", Reason: "must not be zero"}
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.calibrations[r.ID] = cloneCalibration(r)
	tx.recordChange(domain.Change{Entity: domain.EntityCalibrationRecord, Action: domain.ActionCreate, After: cloneCalibration(r)})
	return cloneCalibration(r), nil
}

// UpdateCalibration mutates a calibration record.
func (tx *transaction) UpdateCalibration(id string, mutator func(*domain.CalibrationRecord) error) (domain.CalibrationRecord, error) {
	current, ok := tx.state.calibrations[id]
	if !ok {
		return domain.CalibrationRecord{}, domain.ErrNotFound{Entity: domain.EntityCalibrationRecord, ID: id}
	}
	before := cloneCalibration(current)
	if err := mutator(&current); err != nil {
		return domain.CalibrationRecord{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.calibrations[id] = cloneCalibration(current)
	tx.recordChange(domain.Change{Entity: domain.EntityCalibrationRecord, Action: domain.ActionUpdate, Before: before, After: cloneCalibration(current)})
	return cloneCalibration(current), nil
}

// DeleteCalibration removes a calibration record from the active set.
func (tx *transaction) DeleteCalibration(id string) error {
	current, ok := tx.state.calibrations[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityCalibrationRecord, ID: id}
	}
	delete(tx.state.calibrations, id)
	tx.recordChange(domain.Change{Entity: domain.EntityCalibrationRecord, Action: domain.ActionDelete, Before: cloneCalibration(current)})
	return nil
}

// CreateArchivedCalibration stores a retired record copy. Archive entries are
// append-only.
func (tx *transaction) CreateArchivedCalibration(a domain.ArchivedCalibration) (domain.ArchivedCalibration, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	if _, exists := tx.state.archived[a.ID]; exists {
		return domain.ArchivedCalibration{}, fmt.Errorf("archived calibration %q already exists", a.ID)
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.archived[a.ID] = cloneArchived(a)
	tx.recordChange(domain.Change{Entity: domain.EntityArchivedCalibration, Action: domain.ActionCreate, After: cloneArchived(a)})
	return cloneArchived(a), nil
}

// CreateFrequencyConfig stores a per-type frequency entry. Types are unique.
func (tx *transaction) CreateFrequencyConfig(c domain.FrequencyConfig) (domain.FrequencyConfig, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if _, exists := tx.state.frequencies[c.ID]; exists {
		return domain.FrequencyConfig{}, fmt.Errorf("frequency config %q already exists", c.ID)
	}
	if !domain.KnownInstrumentType(c.Type) {
		return domain.FrequencyConfig{}, domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown instrument type %q", c.Type)}
	}
	for _, existing := range tx.state.frequencies {
		if existing.Type == c.Type {
			return domain.FrequencyConfig{}, fmt.Errorf("frequency config for type %q already exists", c.Type)
		}
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.frequencies[c.ID] = c
	tx.recordChange(domain.Change{Entity: domain.EntityFrequencyConfig, Action: domain.ActionCreate, After: c})
	return c, nil
}

// UpdateFrequencyConfig mutates an existing frequency entry.
func (tx *transaction) UpdateFrequencyConfig(id string, mutator func(*domain.FrequencyConfig) error) (domain.FrequencyConfig, error) {
	current, ok := tx.state.frequencies[id]
	if !ok {
		return domain.FrequencyConfig{}, domain.ErrNotFound{Entity: domain.EntityFrequencyConfig, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.FrequencyConfig{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.frequencies[id] = current
	tx.recordChange(domain.Change{Entity: domain.EntityFrequencyConfig, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteFrequencyConfig removes a frequency entry.
func (tx *transaction) DeleteFrequencyConfig(id string) error {
	current, ok := tx.state.frequencies[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityFrequencyConfig, ID: id}
	}
	delete(tx.state.frequencies, id)
	tx.recordChange(domain.Change{Entity: domain.EntityFrequencyConfig, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateSampleAnalysis stores a fibre-count analysis record.
func (tx *transaction) CreateSampleAnalysis(a domain.SampleAnalysis) (domain.SampleAnalysis, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	if _, exists := tx.state.samples[a.ID]; exists {
		return domain.SampleAnalysis{}, fmt.Errorf("sample analysis %q already exists", a.ID)
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.samples[a.ID] = a
	tx.recordChange(domain.Change{Entity: domain.EntitySampleAnalysis, Action: domain.ActionCreate, After: a})
	return a, nil
}

// UpdateSampleAnalysis mutates a sample analysis record.
func (tx *transaction) UpdateSampleAnalysis(id string, mutator func(*domain.SampleAnalysis) error) (domain.SampleAnalysis, error) {
	current, ok := tx.state.samples[id]
	if !ok {
		return domain.SampleAnalysis{}, domain.ErrNotFound{Entity: domain.EntitySampleAnalysis, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.SampleAnalysis{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.samples[id] = current
	tx.recordChange(domain.Change{Entity: domain.EntitySampleAnalysis, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// FindInstrument retrieves an instrument by ID from the transactional state.
func (tx *transaction) FindInstrument(id string) (domain.Instrument, bool) {
	i, ok := tx.state.instruments[id]
	if !ok {
		return domain.Instrument{}, false
	}
	return cloneInstrument(i), true
}

// FindInstrumentByReference retrieves an instrument by its human-readable
// reference.
func (tx *transaction) FindInstrumentByReference(ref string) (domain.Instrument, bool) {
	return findByReference(&tx.state, ref)
}

// FindCalibration retrieves a calibration record by ID.
func (tx *transaction) FindCalibration(id string) (domain.CalibrationRecord, bool) {
	r, ok := tx.state.calibrations[id]
	if !ok {
		return domain.CalibrationRecord{}, false
	}
	return cloneCalibration(r), true
}

// ListCalibrations returns calibration records for an instrument ordered by
// event date ascending. activeOnly excludes soft-tagged records.
func (tx *transaction) ListCalibrations(instrumentID string, activeOnly bool) []domain.CalibrationRecord {
	return listCalibrations(&tx.state, instrumentID, activeOnly)
}

func findByReference(state *memoryState, ref string) (domain.Instrument, bool) {
	for _, i := range state.instruments {
		if i.Reference == ref {
			return cloneInstrument(i), true
		}
	}
	return domain.Instrument{}, false
}

func listCalibrations(state *memoryState, instrumentID string, activeOnly bool) []domain.CalibrationRecord {
	var out []domain.CalibrationRecord
	for _, r := range state.calibrations {
		if r.InstrumentID != instrumentID {
			continue
		}
		if activeOnly && r.Archived() {
			continue
		}
		out = append(out, cloneCalibration(r))
	}
	sortCalibrations(out)
	return out
}

func sortCalibrations(records []domain.CalibrationRecord) {
	sort.Slice(records, func(a, b int) bool {
		if records[a].Date.Equal(records[b].Date) {
			return records[a].ID < records[b].ID
		}
		return records[a].Date.Before(records[b].Date)
	})
}

// view adapts a memoryState to the domain read interfaces.
type view struct {
	state *memoryState
}

var _ domain.TransactionView = view{}

func newView(state *memoryState) view {
	return view{state: state}
}

// ListInstruments returns all instruments sorted by reference.
func (v view) ListInstruments() []domain.Instrument {
	out := make([]domain.Instrument, 0, len(v.state.instruments))
	for _, i := range v.state.instruments {
		out = append(out, cloneInstrument(i))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Reference < out[b].Reference })
	return out
}

// ListCalibrations returns one instrument's records, date ascending.
func (v view) ListCalibrations(instrumentID string, activeOnly bool) []domain.CalibrationRecord {
	return listCalibrations(v.state, instrumentID, activeOnly)
}

// ListAllCalibrations returns every active-or-archived record in one pass,
// date ascending. Bulk aggregation uses this to avoid per-instrument scans.
func (v view) ListAllCalibrations() []domain.CalibrationRecord {
	out := make([]domain.CalibrationRecord, 0, len(v.state.calibrations))
	for _, r := range v.state.calibrations {
		out = append(out, cloneCalibration(r))
	}
	sortCalibrations(out)
	return out
}

// ListArchivedCalibrations returns copy-delete archive entries for an
// instrument.
func (v view) ListArchivedCalibrations(instrumentID string) []domain.ArchivedCalibration {
	var out []domain.ArchivedCalibration
	for _, a := range v.state.archived {
		if a.InstrumentID == instrumentID {
			out = append(out, cloneArchived(a))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Date.Before(out[b].Date) })
	return out
}

// ListFrequencyConfigs returns all configured frequencies.
func (v view) ListFrequencyConfigs() []domain.FrequencyConfig {
	out := make([]domain.FrequencyConfig, 0, len(v.state.frequencies))
	for _, c := range v.state.frequencies {
		out = append(out, c)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Type < out[b].Type })
	return out
}

// ListSampleAnalyses returns all sample analyses.
func (v view) ListSampleAnalyses() []domain.SampleAnalysis {
	out := make([]domain.SampleAnalysis, 0, len(v.state.samples))
	for _, s := range v.state.samples {
		out = append(out, s)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// FindInstrument retrieves an instrument by ID.
func (v view) FindInstrument(id string) (domain.Instrument, bool) {
	i, ok := v.state.instruments[id]
	if !ok {
		return domain.Instrument{}, false
	}
	return cloneInstrument(i), true
}

// FindInstrumentByReference retrieves an instrument by reference.
func (v view) FindInstrumentByReference(ref string) (domain.Instrument, bool) {
	return findByReference(v.state, ref)
}

// FindFrequencyConfig retrieves the config for an instrument type.
func (v view) FindFrequencyConfig(t domain.InstrumentType) (domain.FrequencyConfig, bool) {
	for _, c := range v.state.frequencies {
		if c.Type == t {
			return c, true
		}
	}
	return domain.FrequencyConfig{}, false
}

// FindCalibration retrieves a record by ID.
func (v view) FindCalibration(id string) (domain.CalibrationRecord, bool) {
	r, ok := v.state.calibrations[id]
	if !ok {
		return domain.CalibrationRecord{}, false
	}
	return cloneCalibration(r), true
}

// FindSampleAnalysis retrieves a sample analysis by ID.
func (v view) FindSampleAnalysis(id string) (domain.SampleAnalysis, bool) {
	s, ok := v.state.samples[id]
	if !ok {
		return domain.SampleAnalysis{}, false
	}
	return s, true
}

// Read helpers ---------------------------------------------------------------

// GetInstrument retrieves an instrument by ID from committed state.
func (s *Store) GetInstrument(id string) (domain.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.state.instruments[id]
	if !ok {
		return domain.Instrument{}, false
	}
	return cloneInstrument(i), true
}

// GetInstrumentByReference retrieves an instrument by reference from
// committed state.
func (s *Store) GetInstrumentByReference(ref string) (domain.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findByReference(&s.state, ref)
}

// ListInstruments returns all instruments from committed state.
func (s *Store) ListInstruments() []domain.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListInstruments()
}

// ListInstrumentsOfType returns instruments of one type, sorted by reference.
func (s *Store) ListInstrumentsOfType(t domain.InstrumentType) []domain.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Instrument
	for _, i := range s.state.instruments {
		if i.Type == t {
			out = append(out, cloneInstrument(i))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Reference < out[b].Reference })
	return out
}

// ListCalibrations returns one instrument's records from committed state.
func (s *Store) ListCalibrations(instrumentID string, activeOnly bool) []domain.CalibrationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCalibrations(&s.state, instrumentID, activeOnly)
}

// ListArchivedCalibrations returns archive-bucket entries from committed state.
func (s *Store) ListArchivedCalibrations(instrumentID string) []domain.ArchivedCalibration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListArchivedCalibrations(instrumentID)
}

// ListFrequencyConfigs returns all frequency entries from committed state.
func (s *Store) ListFrequencyConfigs() []domain.FrequencyConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListFrequencyConfigs()
}

// GetFrequencyConfig retrieves the entry for an instrument type.
func (s *Store) GetFrequencyConfig(t domain.InstrumentType) (domain.FrequencyConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).FindFrequencyConfig(t)
}

// ListSampleAnalyses returns all sample analyses from committed state.
func (s *Store) ListSampleAnalyses() []domain.SampleAnalysis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(&s.state).ListSampleAnalyses()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cloned := s.state.clone()
	return Snapshot{
		Instruments:  cloned.instruments,
		Calibrations: cloned.calibrations,
		Archived:     cloned.archived,
		Frequencies:  cloned.frequencies,
		Samples:      cloned.samples,
	}
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snapshot.Instruments {
		state.instruments[k] = cloneInstrument(v)
	}
	for k, v := range snapshot.Calibrations {
		state.calibrations[k] = cloneCalibration(v)
	}
	for k, v := range snapshot.Archived {
		state.archived[k] = cloneArchived(v)
	}
	for k, v := range snapshot.Frequencies {
		state.frequencies[k] = v
	}
	for k, v := range snapshot.Samples {
		state.samples[k] = v
	}
	s.state = state
}
