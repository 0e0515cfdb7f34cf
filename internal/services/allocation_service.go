package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"codeclaim/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Origin is the request metadata stored with a claim.
type Origin struct {
	IPAddress string
	UserAgent string
}

type ClaimRequest struct {
	Phone  string
	Origin Origin
}

// ClaimResult is returned for every Claim call. Code is set only on
// success. EligibilitySaved and ClaimLogSaved report the workbook flushes;
// a false value means the claim is journaled and waits for FlushPending.
type ClaimResult struct {
	Code             string `json:"code,omitempty"`
	Message          string `json:"message"`
	ClaimID          string `json:"claim_id,omitempty"`
	EligibilitySaved bool   `json:"eligibility_saved"`
	ClaimLogSaved    bool   `json:"claim_log_saved"`
}

type LoadResult struct {
	Count   int    `json:"count"`
	Message string `json:"message"`
}

type Stats struct {
	Loaded   bool `json:"loaded"`
	Total    int  `json:"total"`
	Unissued int  `json:"unissued"`
	Issued   int  `json:"issued"`
	ClaimLog int  `json:"claim_log"`
	Pending  int  `json:"pending"`
}

type FlushReport struct {
	Eligibility int `json:"eligibility"`
	ClaimLog    int `json:"claim_log"`
	// Recovered counts journal entries left unflushed by an earlier run
	// or another process and applied through a replay.
	Recovered int `json:"recovered"`
}

type ReplayReport struct {
	Entries  int `json:"entries"`
	Restored int `json:"restored"`
	Appended int `json:"appended"`
}

type ReloadResult struct {
	Eligibility LoadResult   `json:"eligibility"`
	ClaimLog    LoadResult   `json:"claim_log"`
	Replay      ReplayReport `json:"replay"`
}

// AllocationService owns the eligibility table and the claim log. All
// operations run under one mutex so a phone can never be observed as
// unissued by two claims.
type AllocationService struct {
	mu         sync.Mutex
	loader     *EligibilityLoader
	claims     *ClaimLogStore
	journal    ClaimJournaler
	logService LogWriter
	logger     *zap.Logger
	now        func() time.Time

	table              *EligibilityTable
	pendingEligibility []string
	pendingClaimLog    []string
}

func NewAllocationService(loader *EligibilityLoader, claims *ClaimLogStore, journal ClaimJournaler, logService LogWriter, logger *zap.Logger) (*AllocationService, error) {
	if loader == nil {
		return nil, errors.New("eligibility loader is nil")
	}
	if claims == nil {
		return nil, errors.New("claim log store is nil")
	}
	if journal == nil {
		return nil, errors.New("journal is nil")
	}
	if logService == nil {
		return nil, errors.New("log service is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AllocationService{
		loader:     loader,
		claims:     claims,
		journal:    journal,
		logService: logService,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *AllocationService) LoadEligibility(ctx context.Context) (LoadResult, error) {
	if s == nil {
		return LoadResult{}, errors.New("allocation service is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadEligibilityLocked(ctx)
}

func (s *AllocationService) loadEligibilityLocked(ctx context.Context) (LoadResult, error) {
	table, err := s.loader.Load(ctx)
	if err != nil {
		message := Message(err)
		s.logger.Error("eligibility load failed", zap.String("path", s.loader.Path()), zap.Error(err))
		logEvent(ctx, s.logService, nil, LogActionEligibilityLoad, LogOutcomeFail, message)
		return LoadResult{Message: message}, err
	}

	s.table = table
	s.pendingEligibility = nil

	message := fmt.Sprintf("成功加载 %d 条记录", table.Len())
	s.logger.Info("eligibility loaded", zap.Int("records", table.Len()), zap.Int("dropped", table.Dropped()))
	logEvent(ctx, s.logService, nil, LogActionEligibilityLoad, LogOutcomeSuccess, message)
	return LoadResult{Count: table.Len(), Message: message}, nil
}

func (s *AllocationService) LoadClaimLog(ctx context.Context) (LoadResult, error) {
	if s == nil {
		return LoadResult{}, errors.New("allocation service is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadClaimLogLocked(ctx)
}

func (s *AllocationService) loadClaimLogLocked(ctx context.Context) (LoadResult, error) {
	count, created, err := s.claims.Load(ctx)
	if err != nil {
		message := fmt.Sprintf("加载领取记录失败: %v", err)
		s.logger.Error("claim log load failed", zap.Error(err))
		logEvent(ctx, s.logService, nil, LogActionClaimLogLoad, LogOutcomeFail, message)
		return LoadResult{Message: message}, err
	}

	s.pendingClaimLog = nil

	message := fmt.Sprintf("加载 %d 条领取记录", count)
	if created {
		message = MsgClaimLogCreated
	}
	logEvent(ctx, s.logService, nil, LogActionClaimLogLoad, LogOutcomeSuccess, message)
	return LoadResult{Count: count, Message: message}, nil
}

// Reload loads the eligibility table, then the claim log, then replays the
// journal over both. The claim log is only read once eligibility loaded.
func (s *AllocationService) Reload(ctx context.Context) (ReloadResult, error) {
	if s == nil {
		return ReloadResult{}, errors.New("allocation service is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result ReloadResult
	var err error
	if result.Eligibility, err = s.loadEligibilityLocked(ctx); err != nil {
		return result, err
	}
	if result.ClaimLog, err = s.loadClaimLogLocked(ctx); err != nil {
		return result, err
	}
	if result.Replay, err = s.replayLocked(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// Claim issues the code assigned to req.Phone. Rejections return the
// matching sentinel error with Message filled in.
func (s *AllocationService) Claim(ctx context.Context, req ClaimRequest) (ClaimResult, error) {
	if s == nil {
		return ClaimResult{}, errors.New("allocation service is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.table == nil {
		return s.reject(ctx, "", ErrNotLoaded)
	}

	phone, ok := NormalizePhone(req.Phone)
	if !ok {
		return s.reject(ctx, "", ErrInvalidPhoneFormat)
	}

	record, ok := s.table.Lookup(phone)
	if !ok {
		return s.reject(ctx, phone, ErrNotEligible)
	}
	switch record.Status {
	case models.StatusIssued:
		return s.reject(ctx, phone, ErrAlreadyClaimed)
	case models.StatusUnissued:
	default:
		return s.reject(ctx, phone, ErrInvalidRecordState)
	}

	if !s.claims.Loaded() {
		if _, err := s.loadClaimLogLocked(ctx); err != nil {
			return ClaimResult{Message: Message(err)}, fmt.Errorf("load claim log: %w", err)
		}
	}

	code := RepairCode(strings.TrimSpace(record.Code))
	if code == "" {
		return s.reject(ctx, phone, ErrInvalidRecordState)
	}
	entry := &models.ClaimJournal{
		ID:             uuid.NewString(),
		Phone:          phone,
		SubmittedPhone: req.Phone,
		Code:           code,
		ClaimedAt:      s.now(),
		IPAddress:      req.Origin.IPAddress,
		UserAgent:      req.Origin.UserAgent,
	}
	if err := s.journal.Record(ctx, entry); err != nil {
		if errors.Is(err, ErrJournalConflict) {
			s.restoreFromJournal(ctx, record, phone)
			return s.reject(ctx, phone, ErrAlreadyClaimed)
		}
		persistErr := &PersistenceError{Target: TargetJournal, Err: err}
		s.logger.Error("journal write failed", zap.String("phone", maskPhone(phone)), zap.Error(err))
		logEvent(ctx, s.logService, nil, LogActionClaim, LogOutcomeFail, fmt.Sprintf("phone=%s: %v", maskPhone(phone), persistErr))
		return ClaimResult{Message: Message(persistErr)}, persistErr
	}

	if err := s.table.MarkIssued(record.ID, code, entry.ClaimedAt); err != nil {
		return ClaimResult{Message: Message(err)}, fmt.Errorf("mark issued: %w", err)
	}

	result := ClaimResult{
		Code:    code,
		Message: MsgClaimSuccess,
		ClaimID: entry.ID,
	}
	result.EligibilitySaved = s.flushEligibilityLocked(ctx, entry.ID)
	result.ClaimLogSaved = s.appendClaimLocked(ctx, *entry)

	s.logger.Info("code issued",
		zap.String("claim_id", entry.ID),
		zap.String("phone", maskPhone(phone)),
		zap.Bool("eligibility_saved", result.EligibilitySaved),
		zap.Bool("claim_log_saved", result.ClaimLogSaved),
	)
	logEvent(ctx, s.logService, &entry.ID, LogActionClaim, LogOutcomeSuccess,
		fmt.Sprintf("phone=%s eligibility_saved=%t claim_log_saved=%t", maskPhone(phone), result.EligibilitySaved, result.ClaimLogSaved))

	return result, nil
}

func (s *AllocationService) reject(ctx context.Context, phone string, err error) (ClaimResult, error) {
	message := Message(err)
	logEvent(ctx, s.logService, nil, LogActionClaim, LogOutcomeFail, fmt.Sprintf("phone=%s: %s", maskPhone(phone), err))
	return ClaimResult{Message: message}, err
}

// restoreFromJournal marks a record issued when the journal already holds a
// claim for its phone, which happens when the workbook was replaced by an
// older copy.
func (s *AllocationService) restoreFromJournal(ctx context.Context, record models.EligibilityRecord, phone string) {
	existing, err := s.journal.FindByPhone(ctx, phone)
	if err != nil || existing == nil {
		s.logger.Warn("journal conflict without readable entry", zap.String("phone", maskPhone(phone)), zap.Error(err))
		return
	}
	s.warnCodeRewrite(existing, record)
	if err := s.table.MarkIssued(record.ID, existing.Code, existing.ClaimedAt); err != nil {
		return
	}
	s.logger.Warn("restored issued state from journal", zap.String("claim_id", existing.ID), zap.String("phone", maskPhone(phone)))
	s.flushEligibilityLocked(ctx, existing.ID)
	if !s.claims.Contains(phone, existing.Code) {
		s.appendClaimLocked(ctx, *existing)
	}
}

// warnCodeRewrite reports a journaled code that replaces a different code in
// the workbook, e.g. after the list was re-seeded for a phone already served.
func (s *AllocationService) warnCodeRewrite(entry *models.ClaimJournal, record models.EligibilityRecord) {
	if RepairCode(strings.TrimSpace(record.Code)) == entry.Code {
		return
	}
	s.logger.Warn("journaled code replaces workbook code",
		zap.String("claim_id", entry.ID),
		zap.String("phone", maskPhone(entry.Phone)),
		zap.String("workbook_code", record.Code),
		zap.String("journal_code", entry.Code),
	)
}

func (s *AllocationService) flushEligibilityLocked(ctx context.Context, ids ...string) bool {
	s.pendingEligibility = append(s.pendingEligibility, ids...)
	if s.table == nil {
		return false
	}

	if err := s.table.Save(ctx); err != nil {
		s.logger.Error("eligibility flush failed", zap.String("path", s.loader.Path()), zap.Int("pending", len(s.pendingEligibility)), zap.Error(err))
		logEvent(ctx, s.logService, nil, LogActionEligibilityFlush, LogOutcomeFail, err.Error())
		return false
	}

	flushed := s.pendingEligibility
	s.pendingEligibility = nil
	if err := s.journal.MarkFlushed(ctx, flushed, TargetEligibility); err != nil {
		s.logger.Warn("mark eligibility flushed failed", zap.Error(err))
	}
	logEvent(ctx, s.logService, nil, LogActionEligibilityFlush, LogOutcomeSuccess, fmt.Sprintf("claims=%d", len(flushed)))
	return true
}

func (s *AllocationService) appendClaimLocked(ctx context.Context, entry models.ClaimJournal) bool {
	s.pendingClaimLog = append(s.pendingClaimLog, entry.ID)
	if err := s.claims.Append(ctx, entry.Record()); err != nil {
		logEvent(ctx, s.logService, &entry.ID, LogActionClaimLogFlush, LogOutcomeFail, err.Error())
		return false
	}
	return s.markClaimLogFlushedLocked(ctx)
}

func (s *AllocationService) flushClaimLogLocked(ctx context.Context, ids ...string) bool {
	s.pendingClaimLog = append(s.pendingClaimLog, ids...)
	if err := s.claims.Flush(ctx); err != nil {
		logEvent(ctx, s.logService, nil, LogActionClaimLogFlush, LogOutcomeFail, err.Error())
		return false
	}
	return s.markClaimLogFlushedLocked(ctx)
}

func (s *AllocationService) markClaimLogFlushedLocked(ctx context.Context) bool {
	flushed := s.pendingClaimLog
	s.pendingClaimLog = nil
	if err := s.journal.MarkFlushed(ctx, flushed, TargetClaimLog); err != nil {
		s.logger.Warn("mark claim log flushed failed", zap.Error(err))
	}
	logEvent(ctx, s.logService, nil, LogActionClaimLogFlush, LogOutcomeSuccess, fmt.Sprintf("claims=%d", len(flushed)))
	return true
}

// FlushPending rewrites whichever workbook still lacks journaled claims,
// then replays journal entries it did not know about.
func (s *AllocationService) FlushPending(ctx context.Context) (FlushReport, error) {
	if s == nil {
		return FlushReport{}, errors.New("allocation service is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var report FlushReport
	var errs []error
	if n := len(s.pendingEligibility); n > 0 {
		if s.flushEligibilityLocked(ctx) {
			report.Eligibility = n
		} else {
			errs = append(errs, &PersistenceError{Target: TargetEligibility, Err: errors.New("flush still failing")})
		}
	}
	if n := len(s.pendingClaimLog); n > 0 {
		if s.flushClaimLogLocked(ctx) {
			report.ClaimLog = n
		} else {
			errs = append(errs, &PersistenceError{Target: TargetClaimLog, Err: errors.New("flush still failing")})
		}
	}

	if s.table != nil && s.claims.Loaded() {
		entries, err := s.journal.Pending(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("read pending journal: %w", err))
		} else if untracked := s.untrackedLocked(entries); untracked > 0 {
			if _, err := s.replayLocked(ctx); err != nil {
				errs = append(errs, err)
			} else {
				report.Recovered = untracked
			}
		}
	}

	return report, errors.Join(errs...)
}

// untrackedLocked counts pending journal entries this process does not
// already hold in its own pending lists. Entries whose phone is not on the
// list only count while the claim log still lacks them.
func (s *AllocationService) untrackedLocked(entries []models.ClaimJournal) int {
	tracked := make(map[string]bool, len(s.pendingEligibility)+len(s.pendingClaimLog))
	for _, id := range s.pendingEligibility {
		tracked[id] = true
	}
	for _, id := range s.pendingClaimLog {
		tracked[id] = true
	}

	n := 0
	for _, entry := range entries {
		if tracked[entry.ID] {
			continue
		}
		_, listed := s.table.Lookup(entry.Phone)
		if (!entry.EligibilityFlushed && listed) || !entry.ClaimLogFlushed {
			n++
		}
	}
	return n
}

// Replay applies every journaled claim to the loaded tables: records the
// workbook still shows as unissued are marked issued, and claims missing
// from the claim log are appended. Both workbooks are then flushed if
// anything changed or was pending.
func (s *AllocationService) Replay(ctx context.Context) (ReplayReport, error) {
	if s == nil {
		return ReplayReport{}, errors.New("allocation service is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replayLocked(ctx)
}

func (s *AllocationService) replayLocked(ctx context.Context) (ReplayReport, error) {
	if s.table == nil {
		return ReplayReport{}, ErrNotLoaded
	}
	if !s.claims.Loaded() {
		if _, err := s.loadClaimLogLocked(ctx); err != nil {
			return ReplayReport{}, fmt.Errorf("load claim log: %w", err)
		}
	}

	entries, err := s.journal.All(ctx)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("read journal: %w", err)
	}

	report := ReplayReport{Entries: len(entries)}
	var eligibilityIDs, claimLogIDs []string
	for _, entry := range entries {
		record, ok := s.table.Lookup(entry.Phone)
		switch {
		case !ok:
			s.logger.Warn("journaled phone is not in the eligibility list", zap.String("claim_id", entry.ID), zap.String("phone", maskPhone(entry.Phone)))
		case record.Status == models.StatusUnissued:
			s.warnCodeRewrite(&entry, record)
			if err := s.table.MarkIssued(record.ID, entry.Code, entry.ClaimedAt); err == nil {
				report.Restored++
				eligibilityIDs = append(eligibilityIDs, entry.ID)
			}
		case record.Status == models.StatusInvalid:
			s.logger.Warn("journaled phone has an invalid eligibility status", zap.String("claim_id", entry.ID), zap.String("status", record.RawStatus))
		}
		if !entry.EligibilityFlushed && ok {
			eligibilityIDs = appendUnique(eligibilityIDs, entry.ID)
		}

		if !s.claims.Contains(entry.Phone, entry.Code) {
			s.claims.add(entry.Record())
			report.Appended++
			claimLogIDs = append(claimLogIDs, entry.ID)
		} else if !entry.ClaimLogFlushed {
			claimLogIDs = append(claimLogIDs, entry.ID)
		}
	}

	var errs []error
	if len(eligibilityIDs) > 0 && !s.flushEligibilityLocked(ctx, eligibilityIDs...) {
		errs = append(errs, &PersistenceError{Target: TargetEligibility, Err: errors.New("replay flush failed")})
	}
	if len(claimLogIDs) > 0 && !s.flushClaimLogLocked(ctx, claimLogIDs...) {
		errs = append(errs, &PersistenceError{Target: TargetClaimLog, Err: errors.New("replay flush failed")})
	}

	outcome := LogOutcomeSuccess
	if len(errs) > 0 {
		outcome = LogOutcomeFail
	}
	logEvent(ctx, s.logService, nil, LogActionJournalReplay, outcome,
		fmt.Sprintf("entries=%d restored=%d appended=%d", report.Entries, report.Restored, report.Appended))
	if report.Restored > 0 || report.Appended > 0 {
		s.logger.Info("journal replayed", zap.Int("entries", report.Entries), zap.Int("restored", report.Restored), zap.Int("appended", report.Appended))
	}

	return report, errors.Join(errs...)
}

func (s *AllocationService) Stats() Stats {
	if s == nil {
		return Stats{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total, unissued, issued := s.table.Counts()
	pending := make(map[string]struct{}, len(s.pendingEligibility)+len(s.pendingClaimLog))
	for _, id := range s.pendingEligibility {
		pending[id] = struct{}{}
	}
	for _, id := range s.pendingClaimLog {
		pending[id] = struct{}{}
	}

	return Stats{
		Loaded:   s.table != nil,
		Total:    total,
		Unissued: unissued,
		Issued:   issued,
		ClaimLog: s.claims.Count(),
		Pending:  len(pending),
	}
}

// ExportClaimLog returns the claim log as xlsx bytes, or nil when empty.
func (s *AllocationService) ExportClaimLog(ctx context.Context) ([]byte, error) {
	if s == nil {
		return nil, errors.New("allocation service is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims.Export(ctx)
}

func (s *AllocationService) ExportEligibility(ctx context.Context) ([]byte, error) {
	if s == nil {
		return nil, errors.New("allocation service is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return nil, ErrNotLoaded
	}
	return s.table.Encode(ctx)
}

func (s *AllocationService) RecentClaims(n int) []models.ClaimRecord {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims.Recent(n)
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
