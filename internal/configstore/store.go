package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"reportd/internal/config"
	"reportd/internal/schedule"
	"reportd/internal/storage"
	logx "reportd/pkg/logx"
)

// Status describes what happened to one entry of a file add/remove request.
type Status string

const (
	StatusAdded          Status = "Added"
	StatusAlreadyPresent Status = "Already in monitored list"
	StatusRemoved        Status = "Removed"
	StatusNotPresent     Status = "Not in monitored list"
)

type FileChange struct {
	Path   string
	Status Status
}

// Snapshot is a read-only copy of the document.
type Snapshot struct {
	Files     []string
	Schedules []schedule.Schedule
}

// Store owns the report config document. All mutations rewrite the whole
// document through the underlying storage.Store.
type Store struct {
	st  storage.Store
	log logx.Logger
	loc *time.Location

	mu        sync.Mutex
	files     []string
	schedules []schedule.Schedule
	lastHash  uint64

	onChange func(Snapshot)
}

// New wraps st. Once datetimes are interpreted in loc (nil = time.Local).
func New(st storage.Store, loc *time.Location, log logx.Logger) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{st: st, loc: loc, log: log}
}

// OnChange registers fn to be called after the document is reloaded
// because of an external edit. Only one callback is kept.
func (s *Store) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Load reads the persisted document. A corrupt document is replaced by an
// empty one in memory (and logged); the next save heals the file.
func (s *Store) Load(ctx context.Context) error {
	doc, _, err := s.st.Load(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrCorrupt) {
			return err
		}
		s.log.Warn("config document unreadable; starting empty", logx.String("path", s.st.Path()), logx.Err(err))
		doc = storage.Document{}
	}
	s.mu.Lock()
	s.setLocked(doc)
	s.mu.Unlock()
	return nil
}

func (s *Store) setLocked(doc storage.Document) {
	s.files = normalizeFiles(doc.MonitoredFiles)
	s.schedules = schedule.Normalize(schedule.ParseAll(doc.Schedules, s.loc))
	s.lastHash = hashState(s.files, s.schedules)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Files:     append([]string(nil), s.files...),
		Schedules: append([]schedule.Schedule(nil), s.schedules...),
	}
}

// Location is the zone Once datetimes are interpreted in.
func (s *Store) Location() *time.Location { return s.loc }

// commitLocked persists the candidate state and only then makes it current.
func (s *Store) commitLocked(ctx context.Context, files []string, schedules []schedule.Schedule) error {
	doc := storage.Document{
		MonitoredFiles: append([]string(nil), files...),
		Schedules:      schedule.Records(schedules),
	}
	if err := s.st.Save(ctx, doc); err != nil {
		return err
	}
	s.files = files
	s.schedules = schedules
	s.lastHash = hashState(files, schedules)
	return nil
}

func (s *Store) AddFiles(ctx context.Context, paths ...string) ([]FileChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[string]struct{}, len(s.files))
	for _, f := range s.files {
		set[f] = struct{}{}
	}
	out := make([]FileChange, 0, len(paths))
	next := append([]string(nil), s.files...)
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := set[p]; ok {
			out = append(out, FileChange{Path: p, Status: StatusAlreadyPresent})
			continue
		}
		set[p] = struct{}{}
		next = append(next, p)
		out = append(out, FileChange{Path: p, Status: StatusAdded})
	}
	if len(next) == len(s.files) {
		return out, nil
	}
	sort.Strings(next)
	if err := s.commitLocked(ctx, next, s.schedules); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) RemoveFiles(ctx context.Context, paths ...string) ([]FileChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]struct{}, len(paths))
	out := make([]FileChange, 0, len(paths))
	present := make(map[string]struct{}, len(s.files))
	for _, f := range s.files {
		present[f] = struct{}{}
	}
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := present[p]; !ok {
			out = append(out, FileChange{Path: p, Status: StatusNotPresent})
			continue
		}
		if _, ok := drop[p]; ok {
			continue
		}
		drop[p] = struct{}{}
		out = append(out, FileChange{Path: p, Status: StatusRemoved})
	}
	if len(drop) == 0 {
		return out, nil
	}
	next := make([]string, 0, len(s.files))
	for _, f := range s.files {
		if _, ok := drop[f]; !ok {
			next = append(next, f)
		}
	}
	if err := s.commitLocked(ctx, next, s.schedules); err != nil {
		return nil, err
	}
	return out, nil
}

// AddSchedules appends schedules, skipping duplicates of existing entries.
// It returns the schedules actually added.
func (s *Store) AddSchedules(ctx context.Context, in ...schedule.Schedule) ([]schedule.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make([]schedule.Schedule, 0, len(in))
	next := append([]schedule.Schedule(nil), s.schedules...)
	for _, sc := range in {
		if sc == nil || schedule.Contains(next, sc) {
			continue
		}
		next = append(next, sc)
		added = append(added, sc)
	}
	if len(added) == 0 {
		return nil, nil
	}
	if err := s.commitLocked(ctx, s.files, schedule.Normalize(next)); err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveSchedules deletes schedules by key and returns how many were removed.
// The persisted document is re-read first so an external edit that has not
// been reloaded yet survives the rewrite.
func (s *Store) RemoveSchedules(ctx context.Context, keys ...string) (int, error) {
	s.mu.Lock()
	changed, err := s.refreshLocked(ctx)
	if err != nil && !errors.Is(err, storage.ErrCorrupt) {
		s.mu.Unlock()
		return 0, err
	}

	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	next := make([]schedule.Schedule, 0, len(s.schedules))
	for _, sc := range s.schedules {
		if _, ok := drop[sc.Key()]; ok {
			continue
		}
		next = append(next, sc)
	}
	removed := len(s.schedules) - len(next)
	if removed > 0 {
		if err := s.commitLocked(ctx, s.files, next); err != nil {
			s.mu.Unlock()
			return 0, err
		}
	}
	snap := s.snapshotLocked()
	fn := s.onChange
	s.mu.Unlock()

	// callers may hold their own locks; notify off this goroutine
	if changed && fn != nil {
		go fn(snap)
	}
	return removed, nil
}

// refreshLocked replaces the in-memory state with the persisted document
// when they differ. A missing document keeps memory as is.
func (s *Store) refreshLocked(ctx context.Context) (bool, error) {
	doc, ok, err := s.st.Load(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	files := normalizeFiles(doc.MonitoredFiles)
	schedules := schedule.Normalize(schedule.ParseAll(doc.Schedules, s.loc))
	h := hashState(files, schedules)
	if h == s.lastHash {
		return false, nil
	}
	s.files = files
	s.schedules = schedules
	s.lastHash = h
	return true, nil
}

// Reload re-reads the persisted document and reports whether it differed
// from the in-memory state. Registered OnChange callbacks run on change.
func (s *Store) Reload(ctx context.Context) (bool, error) {
	s.mu.Lock()
	changed, err := s.refreshLocked(ctx)
	if err != nil || !changed {
		s.mu.Unlock()
		return false, err
	}
	snap := s.snapshotLocked()
	fn := s.onChange
	s.mu.Unlock()

	s.log.Info("config document reloaded",
		logx.Int("files", len(snap.Files)),
		logx.Int("schedules", len(snap.Schedules)),
	)
	if fn != nil {
		fn(snap)
	}
	return true, nil
}

// Watch follows external edits of the persisted document (e.g. the CLI
// running in another process) until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	log := s.log.With(logx.String("comp", "configstore"))
	return config.WatchFile(ctx, s.st.Path(), log, func() {
		if _, err := s.Reload(ctx); err != nil {
			log.Warn("config document reload failed", logx.Err(err))
		}
	})
}

func normalizeFiles(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, f := range in {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func hashState(files []string, schedules []schedule.Schedule) uint64 {
	if files == nil {
		files = []string{}
	}
	b, err := json.Marshal(storage.Document{MonitoredFiles: files, Schedules: schedule.Records(schedules)})
	if err != nil {
		return 0
	}
	return config.HashBytes(b)
}
