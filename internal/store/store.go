package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mmprotest/openevolve/internal/obslog"
)

// Store is the embedded relational persistence layer. All operations are
// serialized by mu so that concurrent generation-driver workers may submit
// writes safely.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (if needed) and opens the SQLite database at path, ensuring
// the schema exists.
func Open(path string) (*Store, error) {
	timer := obslog.StartTimer(obslog.CategoryStore, "Open")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		obslog.Get(obslog.CategoryStore).Debug("busy_timeout pragma failed: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		obslog.Get(obslog.CategoryStore).Debug("journal_mode pragma failed: %v", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		config TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS candidates (
		candidate_id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		parent_ids TEXT NOT NULL DEFAULT '[]',
		meta_prompt_id TEXT NOT NULL DEFAULT '',
		target_file TEXT NOT NULL DEFAULT '',
		patch_text TEXT NOT NULL DEFAULT '',
		code_snapshot TEXT NOT NULL DEFAULT '',
		generation INTEGER NOT NULL DEFAULT 0,
		novelty REAL NOT NULL DEFAULT 0,
		age INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_candidates_run ON candidates(run_id);
	CREATE INDEX IF NOT EXISTS idx_candidates_run_gen ON candidates(run_id, generation);

	CREATE TABLE IF NOT EXISTS evaluations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		candidate_id TEXT NOT NULL,
		metric TEXT NOT NULL,
		value REAL NOT NULL,
		passed INTEGER NOT NULL,
		cost_ms INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_evaluations_candidate ON evaluations(candidate_id);

	CREATE TABLE IF NOT EXISTS meta_prompts (
		meta_prompt_id TEXT PRIMARY KEY,
		template TEXT NOT NULL,
		parent_ids TEXT NOT NULL DEFAULT '[]',
		fitness REAL NOT NULL DEFAULT 0,
		last_used DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertRun idempotently records a run's serialized configuration, overwriting
// it on repeat.
func (s *Store) UpsertRun(runID, config string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, config) VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET config = excluded.config
	`, runID, config)
	if err != nil {
		return fmt.Errorf("upsert_run failed: %w", err)
	}
	return nil
}

// GetRun returns the stored configuration for runID, or ok=false if absent.
func (s *Store) GetRun(runID string) (config string, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow("SELECT config FROM runs WHERE run_id = ?", runID)
	if err := row.Scan(&config); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return config, true, nil
}

// InsertCandidate upserts a candidate by candidate id.
func (s *Store) InsertCandidate(c Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parents, err := json.Marshal(c.ParentIDs)
	if err != nil {
		return fmt.Errorf("marshal parent ids: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO candidates (candidate_id, run_id, parent_ids, meta_prompt_id, target_file, patch_text, code_snapshot, generation, novelty, age, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(candidate_id) DO UPDATE SET
			parent_ids = excluded.parent_ids,
			meta_prompt_id = excluded.meta_prompt_id,
			target_file = excluded.target_file,
			patch_text = excluded.patch_text,
			code_snapshot = excluded.code_snapshot,
			generation = excluded.generation,
			novelty = excluded.novelty,
			age = excluded.age,
			error = excluded.error
	`, c.ID, c.RunID, string(parents), c.MetaPromptID, c.TargetFile, c.PatchText, c.CodeSnapshot, c.Generation, c.Novelty, c.Age, c.Error)
	if err != nil {
		return fmt.Errorf("insert_candidate failed: %w", err)
	}
	return nil
}

// UpdateCandidateNoveltyAge writes back the archive-recomputed novelty and
// age for an existing candidate, the only fields mutated after creation.
func (s *Store) UpdateCandidateNoveltyAge(candidateID string, novelty float64, age int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE candidates SET novelty = ?, age = ? WHERE candidate_id = ?`, novelty, age, candidateID)
	return err
}

// InsertEvaluations appends evaluation rows for a candidate. Append-only.
func (s *Store) InsertEvaluations(candidateID string, evals []Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("insert_evaluations begin: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO evaluations (candidate_id, metric, value, passed, cost_ms, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert_evaluations prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range evals {
		passed := 0
		if e.Passed {
			passed = 1
		}
		if _, err := stmt.Exec(candidateID, e.Metric, e.Value, passed, e.CostMS, e.Error); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert_evaluations exec: %w", err)
		}
	}

	return tx.Commit()
}

// GetCandidatesByRun returns candidates for runID ordered by creation time.
// If generation >= 0, results are additionally filtered to that generation.
func (s *Store) GetCandidatesByRun(runID string, generation int) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT candidate_id, run_id, parent_ids, meta_prompt_id, target_file, patch_text, code_snapshot, generation, novelty, age, error, created_at
		FROM candidates WHERE run_id = ?`
	args := []interface{}{runID}
	if generation >= 0 {
		query += " AND generation = ?"
		args = append(args, generation)
	}
	query += " ORDER BY created_at ASC, rowid ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get_candidates_by_run failed: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var parentsJSON string
		if err := rows.Scan(&c.ID, &c.RunID, &parentsJSON, &c.MetaPromptID, &c.TargetFile, &c.PatchText, &c.CodeSnapshot, &c.Generation, &c.Novelty, &c.Age, &c.Error, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("get_candidates_by_run scan: %w", err)
		}
		_ = json.Unmarshal([]byte(parentsJSON), &c.ParentIDs)
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCandidateEvals returns a two-level mapping candidate id -> metric -> value.
func (s *Store) GetCandidateEvals(ids []string) (map[string]map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]map[string]float64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args := inClauseQuery(`SELECT candidate_id, metric, value FROM evaluations WHERE candidate_id IN (%s)`, ids)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get_candidate_evals failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var candID, metric string
		var value float64
		if err := rows.Scan(&candID, &metric, &value); err != nil {
			return nil, fmt.Errorf("get_candidate_evals scan: %w", err)
		}
		if out[candID] == nil {
			out[candID] = make(map[string]float64)
		}
		out[candID][metric] = value
	}
	return out, rows.Err()
}

// TopCandidates scores candidates in runID by the signed sum of metrics
// (subtracting metrics marked minimize), returning the top k. Ties break on
// insertion order. Metrics are summed unnormalized; callers pass comparable
// metrics or normalize upstream.
func (s *Store) TopCandidates(runID string, k int, metrics []string, minimize map[string]bool) ([]Candidate, error) {
	candidates, err := s.GetCandidatesByRun(runID, -1)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	evals, err := s.GetCandidateEvals(ids)
	if err != nil {
		return nil, err
	}

	type scored struct {
		cand  Candidate
		score float64
		order int
		has   bool
	}
	scoredList := make([]scored, 0, len(candidates))
	for i, c := range candidates {
		metricVals, ok := evals[c.ID]
		sc := scored{cand: c, order: i, has: ok}
		if ok {
			total := 0.0
			for _, m := range metrics {
				v := metricVals[m]
				if minimize[m] {
					total -= v
				} else {
					total += v
				}
			}
			sc.score = total
		}
		scoredList = append(scoredList, sc)
	}

	sort.SliceStable(scoredList, func(i, j int) bool {
		return scoredList[i].score > scoredList[j].score
	})

	if k > len(scoredList) {
		k = len(scoredList)
	}
	out := make([]Candidate, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, scoredList[i].cand)
	}
	return out, nil
}

// InsertMetaPrompt stores a new meta-prompt template.
func (s *Store) InsertMetaPrompt(mp MetaPrompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parents, err := json.Marshal(mp.ParentIDs)
	if err != nil {
		return fmt.Errorf("marshal parent ids: %w", err)
	}
	if mp.LastUsed.IsZero() {
		mp.LastUsed = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT INTO meta_prompts (meta_prompt_id, template, parent_ids, fitness, last_used)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(meta_prompt_id) DO UPDATE SET
			template = excluded.template,
			parent_ids = excluded.parent_ids,
			fitness = excluded.fitness,
			last_used = excluded.last_used
	`, mp.ID, mp.Template, string(parents), mp.Fitness, mp.LastUsed)
	if err != nil {
		return fmt.Errorf("insert_meta_prompt failed: %w", err)
	}
	return nil
}

// UpdateMetaPromptFitness overwrites a meta-prompt's fitness score.
func (s *Store) UpdateMetaPromptFitness(id string, fitness float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE meta_prompts SET fitness = ? WHERE meta_prompt_id = ?`, fitness, id)
	return err
}

// TouchMetaPromptLastUsed updates the last-used timestamp for a meta-prompt.
func (s *Store) TouchMetaPromptLastUsed(id string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE meta_prompts SET last_used = ? WHERE meta_prompt_id = ?`, when, id)
	return err
}

// ListMetaPrompts returns all meta-prompts ordered by (fitness desc, last_used desc).
func (s *Store) ListMetaPrompts() ([]MetaPrompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT meta_prompt_id, template, parent_ids, fitness, last_used
		FROM meta_prompts ORDER BY fitness DESC, last_used DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list_meta_prompts failed: %w", err)
	}
	defer rows.Close()

	var out []MetaPrompt
	for rows.Next() {
		var mp MetaPrompt
		var parentsJSON string
		if err := rows.Scan(&mp.ID, &mp.Template, &parentsJSON, &mp.Fitness, &mp.LastUsed); err != nil {
			return nil, fmt.Errorf("list_meta_prompts scan: %w", err)
		}
		_ = json.Unmarshal([]byte(parentsJSON), &mp.ParentIDs)
		out = append(out, mp)
	}
	return out, rows.Err()
}

// MaxGeneration returns the highest generation index recorded for runID, or
// -1 if the run has no candidates yet. Used by the driver to determine the
// resumption point.
func (s *Store) MaxGeneration(runID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var max sql.NullInt64
	row := s.db.QueryRow(`SELECT MAX(generation) FROM candidates WHERE run_id = ?`, runID)
	if err := row.Scan(&max); err != nil {
		return -1, err
	}
	if !max.Valid {
		return -1, nil
	}
	return int(max.Int64), nil
}

// inClauseQuery builds a query with a `?` placeholder per id, substituted
// into the given format string's single %s verb.
func inClauseQuery(format string, ids []string) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(format, strings.Join(placeholders, ","))
	return query, args
}
