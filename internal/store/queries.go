package store

import (
	"encoding/json"
	"fmt"
)

// RecentFailingCandidates returns up to limit candidates for runID that have
// at least one failing evaluation, most recent failure first. Used by the
// prompt assembler to draw failure summaries.
func (s *Store) RecentFailingCandidates(runID string, limit int) ([]Candidate, error) {
	s.mu.Lock()
	rows, err := s.db.Query(`
		SELECT c.candidate_id, c.run_id, c.parent_ids, c.meta_prompt_id, c.target_file,
			c.patch_text, c.code_snapshot, c.generation, c.novelty, c.age, c.error, c.created_at,
			MAX(e.created_at) AS last_failure
		FROM candidates c
		JOIN evaluations e ON e.candidate_id = c.candidate_id
		WHERE c.run_id = ? AND e.passed = 0
		GROUP BY c.candidate_id
		ORDER BY last_failure DESC
		LIMIT ?
	`, runID, limit)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("recent_failing_candidates failed: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var parentsJSON string
		var lastFailure interface{}
		if err := rows.Scan(&c.ID, &c.RunID, &parentsJSON, &c.MetaPromptID, &c.TargetFile,
			&c.PatchText, &c.CodeSnapshot, &c.Generation, &c.Novelty, &c.Age, &c.Error, &c.CreatedAt, &lastFailure); err != nil {
			return nil, fmt.Errorf("recent_failing_candidates scan: %w", err)
		}
		_ = json.Unmarshal([]byte(parentsJSON), &c.ParentIDs)
		out = append(out, c)
	}
	return out, rows.Err()
}

// FailureReason returns the most recent failing evaluation's error message
// for candidateID, or an empty string if no stage recorded one (the caller
// then uses the candidate-level Error field).
func (s *Store) FailureReason(candidateID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reason string
	row := s.db.QueryRow(`
		SELECT error FROM evaluations
		WHERE candidate_id = ? AND passed = 0 AND error != ''
		ORDER BY created_at DESC LIMIT 1
	`, candidateID)
	if err := row.Scan(&reason); err != nil {
		return "", nil // no recorded stage error; caller falls back to candidate.Error
	}
	return reason, nil
}
