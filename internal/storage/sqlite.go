package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type Interview struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	TechStack []string  `json:"techstack"`
	Questions []string  `json:"questions"`
	Finalized bool      `json:"finalized"`
	CreatedAt time.Time `json:"createdAt"`
}

type CategoryScore struct {
	Name    string `json:"name"`
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

type Feedback struct {
	ID                  string          `json:"id"`
	InterviewID         string          `json:"interviewId"`
	UserID              string          `json:"userId"`
	TotalScore          int             `json:"totalScore"`
	CategoryScores      []CategoryScore `json:"categoryScores"`
	Strengths           []string        `json:"strengths"`
	AreasForImprovement []string        `json:"areasForImprovement"`
	FinalAssessment     string          `json:"finalAssessment"`
	CreatedAt           time.Time       `json:"createdAt"`
}

type TranscriptLine struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "ghost-interviewer.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	tables := []struct {
		name string
		ddl  string
	}{
		{"interviews", `
			CREATE TABLE IF NOT EXISTS interviews (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				role TEXT NOT NULL,
				type TEXT NOT NULL,
				level TEXT NOT NULL DEFAULT '',
				techstack TEXT NOT NULL DEFAULT '[]',
				questions TEXT NOT NULL DEFAULT '[]',
				finalized INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL
			);`},
		{"feedback", `
			CREATE TABLE IF NOT EXISTS feedback (
				id TEXT PRIMARY KEY,
				interview_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				total_score INTEGER NOT NULL,
				category_scores TEXT NOT NULL DEFAULT '[]',
				strengths TEXT NOT NULL DEFAULT '[]',
				areas_for_improvement TEXT NOT NULL DEFAULT '[]',
				final_assessment TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				FOREIGN KEY(interview_id) REFERENCES interviews(id) ON DELETE CASCADE
			);`},
		{"transcript_messages", `
			CREATE TABLE IF NOT EXISTS transcript_messages (
				feedback_id TEXT NOT NULL,
				seq INTEGER NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				PRIMARY KEY(feedback_id, seq),
				FOREIGN KEY(feedback_id) REFERENCES feedback(id) ON DELETE CASCADE
			);`},
	}
	for _, table := range tables {
		if _, err := s.db.Exec(table.ddl); err != nil {
			return fmt.Errorf("create %s table: %w", table.name, err)
		}
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_interviews_user ON interviews(user_id, created_at)"); err != nil {
		return fmt.Errorf("create interviews index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_feedback_interview ON feedback(interview_id, user_id)"); err != nil {
		return fmt.Errorf("create feedback index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Snapshot writes a consistent copy of the database to path, replacing any
// existing file.
func (s *SQLiteStore) Snapshot(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove old snapshot: %w", err)
	}
	if _, err := s.db.Exec(`VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return nil
}

func (s *SQLiteStore) CreateInterview(iv Interview) error {
	if strings.TrimSpace(iv.ID) == "" {
		return errors.New("interview id is required")
	}
	techstack, err := encodeList(iv.TechStack)
	if err != nil {
		return err
	}
	questions, err := encodeList(iv.Questions)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO interviews(id, user_id, role, type, level, techstack, questions, finalized, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		iv.ID,
		iv.UserID,
		iv.Role,
		iv.Type,
		iv.Level,
		techstack,
		questions,
		iv.Finalized,
		iv.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create interview %s: %w", iv.ID, err)
	}
	return nil
}

const interviewColumns = `id, user_id, role, type, level, techstack, questions, finalized, created_at`

func (s *SQLiteStore) GetInterview(id string) (Interview, error) {
	row := s.db.QueryRow(`SELECT `+interviewColumns+` FROM interviews WHERE id = ?`, id)
	iv, err := scanInterview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Interview{}, fmt.Errorf("interview %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Interview{}, fmt.Errorf("query interview %s: %w", id, err)
	}
	return iv, nil
}

func (s *SQLiteStore) ListInterviewsByUser(userID string) ([]Interview, error) {
	rows, err := s.db.Query(
		`SELECT `+interviewColumns+` FROM interviews WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query interviews for user %s: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	interviews := make([]Interview, 0, 8)
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interview: %w", err)
		}
		interviews = append(interviews, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interview rows: %w", err)
	}
	return interviews, nil
}

// SaveFeedback inserts or replaces a feedback record together with the
// transcript it was generated from.
func (s *SQLiteStore) SaveFeedback(fb Feedback, transcript []TranscriptLine) error {
	if strings.TrimSpace(fb.ID) == "" {
		return errors.New("feedback id is required")
	}
	categories, err := json.Marshal(fb.CategoryScores)
	if err != nil {
		return fmt.Errorf("encode category scores: %w", err)
	}
	strengths, err := encodeList(fb.Strengths)
	if err != nil {
		return err
	}
	areas, err := encodeList(fb.AreasForImprovement)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin feedback tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		`INSERT INTO feedback(id, interview_id, user_id, total_score, category_scores, strengths, areas_for_improvement, final_assessment, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			interview_id = excluded.interview_id,
			user_id = excluded.user_id,
			total_score = excluded.total_score,
			category_scores = excluded.category_scores,
			strengths = excluded.strengths,
			areas_for_improvement = excluded.areas_for_improvement,
			final_assessment = excluded.final_assessment,
			created_at = excluded.created_at`,
		fb.ID,
		fb.InterviewID,
		fb.UserID,
		fb.TotalScore,
		string(categories),
		strengths,
		areas,
		fb.FinalAssessment,
		fb.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save feedback %s: %w", fb.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM transcript_messages WHERE feedback_id = ?`, fb.ID); err != nil {
		return fmt.Errorf("clear transcript for feedback %s: %w", fb.ID, err)
	}
	for i, line := range transcript {
		if _, err := tx.Exec(
			`INSERT INTO transcript_messages(feedback_id, seq, role, content) VALUES(?, ?, ?, ?)`,
			fb.ID, i, line.Role, line.Content,
		); err != nil {
			return fmt.Errorf("append transcript line %d for feedback %s: %w", i, fb.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit feedback %s: %w", fb.ID, err)
	}
	return nil
}

const feedbackColumns = `id, interview_id, user_id, total_score, category_scores, strengths, areas_for_improvement, final_assessment, created_at`

func (s *SQLiteStore) GetFeedback(id string) (Feedback, error) {
	row := s.db.QueryRow(`SELECT `+feedbackColumns+` FROM feedback WHERE id = ?`, id)
	fb, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Feedback{}, fmt.Errorf("feedback %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Feedback{}, fmt.Errorf("query feedback %s: %w", id, err)
	}
	return fb, nil
}

// GetFeedbackByInterview returns the most recent feedback for an interview.
// An empty userID matches any user.
func (s *SQLiteStore) GetFeedbackByInterview(interviewID, userID string) (Feedback, error) {
	row := s.db.QueryRow(
		`SELECT `+feedbackColumns+` FROM feedback
		 WHERE interview_id = ? AND (? = '' OR user_id = ?)
		 ORDER BY created_at DESC LIMIT 1`,
		interviewID, userID, userID,
	)
	fb, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Feedback{}, fmt.Errorf("feedback for interview %s: %w", interviewID, ErrNotFound)
	}
	if err != nil {
		return Feedback{}, fmt.Errorf("query feedback for interview %s: %w", interviewID, err)
	}
	return fb, nil
}

func (s *SQLiteStore) GetTranscript(feedbackID string) ([]TranscriptLine, error) {
	rows, err := s.db.Query(
		`SELECT role, content FROM transcript_messages WHERE feedback_id = ? ORDER BY seq ASC`,
		feedbackID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript for feedback %s: %w", feedbackID, err)
	}
	defer func() { _ = rows.Close() }()

	lines := make([]TranscriptLine, 0, 32)
	for rows.Next() {
		var line TranscriptLine
		if err := rows.Scan(&line.Role, &line.Content); err != nil {
			return nil, fmt.Errorf("scan transcript line for feedback %s: %w", feedbackID, err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows for feedback %s: %w", feedbackID, err)
	}
	return lines, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInterview(row rowScanner) (Interview, error) {
	var iv Interview
	var techstack, questions, createdAt string
	if err := row.Scan(&iv.ID, &iv.UserID, &iv.Role, &iv.Type, &iv.Level, &techstack, &questions, &iv.Finalized, &createdAt); err != nil {
		return Interview{}, err
	}
	if err := json.Unmarshal([]byte(techstack), &iv.TechStack); err != nil {
		return Interview{}, fmt.Errorf("decode techstack: %w", err)
	}
	if err := json.Unmarshal([]byte(questions), &iv.Questions); err != nil {
		return Interview{}, fmt.Errorf("decode questions: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Interview{}, fmt.Errorf("parse created_at: %w", err)
	}
	iv.CreatedAt = parsed
	return iv, nil
}

func scanFeedback(row rowScanner) (Feedback, error) {
	var fb Feedback
	var categories, strengths, areas, createdAt string
	if err := row.Scan(&fb.ID, &fb.InterviewID, &fb.UserID, &fb.TotalScore, &categories, &strengths, &areas, &fb.FinalAssessment, &createdAt); err != nil {
		return Feedback{}, err
	}
	if err := json.Unmarshal([]byte(categories), &fb.CategoryScores); err != nil {
		return Feedback{}, fmt.Errorf("decode category scores: %w", err)
	}
	if err := json.Unmarshal([]byte(strengths), &fb.Strengths); err != nil {
		return Feedback{}, fmt.Errorf("decode strengths: %w", err)
	}
	if err := json.Unmarshal([]byte(areas), &fb.AreasForImprovement); err != nil {
		return Feedback{}, fmt.Errorf("decode areas for improvement: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Feedback{}, fmt.Errorf("parse created_at: %w", err)
	}
	fb.CreatedAt = parsed
	return fb, nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(b), nil
}
