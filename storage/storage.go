// Storage module - SQLite persistence for conversations and tool traces

package storage

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/veribrand/brandgate/agent"
)

type Storage struct {
	db *sql.DB

	stmtAddMessage  *sql.Stmt
	stmtGetMessages *sql.Stmt
	stmtAddTrace    *sql.Stmt
	stmtGetTraces   *sql.Stmt
}

type Message struct {
	ID         int64     `json:"id"`
	SessionKey string    `json:"session_key"`
	Role       string    `json:"role"` // system, user, assistant, tool
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

type ToolTrace struct {
	ID         int64     `json:"id"`
	SessionKey string    `json:"session_key"`
	Tool       string    `json:"tool"`
	Args       string    `json:"args"` // JSON, binary fields scrubbed upstream
	Result     string    `json:"result"`
	DurationMS int64     `json:"duration_ms"`
	CacheHit   bool      `json:"cache_hit"`
	CreatedAt  time.Time `json:"created_at"`
}

func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("db path required")
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	s := &Storage{db: db}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to set WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous: %w", err)
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.initPreparedStmts(); err != nil {
		log.Printf("[WARN] Failed to prepare statements: %v (continuing without prepared statements)", err)
	}

	log.Printf("[OK] Storage: database %s", dbPath)
	return s, nil
}

func (s *Storage) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_key TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tool_traces (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_key TEXT NOT NULL,
			tool TEXT NOT NULL,
			args TEXT,
			result TEXT,
			duration_ms INTEGER DEFAULT 0,
			cache_hit INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec("CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_key, created_at)")
	if err != nil {
		return err
	}
	_, err = s.db.Exec("CREATE INDEX IF NOT EXISTS idx_traces_session ON tool_traces(session_key, created_at)")
	return err
}

func (s *Storage) initPreparedStmts() error {
	var err error

	if s.stmtAddMessage, err = s.db.Prepare("INSERT INTO messages (session_key, role, content) VALUES (?, ?, ?)"); err != nil {
		return fmt.Errorf("AddMessage: %w", err)
	}
	if s.stmtGetMessages, err = s.db.Prepare("SELECT id, session_key, role, content, created_at FROM messages WHERE session_key = ? ORDER BY id ASC LIMIT ?"); err != nil {
		return fmt.Errorf("GetMessages: %w", err)
	}
	if s.stmtAddTrace, err = s.db.Prepare("INSERT INTO tool_traces (session_key, tool, args, result, duration_ms, cache_hit) VALUES (?, ?, ?, ?, ?, ?)"); err != nil {
		return fmt.Errorf("AddTrace: %w", err)
	}
	if s.stmtGetTraces, err = s.db.Prepare("SELECT id, session_key, tool, args, result, duration_ms, cache_hit, created_at FROM tool_traces WHERE session_key = ? ORDER BY id ASC LIMIT ?"); err != nil {
		return fmt.Errorf("GetTraces: %w", err)
	}
	return nil
}

// SaveMessage appends one conversation message
func (s *Storage) SaveMessage(session, role, content string) error {
	var err error
	if s.stmtAddMessage != nil {
		_, err = s.stmtAddMessage.Exec(session, role, content)
	} else {
		_, err = s.db.Exec("INSERT INTO messages (session_key, role, content) VALUES (?, ?, ?)", session, role, content)
	}
	return err
}

// SaveToolTrace records one tool invocation
func (s *Storage) SaveToolTrace(trace agent.ToolTrace) error {
	cacheHit := 0
	if trace.CacheHit {
		cacheHit = 1
	}
	var err error
	if s.stmtAddTrace != nil {
		_, err = s.stmtAddTrace.Exec(trace.Session, trace.Tool, trace.ArgsJSON, trace.Result, trace.Duration.Milliseconds(), cacheHit)
	} else {
		_, err = s.db.Exec("INSERT INTO tool_traces (session_key, tool, args, result, duration_ms, cache_hit) VALUES (?, ?, ?, ?, ?, ?)",
			trace.Session, trace.Tool, trace.ArgsJSON, trace.Result, trace.Duration.Milliseconds(), cacheHit)
	}
	return err
}

// GetMessages returns a session's conversation in insertion order
func (s *Storage) GetMessages(session string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows *sql.Rows
	var err error
	if s.stmtGetMessages != nil {
		rows, err = s.stmtGetMessages.Query(session, limit)
	} else {
		rows, err = s.db.Query("SELECT id, session_key, role, content, created_at FROM messages WHERE session_key = ? ORDER BY id ASC LIMIT ?", session, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionKey, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetToolTraces returns a session's tool trace in insertion order
func (s *Storage) GetToolTraces(session string, limit int) ([]ToolTrace, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows *sql.Rows
	var err error
	if s.stmtGetTraces != nil {
		rows, err = s.stmtGetTraces.Query(session, limit)
	} else {
		rows, err = s.db.Query("SELECT id, session_key, tool, args, result, duration_ms, cache_hit, created_at FROM tool_traces WHERE session_key = ? ORDER BY id ASC LIMIT ?", session, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var traces []ToolTrace
	for rows.Next() {
		var tr ToolTrace
		var cacheHit int
		if err := rows.Scan(&tr.ID, &tr.SessionKey, &tr.Tool, &tr.Args, &tr.Result, &tr.DurationMS, &cacheHit, &tr.CreatedAt); err != nil {
			return nil, err
		}
		tr.CacheHit = cacheHit != 0
		traces = append(traces, tr)
	}
	return traces, rows.Err()
}

func (s *Storage) Close() error {
	for _, stmt := range []*sql.Stmt{s.stmtAddMessage, s.stmtGetMessages, s.stmtAddTrace, s.stmtGetTraces} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}

// Storage satisfies the agent's persistence hook
var _ agent.Store = (*Storage)(nil)
