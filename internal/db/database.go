package db

import (
	"database/sql"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no code block has the requested id.
var ErrNotFound = errors.New("code block not found")

type Database struct {
	db *sql.DB
}

// CodeBlock is one exercise: the starter template every room resets to and
// the solution text the editor compares against.
type CodeBlock struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Template  string    `json:"template"`
	Solution  string    `json:"solution"`
	CreatedAt time.Time `json:"created_at"`
}

func New(dbPath string) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}
	if err := seedDefaults(db); err != nil {
		return nil, err
	}

	log.Printf("Database initialized at %s", dbPath)
	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS code_blocks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		template TEXT NOT NULL,
		solution TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := db.Exec(schema)
	return err
}

// seedDefaults inserts the starter catalog the first time the database is
// created. An already-populated database is left alone.
func seedDefaults(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM code_blocks").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, b := range defaultBlocks {
		_, err := db.Exec(
			"INSERT INTO code_blocks (id, title, template, solution) VALUES (?, ?, ?, ?)",
			b.ID, b.Title, b.Template, b.Solution,
		)
		if err != nil {
			return err
		}
	}
	log.Printf("Seeded %d code blocks", len(defaultBlocks))
	return nil
}

var defaultBlocks = []CodeBlock{
	{
		ID:       "async-case",
		Title:    "Async case",
		Template: "async function fetchUser() {\n  // fetch /api/user and return the parsed body\n}\n",
		Solution: "async function fetchUser() {\n  const res = await fetch('/api/user');\n  return res.json();\n}\n",
	},
	{
		ID:       "array-methods",
		Title:    "Array methods",
		Template: "function evens(nums) {\n  // return only the even numbers\n}\n",
		Solution: "function evens(nums) {\n  return nums.filter((n) => n % 2 === 0);\n}\n",
	},
	{
		ID:       "promise-chain",
		Title:    "Promise chain",
		Template: "function delay(ms) {\n  // return a promise that resolves with ms after ms milliseconds\n}\n",
		Solution: "function delay(ms) {\n  return new Promise((resolve) => setTimeout(() => resolve(ms), ms));\n}\n",
	},
	{
		ID:       "closures",
		Title:    "Closures",
		Template: "function counter() {\n  // return a function that counts up from 1\n}\n",
		Solution: "function counter() {\n  let n = 0;\n  return () => ++n;\n}\n",
	},
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Code block operations

// CreateCodeBlock inserts a block. An existing id is left untouched.
func (d *Database) CreateCodeBlock(id, title, template, solution string) error {
	_, err := d.db.Exec(
		"INSERT OR IGNORE INTO code_blocks (id, title, template, solution) VALUES (?, ?, ?, ?)",
		id, title, template, solution,
	)
	return err
}

func (d *Database) GetCodeBlock(id string) (CodeBlock, error) {
	row := d.db.QueryRow(
		"SELECT id, title, template, solution, created_at FROM code_blocks WHERE id = ?",
		id,
	)

	var b CodeBlock
	err := row.Scan(&b.ID, &b.Title, &b.Template, &b.Solution, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return CodeBlock{}, ErrNotFound
	}
	if err != nil {
		return CodeBlock{}, err
	}
	return b, nil
}

// ListCodeBlocks returns the whole catalog, ordered by title.
func (d *Database) ListCodeBlocks() ([]CodeBlock, error) {
	rows, err := d.db.Query(
		"SELECT id, title, template, solution, created_at FROM code_blocks ORDER BY title ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []CodeBlock
	for rows.Next() {
		var b CodeBlock
		if err := rows.Scan(&b.ID, &b.Title, &b.Template, &b.Solution, &b.CreatedAt); err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (d *Database) DeleteCodeBlock(id string) error {
	_, err := d.db.Exec("DELETE FROM code_blocks WHERE id = ?", id)
	return err
}

// Stats

func (d *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var blockCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM code_blocks").Scan(&blockCount); err != nil {
		return nil, err
	}
	stats["block_count"] = blockCount

	return stats, nil
}
