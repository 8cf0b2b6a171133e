package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        full_name TEXT NOT NULL DEFAULT '',
        age INTEGER,
        gender TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS bots (
        user_id TEXT PRIMARY KEY,
        bot_name TEXT NOT NULL DEFAULT '',
        personality TEXT NOT NULL DEFAULT '',
        role TEXT NOT NULL DEFAULT '',
        tone TEXT NOT NULL DEFAULT '',
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS chat_memory (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'model')),
        content TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE INDEX IF NOT EXISTS idx_chat_memory_user ON chat_memory (user_id, id);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

// SaveUser inserts or updates the user. An empty ID gets a fresh UUID. It
// reports whether a new row was created.
func (s *SQLiteStore) SaveUser(ctx context.Context, user *User) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin user save: %w", err)
	}
	defer tx.Rollback()

	created := user.ID == ""
	if created {
		user.ID = uuid.NewString()
	} else {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id = ?", user.ID).Scan(&one)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			created = true
		case err != nil:
			return false, fmt.Errorf("failed to query user: %w", err)
		}
	}

	now := time.Now().UTC()
	if created {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
        INSERT INTO users (id, full_name, age, gender, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            full_name = excluded.full_name,
            age = excluded.age,
            gender = excluded.gender,
            updated_at = excluded.updated_at`,
		user.ID, user.FullName, user.Age, user.Gender, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to upsert user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit user save: %w", err)
	}
	return created, nil
}

// GetUser returns nil, nil when the user does not exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	var (
		user User
		age  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, full_name, age, gender, created_at, updated_at FROM users WHERE id = ?", id,
	).Scan(&user.ID, &user.FullName, &age, &user.Gender, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if age.Valid {
		v := int(age.Int64)
		user.Age = &v
	}
	return &user, nil
}

// Bot methods

func (s *SQLiteStore) SaveBot(ctx context.Context, bot *Bot) error {
	bot.UpdatedAt = time.Now().UTC()

	stmt, err := s.db.PrepareContext(ctx, `
        INSERT INTO bots (user_id, bot_name, personality, role, tone, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (user_id) DO UPDATE SET
            bot_name = excluded.bot_name,
            personality = excluded.personality,
            role = excluded.role,
            tone = excluded.tone,
            updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare bot upsert: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, bot.UserID, bot.BotName, bot.Personality, bot.Role, bot.Tone, bot.UpdatedAt); err != nil {
		return fmt.Errorf("failed to execute bot upsert: %w", err)
	}
	return nil
}

// GetBot returns nil, nil when the user has not configured a companion.
func (s *SQLiteStore) GetBot(ctx context.Context, userID string) (*Bot, error) {
	var bot Bot
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, bot_name, personality, role, tone, updated_at FROM bots WHERE user_id = ?", userID,
	).Scan(&bot.UserID, &bot.BotName, &bot.Personality, &bot.Role, &bot.Tone, &bot.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query bot: %w", err)
	}
	return &bot, nil
}

// Memory methods

// AppendMemory stores the turns in order. When window is positive only the
// newest window turns of the user are kept afterwards.
func (s *SQLiteStore) AppendMemory(ctx context.Context, userID string, window int, turns ...MemoryMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin memory append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO chat_memory (user_id, role, content, created_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare memory insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, turn := range turns {
		if _, err := stmt.ExecContext(ctx, userID, turn.Role, turn.Content, now); err != nil {
			return fmt.Errorf("failed to execute memory insert: %w", err)
		}
	}

	if window > 0 {
		_, err = tx.ExecContext(ctx, `
            DELETE FROM chat_memory
            WHERE user_id = ? AND id NOT IN (
                SELECT id FROM chat_memory WHERE user_id = ? ORDER BY id DESC LIMIT ?
            )`, userID, userID, window)
		if err != nil {
			return fmt.Errorf("failed to trim memory: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit memory append: %w", err)
	}
	return nil
}

// RecentMemory returns the newest n turns of the user, oldest first.
func (s *SQLiteStore) RecentMemory(ctx context.Context, userID string, n int) ([]MemoryMessage, error) {
	query := `
        SELECT id, user_id, role, content, created_at
        FROM chat_memory
        WHERE user_id = ?
        ORDER BY id DESC
        LIMIT ?
    `

	rows, err := s.db.QueryContext(ctx, query, userID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory: %w", err)
	}
	defer rows.Close()

	messages := []MemoryMessage{}
	for rows.Next() {
		var msg MemoryMessage
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read memory rows: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

// ClearMemory deletes the user's conversation memory and returns the number of
// removed turns.
func (s *SQLiteStore) ClearMemory(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chat_memory WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete memory: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
