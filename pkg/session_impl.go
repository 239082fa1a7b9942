//go:build !test
// +build !test

package pkg

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SaveSession saves a session to the database
func (dm *databaseManager) SaveSession(session *Session) error {
	dataJSON, err := json.Marshal(session.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	query, err := dm.sqlLoader.GetQuery("save_session")
	if err != nil {
		return fmt.Errorf("failed to load save_session query: %w", err)
	}

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	session.UpdatedAt = time.Now()

	_, err = dm.Exec(query,
		session.ID, session.UserID, session.TenantID, string(dataJSON),
		session.ExpiresAt, session.CreatedAt, session.UpdatedAt,
		session.IPAddress, session.UserAgent)

	return err
}

// LoadSession loads a session from the database
func (dm *databaseManager) LoadSession(sessionID string) (*Session, error) {
	query, err := dm.sqlLoader.GetQuery("load_session")
	if err != nil {
		return nil, fmt.Errorf("failed to load load_session query: %w", err)
	}

	row := dm.QueryRow(query, sessionID)

	session := &Session{}
	var dataJSON string

	err = row.Scan(&session.ID, &session.UserID, &session.TenantID, &dataJSON,
		&session.ExpiresAt, &session.CreatedAt, &session.UpdatedAt,
		&session.IPAddress, &session.UserAgent)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session not found")
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if err := json.Unmarshal([]byte(dataJSON), &session.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}

	return session, nil
}

// DeleteSession deletes a session from the database
func (dm *databaseManager) DeleteSession(sessionID string) error {
	query, err := dm.sqlLoader.GetQuery("delete_session")
	if err != nil {
		return fmt.Errorf("failed to load delete_session query: %w", err)
	}
	_, err = dm.Exec(query, sessionID)
	return err
}

// CleanupExpiredSessions removes expired sessions from the database
func (dm *databaseManager) CleanupExpiredSessions() error {
	query, err := dm.sqlLoader.GetQuery("cleanup_expired_sessions")
	if err != nil {
		return fmt.Errorf("failed to load cleanup_expired_sessions query: %w", err)
	}
	_, err = dm.Exec(query, time.Now())
	return err
}
