package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrVersionConflict is returned when a version-guarded write finds that the
// row's current version no longer matches the version the caller observed.
// The caller must refetch before retrying; the store never merges.
var ErrVersionConflict = errors.New("idea version conflict")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ----- users -----

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, created_at
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, created_at
		FROM users WHERE LOWER(email)=LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// ----- projects -----

func (s *PostgresStore) InsertProject(ctx context.Context, project Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, status, owner_id)
		VALUES ($1, $2, $3, $4, $5)
	`, project.ID, project.Name, project.Description, project.Status, project.OwnerID)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var project Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, status, owner_id, created_at, updated_at
		FROM projects WHERE id=$1
	`, projectID).Scan(&project.ID, &project.Name, &project.Description, &project.Status, &project.OwnerID, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return Project{}, err
	}
	return project, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, status, owner_id, created_at, updated_at
		FROM projects
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.Status, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, projectID, name, description, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name=$2, description=$3, status=$4, updated_at=NOW()
		WHERE id=$1
	`, projectID, name, description, status)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id=$1`, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// ----- ideas -----

const ideaColumns = `id, project_id, title, description, category, status, x, y, version, created_by, created_at, updated_at`

func scanIdea(row interface{ Scan(...any) error }) (Idea, error) {
	var idea Idea
	err := row.Scan(&idea.ID, &idea.ProjectID, &idea.Title, &idea.Description, &idea.Category,
		&idea.Status, &idea.X, &idea.Y, &idea.Version, &idea.CreatedBy, &idea.CreatedAt, &idea.UpdatedAt)
	return idea, err
}

func (s *PostgresStore) InsertIdea(ctx context.Context, idea Idea) (Idea, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO ideas (id, project_id, title, description, category, status, x, y, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+ideaColumns+`
	`, idea.ID, idea.ProjectID, idea.Title, idea.Description, idea.Category, idea.Status, idea.X, idea.Y, idea.CreatedBy)
	inserted, err := scanIdea(row)
	if err != nil {
		return Idea{}, fmt.Errorf("insert idea: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) GetIdea(ctx context.Context, ideaID string) (Idea, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id=$1`, ideaID)
	idea, err := scanIdea(row)
	if err != nil {
		return Idea{}, err
	}
	return idea, nil
}

func (s *PostgresStore) ListIdeas(ctx context.Context, projectID string) ([]Idea, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ideaColumns+` FROM ideas
		WHERE project_id=$1
		ORDER BY created_at ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	defer rows.Close()

	items := make([]Idea, 0)
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("scan idea: %w", err)
		}
		items = append(items, idea)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ideas: %w", err)
	}
	return items, nil
}

// UpdateIdea applies a patch to an idea if and only if the stored version
// still equals observedVersion. On success the database increments version
// and the new authoritative row is returned.
func (s *PostgresStore) UpdateIdea(ctx context.Context, ideaID string, observedVersion int64, patch IdeaPatch) (Idea, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE ideas SET
			title       = COALESCE($3, title),
			description = COALESCE($4, description),
			category    = COALESCE($5, category),
			status      = COALESCE($6, status),
			x           = COALESCE($7, x),
			y           = COALESCE($8, y),
			version     = version + 1,
			updated_at  = NOW()
		WHERE id=$1 AND version=$2
		RETURNING `+ideaColumns+`
	`, ideaID, observedVersion, patch.Title, patch.Description, patch.Category, patch.Status, patch.X, patch.Y)
	idea, err := scanIdea(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Idea{}, s.versionConflictOrMissing(ctx, ideaID)
	}
	if err != nil {
		return Idea{}, fmt.Errorf("update idea: %w", err)
	}
	return idea, nil
}

// DeleteIdea removes an idea, guarded by the same version check as updates.
func (s *PostgresStore) DeleteIdea(ctx context.Context, ideaID string, observedVersion int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM ideas WHERE id=$1 AND version=$2
	`, ideaID, observedVersion)
	if err != nil {
		return fmt.Errorf("delete idea: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete idea rows: %w", err)
	}
	if affected == 0 {
		return s.versionConflictOrMissing(ctx, ideaID)
	}
	return nil
}

// versionConflictOrMissing distinguishes a guarded write that lost the
// version race from one that targeted a row that no longer exists.
func (s *PostgresStore) versionConflictOrMissing(ctx context.Context, ideaID string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM ideas WHERE id=$1)`, ideaID).Scan(&exists); err != nil {
		return fmt.Errorf("check idea exists: %w", err)
	}
	if exists {
		return ErrVersionConflict
	}
	return sql.ErrNoRows
}

func (s *PostgresStore) ProjectIdeaCount(ctx context.Context, projectID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ideas WHERE project_id=$1`, projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count ideas: %w", err)
	}
	return count, nil
}

// ----- attachments -----

func (s *PostgresStore) InsertAttachment(ctx context.Context, attachment Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, idea_id, file_name, content_type, size, object_key, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, attachment.ID, attachment.IdeaID, attachment.FileName, attachment.ContentType, attachment.Size, attachment.ObjectKey, attachment.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, attachmentID string) (Attachment, error) {
	var item Attachment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, idea_id, file_name, content_type, size, object_key, uploaded_by, created_at
		FROM attachments WHERE id=$1
	`, attachmentID).Scan(&item.ID, &item.IdeaID, &item.FileName, &item.ContentType, &item.Size, &item.ObjectKey, &item.UploadedBy, &item.CreatedAt)
	if err != nil {
		return Attachment{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, ideaID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idea_id, file_name, content_type, size, object_key, uploaded_by, created_at
		FROM attachments WHERE idea_id=$1
		ORDER BY created_at ASC
	`, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		var item Attachment
		if err := rows.Scan(&item.ID, &item.IdeaID, &item.FileName, &item.ContentType, &item.Size, &item.ObjectKey, &item.UploadedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteAttachment(ctx context.Context, attachmentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id=$1`, attachmentID)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}

// ----- summary -----

func (s *PostgresStore) SummaryCounts(ctx context.Context) (projects, ideas, users int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM projects),
			(SELECT COUNT(*) FROM ideas),
			(SELECT COUNT(*) FROM users)
	`).Scan(&projects, &ideas, &users)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("summary counts: %w", err)
	}
	return projects, ideas, users, nil
}
