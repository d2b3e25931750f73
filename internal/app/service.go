package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"quadrant/api/internal/auth"
	"quadrant/api/internal/authpw"
	"quadrant/api/internal/config"
	"quadrant/api/internal/export"
	"quadrant/api/internal/files"
	"quadrant/api/internal/lock"
	"quadrant/api/internal/optimistic"
	"quadrant/api/internal/rbac"
	"quadrant/api/internal/search"
	"quadrant/api/internal/store"
	"quadrant/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// IdeaDraft is the caller-provided payload of a create mutation.
type IdeaDraft struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Status      string  `json:"status"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

// MutateIdeaInput is one board mutation. UpdateID lets the client correlate
// the eventual result; a blank one is generated server-side.
type MutateIdeaInput struct {
	UpdateID        string           `json:"updateId"`
	Kind            string           `json:"kind"`
	IdeaID          string           `json:"ideaId"`
	ObservedVersion int64            `json:"observedVersion"`
	Idea            *IdeaDraft       `json:"idea,omitempty"`
	Patch           *store.IdeaPatch `json:"patch,omitempty"`
}

var allowedCategories = map[string]struct{}{
	"uncategorized": {},
	"growth":        {},
	"infra":         {},
	"quick-win":     {},
	"big-bet":       {},
	"research":      {},
}

type dataStore interface {
	Ping(ctx context.Context) error

	GetUserByID(context.Context, string) (store.User, error)
	SummaryCounts(context.Context) (int, int, int, error)

	ListProjects(context.Context) ([]store.Project, error)
	GetProject(context.Context, string) (store.Project, error)
	InsertProject(context.Context, store.Project) error
	UpdateProject(context.Context, string, string, string, string) error
	DeleteProject(context.Context, string) error
	ProjectIdeaCount(context.Context, string) (int, error)

	InsertIdea(context.Context, store.Idea) (store.Idea, error)
	GetIdea(context.Context, string) (store.Idea, error)
	ListIdeas(context.Context, string) ([]store.Idea, error)
	UpdateIdea(context.Context, string, int64, store.IdeaPatch) (store.Idea, error)
	DeleteIdea(context.Context, string, int64) error

	InsertAttachment(context.Context, store.Attachment) error
	GetAttachment(context.Context, string) (store.Attachment, error)
	ListAttachments(context.Context, string) ([]store.Attachment, error)
	DeleteAttachment(context.Context, string) error
}

type lockService interface {
	Acquire(ctx context.Context, ideaID, ownerID, ownerName string) (lock.Lock, error)
	Heartbeat(ctx context.Context, ideaID, ownerID string) (lock.Lock, error)
	Release(ctx context.Context, ideaID, ownerID string) error
	Get(ctx context.Context, ideaID string) (*lock.Lock, error)
	Ping(ctx context.Context) error
}

type historyService interface {
	EnsureProjectRepo(projectID string, ideas []store.Idea, author string) error
	CommitBoard(projectID string, ideas []store.Idea, author, message string) (store.CommitInfo, error)
	History(projectID string, limit int) ([]store.CommitInfo, error)
	BoardAt(projectID, hash string) ([]store.Idea, error)
}

type refreshStore interface {
	Save(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (store.User, error)
	Revoke(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

// boardSession holds one project's authoritative rows plus the speculative
// records currently in flight against them. The base slice is only ever
// written through the optimistic store's updater.
type boardSession struct {
	mu   sync.Mutex
	base []store.Idea
	opt  *optimistic.Store
}

func (bs *boardSession) snapshot() []store.Idea {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	out := make([]store.Idea, len(bs.base))
	copy(out, bs.base)
	return out
}

func (bs *boardSession) commit(apply func(prev []store.Idea) []store.Idea) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.base = apply(bs.base)
}

func (bs *boardSession) reset(ideas []store.Idea) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.base = ideas
}

type Service struct {
	cfg      config.Config
	store    dataStore
	authpw   *authpw.Service
	refresh  refreshStore
	locks    lockService
	history  historyService
	search   *search.Service
	files    *files.Service
	export   *export.Service
	schedule optimistic.Scheduler

	boardMu sync.Mutex
	boards  map[string]*boardSession
}

// Deps carries the service's collaborators. Search, Files, and Export may be
// nil when their backing infrastructure is not configured.
type Deps struct {
	Store   *store.PostgresStore
	AuthPW  *authpw.Service
	Refresh refreshStore
	Locks   lockService
	History historyService
	Search  *search.Service
	Files   *files.Service
	Export  *export.Service
}

func New(cfg config.Config, deps Deps) *Service {
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		authpw:   deps.AuthPW,
		refresh:  deps.Refresh,
		locks:    deps.Locks,
		history:  deps.History,
		search:   deps.Search,
		files:    deps.Files,
		export:   deps.Export,
		schedule: optimistic.WallClock(),
		boards:   make(map[string]*boardSession),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingRedis(ctx context.Context) error {
	if s.locks == nil {
		return nil
	}
	return s.locks.Ping(ctx)
}

// ----- auth and sessions -----

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.authpw.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.refresh.Lookup(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.refresh.Revoke(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		Role:  user.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refreshToken := util.NewID("rft") + util.NewID("")
	if err := s.refresh.Save(ctx, auth.HashToken(refreshToken), user, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.refresh.Revoke(ctx, auth.HashToken(refreshToken))
}

func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	return s.authpw.ChangePassword(ctx, userID, currentPassword, newPassword)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// ----- projects -----

func (s *Service) ListProjects(ctx context.Context) ([]map[string]any, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(projects))
	for _, project := range projects {
		count, err := s.store.ProjectIdeaCount(ctx, project.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, map[string]any{
			"id":          project.ID,
			"name":        project.Name,
			"description": project.Description,
			"status":      project.Status,
			"ownerId":     project.OwnerID,
			"ideaCount":   count,
			"updatedAt":   project.UpdatedAt.Format(time.RFC3339),
		})
	}
	return items, nil
}

func (s *Service) GetProject(ctx context.Context, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.ProjectIdeaCount(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          project.ID,
		"name":        project.Name,
		"description": project.Description,
		"status":      project.Status,
		"ownerId":     project.OwnerID,
		"ideaCount":   count,
	}, nil
}

func (s *Service) CreateProject(ctx context.Context, name, description string, owner Session) (map[string]any, error) {
	projectName := strings.TrimSpace(name)
	if projectName == "" {
		return nil, validationError("name is required")
	}
	project := store.Project{
		ID:          util.NewID("proj"),
		Name:        projectName,
		Description: strings.TrimSpace(description),
		Status:      "active",
		OwnerID:     owner.UserID,
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return nil, err
	}
	if s.history != nil {
		if err := s.history.EnsureProjectRepo(project.ID, nil, owner.UserName); err != nil {
			log.Printf("app: init history repo for %s: %v", project.ID, err)
		}
	}
	s.indexProject(project)
	return s.GetProject(ctx, project.ID)
}

func (s *Service) UpdateProject(ctx context.Context, projectID, name, description, status string) (map[string]any, error) {
	current, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	next := store.Project{
		ID:          projectID,
		Name:        firstNonBlank(strings.TrimSpace(name), current.Name),
		Description: firstNonBlank(strings.TrimSpace(description), current.Description),
		Status:      firstNonBlank(strings.TrimSpace(status), current.Status),
	}
	if err := s.store.UpdateProject(ctx, projectID, next.Name, next.Description, next.Status); err != nil {
		return nil, err
	}
	s.indexProject(next)
	return s.GetProject(ctx, projectID)
}

func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	s.dropBoardSession(projectID)
	if s.search != nil {
		s.search.DeleteProject(projectID)
	}
	return nil
}

// ----- board sessions and the reconcile path -----

func (s *Service) boardSession(ctx context.Context, projectID string) (*boardSession, error) {
	s.boardMu.Lock()
	if bs, ok := s.boards[projectID]; ok {
		s.boardMu.Unlock()
		return bs, nil
	}
	s.boardMu.Unlock()

	// Load outside the map lock; a racing loader just overwrites with the
	// same authoritative rows.
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	ideas, err := s.store.ListIdeas(ctx, projectID)
	if err != nil {
		return nil, err
	}

	s.boardMu.Lock()
	defer s.boardMu.Unlock()
	if bs, ok := s.boards[projectID]; ok {
		return bs, nil
	}
	bs := &boardSession{base: ideas}
	bs.opt = optimistic.NewStore(bs.snapshot, bs.commit, optimistic.Options{
		Timeout:   s.cfg.OptimisticTimeout,
		Scheduler: s.schedule,
		Callbacks: optimistic.Callbacks{
			OnError: func(updateID string, err error) {
				log.Printf("app: board %s update %s failed: %v", projectID, updateID, err)
			},
		},
	})
	s.boards[projectID] = bs
	return bs, nil
}

func (s *Service) dropBoardSession(projectID string) {
	s.boardMu.Lock()
	defer s.boardMu.Unlock()
	if bs, ok := s.boards[projectID]; ok {
		bs.opt.Close()
		delete(s.boards, projectID)
	}
}

// refreshBoard reloads a session's base rows from the database. Called after
// a version conflict so the next read shows the winning state.
func (s *Service) refreshBoard(ctx context.Context, projectID string) {
	s.boardMu.Lock()
	bs, ok := s.boards[projectID]
	s.boardMu.Unlock()
	if !ok {
		return
	}
	ideas, err := s.store.ListIdeas(ctx, projectID)
	if err != nil {
		log.Printf("app: refresh board %s: %v", projectID, err)
		return
	}
	bs.reset(ideas)
}

// GetBoard returns the projected view of a project board: authoritative rows
// with all unresolved speculative records applied, plus advisory lock state.
func (s *Service) GetBoard(ctx context.Context, projectID string) (map[string]any, error) {
	bs, err := s.boardSession(ctx, projectID)
	if err != nil {
		return nil, err
	}
	view := bs.opt.View()
	s.decorateLocks(ctx, view)
	return map[string]any{
		"projectId": projectID,
		"ideas":     view,
		"pending":   len(bs.opt.Pending()),
	}, nil
}

func (s *Service) decorateLocks(ctx context.Context, ideas []store.Idea) {
	if s.locks == nil {
		return
	}
	for i := range ideas {
		held, err := s.locks.Get(ctx, ideas[i].ID)
		if err != nil || held == nil {
			continue
		}
		owner := held.OwnerID
		expires := held.ExpiresAt
		ideas[i].LockOwner = &owner
		ideas[i].LockExpires = &expires
	}
}

// MutateIdea runs one board mutation through the full optimistic cycle:
// admission checks, speculative apply, authoritative write, then confirm or
// revert. The response always names the terminal state of the update id.
func (s *Service) MutateIdea(ctx context.Context, projectID string, actor Session, input MutateIdeaInput) (map[string]any, error) {
	bs, err := s.boardSession(ctx, projectID)
	if err != nil {
		return nil, err
	}

	updateID := strings.TrimSpace(input.UpdateID)
	if updateID == "" {
		updateID = util.NewID("upd")
	}

	record, err := s.buildRecord(ctx, bs, projectID, actor, updateID, input)
	if err != nil {
		return nil, err
	}

	if err := bs.opt.Apply(record); err != nil {
		switch {
		case errors.Is(err, optimistic.ErrPendingDelete):
			return nil, domainError(http.StatusConflict, "PENDING_DELETE", "Idea has an unresolved pending delete", nil)
		case errors.Is(err, optimistic.ErrDuplicateUpdate):
			return nil, domainError(http.StatusConflict, "DUPLICATE_UPDATE", "Update id is already pending", nil)
		case errors.Is(err, optimistic.ErrInvalidRecord):
			return nil, validationError("Invalid mutation payload")
		default:
			return nil, err
		}
	}

	// Moves arrive as drag streams; the projected view answers immediately
	// and the authoritative write settles in the background. Everything else
	// reconciles inline so the caller learns the terminal state.
	if record.Kind == optimistic.KindMove {
		go func() {
			if _, err := s.reconcile(context.Background(), bs, projectID, actor, record); err != nil {
				log.Printf("app: reconcile move %s on board %s: %v", updateID, projectID, err)
			}
		}()
		return map[string]any{
			"updateId": updateID,
			"state":    string(optimistic.StatePending),
			"ideas":    bs.opt.View(),
		}, nil
	}

	confirmed, err := s.reconcile(ctx, bs, projectID, actor, record)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"updateId": updateID,
		"state":    string(bs.opt.StateOf(updateID)),
		"ideas":    bs.opt.View(),
	}
	if confirmed != nil {
		payload["idea"] = confirmed
	}
	return payload, nil
}

// reconcile performs the authoritative write for an applied record and
// resolves it exactly once: Confirm with the returned row on success, Revert
// with a mapped error otherwise.
func (s *Service) reconcile(ctx context.Context, bs *boardSession, projectID string, actor Session, record optimistic.Record) (*store.Idea, error) {
	confirmed, err := s.writeThrough(ctx, record)
	if err != nil {
		bs.opt.Revert(record.ID)
		switch {
		case errors.Is(err, store.ErrVersionConflict):
			s.refreshBoard(ctx, projectID)
			var currentVersion int64
			if current, getErr := s.store.GetIdea(ctx, record.EntityID); getErr == nil {
				currentVersion = current.Version
			}
			return nil, staleVersionError(currentVersion)
		case errors.Is(err, sql.ErrNoRows):
			s.refreshBoard(ctx, projectID)
			return nil, err
		default:
			return nil, err
		}
	}

	bs.opt.Confirm(record.ID, confirmed)
	s.afterConfirm(projectID, actor.UserName, record, confirmed, bs.snapshot())
	return confirmed, nil
}

// buildRecord validates the input and converts it into a speculative record,
// running the admission guard for mutations of existing rows.
func (s *Service) buildRecord(ctx context.Context, bs *boardSession, projectID string, actor Session, updateID string, input MutateIdeaInput) (optimistic.Record, error) {
	kind := optimistic.Kind(strings.ToLower(strings.TrimSpace(input.Kind)))

	switch kind {
	case optimistic.KindCreate:
		if input.Idea == nil || strings.TrimSpace(input.Idea.Title) == "" {
			return optimistic.Record{}, validationError("idea title is required")
		}
		category := firstNonBlank(strings.TrimSpace(input.Idea.Category), "uncategorized")
		if _, ok := allowedCategories[category]; !ok {
			return optimistic.Record{}, validationError("invalid category")
		}
		idea := store.Idea{
			ID:          util.NewID("idea"),
			ProjectID:   projectID,
			Title:       strings.TrimSpace(input.Idea.Title),
			Description: input.Idea.Description,
			Category:    category,
			Status:      firstNonBlank(strings.TrimSpace(input.Idea.Status), "open"),
			X:           clampPosition(input.Idea.X),
			Y:           clampPosition(input.Idea.Y),
			Version:     1,
			CreatedBy:   actor.UserID,
		}
		return optimistic.Record{
			ID:   updateID,
			Kind: optimistic.KindCreate,
			Idea: &idea,
		}, nil

	case optimistic.KindUpdate, optimistic.KindMove, optimistic.KindDelete:
		if strings.TrimSpace(input.IdeaID) == "" {
			return optimistic.Record{}, validationError("ideaId is required")
		}
		if (kind == optimistic.KindUpdate || kind == optimistic.KindMove) && input.Patch == nil {
			return optimistic.Record{}, validationError("patch is required")
		}
		if input.Patch != nil && input.Patch.Category != nil {
			if _, ok := allowedCategories[*input.Patch.Category]; !ok {
				return optimistic.Record{}, validationError("invalid category")
			}
		}

		current, err := s.currentIdea(bs, input.IdeaID)
		if err != nil {
			return optimistic.Record{}, err
		}
		decorated := *current
		if s.locks != nil {
			if held, lockErr := s.locks.Get(ctx, current.ID); lockErr == nil && held != nil {
				owner := held.OwnerID
				expires := held.ExpiresAt
				decorated.LockOwner = &owner
				decorated.LockExpires = &expires
			}
		}

		switch optimistic.CheckBeforeSend(decorated, input.ObservedVersion, actor.UserID, time.Now()) {
		case optimistic.StaleVersion:
			return optimistic.Record{}, staleVersionError(decorated.Version)
		case optimistic.Locked:
			details := map[string]any{}
			if decorated.LockOwner != nil {
				details["lockedBy"] = *decorated.LockOwner
			}
			return optimistic.Record{}, lockHeldError(details)
		}

		record := optimistic.Record{
			ID:              updateID,
			Kind:            kind,
			EntityID:        input.IdeaID,
			Original:        current,
			ObservedVersion: input.ObservedVersion,
		}
		if input.Patch != nil {
			record.Patch = *input.Patch
		}
		return record, nil
	}

	return optimistic.Record{}, validationError("kind must be create, update, move, or delete")
}

// currentIdea resolves the mutation target from the session's projected
// view, so an edit chained onto a still-pending create is admissible.
func (s *Service) currentIdea(bs *boardSession, ideaID string) (*store.Idea, error) {
	for _, idea := range bs.opt.View() {
		if idea.ID == ideaID {
			copied := idea
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

// writeThrough performs the authoritative database write for a record. The
// version guard lives in the SQL itself; a conflicting write surfaces as
// store.ErrVersionConflict.
func (s *Service) writeThrough(ctx context.Context, record optimistic.Record) (*store.Idea, error) {
	switch record.Kind {
	case optimistic.KindCreate:
		inserted, err := s.store.InsertIdea(ctx, *record.Idea)
		if err != nil {
			return nil, err
		}
		return &inserted, nil
	case optimistic.KindUpdate, optimistic.KindMove:
		updated, err := s.store.UpdateIdea(ctx, record.EntityID, record.ObservedVersion, record.Patch)
		if err != nil {
			return nil, err
		}
		return &updated, nil
	case optimistic.KindDelete:
		if err := s.store.DeleteIdea(ctx, record.EntityID, record.ObservedVersion); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported record kind %q", record.Kind)
}

// afterConfirm handles the fire-and-forget side effects of a confirmed
// mutation: the board history commit and the search index update.
func (s *Service) afterConfirm(projectID, author string, record optimistic.Record, confirmed *store.Idea, board []store.Idea) {
	if s.history != nil {
		message := commitMessage(record, confirmed)
		go func() {
			if _, err := s.history.CommitBoard(projectID, board, author, message); err != nil {
				log.Printf("app: commit board %s: %v", projectID, err)
			}
		}()
	}
	if s.search == nil {
		return
	}
	switch record.Kind {
	case optimistic.KindDelete:
		s.search.DeleteIdea(record.EntityID)
	default:
		if confirmed != nil {
			s.search.IndexIdea(search.IdeaRecord{
				ID:          confirmed.ID,
				Title:       confirmed.Title,
				Description: confirmed.Description,
				ProjectID:   confirmed.ProjectID,
				Category:    confirmed.Category,
				Status:      confirmed.Status,
			})
		}
	}
}

func commitMessage(record optimistic.Record, confirmed *store.Idea) string {
	switch record.Kind {
	case optimistic.KindCreate:
		if confirmed != nil {
			return "Add idea " + confirmed.Title
		}
		return "Add idea"
	case optimistic.KindMove:
		return "Move idea " + record.EntityID
	case optimistic.KindDelete:
		return "Remove idea " + record.EntityID
	default:
		return "Update idea " + record.EntityID
	}
}

// UpdateState reports the lifecycle state of an update id on a board.
func (s *Service) UpdateState(ctx context.Context, projectID, updateID string) (map[string]any, error) {
	bs, err := s.boardSession(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"updateId": updateID,
		"state":    string(bs.opt.StateOf(updateID)),
	}, nil
}

// ----- advisory locks -----

func (s *Service) AcquireLock(ctx context.Context, ideaID string, actor Session) (map[string]any, error) {
	if s.locks == nil {
		return nil, unavailableError("LOCKS_UNAVAILABLE", "Lock service not configured")
	}
	if _, err := s.store.GetIdea(ctx, ideaID); err != nil {
		return nil, err
	}
	held, err := s.locks.Acquire(ctx, ideaID, actor.UserID, actor.UserName)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return nil, lockHeldError(map[string]any{
				"lockedBy":   held.OwnerName,
				"lockedById": held.OwnerID,
				"expiresAt":  held.ExpiresAt.Format(time.RFC3339),
			})
		}
		return nil, err
	}
	return lockPayload(ideaID, held), nil
}

func (s *Service) HeartbeatLock(ctx context.Context, ideaID string, actor Session) (map[string]any, error) {
	if s.locks == nil {
		return nil, unavailableError("LOCKS_UNAVAILABLE", "Lock service not configured")
	}
	held, err := s.locks.Heartbeat(ctx, ideaID, actor.UserID)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return nil, lockHeldError(nil)
		}
		return nil, err
	}
	return lockPayload(ideaID, held), nil
}

func (s *Service) ReleaseLock(ctx context.Context, ideaID string, actor Session) error {
	if s.locks == nil {
		return unavailableError("LOCKS_UNAVAILABLE", "Lock service not configured")
	}
	if err := s.locks.Release(ctx, ideaID, actor.UserID); err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return lockHeldError(nil)
		}
		return err
	}
	return nil
}

func (s *Service) GetLock(ctx context.Context, ideaID string) (map[string]any, error) {
	if s.locks == nil {
		return map[string]any{"ideaId": ideaID, "locked": false}, nil
	}
	held, err := s.locks.Get(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if held == nil {
		return map[string]any{"ideaId": ideaID, "locked": false}, nil
	}
	return lockPayload(ideaID, *held), nil
}

func lockPayload(ideaID string, held lock.Lock) map[string]any {
	return map[string]any{
		"ideaId":     ideaID,
		"locked":     true,
		"ownerId":    held.OwnerID,
		"ownerName":  held.OwnerName,
		"acquiredAt": held.AcquiredAt.Format(time.RFC3339),
		"expiresAt":  held.ExpiresAt.Format(time.RFC3339),
	}
}

// ----- timeline -----

func (s *Service) Timeline(ctx context.Context, projectID string, limit int) (map[string]any, error) {
	if s.history == nil {
		return nil, unavailableError("HISTORY_UNAVAILABLE", "History service not configured")
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	commits, err := s.history.History(projectID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		items = append(items, map[string]any{
			"hash":    commit.Hash,
			"message": strings.TrimSpace(commit.Message),
			"author":  commit.Author,
			"at":      commit.CreatedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{
		"projectId": projectID,
		"commits":   items,
	}, nil
}

func (s *Service) BoardAt(ctx context.Context, projectID, hash string) (map[string]any, error) {
	if s.history == nil {
		return nil, unavailableError("HISTORY_UNAVAILABLE", "History service not configured")
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	ideas, err := s.history.BoardAt(projectID, hash)
	if err != nil {
		return nil, err
	}
	if ideas == nil {
		ideas = []store.Idea{}
	}
	return map[string]any{
		"projectId": projectID,
		"hash":      hash,
		"ideas":     ideas,
	}, nil
}

// ----- search -----

func (s *Service) Search(ctx context.Context, text, filterType, projectID, category string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		Text:            text,
		FilterType:      search.ResultType(filterType),
		FilterProjectID: projectID,
		FilterCategory:  category,
		Limit:           limit,
		Offset:          offset,
	}), nil
}

func (s *Service) indexProject(project store.Project) {
	if s.search == nil {
		return
	}
	s.search.IndexProject(search.ProjectRecord{
		ID:          project.ID,
		Name:        project.Name,
		Description: project.Description,
		Status:      project.Status,
	})
}

// ----- export -----

func (s *Service) ExportBoard(ctx context.Context, projectID string) (*export.Result, error) {
	if s.export == nil {
		return nil, unavailableError("EXPORT_UNAVAILABLE", "Export service not configured")
	}
	result, err := s.export.Export(ctx, export.Request{ProjectID: projectID, Format: export.FormatPDF})
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, unavailableError("EXPORT_UNAVAILABLE", "PDF renderer not installed")
		}
		return nil, err
	}
	return result, nil
}

// ----- attachments -----

const presignTTL = 15 * time.Minute

func (s *Service) UploadAttachment(ctx context.Context, ideaID, fileName, contentType string, size int64, body io.Reader, actor Session) (map[string]any, error) {
	if s.files == nil {
		return nil, unavailableError("ATTACHMENTS_UNAVAILABLE", "Attachment storage not configured")
	}
	if _, err := s.store.GetIdea(ctx, ideaID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(fileName) == "" {
		return nil, validationError("file name is required")
	}

	key, err := s.files.Upload(ctx, ideaID, fileName, contentType, size, body)
	if err != nil {
		return nil, err
	}
	attachment := store.Attachment{
		ID:          util.NewID("att"),
		IdeaID:      ideaID,
		FileName:    fileName,
		ContentType: firstNonBlank(contentType, "application/octet-stream"),
		Size:        size,
		ObjectKey:   key,
		UploadedBy:  actor.UserID,
	}
	if err := s.store.InsertAttachment(ctx, attachment); err != nil {
		return nil, err
	}
	return attachmentPayload(attachment, ""), nil
}

func (s *Service) ListIdeaAttachments(ctx context.Context, ideaID string) ([]map[string]any, error) {
	attachments, err := s.store.ListAttachments(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(attachments))
	for _, attachment := range attachments {
		url := ""
		if s.files != nil {
			signed, err := s.files.PresignGet(ctx, attachment.ObjectKey, attachment.FileName, presignTTL)
			if err != nil {
				log.Printf("app: presign attachment %s: %v", attachment.ID, err)
			} else {
				url = signed
			}
		}
		items = append(items, attachmentPayload(attachment, url))
	}
	return items, nil
}

func (s *Service) DeleteAttachment(ctx context.Context, attachmentID string) error {
	attachment, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return err
	}
	if s.files != nil {
		if err := s.files.Remove(ctx, attachment.ObjectKey); err != nil {
			log.Printf("app: remove attachment object %s: %v", attachment.ObjectKey, err)
		}
	}
	return s.store.DeleteAttachment(ctx, attachmentID)
}

func attachmentPayload(attachment store.Attachment, downloadURL string) map[string]any {
	payload := map[string]any{
		"id":          attachment.ID,
		"ideaId":      attachment.IdeaID,
		"fileName":    attachment.FileName,
		"contentType": attachment.ContentType,
		"size":        attachment.Size,
		"uploadedBy":  attachment.UploadedBy,
	}
	if downloadURL != "" {
		payload["downloadUrl"] = downloadURL
	}
	return payload
}

// ----- admin -----

func (s *Service) AdminSummary(ctx context.Context) (map[string]any, error) {
	projects, ideas, users, err := s.store.SummaryCounts(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"projects": projects,
		"ideas":    ideas,
		"users":    users,
	}, nil
}

// ----- bootstrap -----

// Bootstrap seeds a demo project the first time the service starts with an
// empty database, and warms the search index.
func (s *Service) Bootstrap(ctx context.Context) error {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return err
	}
	if len(projects) > 0 {
		if s.search != nil {
			go s.search.ReindexAllFromPG(context.Background())
		}
		return nil
	}

	owner, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{
		Email:       "avery@example.com",
		Password:    "quadrant-demo",
		DisplayName: "Avery",
	})
	if err != nil {
		return err
	}

	project := store.Project{
		ID:          util.NewID("proj"),
		Name:        "Q3 Roadmap",
		Description: "Candidate ideas for the third quarter",
		Status:      "active",
		OwnerID:     owner.ID,
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return err
	}

	seeds := []store.Idea{
		{Title: "Guided onboarding tour", Description: "Walk new teams through the matrix on first login.", Category: "growth", X: 22, Y: 81},
		{Title: "Usage-based billing", Description: "Replace seat pricing with metered usage.", Category: "big-bet", X: 88, Y: 86},
		{Title: "Dark mode", Description: "Theme toggle for the dashboard.", Category: "quick-win", X: 18, Y: 34},
		{Title: "Legacy importer rewrite", Description: "Port the CSV importer off the deprecated pipeline.", Category: "infra", X: 92, Y: 28},
	}
	board := make([]store.Idea, 0, len(seeds))
	for _, seed := range seeds {
		seed.ID = util.NewID("idea")
		seed.ProjectID = project.ID
		seed.Status = "open"
		seed.CreatedBy = owner.ID
		inserted, err := s.store.InsertIdea(ctx, seed)
		if err != nil {
			return err
		}
		board = append(board, inserted)
	}

	if s.history != nil {
		if err := s.history.EnsureProjectRepo(project.ID, board, owner.DisplayName); err != nil {
			return err
		}
	}
	s.indexProject(project)
	if s.search != nil {
		go s.search.ReindexAllFromPG(context.Background())
	}
	return nil
}

// ----- helpers -----

func clampPosition(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
