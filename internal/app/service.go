package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"ripple/internal/auth"
	"ripple/internal/config"
	"ripple/internal/notify"
	"ripple/internal/ownership"
	"ripple/internal/store"
	"ripple/internal/timeago"
)

// Session is what a successful registration or login hands back to the
// client: a signed token plus the identity it encodes.
type Session struct {
	Token     string
	UserID    int64
	Email     string
	ExpiresAt time.Time
}

type RegisterInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	City      string `json:"city"`
	Password  string `json:"hashed_Password"`
}

type dataStore interface {
	UserExists(ctx context.Context, email, username string) (bool, bool, error)
	CreateUser(ctx context.Context, user store.User, passwordHash string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, userID int64) (store.User, error)
	InsertPost(ctx context.Context, userID int64, content string) (store.Post, error)
	GetPost(ctx context.Context, postID int64) (store.Post, error)
	ListPostsByUser(ctx context.Context, userID int64) ([]store.Post, error)
	ListPostsWithLikeCounts(ctx context.Context) ([]store.Post, error)
	UpdatePostContent(ctx context.Context, postID int64, content string) (bool, error)
	DeletePostCascade(ctx context.Context, postID int64) error
	ToggleLike(ctx context.Context, postID, userID int64) (store.LikeState, error)
	ListLikedPostIDs(ctx context.Context, userID int64) ([]int64, error)
	RepairLikeCounts(ctx context.Context) (int64, error)
	InsertComment(ctx context.Context, postID, userID int64, content string) (store.Comment, error)
	GetComment(ctx context.Context, commentID int64) (store.Comment, error)
	ListComments(ctx context.Context, postID int64) ([]store.Comment, error)
	UpdateCommentContent(ctx context.Context, commentID int64, content string) (bool, error)
	DeleteComment(ctx context.Context, commentID int64) error
	Ping(ctx context.Context) error
}

type Service struct {
	cfg    config.Config
	store  dataStore
	events notify.Publisher
	now    func() time.Time
}

func New(cfg config.Config, dataStore *store.PostgresStore, events notify.Publisher) *Service {
	if events == nil {
		events = notify.Nop{}
	}
	return &Service{
		cfg:    cfg,
		store:  dataStore,
		events: events,
		now:    time.Now,
	}
}

// Bootstrap reconciles the cached like counters against the likes relation.
// The relation is the recoverable source of truth; any drift left behind by
// a crash mid-transaction gets repaired here.
func (s *Service) Bootstrap(ctx context.Context) error {
	repaired, err := s.store.RepairLikeCounts(ctx)
	if err != nil {
		return err
	}
	if repaired > 0 {
		log.Printf("repaired like_count on %d posts", repaired)
	}
	return nil
}

// Authenticate is the authorization guard: it turns a raw Authorization
// header into an identity or fails.
func (s *Service) Authenticate(headerValue string) (auth.Identity, error) {
	return auth.Authenticate([]byte(s.cfg.TokenSecret), headerValue)
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	email := strings.TrimSpace(in.Email)
	username := strings.TrimSpace(in.Username)
	if email == "" || username == "" || in.Password == "" {
		return Session{}, errValidation("email, username, and password are required")
	}

	ctx, cancel := s.boundedCtx(ctx)
	defer cancel()

	emailTaken, usernameTaken, err := s.store.UserExists(ctx, email, username)
	if err != nil {
		return Session{}, storeErr(err)
	}
	switch {
	case emailTaken && usernameTaken:
		return Session{}, errConflict("Username and Email already exist.")
	case emailTaken:
		return Session{}, errConflict("Email already exists.")
	case usernameTaken:
		return Session{}, errConflict("Username already exists.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.CreateUser(ctx, store.User{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     email,
		Username:  username,
		City:      in.City,
	}, string(hash))
	if err != nil {
		return Session{}, storeErr(err)
	}

	return s.issueSession(user, false)
}

func (s *Service) Login(ctx context.Context, email, password string) (store.User, Session, error) {
	ctx, cancel := s.boundedCtx(ctx)
	defer cancel()

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, Session{}, errNotFound("User not found.")
	}
	if err != nil {
		return store.User{}, Session{}, storeErr(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password.", nil)
	}

	session, err := s.issueSession(user, true)
	if err != nil {
		return store.User{}, Session{}, err
	}
	user.PasswordHash = ""
	return user, session, nil
}

func (s *Service) UserByEmail(ctx context.Context, email string) (store.User, error) {
	ctx, cancel := s.boundedCtx(ctx)
	defer cancel()

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, errNotFound("incorrect Email")
	}
	if err != nil {
		return store.User{}, storeErr(err)
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *Service) CreatePost(ctx context.Context, ownerID int64, body string) (store.Post, error) {
	if ownerID <= 0 {
		return store.Post{}, errUnauthenticated()
	}
	if strings.TrimSpace(body) == "" {
		return store.Post{}, errValidation("post body is required")
	}

	ctx, cancel := s.boundedCtx(ctx)
	defer cancel()

	post, err := s.store.InsertPost(ctx, ownerID, body)
	if err != nil {
		return store.Post{}, storeErr(err)
	}
	return post, nil
}

// FeedForUser returns targetUserID's posts, newest first. The feed is
// private to its owner: any other identity is refused.
func (s *Service) FeedForUser(ctx context.Context, targetUserID int64, identity auth.Identity) ([]store.Post, error) {
	if identity.UserID <= 0 {
		return nil, errUnauthenticated()
	}
	if !ownership.Allows(identity.UserID, targetUserID) {
		return nil, errForbidden()
	}

	ctx, cancel := s.boundedCtx(ctx)
	defer cancel()

	posts, err := s.store.ListPostsByUser(ctx, targetUserID)
	if err != nil {
		return nil, storeErr(err)
	}
	now := s.now()
	for i := range posts {
		posts[i].TimeAgo = timeago.Format(now, posts[i].CreatedAt)
	}
	return posts, nil
}

func (s *Service) GlobalFeed(ctx context.Context) ([]store.Post, error) {
	ctx, cancel := s.boundedCtx(ctx)
	defer cancel()

	posts, err := s.store.ListPostsWithLikeCounts(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	now := s.now()
	for i := range posts {
		posts[i].TimeAgo = timeago.Format(now, posts[i].CreatedAt)
	}
	return posts, nil
}

func (s *Service) EditPost(ctx context.Context, postID int64, identity auth.Identity, body string) error {
	if strings.TrimSpace(body) == "" {
		return errValidation("post body is required")
	}

	ctx, cancel := s.boundedCtx(ctx)
	defer cancel()

	post, err := s.store.GetPost(ctx, postID)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound("Post not found")
	}
	if err != nil {
		return storeErr(err)
	}
	if !ownership.Allows(identity.UserID, post.UserID) {
		return errForbidden()
	}

	if _, err := s.store.UpdatePostContent(ctx, postID, body); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *Service) DeletePost(ctx context.Context, postID int64, identity auth.Identity) error {
	ctx, cancel := s.boundedCtx(ctx)
	defer cancel()

	post, err := s.store.GetPost(ctx, postID)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound("Post not found")
	}
	if err != nil {
		return storeErr(err)
	}
	if !ownership.Allows(identity.UserID, post.UserID) {
		return errForbidden()
	}

	if err := s.store.DeletePostCascade(ctx, postID); err != nil {
		return storeErr(err)
	}
	return nil
}

// ToggleLike flips the (post, user) like state and reports the new state.
// The returned state is authoritative; under concurrent toggles the client
// must not assume the call flipped from its last-known state. Persistence
// failures are never retried here, since replaying a toggle flips it twice.
func (s *Service) ToggleLike(ctx context.Context, postID, userID int64) (store.LikeState, error) {
	if userID <= 0 {
		return store.LikeState{}, errUnauthenticated()
	}

	ctx, cancel := s.boundedCtx(ctx)
	defer cancel()

	state, err := s.store.ToggleLike(ctx, postID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.LikeState{}, errNotFound("Post not found")
	}
	if err != nil {
		return store.LikeState{}, storeErr(err)
	}

	eventType := notify.EventLiked
	if !state.Liked {
		eventType = notify.EventUnliked
	}
	s.publish(ctx, notify.Event{
		Type:      eventType,
		PostID:    postID,
		ActorID:   userID,
		LikeCount: state.LikeCount,
	})
	return state, nil
}

func (s *Service) LikedPostIDs(ctx context.Context, userID int64) ([]int64, error) {
	ctx, cancel := s.boundedCtx(ctx)
	defer cancel()

	ids, err := s.store.ListLikedPostIDs(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return ids, nil
}

func (s *Service) AddComment(ctx context.Context, postID, authorID int64, body string) (store.Comment, error) {
	if authorID <= 0 {
		return store.Comment{}, errUnauthenticated()
	}
	if strings.TrimSpace(body) == "" {
		return store.Comment{}, errValidation("comment body is required")
	}

	ctx, cancel := s.boundedCtx(ctx)
	defer cancel()

	if _, err := s.store.GetPost(ctx, postID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Comment{}, errNotFound("Post not found")
		}
		return store.Comment{}, storeErr(err)
	}
	if _, err := s.store.GetUserByID(ctx, authorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Comment{}, errNotFound("User not found.")
		}
		return store.Comment{}, storeErr(err)
	}

	comment, err := s.store.InsertComment(ctx, postID, authorID, body)
	if err != nil {
		return store.Comment{}, storeErr(err)
	}

	s.publish(ctx, notify.Event{
		Type:      notify.EventCommented,
		PostID:    postID,
		ActorID:   authorID,
		CommentID: comment.ID,
	})
	return comment, nil
}

func (s *Service) Comments(ctx context.Context, postID int64) ([]store.Comment, error) {
	ctx, cancel := s.boundedCtx(ctx)
	defer cancel()

	comments, err := s.store.ListComments(ctx, postID)
	if err != nil {
		return nil, storeErr(err)
	}
	now := s.now()
	for i := range comments {
		comments[i].TimeAgo = timeago.Format(now, comments[i].CreatedAt)
	}
	return comments, nil
}

func (s *Service) EditComment(ctx context.Context, commentID int64, identity auth.Identity, body string) error {
	if strings.TrimSpace(body) == "" {
		return errValidation("comment body is required")
	}

	ctx, cancel := s.boundedCtx(ctx)
	defer cancel()

	comment, err := s.store.GetComment(ctx, commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound("Comment not found")
	}
	if err != nil {
		return storeErr(err)
	}
	if !ownership.Allows(identity.UserID, comment.UserID) {
		return errForbidden()
	}

	if _, err := s.store.UpdateCommentContent(ctx, commentID, body); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *Service) DeleteComment(ctx context.Context, commentID int64, identity auth.Identity) error {
	ctx, cancel := s.boundedCtx(ctx)
	defer cancel()

	comment, err := s.store.GetComment(ctx, commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound("Comment not found")
	}
	if err != nil {
		return storeErr(err)
	}
	if !ownership.Allows(identity.UserID, comment.UserID) {
		return errForbidden()
	}

	if err := s.store.DeleteComment(ctx, commentID); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) issueSession(user store.User, includeEmail bool) (Session, error) {
	expiresAt := s.now().Add(s.cfg.AccessTTL)
	claims := auth.Claims{Sub: user.ID, Exp: expiresAt.Unix()}
	if includeEmail {
		claims.Email = user.Email
	}
	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), claims)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		ExpiresAt: expiresAt,
	}, nil
}

// boundedCtx caps every store call; an expired deadline surfaces to the
// client as a retryable persistence error.
func (s *Service) boundedCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *Service) publish(ctx context.Context, event notify.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		log.Printf("publish %s event for post %d: %v", event.Type, event.PostID, err)
	}
}

func storeErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errPersistence()
	}
	// 23505 is unique_violation. The existence prechecks cannot close the
	// window against a concurrent duplicate insert, so the constraint error
	// keeps the conflict taxonomy instead of surfacing as a server error.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errConflict("Username or Email already exists.")
	}
	return err
}
