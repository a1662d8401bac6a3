package app

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"ripple/internal/auth"
	"ripple/internal/config"
	"ripple/internal/notify"
	"ripple/internal/store"
)

type likeKey struct {
	postID int64
	userID int64
}

// fakeStore is an in-memory dataStore. Error hooks let individual tests
// inject failures without touching the happy-path bookkeeping.
type fakeStore struct {
	mu       sync.Mutex
	users    map[int64]store.User
	posts    map[int64]store.Post
	comments map[int64]store.Comment
	likes    map[likeKey]bool
	nextID   int64

	toggleErr     error
	createUserErr error
	deleted       []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[int64]store.User),
		posts:    make(map[int64]store.Post),
		comments: make(map[int64]store.Comment),
		likes:    make(map[likeKey]bool),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) UserExists(ctx context.Context, email, username string) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var emailTaken, usernameTaken bool
	for _, u := range f.users {
		if u.Email == email {
			emailTaken = true
		}
		if u.Username == username {
			usernameTaken = true
		}
	}
	return emailTaken, usernameTaken, nil
}

func (f *fakeStore) CreateUser(ctx context.Context, user store.User, passwordHash string) (store.User, error) {
	if f.createUserErr != nil {
		return store.User{}, f.createUserErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	user.ID = f.id()
	user.CreatedAt = time.Now()
	user.PasswordHash = passwordHash
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID int64) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeStore) InsertPost(ctx context.Context, userID int64, content string) (store.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	post := store.Post{ID: f.id(), UserID: userID, Content: content, CreatedAt: time.Now()}
	f.posts[post.ID] = post
	return post, nil
}

func (f *fakeStore) GetPost(ctx context.Context, postID int64) (store.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[postID]
	if !ok {
		return store.Post{}, sql.ErrNoRows
	}
	return post, nil
}

func (f *fakeStore) ListPostsByUser(ctx context.Context, userID int64) ([]store.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var posts []store.Post
	for _, p := range f.posts {
		if p.UserID == userID {
			posts = append(posts, p)
		}
	}
	return posts, nil
}

func (f *fakeStore) ListPostsWithLikeCounts(ctx context.Context) ([]store.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var posts []store.Post
	for _, p := range f.posts {
		posts = append(posts, p)
	}
	return posts, nil
}

func (f *fakeStore) UpdatePostContent(ctx context.Context, postID int64, content string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[postID]
	if !ok {
		return false, nil
	}
	post.Content = content
	f.posts[postID] = post
	return true, nil
}

func (f *fakeStore) DeletePostCascade(ctx context.Context, postID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.comments {
		if c.PostID == postID {
			delete(f.comments, id)
		}
	}
	for key := range f.likes {
		if key.postID == postID {
			delete(f.likes, key)
		}
	}
	delete(f.posts, postID)
	f.deleted = append(f.deleted, postID)
	return nil
}

func (f *fakeStore) ToggleLike(ctx context.Context, postID, userID int64) (store.LikeState, error) {
	if f.toggleErr != nil {
		return store.LikeState{}, f.toggleErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[postID]
	if !ok {
		return store.LikeState{}, sql.ErrNoRows
	}
	key := likeKey{postID: postID, userID: userID}
	if f.likes[key] {
		delete(f.likes, key)
		post.LikeCount--
		f.posts[postID] = post
		return store.LikeState{Liked: false, LikeCount: post.LikeCount}, nil
	}
	f.likes[key] = true
	post.LikeCount++
	f.posts[postID] = post
	return store.LikeState{Liked: true, LikeCount: post.LikeCount}, nil
}

func (f *fakeStore) ListLikedPostIDs(ctx context.Context, userID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := []int64{}
	for key := range f.likes {
		if key.userID == userID {
			ids = append(ids, key.postID)
		}
	}
	return ids, nil
}

func (f *fakeStore) RepairLikeCounts(ctx context.Context) (int64, error) {
	return 0, nil
}

func (f *fakeStore) InsertComment(ctx context.Context, postID, userID int64, content string) (store.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	comment := store.Comment{ID: f.id(), PostID: postID, UserID: userID, Content: content, CreatedAt: time.Now()}
	f.comments[comment.ID] = comment
	return comment, nil
}

func (f *fakeStore) GetComment(ctx context.Context, commentID int64) (store.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[commentID]
	if !ok {
		return store.Comment{}, sql.ErrNoRows
	}
	return c, nil
}

func (f *fakeStore) ListComments(ctx context.Context, postID int64) ([]store.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var comments []store.Comment
	for _, c := range f.comments {
		if c.PostID == postID {
			comments = append(comments, c)
		}
	}
	return comments, nil
}

func (f *fakeStore) UpdateCommentContent(ctx context.Context, commentID int64, content string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[commentID]
	if !ok {
		return false, nil
	}
	c.Content = content
	f.comments[commentID] = c
	return true, nil
}

func (f *fakeStore) DeleteComment(ctx context.Context, commentID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.comments, commentID)
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	return nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			TokenSecret:  "test-secret",
			AccessTTL:    time.Hour,
			QueryTimeout: time.Second,
		},
		store:  fs,
		events: notify.Nop{},
		now:    time.Now,
	}
}

func seedTestUser(t *testing.T, fs *fakeStore, email, username string) store.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user, err := fs.CreateUser(context.Background(), store.User{
		FirstName: "Test",
		LastName:  "User",
		Email:     email,
		Username:  username,
		City:      "Lagos",
	}, string(hash))
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func asDomainError(t *testing.T, err error) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return domainErr
}

func TestRegisterIssuesSession(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)

	session, err := svc.Register(context.Background(), RegisterInput{
		FirstName: "Ada",
		LastName:  "Obi",
		Email:     "ada@example.com",
		Username:  "ada",
		Password:  "hunter22",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if session.UserID == 0 {
		t.Fatal("expected a user id")
	}
	if session.Token == "" {
		t.Fatal("expected a token")
	}

	claims, err := auth.ParseToken([]byte("test-secret"), session.Token)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if claims.Sub != session.UserID {
		t.Fatalf("token subject = %d, want %d", claims.Sub, session.UserID)
	}

	stored, err := fs.GetUserByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("stored user: %v", err)
	}
	if stored.PasswordHash == "hunter22" {
		t.Fatal("password stored in the clear")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("hunter22")); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
}

func TestRegisterConflictMessages(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	seedTestUser(t, fs, "ada@example.com", "ada")

	cases := []struct {
		name     string
		email    string
		username string
		want     string
	}{
		{"both taken", "ada@example.com", "ada", "Username and Email already exist."},
		{"email taken", "ada@example.com", "fresh", "Email already exists."},
		{"username taken", "fresh@example.com", "ada", "Username already exists."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), RegisterInput{
				Email:    tc.email,
				Username: tc.username,
				Password: "hunter22",
			})
			domainErr := asDomainError(t, err)
			if domainErr.Status != 409 {
				t.Fatalf("status = %d, want 409", domainErr.Status)
			}
			if domainErr.Message != tc.want {
				t.Fatalf("message = %q, want %q", domainErr.Message, tc.want)
			}
		})
	}
}

func TestRegisterMapsUniqueViolationToConflict(t *testing.T) {
	fs := newFakeStore()
	fs.createUserErr = &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
	svc := newTestService(fs)

	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "ada@example.com",
		Username: "ada",
		Password: "hunter22",
	})
	domainErr := asDomainError(t, err)
	if domainErr.Status != 409 || domainErr.Code != "CONFLICT" {
		t.Fatalf("got %d %s, want 409 CONFLICT", domainErr.Status, domainErr.Code)
	}
}

func TestRegisterRejectsMissingFields(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.Register(context.Background(), RegisterInput{Email: "  ", Username: "ada", Password: "x"})
	domainErr := asDomainError(t, err)
	if domainErr.Status != 422 {
		t.Fatalf("status = %d, want 422", domainErr.Status)
	}
}

func TestLoginVerifiesPassword(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	seeded := seedTestUser(t, fs, "ada@example.com", "ada")

	user, session, err := svc.Login(context.Background(), "ada@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.ID != seeded.ID {
		t.Fatalf("user id = %d, want %d", user.ID, seeded.ID)
	}
	if user.PasswordHash != "" {
		t.Fatal("password hash leaked in login response")
	}
	claims, err := auth.ParseToken([]byte("test-secret"), session.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Email != "ada@example.com" {
		t.Fatalf("token email = %q", claims.Email)
	}

	_, _, err = svc.Login(context.Background(), "ada@example.com", "wrong")
	domainErr := asDomainError(t, err)
	if domainErr.Status != 401 {
		t.Fatalf("wrong password status = %d, want 401", domainErr.Status)
	}

	_, _, err = svc.Login(context.Background(), "nobody@example.com", "hunter22")
	domainErr = asDomainError(t, err)
	if domainErr.Status != 404 {
		t.Fatalf("unknown user status = %d, want 404", domainErr.Status)
	}
}

func TestCreatePostValidation(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	user := seedTestUser(t, fs, "ada@example.com", "ada")

	if _, err := svc.CreatePost(context.Background(), 0, "hello"); asDomainError(t, err).Status != 401 {
		t.Fatal("expected 401 for missing identity")
	}
	if _, err := svc.CreatePost(context.Background(), user.ID, "   "); asDomainError(t, err).Status != 422 {
		t.Fatal("expected 422 for blank body")
	}

	post, err := svc.CreatePost(context.Background(), user.ID, "hello")
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if post.UserID != user.ID {
		t.Fatalf("post owner = %d, want %d", post.UserID, user.ID)
	}
}

func TestFeedForUserIsPrivate(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	owner := seedTestUser(t, fs, "ada@example.com", "ada")
	other := seedTestUser(t, fs, "bob@example.com", "bob")
	if _, err := svc.CreatePost(context.Background(), owner.ID, "mine"); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	if _, err := svc.FeedForUser(context.Background(), owner.ID, auth.Identity{}); asDomainError(t, err).Status != 401 {
		t.Fatal("expected 401 without identity")
	}
	if _, err := svc.FeedForUser(context.Background(), owner.ID, auth.Identity{UserID: other.ID}); asDomainError(t, err).Status != 403 {
		t.Fatal("expected 403 for a different identity")
	}

	posts, err := svc.FeedForUser(context.Background(), owner.ID, auth.Identity{UserID: owner.ID})
	if err != nil {
		t.Fatalf("FeedForUser: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("got %d posts, want 1", len(posts))
	}
	if posts[0].TimeAgo == "" {
		t.Fatal("expected timeAgo annotation")
	}
}

func TestToggleLikePairRestoresNotLiked(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	owner := seedTestUser(t, fs, "ada@example.com", "ada")
	viewer := seedTestUser(t, fs, "bob@example.com", "bob")
	post, err := svc.CreatePost(context.Background(), owner.ID, "toggle me")
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	state, err := svc.ToggleLike(context.Background(), post.ID, viewer.ID)
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if !state.Liked || state.LikeCount != 1 {
		t.Fatalf("after first toggle: %+v", state)
	}

	state, err = svc.ToggleLike(context.Background(), post.ID, viewer.ID)
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if state.Liked || state.LikeCount != 0 {
		t.Fatalf("after second toggle: %+v", state)
	}

	ids, err := svc.LikedPostIDs(context.Background(), viewer.ID)
	if err != nil {
		t.Fatalf("LikedPostIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("liked ids = %v, want none", ids)
	}
}

func TestToggleLikeRequiresIdentityAndPost(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)

	if _, err := svc.ToggleLike(context.Background(), 1, 0); asDomainError(t, err).Status != 401 {
		t.Fatal("expected 401 without identity")
	}
	if _, err := svc.ToggleLike(context.Background(), 999, 1); asDomainError(t, err).Status != 404 {
		t.Fatal("expected 404 for a missing post")
	}
}

func TestToggleLikeMapsTimeoutToPersistenceError(t *testing.T) {
	fs := newFakeStore()
	fs.toggleErr = context.DeadlineExceeded
	svc := newTestService(fs)

	_, err := svc.ToggleLike(context.Background(), 1, 1)
	domainErr := asDomainError(t, err)
	if domainErr.Status != 503 || domainErr.Code != "PERSISTENCE_ERROR" {
		t.Fatalf("got %d %s, want 503 PERSISTENCE_ERROR", domainErr.Status, domainErr.Code)
	}
}

func TestEditPostOwnershipGate(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	owner := seedTestUser(t, fs, "ada@example.com", "ada")
	other := seedTestUser(t, fs, "bob@example.com", "bob")
	post, err := svc.CreatePost(context.Background(), owner.ID, "original")
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	err = svc.EditPost(context.Background(), post.ID, auth.Identity{UserID: other.ID}, "hijacked")
	if asDomainError(t, err).Status != 403 {
		t.Fatal("expected 403 for non-owner edit")
	}
	got, _ := fs.GetPost(context.Background(), post.ID)
	if got.Content != "original" {
		t.Fatalf("content mutated to %q by refused edit", got.Content)
	}

	if err := svc.EditPost(context.Background(), post.ID, auth.Identity{UserID: owner.ID}, "updated"); err != nil {
		t.Fatalf("owner edit: %v", err)
	}
	got, _ = fs.GetPost(context.Background(), post.ID)
	if got.Content != "updated" {
		t.Fatalf("content = %q, want updated", got.Content)
	}
}

func TestDeletePostOwnershipGateAndCascade(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	owner := seedTestUser(t, fs, "ada@example.com", "ada")
	other := seedTestUser(t, fs, "bob@example.com", "bob")
	post, err := svc.CreatePost(context.Background(), owner.ID, "to delete")
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if _, err := svc.AddComment(context.Background(), post.ID, other.ID, "nice"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if _, err := svc.ToggleLike(context.Background(), post.ID, other.ID); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}

	err = svc.DeletePost(context.Background(), post.ID, auth.Identity{UserID: other.ID})
	if asDomainError(t, err).Status != 403 {
		t.Fatal("expected 403 for non-owner delete")
	}
	if len(fs.deleted) != 0 {
		t.Fatal("refused delete reached the store")
	}

	if err := svc.DeletePost(context.Background(), post.ID, auth.Identity{UserID: owner.ID}); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	comments, _ := svc.Comments(context.Background(), post.ID)
	if len(comments) != 0 {
		t.Fatalf("comments survived the cascade: %v", comments)
	}
	ids, _ := svc.LikedPostIDs(context.Background(), other.ID)
	if len(ids) != 0 {
		t.Fatalf("likes survived the cascade: %v", ids)
	}
	err = svc.DeletePost(context.Background(), post.ID, auth.Identity{UserID: owner.ID})
	if asDomainError(t, err).Status != 404 {
		t.Fatal("expected 404 deleting a deleted post")
	}
}

func TestCommentLifecycle(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	owner := seedTestUser(t, fs, "ada@example.com", "ada")
	commenter := seedTestUser(t, fs, "bob@example.com", "bob")
	post, err := svc.CreatePost(context.Background(), owner.ID, "discuss")
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	if _, err := svc.AddComment(context.Background(), 999, commenter.ID, "hello"); asDomainError(t, err).Status != 404 {
		t.Fatal("expected 404 commenting on a missing post")
	}
	if _, err := svc.AddComment(context.Background(), post.ID, 999, "hello"); err == nil {
		t.Fatal("expected an error commenting as an unknown user")
	} else if domainErr := asDomainError(t, err); domainErr.Status != 404 || domainErr.Message != "User not found." {
		t.Fatalf("unknown author got %d %q, want 404 User not found.", domainErr.Status, domainErr.Message)
	}
	if _, err := svc.AddComment(context.Background(), post.ID, commenter.ID, " "); asDomainError(t, err).Status != 422 {
		t.Fatal("expected 422 for a blank comment")
	}

	comment, err := svc.AddComment(context.Background(), post.ID, commenter.ID, "hello")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	err = svc.EditComment(context.Background(), comment.ID, auth.Identity{UserID: owner.ID}, "edited")
	if asDomainError(t, err).Status != 403 {
		t.Fatal("expected 403 for non-author comment edit")
	}
	if err := svc.EditComment(context.Background(), comment.ID, auth.Identity{UserID: commenter.ID}, "edited"); err != nil {
		t.Fatalf("author edit: %v", err)
	}

	comments, err := svc.Comments(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("Comments: %v", err)
	}
	if len(comments) != 1 || comments[0].Content != "edited" {
		t.Fatalf("comments = %+v", comments)
	}
	if comments[0].TimeAgo == "" {
		t.Fatal("expected timeAgo annotation")
	}

	err = svc.DeleteComment(context.Background(), comment.ID, auth.Identity{UserID: owner.ID})
	if asDomainError(t, err).Status != 403 {
		t.Fatal("expected 403 for non-author comment delete")
	}
	if err := svc.DeleteComment(context.Background(), comment.ID, auth.Identity{UserID: commenter.ID}); err != nil {
		t.Fatalf("author delete: %v", err)
	}
	comments, _ = svc.Comments(context.Background(), post.ID)
	if len(comments) != 0 {
		t.Fatalf("comment survived delete: %v", comments)
	}
}

// Walks a whole engagement round trip: author posts, a viewer toggles twice
// and settles back to not-liked, toggles once more, then the author deletes
// and the engagement rows go with the post.
func TestEngagementRoundTrip(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()

	author := seedTestUser(t, fs, "ada@example.com", "ada")
	viewer := seedTestUser(t, fs, "bob@example.com", "bob")

	post, err := svc.CreatePost(ctx, author.ID, "round trip")
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	for i, want := range []store.LikeState{
		{Liked: true, LikeCount: 1},
		{Liked: false, LikeCount: 0},
	} {
		state, err := svc.ToggleLike(ctx, post.ID, viewer.ID)
		if err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
		if state != want {
			t.Fatalf("toggle %d = %+v, want %+v", i, state, want)
		}
	}

	if _, err := svc.ToggleLike(ctx, post.ID, viewer.ID); err != nil {
		t.Fatalf("third toggle: %v", err)
	}
	if _, err := svc.AddComment(ctx, post.ID, viewer.ID, "still here"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	if err := svc.DeletePost(ctx, post.ID, auth.Identity{UserID: author.ID}); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}

	ids, err := svc.LikedPostIDs(ctx, viewer.ID)
	if err != nil {
		t.Fatalf("LikedPostIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("liked ids after delete = %v", ids)
	}
	comments, err := svc.Comments(ctx, post.ID)
	if err != nil {
		t.Fatalf("Comments: %v", err)
	}
	if len(comments) != 0 {
		t.Fatalf("comments after delete = %v", comments)
	}
}

func TestAuthenticateRejectsBadHeaders(t *testing.T) {
	svc := newTestService(newFakeStore())

	for _, header := range []string{"", "Bearer", "Bearer not-a-token", "Basic abc"} {
		if _, err := svc.Authenticate(header); err == nil {
			t.Fatalf("header %q accepted", header)
		}
	}

	token, err := auth.IssueToken([]byte("test-secret"), auth.Claims{Sub: 7, Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	identity, err := svc.Authenticate("Bearer " + token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity.UserID != 7 {
		t.Fatalf("identity = %+v", identity)
	}
}
