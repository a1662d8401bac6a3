package store

import (
	"context"
	"database/sql"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) UserExists(ctx context.Context, email, username string) (emailTaken, usernameTaken bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			EXISTS(SELECT 1 FROM users WHERE email=$1),
			EXISTS(SELECT 1 FROM users WHERE username=$2)
	`, email, username).Scan(&emailTaken, &usernameTaken)
	if err != nil {
		err = fmt.Errorf("check user exists: %w", err)
	}
	return
}

// CreateUser inserts the account row and its credential hash together; a
// user without a password row is never observable.
func (s *PostgresStore) CreateUser(ctx context.Context, user User, passwordHash string) (User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, fmt.Errorf("begin create user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (first_name, last_name, email, username, city)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, user.FirstName, user.LastName, user.Email, user.Username, user.City).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO passwords (pass_id, hashed_password)
		VALUES ($1, $2)
	`, user.ID, passwordHash); err != nil {
		return User{}, fmt.Errorf("insert password: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return User{}, fmt.Errorf("commit create user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.first_name, u.last_name, u.email, u.username, u.city, u.created_at, p.hashed_password
		FROM users u
		JOIN passwords p ON p.pass_id = u.id
		WHERE u.email=$1
	`, email).Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Username,
		&user.City,
		&user.CreatedAt,
		&user.PasswordHash,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, username, city, created_at
		FROM users
		WHERE id=$1
	`, userID).Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Username,
		&user.City,
		&user.CreatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) InsertPost(ctx context.Context, userID int64, content string) (Post, error) {
	post := Post{UserID: userID, Content: content}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO posts (user_id, content)
		VALUES ($1, $2)
		RETURNING id, like_count, created_at
	`, userID, content).Scan(&post.ID, &post.LikeCount, &post.CreatedAt)
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}
	return post, nil
}

func (s *PostgresStore) GetPost(ctx context.Context, postID int64) (Post, error) {
	var post Post
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, content, like_count, created_at
		FROM posts
		WHERE id=$1
	`, postID).Scan(&post.ID, &post.UserID, &post.Content, &post.LikeCount, &post.CreatedAt)
	if err != nil {
		return Post{}, err
	}
	return post, nil
}

func (s *PostgresStore) ListPostsByUser(ctx context.Context, userID int64) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.user_id, p.content, p.like_count, p.created_at, u.username
		FROM posts p
		JOIN users u ON u.id = p.user_id
		WHERE p.user_id=$1
		ORDER BY p.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list posts by user: %w", err)
	}
	defer rows.Close()

	items := make([]Post, 0)
	for rows.Next() {
		var item Post
		if err := rows.Scan(&item.ID, &item.UserID, &item.Content, &item.LikeCount, &item.CreatedAt, &item.Username); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return items, nil
}

// ListPostsWithLikeCounts is the global feed: the like count is computed
// from the likes relation, so posts with no likes still appear with 0.
func (s *PostgresStore) ListPostsWithLikeCounts(ctx context.Context) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.user_id, p.content, COALESCE(l.like_count, 0)::int, p.created_at, u.username
		FROM posts p
		JOIN users u ON u.id = p.user_id
		LEFT JOIN (
			SELECT post_id, COUNT(*) AS like_count
			FROM likes
			GROUP BY post_id
		) l ON l.post_id = p.id
		ORDER BY p.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list posts with like counts: %w", err)
	}
	defer rows.Close()

	items := make([]Post, 0)
	for rows.Next() {
		var item Post
		if err := rows.Scan(&item.ID, &item.UserID, &item.Content, &item.LikeCount, &item.CreatedAt, &item.Username); err != nil {
			return nil, fmt.Errorf("scan feed post: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed posts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdatePostContent(ctx context.Context, postID int64, content string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE posts SET content=$2 WHERE id=$1`, postID, content)
	if err != nil {
		return false, fmt.Errorf("update post content: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update post content rows: %w", err)
	}
	return affected > 0, nil
}

// DeletePostCascade removes the post and every row referencing it in
// dependency order, in one transaction, so no orphaned comments or likes
// survive a partial failure.
func (s *PostgresStore) DeletePostCascade(ctx context.Context, postID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete post: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE post_id=$1`, postID); err != nil {
		return fmt.Errorf("delete post comments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE post_id=$1`, postID); err != nil {
		return fmt.Errorf("delete post likes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id=$1`, postID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete post: %w", err)
	}
	return nil
}

// ToggleLike flips the (post, user) like state inside one transaction. The
// row mutation and the counter move together or not at all. The insert path
// relies on the likes(post_id, user_id) uniqueness constraint rather than a
// separate existence read, so a concurrent duplicate attempt lands on the
// conflict branch instead of double-counting: the like stands, the count is
// untouched, and the caller still gets the authoritative Liked state.
func (s *PostgresStore) ToggleLike(ctx context.Context, postID, userID int64) (LikeState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return LikeState{}, fmt.Errorf("begin toggle like: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM posts WHERE id=$1)`, postID).Scan(&exists); err != nil {
		return LikeState{}, fmt.Errorf("check post: %w", err)
	}
	if !exists {
		return LikeState{}, sql.ErrNoRows
	}

	removed, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE post_id=$1 AND user_id=$2`, postID, userID)
	if err != nil {
		return LikeState{}, fmt.Errorf("delete like: %w", err)
	}
	removedRows, err := removed.RowsAffected()
	if err != nil {
		return LikeState{}, fmt.Errorf("delete like rows: %w", err)
	}

	var state LikeState
	if removedRows > 0 {
		if err := tx.QueryRowContext(ctx, `
			UPDATE posts SET like_count = like_count - 1 WHERE id=$1 RETURNING like_count
		`, postID).Scan(&state.LikeCount); err != nil {
			return LikeState{}, fmt.Errorf("decrement like count: %w", err)
		}
		state.Liked = false
	} else {
		inserted, err := tx.ExecContext(ctx, `
			INSERT INTO likes (post_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (post_id, user_id) DO NOTHING
		`, postID, userID)
		if err != nil {
			return LikeState{}, fmt.Errorf("insert like: %w", err)
		}
		insertedRows, err := inserted.RowsAffected()
		if err != nil {
			return LikeState{}, fmt.Errorf("insert like rows: %w", err)
		}
		state.Liked = true
		if insertedRows > 0 {
			if err := tx.QueryRowContext(ctx, `
				UPDATE posts SET like_count = like_count + 1 WHERE id=$1 RETURNING like_count
			`, postID).Scan(&state.LikeCount); err != nil {
				return LikeState{}, fmt.Errorf("increment like count: %w", err)
			}
		} else {
			// A concurrent toggle inserted the row and already moved the count.
			if err := tx.QueryRowContext(ctx, `SELECT like_count FROM posts WHERE id=$1`, postID).Scan(&state.LikeCount); err != nil {
				return LikeState{}, fmt.Errorf("read like count: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return LikeState{}, fmt.Errorf("commit toggle like: %w", err)
	}
	return state, nil
}

func (s *PostgresStore) ListLikedPostIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT post_id FROM likes WHERE user_id=$1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list liked post ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan liked post id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate liked post ids: %w", err)
	}
	return ids, nil
}

// RepairLikeCounts recomputes like_count from the likes relation for any
// post whose cached counter has drifted, and reports how many were fixed.
func (s *PostgresStore) RepairLikeCounts(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts p
		SET like_count = actual.n
		FROM (
			SELECT p2.id, COALESCE(COUNT(l.id), 0)::int AS n
			FROM posts p2
			LEFT JOIN likes l ON l.post_id = p2.id
			GROUP BY p2.id
		) actual
		WHERE actual.id = p.id AND p.like_count <> actual.n
	`)
	if err != nil {
		return 0, fmt.Errorf("repair like counts: %w", err)
	}
	repaired, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repair like counts rows: %w", err)
	}
	return repaired, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, postID, userID int64, content string) (Comment, error) {
	comment := Comment{PostID: postID, UserID: userID, Content: content}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (post_id, user_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, postID, userID, content).Scan(&comment.ID, &comment.CreatedAt)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return comment, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID int64) (Comment, error) {
	var comment Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, post_id, user_id, content, created_at
		FROM comments
		WHERE id=$1
	`, commentID).Scan(&comment.ID, &comment.PostID, &comment.UserID, &comment.Content, &comment.CreatedAt)
	if err != nil {
		return Comment{}, err
	}
	return comment, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, postID int64) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, post_id, user_id, content, created_at
		FROM comments
		WHERE post_id=$1
		ORDER BY created_at DESC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.PostID, &item.UserID, &item.Content, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateCommentContent(ctx context.Context, commentID int64, content string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE comments SET content=$2 WHERE id=$1`, commentID, content)
	if err != nil {
		return false, fmt.Errorf("update comment content: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update comment content rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, commentID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
