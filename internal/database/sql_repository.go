// internal/database/sql_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"twiller/internal/models"
	"twiller/internal/utils"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type userRow struct {
	Email        string `db:"email"`
	Name         string `db:"name"`
	Username     string `db:"username"`
	Bio          string `db:"bio"`
	Location     string `db:"location"`
	Website      string `db:"website"`
	DOB          string `db:"dob"`
	ProfileImage string `db:"profile_image"`
	CoverImage   string `db:"cover_image"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (r *userRow) toModel() *models.User {
	return &models.User{
		Email:        r.Email,
		Name:         r.Name,
		Username:     r.Username,
		Bio:          r.Bio,
		Location:     r.Location,
		Website:      r.Website,
		DOB:          r.DOB,
		ProfileImage: r.ProfileImage,
		CoverImage:   r.CoverImage,
		CreatedAt:    fromUnixNano(r.CreatedAt),
		UpdatedAt:    fromUnixNano(r.UpdatedAt),
	}
}

type postRow struct {
	ID              string `db:"id"`
	AuthorEmail     string `db:"author_email"`
	Body            string `db:"body"`
	Photo           string `db:"photo"`
	DisplayName     string `db:"display_name"`
	DisplayUsername string `db:"display_username"`
	AvatarURL       string `db:"avatar_url"`
	PublicSpace     bool   `db:"public_space"`
	CreatedAt       int64  `db:"created_at"`
}

func (r *postRow) toModel() (*models.Post, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid post ID: %w", err)
	}
	return &models.Post{
		ID:              id,
		AuthorID:        r.AuthorEmail,
		Body:            r.Body,
		Photo:           r.Photo,
		DisplayName:     r.DisplayName,
		DisplayUsername: r.DisplayUsername,
		AvatarURL:       r.AvatarURL,
		PublicSpace:     r.PublicSpace,
		CreatedAt:       fromUnixNano(r.CreatedAt),
	}, nil
}

type followRow struct {
	ID        string `db:"id"`
	Follower  string `db:"follower"`
	Following string `db:"following"`
	CreatedAt int64  `db:"created_at"`
}

func (r *followRow) toModel() (*models.Follow, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid follow ID: %w", err)
	}
	return &models.Follow{
		ID:        id,
		Follower:  r.Follower,
		Following: r.Following,
		CreatedAt: fromUnixNano(r.CreatedAt),
	}, nil
}

const (
	userColumns   = `email, name, username, bio, location, website, dob, profile_image, cover_image, created_at, updated_at`
	postColumns   = `id, author_email, body, photo, display_name, display_username, avatar_url, public_space, created_at`
	followColumns = `id, follower, following, created_at`
)

// --- Users ---

const upsertUserQuery = `
	INSERT INTO users (` + userColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (email) DO UPDATE SET
		name = excluded.name,
		username = excluded.username,
		bio = excluded.bio,
		location = excluded.location,
		website = excluded.website,
		dob = excluded.dob,
		profile_image = excluded.profile_image,
		cover_image = excluded.cover_image,
		updated_at = excluded.updated_at`

func upsertUser(ctx context.Context, ext sqlx.ExtContext, u *models.User) error {
	_, err := ext.ExecContext(ctx, ext.Rebind(upsertUserQuery),
		u.Email, u.Name, u.Username, u.Bio, u.Location, u.Website, u.DOB,
		u.ProfileImage, u.CoverImage, unixNano(u.CreatedAt), unixNano(u.UpdatedAt))
	return err
}

// SaveUser creates or replaces a profile, keeping the stored created_at.
func (s *SQLStore) SaveUser(ctx context.Context, user *models.User) error {
	return utils.NewDatabaseError("save user", upsertUser(ctx, s.DB, user))
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var row userRow
	query := s.DB.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ?`)
	err := s.DB.GetContext(ctx, &row, query, email)
	if err == sql.ErrNoRows {
		return nil, utils.NewUserNotFoundError(email)
	}
	if err != nil {
		return nil, utils.NewDatabaseError("get user", err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	var rows []userRow
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC, email ASC`
	if err := s.DB.SelectContext(ctx, &rows, query); err != nil {
		return nil, utils.NewDatabaseError("list users", err)
	}

	users := make([]*models.User, 0, len(rows))
	for i := range rows {
		users = append(users, rows[i].toModel())
	}
	return users, nil
}

// UpdateUser reads, patches and writes the profile in one transaction.
func (s *SQLStore) UpdateUser(ctx context.Context, email string, upd *models.UserUpdate, at time.Time) (bool, error) {
	upserted := false
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var row userRow
		query := tx.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ?`)
		err := tx.GetContext(ctx, &row, query, email)

		var user *models.User
		switch {
		case err == sql.ErrNoRows:
			upserted = true
			user = &models.User{Email: email, CreatedAt: at}
		case err != nil:
			return err
		default:
			user = row.toModel()
		}

		upd.Apply(user)
		user.UpdatedAt = at
		return upsertUser(ctx, tx, user)
	})
	if err != nil {
		return false, utils.NewDatabaseError("update user", err)
	}
	return upserted, nil
}

// --- Posts ---

func (s *SQLStore) CreatePost(ctx context.Context, post *models.Post) (uuid.UUID, error) {
	preparePost(post)

	query := s.DB.Rebind(`INSERT INTO posts (` + postColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.DB.ExecContext(ctx, query,
		post.ID.String(), post.AuthorID, post.Body, post.Photo, post.DisplayName,
		post.DisplayUsername, post.AvatarURL, post.PublicSpace, unixNano(post.CreatedAt))
	if isUniqueViolation(err) {
		return uuid.Nil, utils.NewDuplicateError("post "+post.ID.String(), err)
	}
	if err != nil {
		return uuid.Nil, utils.NewDatabaseError("create post", err)
	}
	return post.ID, nil
}

func (s *SQLStore) ListPosts(ctx context.Context) ([]*models.Post, error) {
	return s.selectPosts(ctx, `SELECT `+postColumns+` FROM posts ORDER BY created_at DESC, id DESC`)
}

func (s *SQLStore) ListPostsByAuthor(ctx context.Context, email string) ([]*models.Post, error) {
	return s.selectPosts(ctx,
		`SELECT `+postColumns+` FROM posts WHERE author_email = ? ORDER BY created_at DESC, id DESC`, email)
}

func (s *SQLStore) CountPosts(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM posts`); err != nil {
		return 0, utils.NewDatabaseError("count posts", err)
	}
	return n, nil
}

func (s *SQLStore) selectPosts(ctx context.Context, query string, args ...interface{}) ([]*models.Post, error) {
	var rows []postRow
	if err := s.DB.SelectContext(ctx, &rows, s.DB.Rebind(query), args...); err != nil {
		return nil, utils.NewDatabaseError("list posts", err)
	}

	posts := make([]*models.Post, 0, len(rows))
	for i := range rows {
		post, err := rows[i].toModel()
		if err != nil {
			s.logger.Error().Err(err).Str("postId", rows[i].ID).Msg("Error converting post row")
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// --- Follows ---

// Follow inserts the edge unless the pair exists; the unique constraint settles races.
func (s *SQLStore) Follow(ctx context.Context, follower, following string, at time.Time) (*models.Follow, bool, error) {
	insert := s.DB.Rebind(`INSERT INTO follows (` + followColumns + `) VALUES (?, ?, ?, ?)
		ON CONFLICT (follower, following) DO NOTHING`)
	result, err := s.DB.ExecContext(ctx, insert, uuid.New().String(), follower, following, unixNano(at))
	if err != nil {
		return nil, false, utils.NewDatabaseError("follow", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, utils.NewDatabaseError("follow", err)
	}

	var row followRow
	query := s.DB.Rebind(`SELECT ` + followColumns + ` FROM follows WHERE follower = ? AND following = ?`)
	if err := s.DB.GetContext(ctx, &row, query, follower, following); err != nil {
		return nil, false, utils.NewDatabaseError("follow", err)
	}
	edge, err := row.toModel()
	if err != nil {
		return nil, false, utils.NewDatabaseError("follow", err)
	}
	return edge, affected > 0, nil
}

func (s *SQLStore) Unfollow(ctx context.Context, follower, following string) (int, error) {
	query := s.DB.Rebind(`DELETE FROM follows WHERE follower = ? AND following = ?`)
	result, err := s.DB.ExecContext(ctx, query, follower, following)
	if err != nil {
		return 0, utils.NewDatabaseError("unfollow", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, utils.NewDatabaseError("unfollow", err)
	}
	return int(n), nil
}

func (s *SQLStore) FollowerCount(ctx context.Context, email string) (int, error) {
	var n int
	query := s.DB.Rebind(`SELECT COUNT(*) FROM follows WHERE following = ?`)
	if err := s.DB.GetContext(ctx, &n, query, email); err != nil {
		return 0, utils.NewDatabaseError("count followers", err)
	}
	return n, nil
}

func (s *SQLStore) ListFollowers(ctx context.Context, email string) ([]*models.Follow, error) {
	return s.selectFollows(ctx,
		`SELECT `+followColumns+` FROM follows WHERE following = ? ORDER BY created_at ASC, id ASC`, email)
}

func (s *SQLStore) ListFollowing(ctx context.Context, email string) ([]*models.Follow, error) {
	return s.selectFollows(ctx,
		`SELECT `+followColumns+` FROM follows WHERE follower = ? ORDER BY created_at ASC, id ASC`, email)
}

func (s *SQLStore) selectFollows(ctx context.Context, query string, args ...interface{}) ([]*models.Follow, error) {
	var rows []followRow
	if err := s.DB.SelectContext(ctx, &rows, s.DB.Rebind(query), args...); err != nil {
		return nil, utils.NewDatabaseError("list follows", err)
	}

	edges := make([]*models.Follow, 0, len(rows))
	for i := range rows {
		edge, err := rows[i].toModel()
		if err != nil {
			s.logger.Error().Err(err).Str("followId", rows[i].ID).Msg("Error converting follow row")
			continue
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

// --- Daily posts ---

func (s *SQLStore) RecordPost(ctx context.Context, email, day string, at time.Time) error {
	query := s.DB.Rebind(`INSERT INTO daily_posts (id, user_email, day, recorded_at) VALUES (?, ?, ?, ?)`)
	_, err := s.DB.ExecContext(ctx, query, uuid.New().String(), email, day, unixNano(at))
	return utils.NewDatabaseError("record daily post", err)
}

func (s *SQLStore) CountPostsToday(ctx context.Context, email, day string) (int, error) {
	var n int
	query := s.DB.Rebind(`SELECT COUNT(*) FROM daily_posts WHERE user_email = ? AND day = ?`)
	if err := s.DB.GetContext(ctx, &n, query, email, day); err != nil {
		return 0, utils.NewDatabaseError("count daily posts", err)
	}
	return n, nil
}
