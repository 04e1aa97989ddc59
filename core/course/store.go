package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/irsalhamdi/course-shop/database"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrVersionConflict is returned by Update when the row changed since it
// was read.
var ErrVersionConflict = errors.New("course was modified concurrently")

func Create(ctx context.Context, db sqlx.ExtContext, c Course) error {
	const q = `
	INSERT INTO courses
		(course_id, title, description, price, image_url, video_url, created_at, updated_at, version)
	VALUES
		(:course_id, :title, :description, :price, :image_url, :video_url, :created_at, :updated_at, :version)`

	if err := database.NamedExecContext(ctx, db, q, c); err != nil {
		return fmt.Errorf("inserting course: %w", err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Course, error) {
	const q = `
	SELECT course_id, title, description, price, image_url, video_url, created_at, updated_at, version
	FROM courses
	WHERE course_id = $1`

	var c Course
	if err := sqlx.GetContext(ctx, db, &c, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Course{}, database.ErrDBNotFound
		}
		return Course{}, fmt.Errorf("selecting course[%s]: %w", id, err)
	}
	return c, nil
}

// FetchMany returns the courses matching ids. Ids with no course are simply
// absent from the result.
func FetchMany(ctx context.Context, db sqlx.ExtContext, ids []string) ([]Course, error) {
	const q = `
	SELECT course_id, title, description, price, image_url, video_url, created_at, updated_at, version
	FROM courses
	WHERE course_id = ANY($1::uuid[])
	ORDER BY created_at, course_id`

	cs := []Course{}
	if len(ids) == 0 {
		return cs, nil
	}
	if err := sqlx.SelectContext(ctx, db, &cs, q, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("selecting courses: %w", err)
	}
	return cs, nil
}

func Query(ctx context.Context, db sqlx.ExtContext) ([]Course, error) {
	const q = `
	SELECT course_id, title, description, price, image_url, video_url, created_at, updated_at, version
	FROM courses
	ORDER BY created_at DESC, course_id`

	cs := []Course{}
	if err := sqlx.SelectContext(ctx, db, &cs, q); err != nil {
		return nil, fmt.Errorf("selecting courses: %w", err)
	}
	return cs, nil
}

// Update writes c if its Version still matches the stored row and bumps
// the version.
func Update(ctx context.Context, db sqlx.ExtContext, c Course) error {
	const q = `
	UPDATE courses
	SET
		title = :title,
		description = :description,
		price = :price,
		image_url = :image_url,
		video_url = :video_url,
		updated_at = :updated_at,
		version = version + 1
	WHERE course_id = :course_id AND version = :version`

	res, err := sqlx.NamedExecContext(ctx, db, q, c)
	if err != nil {
		return fmt.Errorf("updating course[%s]: %w", c.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update of course[%s]: %w", c.ID, err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

// Delete removes the course. Orders keep their own copy of title and price
// so nothing else is touched.
func Delete(ctx context.Context, db sqlx.ExtContext, id string) error {
	const q = `DELETE FROM courses WHERE course_id = $1`

	res, err := db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("deleting course[%s]: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete of course[%s]: %w", id, err)
	}
	if n == 0 {
		return database.ErrDBNotFound
	}
	return nil
}
