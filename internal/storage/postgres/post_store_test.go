package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/carbuzz/internal/tabular"
)

func postRow(url string, at time.Time) tabular.PostRow {
	return tabular.PostRow{
		Site:       "clien",
		Datetime:   at.UnixMilli(),
		Model:      "그랜저",
		Title:      "t-" + url,
		URL:        url,
		Popularity: 1.5,
		Views:      10,
		Positive:   2,
		Negative:   1,
	}
}

func argsFor(r tabular.PostRow) []any {
	return []any{
		r.Site, time.UnixMilli(r.Datetime).UTC(), r.Model, r.Title, r.URL,
		r.Popularity, r.Views, r.Positive, r.Negative,
	}
}

func TestInsertPostsBatches(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostStoreWithPool(mock, "live_posts", 2)
	require.NoError(t, err)

	at := time.Date(2024, 10, 17, 12, 0, 0, 0, time.UTC)
	rows := []tabular.PostRow{postRow("a", at), postRow("b", at), postRow("c", at)}

	first := append(argsFor(rows[0]), argsFor(rows[1])...)
	mock.ExpectExec(`INSERT INTO live_posts \(site,datetime,model,title,url,popularity,views,positive,negative\) VALUES \(\$1`).
		WithArgs(first...).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec(`INSERT INTO live_posts`).
		WithArgs(argsFor(rows[2])...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	n, err := store.InsertPosts(context.Background(), rows)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPostsError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostStoreWithPool(mock, "", 0)
	require.NoError(t, err)

	row := postRow("a", time.Unix(1700000000, 0))
	mock.ExpectExec("INSERT INTO posts").
		WithArgs(argsFor(row)...).
		WillReturnError(errors.New("relation does not exist"))

	n, err := store.InsertPosts(context.Background(), []tabular.PostRow{row})
	require.Error(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPostsEmpty(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostStoreWithPool(mock, "posts", 10)
	require.NoError(t, err)
	n, err := store.InsertPosts(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPostStoreWithPool(nil, "posts", 1)
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostStoreWithPool(mock, "posts; drop table x", 1)
	require.Error(t, err)

	store, err := NewPostStoreWithPool(mock, "analytics.posts", 1)
	require.NoError(t, err)
	require.Equal(t, "analytics.posts", store.table)

	_, err = NewPostStore(context.Background(), Config{})
	require.Error(t, err)
}
