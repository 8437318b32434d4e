package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "lumina",
			"POSTGRES_PASSWORD": "lumina",
			"POSTGRES_DB":       "lumina",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })
	host, err := pg.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return fmt.Sprintf("postgres://lumina:lumina@%s:%s/lumina?sslmode=disable", host, port.Port())
}

func migrationsDir(t *testing.T) string {
	t.Helper()
	cwd, _ := os.Getwd()
	for i := 0; i < 6; i++ {
		candidate := filepath.Join(cwd, "migrations")
		if st, err := os.Stat(candidate); err == nil && st.IsDir() {
			return "file://" + candidate
		}
		cwd = filepath.Dir(cwd)
	}
	t.Fatalf("could not locate migrations directory from test cwd")
	return ""
}

func TestStoreAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	ctx := context.Background()
	dsn := startPostgres(t, ctx)

	m, err := migrate.New(migrationsDir(t), dsn)
	if err != nil {
		t.Fatalf("migrate.New: %v", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migrate up: %v", err)
	}

	st, err := NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("NewWithDSN: %v", err)
	}
	defer st.Close()

	alice, err := st.CreateUser(ctx, "alice@example.com", "Alice", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if alice.Role != RoleUser {
		t.Fatalf("expected default role, got %q", alice.Role)
	}
	if _, err := st.CreateUser(ctx, "ALICE@example.com", "Again", "hash"); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}

	past := time.Now().Add(-time.Minute)
	post, err := st.CreatePost(ctx, NewPost{
		Title: "Hello", Slug: "hello-1", Content: "<p>hi</p>", Summary: "hi",
		Tags: []string{"go"}, Status: StatusScheduled, ScheduledAt: &past, AuthorID: alice.ID,
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if post.AuthorName != "Alice" || post.Author == nil || post.Author.Email != "alice@example.com" {
		t.Fatalf("author not joined: %+v", post)
	}

	if _, err := st.CreateComment(ctx, post.ID, alice.ID, "first"); err != nil {
		t.Fatalf("CreateComment: %v", err)
	}
	got, err := st.GetPost(ctx, post.ID)
	if err != nil || len(got.Comments) != 1 {
		t.Fatalf("GetPost: %v %+v", err, got.Comments)
	}

	ids, err := st.PublishDuePosts(ctx, time.Now())
	if err != nil || len(ids) != 1 || ids[0] != post.ID {
		t.Fatalf("PublishDuePosts: %v %v", ids, err)
	}

	if err := st.DeletePost(ctx, post.ID); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	if _, err := st.GetPost(ctx, post.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
