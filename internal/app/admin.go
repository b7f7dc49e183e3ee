package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/lingoswap/backend/internal/config"
	"github.com/lingoswap/backend/internal/models"
	"github.com/lingoswap/backend/internal/relationships"
	"github.com/lingoswap/backend/internal/repositories"
)

// openAdminStores loads configuration and connects the stores an operator command works on.
// These commands only make sense against the shared database.
func openAdminStores(ctx context.Context) (stores, config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return stores{}, config.Config{}, nil, err
	}
	setupLogger(cfg)

	if cfg.Store == config.StoreMemory {
		return stores{}, cfg, nil, errors.New("maintenance commands require the postgres store")
	}

	pool, closePool, err := openPool(ctx, cfg)
	if err != nil {
		return stores{}, cfg, nil, err
	}
	return buildStores(pool, cfg), cfg, closePool, nil
}

func runReconcile(ctx context.Context) error {
	s, cfg, closeStores, err := openAdminStores(ctx)
	if err != nil {
		return err
	}
	defer closeStores()

	return reconcile(ctx, newEngine(s, cfg), stdout)
}

func runInspect(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("expected two users to inspect (id or username)")
	}

	s, cfg, closeStores, err := openAdminStores(ctx)
	if err != nil {
		return err
	}
	defer closeStores()

	return inspect(ctx, s.users, newEngine(s, cfg), args[0], args[1], stdout)
}

func runOnboardAll(ctx context.Context) error {
	s, _, closeStores, err := openAdminStores(ctx)
	if err != nil {
		return err
	}
	defer closeStores()

	return onboardAll(ctx, s.users, stdout)
}

func reconcile(ctx context.Context, engine *relationships.Engine, w io.Writer) error {
	report, err := engine.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconcile friendships: %w", err)
	}

	fmt.Fprintf(w, "scanned %d one-sided friendship edges\n", report.Scanned)
	for _, edge := range report.Repaired {
		fmt.Fprintf(w, "repaired %s <-> %s\n", edge.UserID, edge.FriendID)
	}
	for _, edge := range report.Removed {
		fmt.Fprintf(w, "removed stray edge %s -> %s\n", edge.UserID, edge.FriendID)
	}
	return nil
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
}

// resolveUser accepts either a user id or a username.
func resolveUser(ctx context.Context, users userFinder, ref string) (models.User, error) {
	user, err := users.FindByID(ctx, ref)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return models.User{}, err
	}

	user, err = users.FindByUsername(ctx, models.NormalizeIdentity(ref))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.User{}, fmt.Errorf("user %q not found", ref)
		}
		return models.User{}, err
	}
	return user, nil
}

func inspect(ctx context.Context, users userFinder, engine *relationships.Engine, refA, refB string, w io.Writer) error {
	a, err := resolveUser(ctx, users, refA)
	if err != nil {
		return err
	}
	b, err := resolveUser(ctx, users, refB)
	if err != nil {
		return err
	}

	rel, err := engine.Inspect(ctx, a.ID, b.ID)
	if err != nil {
		return fmt.Errorf("inspect relationship: %w", err)
	}

	fmt.Fprintf(w, "%s (%s) has %s as friend: %t\n", rel.UserA.Username, rel.UserA.ID, rel.UserB.Username, rel.AFriendsB)
	fmt.Fprintf(w, "%s (%s) has %s as friend: %t\n", rel.UserB.Username, rel.UserB.ID, rel.UserA.Username, rel.BFriendsA)
	fmt.Fprintf(w, "symmetric: %t\n", rel.Symmetric)
	fmt.Fprintf(w, "pending %s -> %s: %s\n", rel.UserA.Username, rel.UserB.Username, describeRequest(rel.RequestAToB))
	fmt.Fprintf(w, "pending %s -> %s: %s\n", rel.UserB.Username, rel.UserA.Username, describeRequest(rel.RequestBToA))
	if !rel.Symmetric {
		fmt.Fprintln(w, "friendship is one-sided; run `lingoswap reconcile` to repair")
	}
	return nil
}

func describeRequest(req *models.FriendRequest) string {
	if req == nil {
		return "none"
	}
	return fmt.Sprintf("%s (created %s)", req.ID, req.CreatedAt.Format("2006-01-02 15:04:05"))
}

type onboarder interface {
	MarkOnboarded(ctx context.Context) (int64, error)
}

func onboardAll(ctx context.Context, users onboarder, w io.Writer) error {
	updated, err := users.MarkOnboarded(ctx)
	if err != nil {
		return fmt.Errorf("mark users onboarded: %w", err)
	}
	fmt.Fprintf(w, "marked %d users as onboarded\n", updated)
	return nil
}
