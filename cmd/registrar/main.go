// Command registrar is the process entrypoint, replacing the teacher's
// cmd/server/main.go: loads configuration, wires the Repository (Postgres
// if POSTGRESQL_URI is set, otherwise the in-memory default),
// constructs the Orchestrator/EventBus/Projector/Notifier graph, starts the
// HTTP+WS server, and runs the same two background ticker loops the
// teacher's main.go starts (hold expiry every 30s, reconciliation hourly).
package main

import (
	"context"
	"os"
	"time"

	"github.com/coursereg/registrar/internal/config"
	"github.com/coursereg/registrar/internal/domain"
	"github.com/coursereg/registrar/internal/eventbus"
	"github.com/coursereg/registrar/internal/notify"
	"github.com/coursereg/registrar/internal/orchestrator"
	"github.com/coursereg/registrar/internal/projector"
	"github.com/coursereg/registrar/internal/scoring"
	"github.com/coursereg/registrar/internal/storage"
	"github.com/coursereg/registrar/internal/storage/memory"
	"github.com/coursereg/registrar/internal/storage/postgres"
	"github.com/coursereg/registrar/internal/waitlist"
	"github.com/coursereg/registrar/pkg/logging"
	apiserver "github.com/coursereg/registrar/internal/api/server"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// repoStudentNamer adapts storage.Repository to the projector's
// studentNamer interface.
type repoStudentNamer struct {
	repo storage.Repository
}

func (n repoStudentNamer) StudentName(ctx context.Context, studentID string) string {
	student, err := n.repo.GetStudent(ctx, studentID)
	if err != nil {
		return ""
	}
	return student.Name
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("main: failed to load configuration")
	}
	logging.Setup(cfg.Env, "info")
	// AuthMiddleware reads JWT_SECRET directly from the environment, matching
	// the teacher's verify_auth.go; ensure the resolved/defaulted value is
	// actually visible to it.
	os.Setenv("JWT_SECRET", cfg.JWTSecret)

	var repo storage.Repository
	var pool *pgxpool.Pool
	if cfg.DBURI != "" {
		pool, err = pgxpool.New(ctx, cfg.DBURI)
		if err != nil {
			log.Fatal().Err(err).Msg("main: unable to create pgx pool")
		}
		defer pool.Close()
		repo = postgres.New(pool)
		log.Info().Msg("main: using postgres repository")
	} else {
		mem := memory.New()
		seedDevelopmentData(mem)
		repo = mem
		log.Info().Msg("main: using in-memory repository (no POSTGRESQL_URI set)")
	}

	scorer := scoring.NewEngine(scoring.DefaultWeights())
	wl := waitlist.New(scorer)
	bus := eventbus.New()
	proj := projector.New(repo, repoStudentNamer{repo: repo})
	notifier := notify.New(notify.NewMailer("smtp.gmail.com", 587, cfg.GmailUser, cfg.GmailPass), "https://app.coursereg.internal")

	orch := orchestrator.New(repo, scorer, wl, bus, proj, notifier)

	go runTicker(ctx, cfg.HoldExpiryInterval, "hold expiry", func(ctx context.Context) {
		orch.ExpireHolds(ctx)
	})
	go runTicker(ctx, cfg.ReconcileInterval, "reconcile", func(ctx context.Context) {
		if err := orch.Reconcile(ctx); err != nil {
			log.Warn().Err(err).Msg("main: reconcile loop error")
		}
	})

	srv := apiserver.NewServer(apiserver.Config{Port: cfg.Port, JWTSecret: cfg.JWTSecret}, apiserver.Deps{
		Orchestrator: orch,
		Repo:         repo,
		Waitlist:     wl,
		Bus:          bus,
	})
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("main: server exited with error")
	}
}

func runTicker(ctx context.Context, interval time.Duration, name string, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("loop", name).Msg("main: background loop stopping")
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// seedDevelopmentData gives the in-memory repository a couple of courses
// and students so the API is immediately exercisable without a database,
// matching the teacher's tendency to keep a runnable local setup.
func seedDevelopmentData(mem *memory.Store) {
	now := time.Now()
	mem.SeedStudent(domain.Student{
		ID: "stu-1", RollNumber: "21BCE001", Email: "asha@example.edu", Name: "Asha Rao",
		GPA: 3.7, YearOfStudy: 2, Branch: "CSE", Interests: []string{"distributed systems", "databases"},
	})
	mem.SeedStudent(domain.Student{
		ID: "stu-2", RollNumber: "21BCE002", Email: "rohan@example.edu", Name: "Rohan Mehta",
		GPA: 2.9, YearOfStudy: 3, Branch: "ECE", Interests: []string{"networks"},
	})
	mem.SeedCourse(domain.Course{
		ID: "CS101", Name: "Distributed Systems", Category: "core", Difficulty: domain.Advanced,
		MinGPARecommended: 7.5, Keywords: []string{"distributed systems", "consensus"},
		Weekdays: []string{"Mon", "Wed"}, StartTime: "09:00", EndTime: "10:30",
		Seats: domain.SeatConfig{CourseID: "CS101", Rows: 2, SeatsPerRow: 2, BookingStatus: "CLOSED", BookingOpensAt: &now},
	})
}
