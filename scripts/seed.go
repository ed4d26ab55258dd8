package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/kolade/sitewatch/backend/internal/adapters/database"
	"github.com/kolade/sitewatch/backend/internal/application/services"
	"github.com/kolade/sitewatch/backend/internal/domain/entities"
	"github.com/kolade/sitewatch/backend/internal/infrastructure/clients/postgres"
	"github.com/kolade/sitewatch/backend/pkg/config"
)

// Seeds a demo project with a signup funnel and a week of synthetic traffic,
// then rebuilds its rollups so the stats queries have data to serve.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pgClient.Close()

	ctx := context.Background()

	if os.Getenv("RESET_DB") == "true" {
		log.Println("RESET_DB=true detected, truncating tables before seeding")
		_, err := pgClient.DB().ExecContext(ctx, `
			TRUNCATE TABLE
				events,
				rollup_overview,
				rollup_pages,
				rollup_visitors,
				rollup_page_visitors,
				funnel_steps,
				funnels
		`)
		if err != nil {
			log.Fatalf("Failed to truncate tables: %v", err)
		}
	}

	projectID := "demo-project"
	funnelID := seedFunnel(ctx, pgClient, projectID)

	eventRepo := database.NewEventAdapter(pgClient)
	funnelRepo := database.NewFunnelAdapter(pgClient)
	rollupRepo := database.NewRollupAdapter(pgClient)

	ingestion := services.NewIngestionService(eventRepo, funnelRepo, nil, nil, cfg.Ingest.MaxBatchSize)
	rollups := services.NewRollupService(rollupRepo, eventRepo, nil, nil, nil)

	pages := []struct {
		url  string
		path string
	}{
		{"https://demo.example.com/", "/"},
		{"https://demo.example.com/pricing", "/pricing"},
		{"https://demo.example.com/docs", "/docs"},
		{"https://demo.example.com/docs/quickstart", "/docs/quickstart"},
		{"https://demo.example.com/signup", "/signup"},
	}
	funnelSteps := []struct {
		path string
		key  string
	}{
		{"/", "landing"},
		{"/signup", "form"},
		{"/signup/done", "done"},
	}

	rng := rand.New(rand.NewSource(42))
	now := time.Now().UTC()
	total := 0

	for dayOffset := 7; dayOffset >= 1; dayOffset-- {
		day := now.AddDate(0, 0, -dayOffset)
		visitors := 20 + rng.Intn(30)

		batch := make([]entities.IngestEvent, 0, visitors)
		for v := 0; v < visitors; v++ {
			sessionID := fmt.Sprintf("seed-session-%s-%d", day.Format("0102"), v)
			pageViews := 1 + rng.Intn(4)
			for p := 0; p < pageViews; p++ {
				page := pages[rng.Intn(len(pages))]
				batch = append(batch, entities.IngestEvent{
					OccurredAt: day.Add(time.Duration(rng.Intn(86400)) * time.Second).Format(time.RFC3339),
					PageURL:    page.url,
					Path:       page.path,
					SessionID:  sessionID,
				})
			}
			// Roughly half the visitors enter the funnel, with drop-off
			// at each step.
			if rng.Intn(2) == 0 {
				depth := 1 + rng.Intn(len(funnelSteps))
				base := day.Add(time.Duration(rng.Intn(80000)) * time.Second)
				for s := 0; s < depth; s++ {
					step := funnelSteps[s]
					batch = append(batch, entities.IngestEvent{
						OccurredAt: base.Add(time.Duration(s) * time.Minute).Format(time.RFC3339),
						PageURL:    "https://demo.example.com" + step.path,
						Path:       step.path,
						SessionID:  sessionID,
						FunnelID:   funnelID,
						StepKey:    step.key,
					})
				}
			}
		}

		result, err := ingestion.Admit(ctx, projectID, batch)
		if err != nil {
			log.Fatalf("Failed to admit seed batch: %v", err)
		}
		total += result.Accepted
	}

	if err := rollups.RebuildRange(ctx, projectID, nil, nil); err != nil {
		log.Fatalf("Failed to rebuild rollups: %v", err)
	}

	log.Printf("Seeded %d events for project %s (funnel %s)", total, projectID, funnelID)
}

func seedFunnel(ctx context.Context, pgClient *postgres.Client, projectID string) string {
	funnelID := uuid.New().String()
	_, err := pgClient.DB().ExecContext(ctx,
		`INSERT INTO funnels (id, project_id, name) VALUES ($1, $2, $3)`,
		funnelID, projectID, "Signup")
	if err != nil {
		log.Fatalf("Failed to seed funnel: %v", err)
	}

	steps := []struct {
		key     string
		name    string
		order   int
		pattern string
	}{
		{"landing", "Landing", 0, "/"},
		{"form", "Signup form", 1, "/signup"},
		{"done", "Signup complete", 2, "/signup/done"},
	}
	for _, step := range steps {
		_, err := pgClient.DB().ExecContext(ctx,
			`INSERT INTO funnel_steps (funnel_id, step_key, name, step_order, page_pattern)
			 VALUES ($1, $2, $3, $4, $5)`,
			funnelID, step.key, step.name, step.order, step.pattern)
		if err != nil {
			log.Fatalf("Failed to seed funnel step %s: %v", step.key, err)
		}
	}
	return funnelID
}
