package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/harukimoto/spotclash/internal/dbconfig"
	"github.com/harukimoto/spotclash/internal/game"
	"github.com/harukimoto/spotclash/internal/models"
	"github.com/harukimoto/spotclash/internal/stations"
)

func main() {
	name := flag.String("name", "Test Game", "game name")
	station := flag.String("station", "Shibuya", "center station name")
	stationsFile := flag.String("stations", "assets/stations.yaml", "stations YAML path")
	schemaFile := flag.String("schema", "", "optional schema.sql to apply first")
	flag.Parse()

	_ = godotenv.Load()

	ctx := context.Background()

	table, err := stations.Load(*stationsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load stations: %v\n", err)
		os.Exit(1)
	}
	center, ok := table[*station]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown station %q (known: %v)\n", *station, table.Names())
		os.Exit(1)
	}

	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if *schemaFile != "" {
		schema, err := os.ReadFile(*schemaFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read schema: %v\n", err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(schema)); err != nil {
			fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("schema applied")
	}

	repo := game.NewRepository(pool)

	g := &models.Game{
		ID:            uuid.New(),
		Name:          *name,
		CenterStation: *station,
		Status:        models.GameStatusWaiting,
		MaxPlayers:    game.DefaultMaxPlayers,
		TimeLimit:     game.DefaultTimeLimit,
		RemainingTime: game.DefaultTimeLimit,
		CreatedAt:     time.Now().UTC(),
	}
	if err := repo.CreateGame(ctx, g); err != nil {
		fmt.Fprintf(os.Stderr, "create game: %v\n", err)
		os.Exit(1)
	}

	spots := game.SpotRing(g.ID, center, game.DefaultSpotCount)
	for _, sp := range spots {
		if err := repo.CreateSpot(ctx, sp); err != nil {
			fmt.Fprintf(os.Stderr, "create spot %s: %v\n", sp.Name, err)
			os.Exit(1)
		}
	}

	now := time.Now().UTC()
	sampl := []struct {
		user string
		team models.Team
	}{
		{"testuser1", models.TeamA},
		{"testuser2", models.TeamB},
	}
	for _, p := range sampl {
		player := &models.Player{
			ID:       uuid.New(),
			GameID:   g.ID,
			UserID:   p.user,
			Username: p.user,
			Team:     p.team,
			JoinedAt: now,
			LastSeen: now,
		}
		if err := repo.CreatePlayer(ctx, player); err != nil {
			fmt.Fprintf(os.Stderr, "create player %s: %v\n", p.user, err)
			os.Exit(1)
		}
	}

	fmt.Printf("created game %q (id: %s) with %d spots around %s and %d players\n",
		g.Name, g.ID, len(spots), *station, len(sampl))
}
