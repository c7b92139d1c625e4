package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	loremgen "github.com/bozaro/golorem"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"tandem/internal/config"
	"tandem/internal/domain/models"
	"tandem/internal/repository/postgres"
)

func main() {
	// Parse command-line flags
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed demo sessions (for use with deploy scripts)")
	clearData := flag.Bool("clear-data", false, "Clear all messages and sessions (keep schema)")
	flag.Parse()

	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatalf("TANDEM_DATABASE_URL is not set; the in-memory stores need no seeding")
	}

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "production" && (*dropTables || *clearData) {
		log.Fatalf("🚫 BLOCKED: Cannot run destructive operations (--drop-tables or --clear-data) in production environment")
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *clearData {
		log.Printf("🧹 Clearing data only (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	} else if *schemaOnly {
		log.Printf("🏗️  Setting up schema only (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	} else {
		log.Printf("🌱 Seeding database (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	}

	// Create database connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Create table names
	tables := postgres.NewTableNames(cfg.TablePrefix)

	// Drop tables if requested
	if *dropTables {
		log.Println("🗑️  Dropping all tables...")
		if err := dropAllTables(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Println("✅ Tables dropped")
	}

	// Run schema to ensure tables exist
	log.Println("📋 Ensuring database schema is up to date...")
	if err := runSchema(ctx, pool, tables, cfg.TablePrefix); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}
	log.Println("✅ Schema ready")

	// Exit early if schema-only mode (the server never touches schema)
	if *schemaOnly {
		log.Println("✅ Schema setup complete (schema-only mode)")
		return
	}

	// Exit early if clear-data mode (just clear and exit)
	if *clearData {
		log.Println("🧹 Clearing existing messages and sessions...")
		if err := clearAllData(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to clear data: %v", err)
		}
		log.Println("✅ Data cleared successfully")
		return
	}

	// Create the session store
	store := postgres.NewSessionStore(postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	})

	// Seed sessions. Each one can be pulled into a fresh agent with
	// load_session once the server is up.
	log.Println("📝 Seeding demo sessions...")

	sessions := getSeedSessions()

	for i, s := range sessions {
		if err := store.Save(ctx, s); err != nil {
			log.Printf("❌ Failed to save session '%s': %v", s.Name, err)
			continue
		}
		log.Printf("✅ Saved session %d/%d: %s (agent: %s, messages: %d)",
			i+1, len(sessions), s.Name, s.AgentID, len(s.Messages))
	}

	log.Println("🎉 Seeding complete!")
}

// runSchema creates tables if they don't exist
func runSchema(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames, tablePrefix string) error {
	// Create messages table. The (agent_id, idx) key is what the
	// append statement's index subquery relies on.
	createMessages := `
		CREATE TABLE IF NOT EXISTS ` + tables.Messages + ` (
			agent_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_call_id TEXT,
			meta JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (agent_id, idx)
		)
	`
	if _, err := pool.Exec(ctx, createMessages); err != nil {
		return err
	}

	// Create sessions table. A snapshot's messages live inside the row
	// as one jsonb document; sessions are read and written whole.
	createSessions := `
		CREATE TABLE IF NOT EXISTS ` + tables.Sessions + ` (
			name TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			messages JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := pool.Exec(ctx, createSessions); err != nil {
		return err
	}

	// Create indexes
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `sessions_updated ON ` + tables.Sessions + `(updated_at DESC)`,
	}

	for _, indexSQL := range indexes {
		if _, err := pool.Exec(ctx, indexSQL); err != nil {
			return err
		}
	}

	return nil
}

// dropAllTables drops all tables
func dropAllTables(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	tableNames := []string{
		tables.Messages,
		tables.Sessions,
	}

	for _, table := range tableNames {
		dropSQL := "DROP TABLE IF EXISTS " + table + " CASCADE"
		if _, err := pool.Exec(ctx, dropSQL); err != nil {
			return err
		}
		log.Printf("  ✓ Dropped %s", table)
	}

	return nil
}

// clearAllData clears all messages and sessions
func clearAllData(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	// Delete messages
	_, err := pool.Exec(ctx, "DELETE FROM "+tables.Messages)
	if err != nil {
		return err
	}

	// Delete sessions
	_, err = pool.Exec(ctx, "DELETE FROM "+tables.Sessions)
	if err != nil {
		return err
	}

	return nil
}

// getSeedSessions builds the demo snapshots. Assistant prose comes from
// the same generator the lorem engine streams from, so a loaded session
// reads like real engine output.
func getSeedSessions() []*models.Session {
	gen := loremgen.New()

	return []*models.Session{
		{
			Name:    "welcome",
			AgentID: "demo",
			Messages: stamp([]models.Message{
				{Role: models.RoleUser, Content: "Hello! What can you do?"},
				{Role: models.RoleAssistant, Content: gen.Sentence(8, 14) + " " + gen.Sentence(5, 12)},
				{Role: models.RoleUser, Content: "Show me a longer answer."},
				{Role: models.RoleAssistant, Content: gen.Paragraph(3, 5)},
			}),
		},
		{
			Name:    "tool-walkthrough",
			AgentID: "demo",
			Messages: stamp([]models.Message{
				{Role: models.RoleUser, Content: "Read the project notes and append a summary."},
				{Role: models.RoleAssistant, Content: gen.Sentence(6, 12)},
				{
					Role:       models.RoleTool,
					Content:    gen.Sentence(10, 20),
					ToolCallID: uuid.New().String(),
					Meta:       map[string]any{"tool": "read_file", "success": true},
				},
				{
					Role:       models.RoleTool,
					Content:    gen.Sentence(4, 8),
					ToolCallID: uuid.New().String(),
					Meta:       map[string]any{"tool": "write_file", "success": true},
				},
				{Role: models.RoleAssistant, Content: gen.Sentence(5, 10)},
			}),
		},
		{
			Name:    "halted-run",
			AgentID: "scratch",
			Messages: stamp([]models.Message{
				{Role: models.RoleUser, Content: "Rewrite the config file in place."},
				{Role: models.RoleAssistant, Content: gen.Sentence(6, 12)},
				{
					Role:       models.RoleTool,
					Content:    gen.Sentence(10, 20),
					ToolCallID: uuid.New().String(),
					Meta:       map[string]any{"tool": "read_file", "success": true},
				},
				{
					Role:    models.RoleAssistant,
					Content: gen.Sentence(4, 8),
					Meta:    map[string]any{"halted": true},
				},
			}),
		},
	}
}

// stamp assigns indexes and one-minute-apart timestamps ending near now,
// so seeded transcripts sort sensibly next to live ones.
func stamp(msgs []models.Message) []models.Message {
	start := time.Now().UTC().Add(-time.Duration(len(msgs)) * time.Minute)
	for i := range msgs {
		msgs[i].Index = i
		msgs[i].CreatedAt = start.Add(time.Duration(i) * time.Minute)
	}
	return msgs
}
