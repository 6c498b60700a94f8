package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"hayaoshi/internal/config"
	"hayaoshi/internal/database"
	"hayaoshi/internal/questions"
	"hayaoshi/internal/repository"
	"hayaoshi/internal/service"
	"hayaoshi/internal/storage"
)

func main() {
	// Define subcommands
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	seedCmd := flag.NewFlagSet("seed", flag.ExitOnError)

	// Export flags
	exportOutput := exportCmd.String("output", "", "Output file path (default: backup_YYYYMMDD_HHMMSS.json)")

	// Import flags
	importInput := importCmd.String("input", "", "Input file path (required)")

	// Seed flags
	seedInput := seedCmd.String("input", "", "Question set JSON (default: bundled questions)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	ctx := context.Background()

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		backupService, closeDB := openBackupService(cfg)
		defer closeDB()
		handleExport(ctx, backupService, *exportOutput)

	case "import":
		importCmd.Parse(os.Args[2:])
		if *importInput == "" {
			fmt.Println("Error: -input flag is required")
			importCmd.PrintDefaults()
			os.Exit(1)
		}
		backupService, closeDB := openBackupService(cfg)
		defer closeDB()
		handleImport(ctx, backupService, *importInput)

	case "seed":
		seedCmd.Parse(os.Args[2:])
		handleSeed(ctx, cfg, *seedInput)

	default:
		printUsage()
		os.Exit(1)
	}
}

func openBackupService(cfg *config.Config) (*service.BackupService, func()) {
	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize local database: %v", err)
	}
	kv := repository.NewKVRepository(db)
	local := storage.NewLocal(kv, cfg.LocalHistoryCap, nil)
	return service.NewBackupService(kv, local), func() { db.Close() }
}

func handleExport(ctx context.Context, backupService *service.BackupService, outputPath string) {
	// Generate default filename if not provided
	if outputPath == "" {
		timestamp := time.Now().Format("20060102_150405")
		outputPath = fmt.Sprintf("backup_%s.json", timestamp)
	}

	// Ensure directory exists
	dir := filepath.Dir(outputPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	log.Printf("Exporting local store to: %s", outputPath)
	if err := backupService.Export(ctx, outputPath); err != nil {
		log.Fatalf("Export failed: %v", err)
	}

	fileInfo, err := os.Stat(outputPath)
	if err == nil {
		log.Printf("Export complete! File size: %.2f KB", float64(fileInfo.Size())/1024)
	}
}

func handleImport(ctx context.Context, backupService *service.BackupService, inputPath string) {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		log.Fatalf("Input file does not exist: %s", inputPath)
	}

	log.Printf("Importing local store from: %s", inputPath)
	if err := backupService.Import(ctx, inputPath); err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	log.Println("Import complete!")
}

func handleSeed(ctx context.Context, cfg *config.Config, inputPath string) {
	qs, err := questions.Bundled()
	if inputPath != "" {
		qs, err = questions.LoadFile(inputPath)
	}
	if err != nil {
		log.Fatalf("Failed to load questions: %v", err)
	}

	remote, err := repository.OpenRemote(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect remote storage: %v", err)
	}
	if remote == nil {
		log.Fatalf("REMOTE_ENGINE is %q, nothing to seed", cfg.RemoteEngine)
	}
	defer remote.Close(ctx)

	seeder, ok := remote.(repository.QuestionSeeder)
	if !ok {
		log.Fatalf("Remote engine %s cannot seed questions", cfg.RemoteEngine)
	}
	n, err := seeder.SeedQuestions(ctx, qs)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d of %d questions into %s", n, len(qs), cfg.RemoteEngine)
}

func printUsage() {
	fmt.Println("Hayaoshi Storage Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  backup export [options]    Export local history and stats to JSON")
	fmt.Println("  backup import [options]    Restore local history and stats from JSON")
	fmt.Println("  backup seed [options]      Load a question set into remote storage")
	fmt.Println()
	fmt.Println("Export Options:")
	fmt.Println("  -output <file>    Output file path (default: backup_YYYYMMDD_HHMMSS.json)")
	fmt.Println()
	fmt.Println("Import Options:")
	fmt.Println("  -input <file>     Input file path (required)")
	fmt.Println()
	fmt.Println("Seed Options:")
	fmt.Println("  -input <file>     Question set JSON (default: bundled questions)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DB_PATH          Local SQLite database path (default: ./hayaoshi.db)")
	fmt.Println("  REMOTE_ENGINE    Remote storage: none, sql, mongo or dynamodb")
	fmt.Println("  DATABASE_TYPE    Remote SQL type: postgres, mysql or sqlite")
	fmt.Println("  DATABASE_URL     Remote SQL connection URL")
	fmt.Println("  MONGO_URI        MongoDB connection URI")
	fmt.Println("  AWS_REGION       DynamoDB region")
}
