package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/vietddude/docforge/internal/control"
	"github.com/vietddude/docforge/internal/core/config"
	"github.com/vietddude/docforge/internal/core/domain"
	"github.com/vietddude/docforge/internal/handlers"
	"github.com/vietddude/docforge/internal/processor"
	"github.com/vietddude/docforge/internal/queue"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	ctx := context.Background()

	// 1. Default config, built-in handlers
	cfg := config.Default()
	reg := processor.NewHandlerRegistry()
	handlers.RegisterDefaults(reg)

	engine, err := control.NewEngine(cfg, reg)
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}

	// 2. Watch the event stream
	engine.Processor().Events().OnAll(func(ev domain.Event) {
		fmt.Printf("event: %-16s job=%s\n", ev.Kind, ev.JobID)
	})

	if err := engine.Start(ctx); err != nil {
		log.Fatalf("engine start failed: %v", err)
	}

	// 3. Drop a few fixture documents and submit one job per type
	dir, err := os.MkdirTemp("", "docforge")
	if err != nil {
		log.Fatalf("tempdir: %v", err)
	}
	defer os.RemoveAll(dir)

	xmlPath := filepath.Join(dir, "doc.xml")
	os.WriteFile(xmlPath, []byte(`<doc><title>hello</title></doc>`), 0o644)
	txtPath := filepath.Join(dir, "notes.txt")
	os.WriteFile(txtPath, []byte("one two three\nfour five\n"), 0o644)

	specs := []queue.JobSpec{
		{Type: domain.JobTypeParse, FileName: xmlPath, FileType: "xml", FileSizeBytes: 31, Priority: domain.PriorityHigh},
		{Type: domain.JobTypeAnalyze, FileName: txtPath, FileType: "txt", FileSizeBytes: 24},
		{Type: domain.JobTypeValidate, FileName: txtPath, FileType: "txt", FileSizeBytes: 24},
		{Type: domain.JobTypeExport, FileName: txtPath, FileType: "txt", FileSizeBytes: 24},
	}
	for i, spec := range specs {
		id, err := engine.Processor().Submit(spec)
		if err != nil {
			log.Printf("submit %d failed: %v", i+1, err)
			continue
		}
		fmt.Printf("submitted %s as %s\n", spec.Type, id)
	}

	// 4. Let the loop drain, then dump queue metrics
	time.Sleep(5 * time.Second)

	fmt.Println("\n=== Queue Metrics ===")
	m := engine.Processor().Queue().Metrics()
	fmt.Printf("total: %d  completed: %d  failed: %d\n",
		m.TotalJobs, m.ByStatus[domain.JobStatusCompleted], m.ByStatus[domain.JobStatusFailed])
	fmt.Printf("throughput/hr: %d  error rate: %.2f  utilization: %.2f\n",
		m.ThroughputPerHr, m.ErrorRate, m.Utilization)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := engine.Stop(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
