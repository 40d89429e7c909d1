package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue metrics of a running engine",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	url := fmt.Sprintf("http://localhost:%d/queue/metrics", cfg.Server.Port)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		slog.Error("Failed to reach engine", "url", url, "error", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var m struct {
		TotalJobs       int            `json:"total_jobs"`
		ByStatus        map[string]int `json:"by_status"`
		AvgProcessing   time.Duration  `json:"avg_processing"`
		AvgWait         time.Duration  `json:"avg_wait"`
		ThroughputPerHr int            `json:"throughput_per_hour"`
		ErrorRate       float64        `json:"error_rate"`
		Utilization     float64        `json:"utilization"`
		Paused          bool           `json:"paused"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		slog.Error("Failed to decode metrics", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "TOTAL\tPENDING\tPROCESSING\tCOMPLETED\tFAILED\tCANCELLED\n")
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\n",
		m.TotalJobs,
		m.ByStatus["pending"],
		m.ByStatus["processing"],
		m.ByStatus["completed"],
		m.ByStatus["failed"],
		m.ByStatus["cancelled"],
	)
	fmt.Fprintf(w, "\nerror rate\t%.1f%%\n", m.ErrorRate*100)
	fmt.Fprintf(w, "utilization\t%.1f%%\n", m.Utilization*100)
	fmt.Fprintf(w, "throughput/hr\t%d\n", m.ThroughputPerHr)
	fmt.Fprintf(w, "avg processing\t%s\n", m.AvgProcessing)
	fmt.Fprintf(w, "avg wait\t%s\n", m.AvgWait)
	fmt.Fprintf(w, "paused\t%v\n", m.Paused)
	_ = w.Flush()
}
