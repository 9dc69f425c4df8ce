package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/adkite/tempograph/internal/testevents"
)

// Default configuration constants.
const (
	defaultSessions   = 5000
	defaultCampaigns  = 20
	defaultCreatives  = 60
	defaultDevices    = 2000
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		sessions   = flag.Int("sessions", defaultSessions, "Number of ad sessions to simulate")
		campaigns  = flag.Int("campaigns", defaultCampaigns, "Size of the campaign pool")
		creatives  = flag.Int("creatives", defaultCreatives, "Size of the creative pool")
		devices    = flag.Int("devices", defaultDevices, "Size of the device pool")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Output file for generated events (default: generated_events_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for run output (default: run_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testevents.ShowHelp()
		return
	}

	// Setup logging
	if err := testevents.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	// Create run configuration
	config := &testevents.Config{
		BaseURL:    *baseURL,
		Sessions:   *sessions,
		Campaigns:  *campaigns,
		Creatives:  *creatives,
		Devices:    *devices,
		Workers:    *workers,
		Timeout:    *timeout,
		OutputFile: *outputFile,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	// Run the generator
	if err := testevents.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Run failed: " + err.Error() + "\n")
		return
	}
}
