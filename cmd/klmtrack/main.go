// Command klmtrack finds KLM standalone tracks in a JSON-lines event file
// and writes tracks, run summaries and layer efficiencies to SQLite.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/klmtrack/internal/config"
	"github.com/banshee-data/klmtrack/internal/db"
	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/eventio"
	"github.com/banshee-data/klmtrack/internal/klm/geometry"
	"github.com/banshee-data/klmtrack/internal/klm/report"
	"github.com/banshee-data/klmtrack/internal/klm/storage/sqlite"
	"github.com/banshee-data/klmtrack/internal/klm/tracking"
	"github.com/banshee-data/klmtrack/internal/version"
)

var (
	configPath  = flag.String("config", "", "Tracking config JSON (default: "+config.DefaultConfigPath+" if present)")
	eventsPath  = flag.String("events", "", "JSON-lines event file (required)")
	outPath     = flag.String("out", "", "SQLite output path (default: output_name from the config)")
	plotsDir    = flag.String("plots", "", "Directory for efficiency plots in study mode (empty disables)")
	studyEffi   = flag.Bool("study-effi", false, "Run the layer efficiency study (overrides study_effi_mode)")
	matchReco   = flag.Bool("match-reco", false, "Match tracks to event trajectories (overrides match_to_reco_track)")
	logDiag     = flag.Bool("log-diag", false, "Enable per-track diagnostic logging")
	logTrace    = flag.Bool("log-trace", false, "Enable per-hit trace logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("klmtrack"))
		return
	}
	if *eventsPath == "" {
		log.Fatal("-events is required")
	}

	writers := klm.LogWriters{Ops: os.Stderr}
	if *logDiag {
		writers.Diag = os.Stderr
	}
	if *logTrace {
		writers.Trace = os.Stderr
	}
	klm.SetLogWriters(writers)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "study-effi":
			cfg.StudyEffiMode = studyEffi
		case "match-reco":
			cfg.MatchToRecoTrack = matchReco
		}
	})

	out := *outPath
	if out == "" {
		out = cfg.GetOutputName()
	}
	summaries, err := run(cfg, *eventsPath, out, *plotsDir)
	if err != nil {
		log.Fatalf("klmtrack: %v", err)
	}
	log.Printf("processed %d run(s), results in %s", len(summaries), out)
}

// loadConfig reads path, or the default config when path is empty and
// the default file exists, or falls back to built-in defaults.
func loadConfig(path string) (*config.TrackingConfig, error) {
	if path != "" {
		return config.LoadTrackingConfig(path)
	}
	if _, err := os.Stat(config.DefaultConfigPath); err == nil {
		return config.LoadTrackingConfig(config.DefaultConfigPath)
	}
	return config.EmptyTrackingConfig(), nil
}

// run processes every event of eventsPath. Runs are opened on every
// change of run number; their summaries, tracks (standard mode) and
// efficiencies (study mode) are written to the database at out.
func run(cfg *config.TrackingConfig, eventsPath, out, plotsDir string) ([]tracking.RunSummary, error) {
	for _, w := range cfg.Normalize() {
		klm.Opsf("config: %s", w)
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	database, err := db.NewDB(out)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	p := &processor{
		driver:  tracking.NewDriver(tracking.ConfigFromTracking(cfg), geometry.NewBarrel(geometry.DefaultBarrelConfig())),
		runs:    sqlite.NewRunStore(database.DB),
		tracks:  sqlite.NewTrackStore(database.DB),
		effi:    sqlite.NewEfficiencyStore(database.DB),
		cfgJSON: cfgJSON,
		run:     -1,
	}
	if plotsDir != "" {
		p.report = report.NewWriter(plotsDir)
	}

	if err := eventio.EachFile(eventsPath, p.handle); err != nil {
		return nil, err
	}
	if err := p.endRun(); err != nil {
		return nil, err
	}
	return p.driver.Terminate(), nil
}

type processor struct {
	driver *tracking.Driver
	runs   *sqlite.RunStore
	tracks *sqlite.TrackStore
	effi   *sqlite.EfficiencyStore
	report *report.Writer

	cfgJSON []byte
	run     int
	runID   string
}

func (p *processor) handle(ev *tracking.Event) error {
	if ev.Run != p.run {
		if err := p.beginRun(ev.Run); err != nil {
			return err
		}
	}
	res, err := p.driver.ProcessEvent(ev)
	if err != nil {
		return fmt.Errorf("event %d/%d: %w", ev.Run, ev.Number, err)
	}
	if len(res.Tracks) > 0 {
		if _, err := p.tracks.InsertEvent(p.runID, ev.Number, res.Tracks); err != nil {
			return fmt.Errorf("store tracks of event %d/%d: %w", ev.Run, ev.Number, err)
		}
	}
	return nil
}

func (p *processor) beginRun(run int) error {
	if err := p.endRun(); err != nil {
		return err
	}
	p.driver.BeginRun(run)
	mode := tracking.Standard
	if p.driver.Config().StudyEffiMode {
		mode = tracking.EfficiencyStudy
	}
	r := &sqlite.Run{RunNumber: run, Mode: mode.String(), ConfigJSON: p.cfgJSON}
	if err := p.runs.Insert(r); err != nil {
		return fmt.Errorf("insert run %d: %w", run, err)
	}
	p.run, p.runID = run, r.RunID
	return nil
}

func (p *processor) endRun() error {
	sum, ok := p.driver.EndRun()
	if !ok {
		return nil
	}
	if err := p.runs.Finish(p.runID, sum); err != nil {
		return fmt.Errorf("finish run %d: %w", sum.Run, err)
	}
	if sum.Efficiency == nil {
		return nil
	}
	if err := p.effi.InsertSummary(p.runID, *sum.Efficiency); err != nil {
		return fmt.Errorf("store efficiencies of run %d: %w", sum.Run, err)
	}
	if p.report != nil {
		files, err := p.report.Write(sum.Run, *sum.Efficiency)
		if err != nil {
			return fmt.Errorf("write report of run %d: %w", sum.Run, err)
		}
		klm.Opsf("run %d: wrote %d report files", sum.Run, len(files))
	}
	return nil
}
