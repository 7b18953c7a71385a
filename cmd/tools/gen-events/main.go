// Command gen-events generates synthetic KLM events for klmtrack.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/eventio"
	"github.com/banshee-data/klmtrack/internal/klm/geometry"
	"github.com/banshee-data/klmtrack/internal/klm/simulate"
)

func main() {
	def := simulate.DefaultConfig()
	output := flag.String("o", "events.jsonl", "output path")
	events := flag.Int("n", def.Events, "number of events")
	run := flag.Int("run", def.Run, "run number")
	seed := flag.Uint64("seed", def.Seed, "random seed")
	tracks := flag.Int("tracks", def.TracksPerEvent, "tracks per event")
	noise := flag.Float64("noise", def.NoiseHits, "mean noise hits per event")
	ineff := flag.Float64("ineff", def.Inefficiency, "probability that a crossing fires no hit")
	dead := flag.Int("dead-layer", 0, "forward layer that never fires (0 for none)")
	flag.Parse()

	cfg := def
	cfg.Events = *events
	cfg.Run = *run
	cfg.Seed = *seed
	cfg.TracksPerEvent = *tracks
	cfg.NoiseHits = *noise
	cfg.Inefficiency = *ineff
	cfg.DeadLayer = klm.Layer(*dead)

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *output, err)
	}
	defer f.Close()
	w := eventio.NewWriter(f)

	gen := simulate.New(cfg, geometry.NewBarrel(geometry.DefaultBarrelConfig()))
	n := 0
	err = gen.Each(func(rec eventio.EventRecord) error {
		if err := w.Write(rec); err != nil {
			return err
		}
		n++
		if n%1000 == 0 {
			log.Printf("%d/%d events", n, cfg.Events)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("failed to generate events: %v", err)
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("failed to flush: %v", err)
	}
	log.Printf("✓ Created: %s (%d events)", *output, n)
}
