package report

import (
	"bytes"
	"fmt"
	"path/filepath"

	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/klmtrack/internal/fsutil"
	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/efficiency"
)

// Writer saves report files below a directory.
type Writer struct {
	Dir    string
	FS     fsutil.FileSystem
	Format string // image format understood by gonum/plot, "png" by default
}

// NewWriter returns a Writer on the OS filesystem.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir, FS: fsutil.OSFileSystem{}, Format: "png"}
}

// Write renders all curves, both maps and the HTML page of a run and
// returns the written paths.
func (w *Writer) Write(run int, s efficiency.Summary) ([]string, error) {
	dir := filepath.Join(w.Dir, fmt.Sprintf("run%05d", run))
	if err := w.FS.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	format := w.Format
	if format == "" {
		format = "png"
	}

	var written []string
	save := func(p *hplot.Plot, width, height vg.Length, name string) error {
		wt, err := p.WriterTo(width, height, format)
		if err != nil {
			return fmt.Errorf("render %s: %w", name, err)
		}
		path := filepath.Join(dir, name+"."+format)
		if err := fsutil.WriteTo(w.FS, path, wt); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	for section := klm.Section(0); section < klm.BKLMSections; section++ {
		for sector := klm.Sector(1); sector <= klm.BKLMSectors; sector++ {
			name := fmt.Sprintf("effi_%s_S%d", klm.SectionLabel(section), sector)
			if err := save(CurvePlot(s.Layers, section, sector), curveWidth, curveHeight, name); err != nil {
				return written, err
			}
		}
	}
	for _, m := range []efficiency.EfficiencyMap{s.YX, s.YZ} {
		if err := save(MapPlot(m), mapSize, mapSize, m.Name); err != nil {
			return written, err
		}
	}

	var buf bytes.Buffer
	if err := WriteHTML(&buf, s); err != nil {
		return written, err
	}
	path := filepath.Join(dir, "efficiency.html")
	if err := fsutil.WriteTo(w.FS, path, &buf); err != nil {
		return written, err
	}
	written = append(written, path)
	return written, nil
}
