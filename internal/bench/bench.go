// Package bench stitches every image pair under a directory tree and
// records timings (and optional similarity scores) as CSV.
package bench

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"image-stitcher/internal/imageio"
	"image-stitcher/internal/logger"
	"image-stitcher/internal/stitch"
	"image-stitcher/internal/storage"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Pair is one sub-folder holding a 01.* and a 02.* image.
type Pair struct {
	Name   string
	Folder string
	A      string
	B      string
}

// Row is one CSV line.
type Row struct {
	Folder      string
	BlendedPath string
	Total       time.Duration
	Metrics     *Metrics
}

// PairStitcher stitches two image files.
type PairStitcher interface {
	StitchFiles(ctx context.Context, pathA, pathB, method string) (*stitch.Result, error)
}

// Runner drives a batch.
type Runner struct {
	Stitcher  PairStitcher
	Method    string
	Parallel  int
	CSVName   string
	Quality   int
	Evaluator Evaluator      // optional
	Store     *storage.Store // optional
}

var csvHeader = []string{"folder", "blended_path", "total_time", "ssim", "mse", "psnr"}

// FindPairs lists the sub-folders of root that hold both images, sorted by
// name. Folders missing either image are logged and skipped.
func FindPairs(root string) ([]Pair, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read bench root: %w", err)
	}

	var pairs []Pair
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		folder := filepath.Join(root, e.Name())
		files, err := os.ReadDir(folder)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", folder, err)
		}
		p := Pair{Name: e.Name(), Folder: folder}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			switch {
			case strings.HasPrefix(f.Name(), "01."):
				p.A = filepath.Join(folder, f.Name())
			case strings.HasPrefix(f.Name(), "02."):
				p.B = filepath.Join(folder, f.Name())
			}
		}
		if p.A == "" || p.B == "" {
			logger.WithField("folder", e.Name()).Warn("skipping folder with missing images")
			continue
		}
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
	return pairs, nil
}

// CSVPath is where Run writes its results for root.
func (r *Runner) CSVPath(root string) string {
	name := r.CSVName
	if name == "" {
		name = "results.csv"
	}
	return filepath.Join(root, r.Method+"_"+name)
}

// Run processes every pair under root and writes the CSV. Failed pairs are
// logged and left out; only setup and CSV errors are returned.
func (r *Runner) Run(ctx context.Context, root string) ([]Row, error) {
	pairs, err := FindPairs(root)
	if err != nil {
		return nil, err
	}

	parallel := r.Parallel
	if parallel < 1 {
		parallel = 1
	}

	rows := make([]*Row, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, p := range pairs {
		i, p := i, p
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			row, err := r.runPair(gctx, p)
			if err != nil {
				logger.WithError(err).WithField("folder", p.Name).Warn("skipping pair")
				return nil
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Row
	for _, row := range rows {
		if row != nil {
			out = append(out, *row)
		}
	}

	if err := WriteCSV(r.CSVPath(root), out); err != nil {
		return out, err
	}
	logger.WithFields(logrus.Fields{
		"pairs":     len(pairs),
		"completed": len(out),
		"method":    r.Method,
	}).Info("benchmark finished")
	return out, nil
}

func (r *Runner) runPair(ctx context.Context, p Pair) (*Row, error) {
	logger.WithField("folder", p.Name).Info("processing pair")

	start := time.Now()
	res, err := r.Stitcher.StitchFiles(ctx, p.A, p.B, r.Method)
	total := time.Since(start)
	if err != nil {
		r.record(p, "", nil, total, err)
		return nil, err
	}

	blended := filepath.Join(p.Folder, r.Method+"blended_result.jpg")
	if err := imageio.Save(blended, res.Composite, r.Quality); err != nil {
		r.record(p, "", res, total, err)
		return nil, err
	}

	row := &Row{Folder: p.Name, BlendedPath: blended, Total: total}
	if r.Evaluator != nil {
		m, err := r.Evaluator.Evaluate(p, res.Composite)
		if err != nil {
			logger.WithError(err).WithField("folder", p.Name).Warn("evaluation failed")
		}
		row.Metrics = m
	}

	r.record(p, blended, res, total, nil)
	logger.WithFields(logrus.Fields{
		"path":       blended,
		"total_time": total.Seconds(),
	}).Info("saved blended result")
	return row, nil
}

func (r *Runner) record(p Pair, output string, res *stitch.Result, total time.Duration, runErr error) {
	if r.Store == nil {
		return
	}
	rec := storage.RunRecord{
		Method:     r.Method,
		ImageA:     p.A,
		ImageB:     p.B,
		OutputPath: output,
		Total:      total,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if res != nil {
		rec.Correspondences = res.Correspondences.Len()
		rec.CanvasWidth = res.Canvas.Width
		rec.CanvasHeight = res.Canvas.Height
		if res.Homography != nil {
			rec.Inliers = res.Homography.InlierCount
			rec.Iterations = res.Homography.Iterations
		}
	}
	if _, err := r.Store.Record(rec); err != nil {
		logger.WithError(err).Warn("failed to record run")
	}
}

// WriteCSV writes rows with the header folder, blended_path, total_time,
// ssim, mse, psnr. Metric cells are empty for rows without metrics.
func WriteCSV(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range rows {
		rec := []string{
			row.Folder,
			row.BlendedPath,
			strconv.FormatFloat(row.Total.Seconds(), 'f', 3, 64),
			"", "", "",
		}
		if m := row.Metrics; m != nil {
			rec[3] = strconv.FormatFloat(m.SSIM, 'f', 4, 64)
			rec[4] = strconv.FormatFloat(m.MSE, 'f', 2, 64)
			rec[5] = strconv.FormatFloat(m.PSNR, 'f', 2, 64)
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
