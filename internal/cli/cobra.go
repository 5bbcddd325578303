// Package cli wires the stitcher into a cobra command tree.
package cli

import (
	"context"
	"errors"
	"image"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"image-stitcher/internal/bench"
	"image-stitcher/internal/config"
	"image-stitcher/internal/imageio"
	"image-stitcher/internal/logger"
	"image-stitcher/internal/provider"
	"image-stitcher/internal/provider/opencv"
	"image-stitcher/internal/provider/remote"
	"image-stitcher/internal/stitch"
	"image-stitcher/internal/storage"
	"image-stitcher/internal/transport"
	"image-stitcher/internal/version"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RegistryFunc builds the correspondence methods available to a command.
type RegistryFunc func(cfg *config.Config) (*provider.Registry, error)

// DefaultRegistry registers the OpenCV detectors and, when a dense matcher
// URL is configured, the remote LoFTR client.
func DefaultRegistry(cfg *config.Config) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	filter := stitch.FilterFromConfig(cfg)
	opencv.Register(reg, cfg.Matching.MaxFeatures, filter)
	if url := cfg.Providers.DenseMatcherURL; url != "" {
		remote.Register(reg, remote.NewClient(url, cfg.Providers.DenseMatcherTimeout), filter)
	}
	return reg, nil
}

type root struct {
	configPath string
	logLevel   string
	registry   RegistryFunc

	cfg *config.Config
}

func (r *root) stitcher() (*stitch.Stitcher, error) {
	reg, err := r.registry(r.cfg)
	if err != nil {
		return nil, err
	}
	opts, err := stitch.OptionsFromConfig(r.cfg)
	if err != nil {
		return nil, err
	}
	return stitch.New(opts, reg), nil
}

func (r *root) openStore(path string) (*storage.Store, error) {
	if path == "" {
		path = r.cfg.Bench.DatabasePath
	}
	if path == "" {
		return nil, nil
	}
	return storage.New(path)
}

// NewRootCmd creates the root command.
func NewRootCmd(registry RegistryFunc) *cobra.Command {
	r := &root{registry: registry}

	rootCmd := &cobra.Command{
		Use:   "stitch",
		Short: "Stitch two overlapping photographs into one composite",
		Long: `stitch estimates a homography between two overlapping images from
feature correspondences (SIFT, ORB or a remote LoFTR service), warps the
second image onto a shared canvas and feathers the seam.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(r.configPath)
			if err != nil {
				return err
			}
			if r.logLevel != "" {
				cfg.Logging.Level = r.logLevel
			}
			logger.SetLevel(cfg.Logging.Level)
			logger.SetFormat(cfg.Logging.Format)
			r.cfg = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&r.configPath, "config", "stitch.yaml", "Path to YAML config")
	rootCmd.PersistentFlags().StringVar(&r.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCmd(r))
	rootCmd.AddCommand(newBenchCmd(r))
	rootCmd.AddCommand(newRunsCmd(r))
	rootCmd.AddCommand(newServeCmd(r))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newRunCmd(r *root) *cobra.Command {
	var (
		method      string
		output      string
		overlaysDir string
		quality     int
		dbPath      string
	)

	cmd := &cobra.Command{
		Use:   "run <primary> <secondary>",
		Short: "Stitch one image pair",
		Long: `Map the secondary image onto the primary one and write the blended
composite. With --overlays the keypoint and match diagrams are written too.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := r.stitcher()
			if err != nil {
				return err
			}
			store, err := r.openStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if method == "" {
				method = r.cfg.Matching.Method
			}
			if quality == 0 {
				quality = r.cfg.Server.JPEGQuality
			}

			res, err := s.StitchFiles(cmd.Context(), args[0], args[1], method)
			rec := storage.RunRecord{Method: method, ImageA: args[0], ImageB: args[1]}
			if err != nil {
				rec.Error = err.Error()
				if _, rerr := store.Record(rec); rerr != nil {
					logger.WithError(rerr).Warn("failed to record run")
				}
				return err
			}
			if err := imageio.Save(output, res.Composite, quality); err != nil {
				return err
			}

			if overlaysDir != "" {
				overlays := []struct {
					name string
					img  image.Image
				}{
					{"features1.jpg", res.KeypointsA},
					{"features2.jpg", res.KeypointsB},
					{"matches.jpg", res.Matches},
				}
				for _, o := range overlays {
					if err := imageio.Save(filepath.Join(overlaysDir, o.name), o.img, quality); err != nil {
						return err
					}
				}
			}

			rec.OutputPath = output
			rec.Correspondences = res.Correspondences.Len()
			rec.Inliers = res.Homography.InlierCount
			rec.Iterations = res.Homography.Iterations
			rec.CanvasWidth = res.Canvas.Width
			rec.CanvasHeight = res.Canvas.Height
			rec.Total = res.Timings.Total
			if _, err := store.Record(rec); err != nil {
				logger.WithError(err).Warn("failed to record run")
			}

			cmd.Printf("%s: %d correspondences, %d inliers, canvas %dx%d, %s -> %s\n",
				res.Method, res.Correspondences.Len(), res.Homography.InlierCount,
				res.Canvas.Width, res.Canvas.Height, res.Timings.Total.Round(time.Millisecond), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "m", "", "Correspondence method (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "stitched.jpg", "Output composite path")
	cmd.Flags().StringVar(&overlaysDir, "overlays", "", "Directory for keypoint and match overlays")
	cmd.Flags().IntVar(&quality, "quality", 0, "JPEG quality (default from config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite run store (default from config, disabled when empty)")
	return cmd
}

func newBenchCmd(r *root) *cobra.Command {
	var (
		method   string
		parallel int
		dbPath   string
		evaluate bool
	)

	cmd := &cobra.Command{
		Use:   "bench <root>",
		Short: "Stitch every 01.*/02.* pair under a directory",
		Long: `Each sub-folder of root holding a 01.* and a 02.* image is stitched.
The result is saved as <METHOD>blended_result.jpg in that folder and a CSV
summary is written to root. With --evaluate, folders containing a ref.*
image are scored by SSIM, MSE and PSNR.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := r.stitcher()
			if err != nil {
				return err
			}
			store, err := r.openStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if method == "" {
				method = r.cfg.Matching.Method
			}
			if parallel == 0 {
				parallel = r.cfg.Bench.Parallel
			}

			runner := &bench.Runner{
				Stitcher: s,
				Method:   method,
				Parallel: parallel,
				CSVName:  r.cfg.Bench.CSVName,
				Quality:  r.cfg.Server.JPEGQuality,
				Store:    store,
			}
			if evaluate {
				runner.Evaluator = bench.ReferenceEvaluator{}
			}

			rows, err := runner.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("%d pairs stitched, results in %s\n", len(rows), runner.CSVPath(args[0]))
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "m", "", "Correspondence method (default from config)")
	cmd.Flags().IntVarP(&parallel, "parallel", "j", 0, "Pairs processed concurrently (default from config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite run store (default from config, disabled when empty)")
	cmd.Flags().BoolVar(&evaluate, "evaluate", false, "Score results against ref.* images")
	return cmd
}

func newRunsCmd(r *root) *cobra.Command {
	var (
		method string
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := r.openStore(dbPath)
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("no run store configured (use --db or bench.database_path)")
			}
			defer store.Close()

			recs, err := store.List(method, limit)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				status := "ok"
				if rec.Error != "" {
					status = rec.Error
				}
				cmd.Printf("%s  %-6s %4d/%-4d %dx%d  %s  %s\n",
					rec.ID, rec.Method, rec.Inliers, rec.Correspondences,
					rec.CanvasWidth, rec.CanvasHeight, rec.Total, status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "m", "", "Only list runs of this method")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite run store (default from config)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs")
	return cmd
}

func newServeCmd(r *root) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP front end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := r.stitcher()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = r.cfg.Server.Addr
			}

			server := &http.Server{
				Addr:         addr,
				Handler:      transport.NewHandler(s, r.cfg.Server, r.cfg.Matching.Method),
				ReadTimeout:  r.cfg.Server.RequestTimeout,
				WriteTimeout: r.cfg.Server.RequestTimeout,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() {
				logger.WithFields(logrus.Fields{
					"address": addr,
					"methods": s.Methods(),
				}).Info("Starting HTTP server")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			logger.Logger.Info("Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return err
			}
			logger.Logger.Info("Server exited")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.String())
		},
	}
}
