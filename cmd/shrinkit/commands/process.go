package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dunamismax/shrinkit/internal/app"
	"github.com/dunamismax/shrinkit/internal/config"
	"github.com/dunamismax/shrinkit/internal/domain"
	"github.com/dunamismax/shrinkit/internal/pipeline"
	"github.com/dunamismax/shrinkit/internal/transform"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newProcessCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Resize, compress and optionally cut out one image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, v, args[0])
		},
	}

	flags := cmd.Flags()
	flags.Int("width", 0, "Target width in pixels (defaults to the source width)")
	flags.Int("height", 0, "Target height in pixels (defaults to the source height)")
	flags.Int("quality", domain.DefaultQuality, "JPEG quality from 1 to 100")
	flags.Bool("lock", true, "Keep the aspect ratio when only one dimension is given")
	flags.Bool("remove-background", false, "Remove the background after compressing")
	flags.String("out-dir", ".", "Directory for the processed image")

	_ = v.BindPFlag("out_dir", flags.Lookup("out-dir"))
	return cmd
}

func runProcess(cmd *cobra.Command, v *viper.Viper, path string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logCfg := cfg.Log
	logCfg.Format = "console"
	if v.GetBool("verbose") {
		logCfg.Level = "debug"
	} else {
		logCfg.Level = "warn"
	}
	logger, closeLog, err := app.NewLogger(logCfg, "cli")
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	src, err := pipeline.DecodeSource(filepath.Base(path), "", data)
	if err != nil {
		return err
	}

	engine, err := app.NewEngine(cfg.Transform)
	if err != nil {
		return err
	}
	defer transform.Shutdown()

	processor, err := pipeline.NewLocalProcessor(engine, app.NewRemover(cfg.Remover, logger))
	if err != nil {
		return err
	}
	p := pipeline.New(processor)
	if err := p.Load(src); err != nil {
		return err
	}
	if err := p.Edit(editFromFlags(cmd)); err != nil {
		return err
	}

	logger.Debug("processing", zap.String("file", path), zap.Any("settings", p.Session().Settings))
	if err := p.Process(ctx); err != nil {
		return err
	}

	out, err := p.Processed()
	if err != nil {
		return err
	}

	outDir := v.GetString("out_dir")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	target := filepath.Join(outDir, pipeline.DownloadFilename(src.Filename, out.MIMEType))
	if err := os.WriteFile(target, out.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d, %d -> %d bytes\n", target, out.Width, out.Height, src.Bytes, out.Bytes)
	return nil
}

// editFromFlags only carries the flags the user set, so unset dimensions
// keep the source's natural size.
func editFromFlags(cmd *cobra.Command) pipeline.Edit {
	flags := cmd.Flags()
	var e pipeline.Edit
	if flags.Changed("lock") {
		lock, _ := flags.GetBool("lock")
		e.LockAspect = &lock
	}
	if flags.Changed("width") {
		width, _ := flags.GetInt("width")
		e.Width = &width
	}
	if flags.Changed("height") {
		height, _ := flags.GetInt("height")
		e.Height = &height
	}
	if flags.Changed("quality") {
		quality, _ := flags.GetInt("quality")
		e.Quality = &quality
	}
	if flags.Changed("remove-background") {
		remove, _ := flags.GetBool("remove-background")
		e.RemoveBackground = &remove
	}
	return e
}
