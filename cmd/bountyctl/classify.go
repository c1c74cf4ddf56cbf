package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HacksterAman/Clean-Bounty/internal/classifier"
	"github.com/HacksterAman/Clean-Bounty/internal/config"
	"github.com/HacksterAman/Clean-Bounty/internal/grpcclient"
	"github.com/HacksterAman/Clean-Bounty/internal/logging"
	"github.com/HacksterAman/Clean-Bounty/internal/report"
	"github.com/HacksterAman/Clean-Bounty/internal/session"
	"github.com/HacksterAman/Clean-Bounty/internal/usecase"
	"github.com/HacksterAman/Clean-Bounty/internal/waste"
)

const cliUser = "local"

// pipeline is the part of the submission use case the CLI drives.
type pipeline interface {
	Submit(ctx context.Context, userID string, data []byte, mimeType string, loc *waste.Location) (*session.Session, error)
	Select(userID, sessionID string, label *string) error
	Confirm(userID, sessionID string) (*report.WasteReport, error)
	Claim(userID, reportID string) (int, int, error)
}

type classifyOptions struct {
	lat, lng    float64
	hasLoc      bool
	contentType string
	selectType  string
	confirm     bool
	claim       bool
}

// imageTypeFor guesses the declared type from the file extension. Formats
// the content sniffer cannot recognise, such as HEIC, depend on it.
func imageTypeFor(path string) string {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return mime.TypeByExtension(ext)
	}
}

func classifyCmd() *cobra.Command {
	var opts classifyOptions
	cmd := &cobra.Command{
		Use:   "classify <image>",
		Short: "Classify one waste photo",
		Long: `Classify a photo of waste, print the candidate types and the generated
bounty, and optionally confirm a candidate into a report and claim its points.

Examples:
  bountyctl classify bottle.jpg
  bountyctl classify bottle.jpg --lat 51.5007 --lng -0.1246 --select Plastic --claim`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.hasLoc = cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng")
			if opts.hasLoc && !(cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng")) {
				return errors.New("--lat and --lng must be given together")
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}
			if opts.contentType == "" {
				opts.contentType = imageTypeFor(args[0])
			}

			uc, cleanup, err := buildPipeline(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			return runClassify(cmd.Context(), cmd.OutOrStdout(), uc, data, opts)
		},
	}

	cmd.Flags().Float64Var(&opts.lat, "lat", 0, "latitude of the photo")
	cmd.Flags().Float64Var(&opts.lng, "lng", 0, "longitude of the photo")
	cmd.Flags().StringVar(&opts.contentType, "content-type", "", "image MIME type; guessed from the file extension when empty")
	cmd.Flags().StringVar(&opts.selectType, "select", "", "candidate type to select instead of the top one")
	cmd.Flags().BoolVar(&opts.confirm, "confirm", false, "confirm the selection and print the report")
	cmd.Flags().BoolVar(&opts.claim, "claim", false, "confirm and claim the report's points")
	return cmd
}

func buildPipeline(cmd *cobra.Command) (pipeline, func(), error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(level)
	if err != nil {
		return nil, nil, err
	}

	ctx := cmd.Context()
	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
		_ = logger.Sync()
	}

	var describer classifier.Describer = classifier.DescriberFunc(func(context.Context, waste.ClassificationResult) (waste.BountyDescription, error) {
		return waste.BountyDescription{}, fmt.Errorf("%w: no description backend configured", waste.ErrUpstream)
	})
	var gemini *classifier.GeminiClient
	if cfg.Gemini.APIKey != "" {
		gemini, err = classifier.NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = gemini.Close() })
		describer = gemini
	}

	var cls classifier.Classifier
	if gemini != nil {
		cls = gemini
	}
	if cfg.Classifier.Backend == config.BackendGRPC {
		remote, conn, err := grpcclient.DialClassifier(ctx, cfg.Classifier.Addr, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = conn.Close() })
		cls = remote
	}

	uc := usecase.NewSubmissionUseCase(nil, nil, cls, describer, logger,
		usecase.WithClassifyTimeout(cfg.Classifier.Timeout),
	)
	logger.Debug("pipeline ready", zap.String("backend", cfg.Classifier.Backend))
	return uc, cleanup, nil
}

func runClassify(ctx context.Context, out io.Writer, uc pipeline, data []byte, opts classifyOptions) error {
	var loc *waste.Location
	if opts.hasLoc {
		loc = &waste.Location{Lat: opts.lat, Lng: opts.lng}
	}

	sess, err := uc.Submit(ctx, cliUser, data, opts.contentType, loc)
	if err != nil {
		return err
	}
	snap := sess.Snapshot()
	if snap.Status == session.Failed {
		return fmt.Errorf("classification failed (%s): %s", snap.ErrorKind, snap.Error)
	}

	printCandidates(out, snap)
	printBounty(out, snap)

	if opts.selectType != "" {
		label := opts.selectType
		if err := uc.Select(cliUser, sess.ID(), &label); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nSelected: %s\n", sess.Selected().Type)
	}

	if !opts.confirm && !opts.claim {
		return nil
	}
	rep, err := uc.Confirm(cliUser, sess.ID())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nReport %s\n\n%s\n", rep.ID, rep.Narrative)
	fmt.Fprintf(out, "\nImpact: %.1f kg CO2, %.0f L water, %.1f kWh, %.1f kg landfill\n",
		rep.Impact.CO2SavedKg, rep.Impact.WaterSavedLiters, rep.Impact.EnergySavedKWh, rep.Impact.LandfillReductionKg)

	if !opts.claim {
		return nil
	}
	delta, balance, err := uc.Claim(cliUser, rep.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nClaimed %d points. Balance: %d\n", delta, balance)
	return nil
}

func printCandidates(out io.Writer, snap session.Snapshot) {
	if len(snap.Candidates) == 0 {
		fmt.Fprintln(out, "No waste detected.")
		return
	}
	fmt.Fprintln(out, "Candidates:")
	for _, c := range snap.Candidates {
		marker := " "
		if snap.Selected != nil && *snap.Selected == c {
			marker = "*"
		}
		fmt.Fprintf(out, " %s %-12s %5.1f%%  %3d pts  %s\n", marker, c.Type, c.Confidence*100, c.Points, c.Description)
	}
}

func printBounty(out io.Writer, snap session.Snapshot) {
	if snap.Bounty == nil {
		if snap.Warning != "" {
			fmt.Fprintf(out, "\nBounty unavailable: %s\n", snap.Warning)
		}
		return
	}
	b := snap.Bounty
	fmt.Fprintf(out, "\nBounty: %s\n", b.Title)
	if len(b.TargetWasteTypes) > 0 {
		fmt.Fprintf(out, "  Targets:  %s\n", strings.Join(b.TargetWasteTypes, ", "))
	}
	if b.PotentialHazards != "" {
		fmt.Fprintf(out, "  Hazards:  %s\n", b.PotentialHazards)
	}
	if b.CleanupApproach != "" {
		fmt.Fprintf(out, "  Approach: %s\n", b.CleanupApproach)
	}
}
