package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tarstars/lut_boosting/golang/lut_boost/lbl"
)

func train(ctx context.Context, reg *lbl.Registry, srcConfig, metricsFile string, threads int) error {
	trainConfig := lbl.NewTrainConfig()
	if err := lbl.DecodeConfig(srcConfig, &trainConfig); err != nil {
		return err
	}
	if metricsFile != "" {
		trainConfig.FileNameMetrics = metricsFile
	}
	if threads != 0 {
		trainConfig.ThreadsNum = threads
	}
	if err := trainConfig.Param.Validate(reg); err != nil {
		return err
	}

	model, err := lbl.NewModel(trainConfig.Param, reg)
	if err != nil {
		return err
	}
	buckets := make([]int, model.NFeatures())
	for f := range buckets {
		buckets[f] = model.NBuckets(f)
	}

	data, err := lbl.ReadQDataSet(trainConfig.FileNameValues, trainConfig.FileNameTargets, trainConfig.FileNameCosts, buckets)
	if err != nil {
		return err
	}
	if data.NOutputs() != model.NOutputs() {
		return errors.Wrapf(lbl.ErrOutputMismatch, "targets have %d columns, tagger %q needs %d",
			data.NOutputs(), trainConfig.Param.Tagger, model.NOutputs())
	}

	problem, err := lbl.NewProblem(data, trainConfig.Param, trainConfig.ThreadsNum, reg)
	if err != nil {
		return err
	}

	var metrics *lbl.TrainMetrics
	if trainConfig.FileNameMetrics != "" {
		metrics = lbl.NewTrainMetrics()
	}
	booster := lbl.NewBooster(trainConfig.Param, metrics)
	trainErr := booster.Train(ctx, problem, model)
	if trainErr != nil && !errors.Is(trainErr, context.Canceled) {
		return trainErr
	}
	if trainErr != nil {
		log.Warn().Err(trainErr).Msg("training interrupted, saving the rounds done so far")
	}

	if err := model.Save(trainConfig.FileNameModel); err != nil {
		return err
	}
	log.Info().Str("path", trainConfig.FileNameModel).Stringer("format", lbl.FormatFromPath(trainConfig.FileNameModel)).
		Int("features", len(model.Features())).Msg("model saved")

	if trainConfig.FileNameLearningCurve != "" {
		if err := booster.DumpLearningCurve(trainConfig.FileNameLearningCurve); err != nil {
			return err
		}
	}
	return metrics.WriteTextfile(trainConfig.FileNameMetrics)
}

func features(reg *lbl.Registry, modelFile string) error {
	model, err := lbl.LoadModel(modelFile, reg)
	if err != nil {
		return err
	}
	for _, f := range model.Features() {
		fmt.Printf("%d\t%s\n", f, model.Describe(f))
	}
	return nil
}

func score(reg *lbl.Registry, modelFile, imageFile, outFile string, output int) error {
	model, err := lbl.LoadModel(modelFile, reg)
	if err != nil {
		return err
	}
	image, err := lbl.ReadNpy(imageFile)
	if err != nil {
		return err
	}
	scores, err := model.ScoreMap(image, output)
	if err != nil {
		return err
	}
	h, w := scores.Dims()
	log.Info().Str("output", model.OutputName(output)).Int("height", h).Int("width", w).Msg("score map")
	return lbl.WriteNpy(outFile, scores)
}

func graph(reg *lbl.Registry, modelFile, outFile, figureType string) error {
	model, err := lbl.LoadModel(modelFile, reg)
	if err != nil {
		return err
	}
	if figureType == "" {
		figureType = strings.TrimPrefix(filepath.Ext(outFile), ".")
	}
	return model.RenderGraph(outFile, figureType)
}

func writeMemProfile(fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return errors.Wrap(err, "could not create memory profile")
	}
	defer func() { _ = f.Close() }()
	runtime.GC()
	return errors.Wrap(pprof.WriteHeapProfile(f), "could not write memory profile")
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	reg := lbl.DefaultRegistry()
	var logLevel, memprofile string

	rootCmd := &cobra.Command{
		Use:           "lut_boost",
		Short:         "Train and apply LUT boosted image classifiers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return errors.Wrapf(err, "log level %q", logLevel)
			}
			zerolog.SetGlobalLevel(level)
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if memprofile == "" {
				return nil
			}
			return writeMemProfile(memprofile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&memprofile, "memprofile", "", "write memory profile to `file`")

	var config, metricsFile string
	var threads int
	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model described by a config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return train(ctx, reg, config, metricsFile, threads)
		},
	}
	trainCmd.Flags().StringVar(&config, "config", "lut_config.yaml", "a config file for the run of the program")
	trainCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "dump training metrics in the textfile format")
	trainCmd.Flags().IntVar(&threads, "threads", 0, "number of workers, overrides threads_num of the config")

	var modelFile string
	featuresCmd := &cobra.Command{
		Use:   "features",
		Short: "Print the features used by a model",
		RunE: func(*cobra.Command, []string) error {
			return features(reg, modelFile)
		},
	}

	var imageFile, scoresFile string
	var output int
	scoreCmd := &cobra.Command{
		Use:   "score",
		Short: "Score every window of an image",
		RunE: func(*cobra.Command, []string) error {
			return score(reg, modelFile, imageFile, scoresFile, output)
		},
	}
	scoreCmd.Flags().StringVar(&imageFile, "image", "", "grayscale image as a npy matrix")
	scoreCmd.Flags().IntVar(&output, "output", 0, "model output to score")
	scoreCmd.Flags().StringVar(&scoresFile, "out", "scores.npy", "npy file for the score map")

	var graphFile, figureType string
	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the output to feature graph of a model",
		RunE: func(*cobra.Command, []string) error {
			return graph(reg, modelFile, graphFile, figureType)
		},
	}
	graphCmd.Flags().StringVar(&graphFile, "out", "model.svg", "rendered graph")
	graphCmd.Flags().StringVar(&figureType, "type", "", "png, svg or jpg; defaults to the extension of --out")

	for _, cmd := range []*cobra.Command{featuresCmd, scoreCmd, graphCmd} {
		cmd.Flags().StringVar(&modelFile, "model", "", "model file; the extension selects the format")
		_ = cmd.MarkFlagRequired("model")
	}
	rootCmd.AddCommand(trainCmd, featuresCmd, scoreCmd, graphCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("lut_boost failed")
	}
}
