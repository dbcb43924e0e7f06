package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mastercactapus/echem/datastore"
	"github.com/mastercactapus/echem/runner"
	"github.com/spf13/cobra"
)

var runFlags struct {
	params     []string
	user       string
	project    string
	experiment string
}

var runCmd = &cobra.Command{
	Use:   "run <method>",
	Short: "Run a single method and record it; Ctrl-C cancels",
	Args:  cobra.ExactArgs(1),
	RunE:  doRun,
}

func init() {
	f := runCmd.Flags()
	f.StringArrayVarP(&runFlags.params, "param", "p", nil, "Method parameter as name=value; repeatable.")
	f.StringVar(&runFlags.user, "user", "default", "User folder to record into.")
	f.StringVar(&runFlags.project, "project", "default", "Project folder to record into.")
	f.StringVar(&runFlags.experiment, "experiment", datastore.DefaultExperiment, "Experiment name used in the file name.")
}

func parseParams(args []string) (map[string]any, error) {
	values := make(map[string]any, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected name=value", arg)
		}
		values[name] = value
	}
	return values, nil
}

// progressLogger logs progress every 10 percent.
func progressLogger(methodID string) func(float64) {
	last := -1
	return func(f float64) {
		step := int(math.Floor(f * 10))
		if step == last {
			return
		}
		last = step
		log.WithField("method", methodID).Infof("progress %3.0f%%", f*100)
	}
}

func printSamples(w io.Writer) func(x, y float64) {
	return func(x, y float64) {
		fmt.Fprintf(w, "%g\t%g\n", x, y)
	}
}

// startRun writes the axis header to out and starts the run, printing its
// samples below the header. The returned channel receives the recording path
// once the run is done.
func startRun(ctx context.Context, lb *lab, out io.Writer, req runRequest) (*runner.Session, <-chan string, error) {
	m, err := lb.registry.Build(req.Method, req.Params)
	if err != nil {
		return nil, nil, err
	}
	fmt.Fprintf(out, "# %s\t%s\n", m.XLabel(), m.YLabel())

	recorded := make(chan string, 1)
	s, rec, err := lb.start(ctx, req, runHooks{
		emit:     printSamples(out),
		progress: progressLogger(req.Method),
		done: func(_ *runner.Session, rec *datastore.Recording) {
			recorded <- rec.Path
		},
	})
	if err != nil {
		return nil, nil, err
	}
	log.WithField("path", rec.Path).Debug("recording")
	return s, recorded, nil
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	values, err := parseParams(runFlags.params)
	if err != nil {
		return err
	}

	lb, err := newLab(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := lb.Close(); err != nil {
			log.WithError(err).Error("close instrument")
		}
	}()

	s, recorded, err := startRun(ctx, lb, cmd.OutOrStdout(), runRequest{
		Method:     args[0],
		Params:     values,
		User:       runFlags.user,
		Project:    runFlags.project,
		Experiment: runFlags.experiment,
	})
	if err != nil {
		return err
	}

	outcome, runErr := s.Wait()
	path := <-recorded
	l := log.WithField("outcome", outcome.String()).WithField("points", s.Points()).WithField("path", path)
	switch outcome {
	case runner.Failed:
		l.Error("run failed")
		return runErr
	case runner.Cancelled:
		l.Warn("run cancelled")
	default:
		l.Info("data saved")
	}
	return nil
}
