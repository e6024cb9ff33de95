// Command stratosd drives one STRATOS simulation run: it builds the
// configured node population, lets it run to completion on an accelerated
// clock, and prints the Results collector's metrics as Prometheus text
// exposition. Replaces the teacher's broken cmd/cmd.go and cmd/main.go
// (which referenced a speaker package that was never wired up) with a
// cobra-based entry point, following the ecosystem's conventional
// root-command-with-flags shape rather than any one example's CLI (none of
// the retrieved repos carry a complete cobra command tree for this kind of
// batch/simulation tool).
package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blunan/Stratos/internal/config"
	"github.com/blunan/Stratos/internal/sim"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()
	var (
		simSeconds int
		seed       int64
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "stratosd",
		Short: "Run a STRATOS service-discovery/consumption simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.New()
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}

			s := sim.New(cfg, logrus.NewEntry(log), seed)
			s.Run(time.Duration(simSeconds) * time.Second)

			out, err := renderMetrics(s.Registry())
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.NMobile, "nMobile", cfg.NMobile, "number of mobile nodes")
	flags.IntVar(&cfg.NRequesters, "nRequesters", cfg.NRequesters, "number of nodes that initiate requests")
	flags.IntVar(&cfg.NPackets, "nPackets", cfg.NPackets, "overrides NUMBER_OF_PACKETS_TO_SEND")
	flags.IntVar(&cfg.NServices, "nServices", cfg.NServices, "services offered per node")
	flags.IntVar(&cfg.NSchedule, "nSchedule", cfg.NSchedule, "overrides MAX_SCHEDULE_SIZE")
	flags.IntVar(&simSeconds, "simSeconds", 120, "simulated duration of the run, in seconds")
	flags.Int64Var(&seed, "seed", 1, "random seed for node placement, mobility and service catalogs")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

// renderMetrics gathers reg's metric families and encodes them as
// Prometheus text exposition, the same format a live deployment's /metrics
// endpoint would serve.
func renderMetrics(reg *prometheus.Registry) (string, error) {
	families, err := reg.Gather()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
