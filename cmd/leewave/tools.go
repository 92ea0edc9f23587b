package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/liqun1981/lee-wave-analysis/internal/gravitywave"
	"github.com/liqun1981/lee-wave-analysis/internal/observation"
	"github.com/liqun1981/lee-wave-analysis/internal/search"
	"github.com/spf13/cobra"
)

var (
	omN, omK, omL, omM, omF float64
)

var omegaCmd = &cobra.Command{
	Use:   "omega",
	Short: "Evaluate the dispersion relation",
	Long: `Print the intrinsic frequency of a wave with the given wavenumbers.
The branch follows from the flags supplied: --l selects the three
dimensional form and --f adds rotation.`,
	Args: cobra.NoArgs,
	RunE: runOmega,
}

var (
	synX, synY, synZ, synPhase float64
	synN, synF, synMaxW        float64
	synSamples                 int
	synDt, synDzdt, synDrift   float64
	synOut, synPol             string
)

var synthCmd = &cobra.Command{
	Use:   "synth",
	Short: "Generate noise-free observations of a known wave",
	Long: `Sample a plane wave along a profiling float track. The output format
follows the file extension: .msgpack.zst writes the binary encoding,
anything else writes CSV. Without --out, CSV goes to stdout.`,
	Args: cobra.NoArgs,
	RunE: runSynth,
}

func init() {
	f := omegaCmd.Flags()
	f.Float64Var(&omN, "n", 0, "buoyancy frequency N (rad/s)")
	f.Float64Var(&omK, "k", 0, "x wavenumber (rad/m)")
	f.Float64Var(&omL, "l", 0, "y wavenumber (rad/m)")
	f.Float64Var(&omM, "m", 0, "vertical wavenumber (rad/m)")
	f.Float64Var(&omF, "f", 0, "Coriolis parameter (rad/s)")
	for _, name := range []string{"n", "k", "m"} {
		omegaCmd.MarkFlagRequired(name)
	}

	f = synthCmd.Flags()
	f.Float64Var(&synX, "x", -10000, "X wavelength (m)")
	f.Float64Var(&synY, "y", -10000, "Y wavelength (m)")
	f.Float64Var(&synZ, "z", -1000, "Z wavelength (m)")
	f.Float64Var(&synPhase, "phase", 0, "phase offset (rad)")
	f.Float64Var(&synN, "n", 1e-3, "buoyancy frequency N (rad/s)")
	f.Float64Var(&synF, "f", gravitywave.Coriolis(-57.5), "Coriolis parameter (rad/s)")
	f.Float64Var(&synMaxW, "max-w", 0.05, "vertical velocity amplitude (m/s)")
	f.IntVar(&synSamples, "samples", 240, "number of samples")
	f.Float64Var(&synDt, "dt", 60, "sampling interval (s)")
	f.Float64Var(&synDzdt, "dzdt", -0.1, "vertical float speed (m/s, negative descending)")
	f.Float64Var(&synDrift, "drift", 0.2, "horizontal drift speed (m/s)")
	f.StringVarP(&synOut, "out", "o", "", "output file")
	f.StringVar(&synPol, "polarization", "non_rotating", "u, v polarization: non_rotating or rotating")
}

type omegaOutput struct {
	Branch string  `json:"branch"`
	Omega  float64 `json:"omega"`
	Period float64 `json:"period_s"`
}

func runOmega(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	branch := gravitywave.BranchFor(flags.Changed("l"), flags.Changed("f"))
	om := branch.Omega(omN, omK, omL, omM, omF)
	if math.IsNaN(om) {
		return fmt.Errorf("no propagating wave for %s with n=%g k=%g l=%g m=%g f=%g", branch, omN, omK, omL, omM, omF)
	}
	return writeOmega(cmd.OutOrStdout(), omegaOutput{
		Branch: branch.String(),
		Omega:  om,
		Period: 2 * math.Pi / om,
	})
}

func writeOmega(w io.Writer, out omegaOutput) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runSynth(cmd *cobra.Command, args []string) error {
	if synSamples < 1 {
		return errors.New("--samples must be positive")
	}
	pol, err := search.ParsePolarization(synPol)
	if err != nil {
		return err
	}
	p := search.Params{X: synX, Y: synY, Z: synZ, Phase: synPhase}
	bg := gravitywave.Background{N: synN, F: synF}
	w, err := search.WaveFor(p, bg, synMaxW, pol)
	if err != nil {
		return err
	}
	set := observation.Synthesize(w, bg, observation.ProfileTrack(synSamples, synDt, synDzdt, synDrift))

	if synOut == "" {
		return observation.WriteCSV(cmd.OutOrStdout(), set)
	}

	out, err := os.Create(synOut)
	if err != nil {
		return err
	}
	if strings.HasSuffix(synOut, ".msgpack.zst") {
		err = observation.Encode(out, set)
	} else {
		err = observation.WriteCSV(out, set)
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d samples to %s (omega %.4g rad/s)\n", set.Len(), synOut, w.Omega)
	return nil
}
