package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/socialgravity/socialgravity/internal/backend"
	"github.com/socialgravity/socialgravity/internal/lifecycle"
	"github.com/socialgravity/socialgravity/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Read a simulation's current backend status",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusReader is the one backend call status needs.
type statusReader interface {
	SimulationStatus(ctx context.Context, simulationID string) (*backend.SimulationState, error)
}

func runStatus(cmd *cobra.Command, args []string) error {
	b, err := newBackend()
	if err != nil {
		return err
	}
	return withStore(func(s *store.SQLiteStore) error {
		return checkStatus(cmd.Context(), cmd.OutOrStdout(), s, b, args[0])
	})
}

func checkStatus(ctx context.Context, out io.Writer, s store.Store, r statusReader, id string) error {
	st, err := r.SimulationStatus(ctx, id)
	if err != nil {
		return errors.New(lifecycle.Describe(err))
	}
	if st == nil {
		return fmt.Errorf("simulation %s not found", id)
	}

	tr := store.Transition{BackendStatus: st.Status}
	switch {
	case lifecycle.IsCompleteStatus(st.Status):
		tr.State = string(lifecycle.StateComplete)
	case lifecycle.IsErrorStatus(st.Status):
		tr.State = string(lifecycle.StateError)
		tr.ErrorMessage = firstNonEmpty(st.ErrorMessage, "analysis failed")
	}
	recordTransition(ctx, s, id, tr)

	fmt.Fprintf(out, "SIMULATION: %s\n", id)
	fmt.Fprintf(out, "STATUS: %s\n", firstNonEmpty(st.Status, "unknown"))
	if st.ErrorMessage != "" {
		fmt.Fprintf(out, "ERROR: %s\n", st.ErrorMessage)
	}
	if lifecycle.IsCompleteStatus(st.Status) {
		fmt.Fprintf(out, "\nResults are ready: sg results %s\n", id)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
