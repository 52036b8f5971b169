package cli

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/socialgravity/socialgravity/internal/store"
)

var forgetYes bool

var forgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Remove a simulation from local history",
	Long: `Remove a simulation and its cached results from this machine.
The simulation on the backend is not touched.`,
	Args: cobra.ExactArgs(1),
	RunE: runForget,
}

func init() {
	forgetCmd.Flags().BoolVarP(&forgetYes, "yes", "y", false, "skip confirmation")
	rootCmd.AddCommand(forgetCmd)
}

func runForget(cmd *cobra.Command, args []string) error {
	id := args[0]

	if !forgetYes {
		confirm := promptui.Select{
			Label: fmt.Sprintf("Forget simulation %s", id),
			Items: []string{"Yes, forget it", "No"},
		}
		idx, _, err := confirm.Run()
		if err = promptError(err); errors.Is(err, errAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		if idx != 0 {
			return nil
		}
	}

	return withStore(func(s *store.SQLiteStore) error {
		err := s.DeleteSimulation(cmd.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("simulation '%s' not found", id)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Forgot simulation %s\n", id)
		return nil
	})
}
