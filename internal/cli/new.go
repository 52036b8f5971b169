package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/socialgravity/socialgravity/internal/lifecycle"
)

var errAborted = errors.New("aborted")

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a simulation interactively",
	Long: `Ask for the audience, the video and its length, then run the
simulation the same way 'sg simulate' does.`,
	RunE: runNew,
}

func init() {
	rootCmd.AddCommand(newCmd)
}

func runNew(cmd *cobra.Command, args []string) error {
	in, err := promptInput()
	if errors.Is(err, errAborted) {
		return nil
	}
	if err != nil {
		return err
	}
	return simulateWithConfig(cmd, in)
}

func promptInput() (lifecycle.Input, error) {
	audience := promptui.Prompt{
		Label:    "Who is this video for",
		Validate: validateAudience,
	}
	prompt, err := audience.Run()
	if err != nil {
		return lifecycle.Input{}, promptError(err)
	}

	video := promptui.Prompt{
		Label:    "Video file",
		Validate: validateVideoPath,
	}
	path, err := video.Run()
	if err != nil {
		return lifecycle.Input{}, promptError(err)
	}

	length := promptui.Prompt{
		Label:    "Length in seconds (blank if unknown)",
		Validate: validateDuration,
	}
	raw, err := length.Run()
	if err != nil {
		return lifecycle.Input{}, promptError(err)
	}
	duration, _ := parseDuration(raw)

	in := lifecycle.Input{
		AudiencePrompt:  strings.TrimSpace(prompt),
		VideoPath:       strings.TrimSpace(path),
		DurationSeconds: duration,
	}

	confirm := promptui.Select{
		Label: fmt.Sprintf("Simulate %q for %q", in.VideoPath, in.AudiencePrompt),
		Items: []string{"Run simulation", "Cancel"},
	}
	idx, _, err := confirm.Run()
	if err != nil {
		return lifecycle.Input{}, promptError(err)
	}
	if idx != 0 {
		return lifecycle.Input{}, errAborted
	}
	return in, nil
}

// promptError maps Ctrl+C and Ctrl+D to a quiet abort.
func promptError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return errAborted
	}
	return err
}

func validateAudience(input string) error {
	if strings.TrimSpace(input) == "" {
		return errors.New("describe the audience")
	}
	return nil
}

func validateVideoPath(input string) error {
	path := strings.TrimSpace(input)
	if path == "" {
		return errors.New("enter a file path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return errors.New("file not found")
	}
	if info.IsDir() {
		return errors.New("path is a directory")
	}
	return nil
}

func validateDuration(input string) error {
	_, err := parseDuration(input)
	return err
}

func parseDuration(input string) (float64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(input, 64)
	if err != nil || v < 0 {
		return 0, errors.New("enter a positive number of seconds")
	}
	return v, nil
}
