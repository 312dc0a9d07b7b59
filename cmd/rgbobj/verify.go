package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"rgbobj/internal/driver"
	"rgbobj/internal/objcache"
)

// uiMode is the resolved --ui flag: render verify progress always, never,
// or only when stdout is a terminal.
type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

func parseUIMode(value string) (uiMode, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "", "auto":
		return uiModeAuto, nil
	case "on":
		return uiModeOn, nil
	case "off":
		return uiModeOff, nil
	default:
		return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
}

func (m uiMode) enabled() bool {
	switch m {
	case uiModeOn:
		return true
	case uiModeOff:
		return false
	default:
		return isTerminal(os.Stdout)
	}
}

var verifyCmd = &cobra.Command{
	Use:   "verify [flags] [file.o...]",
	Short: "Decode object files and check their cross references",
	Long:  "Decode every given object file, validate IDs and patch bytecode, and report a per-file verdict.",
	RunE:  verifyExecution,
}

func init() {
	verifyCmd.Flags().Int("jobs", 0, "parallel workers (0 = number of CPUs)")
	verifyCmd.Flags().String("ui", "auto", "progress display (auto|on|off)")
}

func verifyExecution(cmd *cobra.Command, args []string) error {
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	if err := applyColorMode(cmd); err != nil {
		return err
	}

	uiModeValue, err := parseUIMode(uiValue)
	if err != nil {
		return err
	}

	files := args
	if len(files) == 0 {
		manifest, found, err := loadManifest(".")
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s", noManifestMessage)
		}
		path, err := resolveObjectPath(manifest)
		if err != nil {
			return err
		}
		files = []string{path}
	}

	req := &driver.VerifyRequest{
		Files: files,
		Cache: openCache(cmd),
		Jobs:  jobs,
	}

	var res driver.VerifyResult
	if uiModeValue.enabled() && len(files) > 1 {
		res, err = runVerifyWithUI(cmd.Context(), "rgbobj verify", req)
	} else {
		res, err = driver.Verify(cmd.Context(), req)
	}
	if err != nil {
		return err
	}

	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed, color.Bold).SprintFunc()
	for _, file := range res.Files {
		switch {
		case file.Err != nil:
			fmt.Fprintf(os.Stdout, "%s %s: %v\n", bad("FAIL"), file.Path, file.Err)
		case !file.Summary.Valid:
			fmt.Fprintf(os.Stdout, "%s %s: %s\n", bad("FAIL"), file.Path, file.Summary.Problem)
		default:
			note := ""
			if file.Cached {
				note = " (cached)"
			}
			s := file.Summary
			fmt.Fprintf(os.Stdout, "%s %s: %d sections, %d symbols, %d patches, %d assertions%s\n",
				ok("ok"), file.Path, s.Sections, s.Symbols, s.Patches, s.Assertions, note)
		}
	}

	if !res.Ok() {
		return fmt.Errorf("verification failed")
	}
	return nil
}

// openCache honors the global --no-cache flag; a cache that cannot be opened
// just disables caching instead of failing the run.
func openCache(cmd *cobra.Command) *objcache.Cache {
	noCache, err := cmd.Root().PersistentFlags().GetBool("no-cache")
	if err != nil || noCache {
		return nil
	}
	cache, err := objcache.Open("rgbobj")
	if err != nil {
		return nil
	}
	return cache
}

func applyColorMode(cmd *cobra.Command) error {
	value, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return err
	}
	switch value {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "", "auto":
		// color сам определяет терминал
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", value)
	}
	return nil
}
