// Package main implements the rgbobj CLI, an inspection toolkit for
// assembler object files.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"rgbobj/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "rgbobj",
	Short: "Object-file inspection toolkit",
	Long:  `rgbobj decodes, validates and pretty-prints assembler object files`,
}

func main() {
	// Версия для автоматического флага --version
	rootCmd.Version = version.Version

	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(versionCmd)

	// Глобальные флаги
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("no-cache", false, "skip the on-disk summary cache")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
