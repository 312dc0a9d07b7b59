package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"rgbobj/internal/fstack"
	"rgbobj/internal/objfile"
	"rgbobj/internal/section"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [flags] [file.o]",
	Short: "Pretty-print an object file's tables",
	Long:  "Decode an object file and print its provenance, symbol, section and assertion tables.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  dumpExecution,
}

func init() {
	dumpCmd.Flags().Bool("data", false, "hex-dump section contents")
	dumpCmd.Flags().Bool("rpn", false, "disassemble patch expressions")
}

func dumpExecution(cmd *cobra.Command, args []string) error {
	if err := applyColorMode(cmd); err != nil {
		return err
	}
	showData, err := cmd.Flags().GetBool("data")
	if err != nil {
		return err
	}
	showRPN, err := cmd.Flags().GetBool("rpn")
	if err != nil {
		return err
	}

	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		manifest, found, err := loadManifest(".")
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s", noManifestMessage)
		}
		path, err = resolveObjectPath(manifest)
		if err != nil {
			return err
		}
		// Манифест может включить подробности по умолчанию
		showData = showData || manifest.Config.Dump.Data
		showRPN = showRPN || manifest.Config.Dump.RPN
	}

	obj, err := objfile.ReadFile(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	warn := color.New(color.FgYellow, color.Bold)
	if err := obj.Validate(); err != nil {
		warn.Fprintf(out, "warning: %v\n", err)
	}

	printDump(out, path, obj, showData, showRPN)
	return nil
}

func printDump(out io.Writer, path string, obj *objfile.Object, showData, showRPN bool) {
	heading := color.New(color.Bold).FprintfFunc()
	dim := color.New(color.Faint).SprintFunc()

	heading(out, "%s: revision %d\n", path, obj.Revision)

	heading(out, "\nfile stack nodes (%d)\n", len(obj.Nodes))
	for id, node := range obj.Nodes {
		parent := "-"
		if node.Parent != 0xFFFFFFFF {
			parent = fmt.Sprintf("#%d", node.Parent)
		}
		switch node.Kind {
		case fstack.NodeRept:
			fmt.Fprintf(out, "  #%d rept %v %s line %d\n", id, node.Iters, dim(parent), node.Line)
		default:
			fmt.Fprintf(out, "  #%d %s %q %s line %d\n", id, node.Kind, node.Name, dim(parent), node.Line)
		}
	}

	heading(out, "\nsymbols (%d)\n", len(obj.Symbols))
	for id, sym := range obj.Symbols {
		switch sym.Type {
		case objfile.SymImport:
			fmt.Fprintf(out, "  #%d %s import\n", id, sym.Name)
		default:
			kind := "local"
			if sym.Type == objfile.SymExport {
				kind = "export"
			}
			where := "-"
			if sym.SectionID != 0xFFFFFFFF {
				where = fmt.Sprintf("section #%d", sym.SectionID)
			}
			fmt.Fprintf(out, "  #%d %s %s value %d %s (node #%d line %d)\n",
				id, sym.Name, kind, sym.Value, where, sym.Src, sym.Line)
		}
	}

	heading(out, "\nsections (%d)\n", len(obj.Sections))
	for id, sect := range obj.Sections {
		fmt.Fprintf(out, "  #%d %q %s%s size %d %s\n",
			id, sect.Name, sect.Kind, modifierSuffix(sect.Modifier), sect.Size, placement(&sect))
		if showData && len(sect.Data) > 0 {
			hexDump(out, sect.Data)
		}
		for i, patch := range sect.Patches {
			fmt.Fprintf(out, "    patch %d: %s at +%d (node #%d line %d)\n",
				i, objfile.PatchType(patch.Type), patch.Offset, patch.Src, patch.Line)
			if showRPN {
				printRPN(out, obj, patch.RPN)
			}
		}
	}

	heading(out, "\nassertions (%d)\n", len(obj.Assertions))
	for i, assert := range obj.Assertions {
		fmt.Fprintf(out, "  %d: %s %q (node #%d line %d)\n",
			i, objfile.AssertKind(assert.Patch.Type), assert.Message, assert.Patch.Src, assert.Patch.Line)
		if showRPN {
			printRPN(out, obj, assert.Patch.RPN)
		}
	}
}

func modifierSuffix(m section.Modifier) string {
	if m == section.ModifierNone {
		return ""
	}
	return " " + m.String()
}

func placement(sect *objfile.SectionRec) string {
	var parts []string
	if sect.Org != 0xFFFFFFFF {
		parts = append(parts, fmt.Sprintf("org $%04X", sect.Org))
	}
	if sect.Bank != 0xFFFFFFFF {
		parts = append(parts, fmt.Sprintf("bank %d", sect.Bank))
	}
	if sect.Align != 0 {
		parts = append(parts, fmt.Sprintf("align %d+%d", sect.Align, sect.AlignOfs))
	}
	if len(parts) == 0 {
		return "floating"
	}
	return strings.Join(parts, " ")
}

func printRPN(out io.Writer, obj *objfile.Object, code []byte) {
	lines, err := obj.DisasmRPN(code)
	if err != nil {
		fmt.Fprintf(out, "      rpn: %v\n", err)
		return
	}
	fmt.Fprintf(out, "      rpn: %s\n", strings.Join(lines, " "))
}

func hexDump(out io.Writer, data []byte) {
	for ofs := 0; ofs < len(data); ofs += 16 {
		end := min(ofs+16, len(data))
		fmt.Fprintf(out, "    %04X: % X\n", ofs, data[ofs:end])
	}
}
