package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"screenrec/internal/storage"
)

var (
	recoverChoiceRecover bool
	recoverChoiceDelete  bool
	recoverChoiceIgnore  bool
	recoverOutputDir     string
)

// recoverCmd implements the orphan-recovery protocol (spec §6): enumerate
// *.partial.mp4 in the output directory and apply one non-interactive
// choice per run — Recover (rename to .mp4), Delete (unlink), or Ignore
// (the default: list only). The interactive per-file prompt dialog
// itself is the GUI shell's job and stays out of scope.
var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "List orphaned .partial.mp4 staging files, or recover/delete them",
	RunE: func(cmd *cobra.Command, args []string) error {
		if recoverChoiceRecover && recoverChoiceDelete {
			return fmt.Errorf("recover: --recover and --delete are mutually exclusive")
		}

		mgr := storage.New()
		if recoverOutputDir != "" {
			if err := mgr.SetOutputDirectory(recoverOutputDir); err != nil {
				return fmt.Errorf("recover: %w", err)
			}
		} else {
			mgr.DefaultDirectory()
		}

		orphans, err := mgr.FindOrphans()
		if err != nil {
			return fmt.Errorf("recover: %w", err)
		}
		if len(orphans) == 0 {
			fmt.Println("no orphaned staging files found")
			return nil
		}

		for _, staging := range orphans {
			switch {
			case recoverChoiceDelete:
				if err := os.Remove(staging); err != nil {
					fmt.Printf("delete failed: %s: %v\n", staging, err)
					continue
				}
				fmt.Printf("deleted: %s\n", staging)
			case recoverChoiceRecover:
				final := storage.PartialToFinal(staging)
				if err := os.Rename(staging, final); err != nil {
					fmt.Printf("recover failed: %s: %v\n", staging, err)
					continue
				}
				fmt.Printf("recovered: %s -> %s\n", staging, final)
			default:
				fmt.Printf("orphan (ignored): %s\n", staging)
			}
		}
		return nil
	},
}

func init() {
	recoverCmd.Flags().BoolVar(&recoverChoiceRecover, "recover", false, "rename each orphan to its final .mp4 name")
	recoverCmd.Flags().BoolVar(&recoverChoiceDelete, "delete", false, "delete each orphan")
	recoverCmd.Flags().BoolVar(&recoverChoiceIgnore, "ignore", false, "leave each orphan in place (default behavior; listed for symmetry with the GUI prompt's three choices)")
	recoverCmd.Flags().StringVar(&recoverOutputDir, "output-dir", "", "override the configured output directory")
	rootCmd.AddCommand(recoverCmd)
}
