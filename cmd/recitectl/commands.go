package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maauso/recitation-api/internal/assembler"
	"github.com/maauso/recitation-api/internal/progress"
)

func newChaptersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "chapters",
		Short: "List chapters and their verse counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			chapters, err := svc.Catalog.ListChapters(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(chapters))
			for _, ch := range chapters {
				rows = append(rows, []string{strconv.Itoa(ch.ID), ch.Name, strconv.Itoa(ch.UnitCount)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Verses"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newVersesCommand(ctx *commandContext) *cobra.Command {
	var from int
	cmd := &cobra.Command{
		Use:   "verses <group>",
		Short: "Print a chapter's verse text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := parsePositive("group", args[0])
			if err != nil {
				return err
			}
			svc, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			verses, err := svc.Catalog.ListVerses(cmd.Context(), groupID, from)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, v := range verses {
				fmt.Fprintf(out, "%d. %s\n", v.Index, v.Text)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&from, "from", 1, "First verse to print")
	return cmd
}

func newAssembleCommand(ctx *commandContext) *cobra.Command {
	var output string
	var noCache bool
	cmd := &cobra.Command{
		Use:   "assemble <group> <start> <end>",
		Short: "Assemble a verse range into one WAV file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseSegment(args)
			if err != nil {
				return err
			}
			req.WriteThrough = !noCache
			svc, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}

			errOut := cmd.ErrOrStderr()
			req.Progress = progress.Func(func(u progress.Update) {
				fmt.Fprintf(errOut, "\r[%3d%%] verse %d/%d", u.Percent, u.Completed, u.Total)
				if u.Completed == u.Total {
					fmt.Fprintln(errOut)
				}
			})
			wav, err := svc.Assembler.Assemble(cmd.Context(), req)
			if err != nil {
				return err
			}

			if output == "" {
				output = req.FileName()
			}
			if output == "-" {
				_, err = cmd.OutOrStdout().Write(wav)
				return err
			}
			if err := os.WriteFile(output, wav, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", output, len(wav))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, or - for stdout (default quran_GGG_SSS-EEE.wav)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Do not keep fetched verses in the cache")
	return cmd
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "download <group>...",
		Short: "Fetch every verse of the given chapters into the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupIDs := make([]int, 0, len(args))
			for _, a := range args {
				g, err := parsePositive("group", a)
				if err != nil {
					return err
				}
				groupIDs = append(groupIDs, g)
			}
			svc, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}

			errOut := cmd.ErrOrStderr()
			res, err := svc.Downloader.Download(cmd.Context(), groupIDs, progressPrinter(errOut))
			if err != nil {
				if res.Cancelled {
					fmt.Fprintf(cmd.OutOrStdout(), "Cancelled after %d of %d verses (%d stored)\n", res.Attempted, res.Total, res.Stored)
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Stored %d of %d verses\n", res.Stored, res.Total)
			if len(res.Failed) > 0 {
				rows := make([][]string, 0, len(res.Failed))
				for _, f := range res.Failed {
					rows = append(rows, []string{strconv.Itoa(f.GroupID), strconv.Itoa(f.UnitIndex), f.Error})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Chapter", "Verse", "Error"}, rows,
					[]columnAlignment{alignRight, alignRight, alignLeft},
				))
			}
			return res.Err()
		},
	}
}

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the verse cache",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached chapters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			groups, err := svc.Cache.ListGroups(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(groups) == 0 {
				fmt.Fprintln(out, "Cache is empty")
				return nil
			}
			rows := make([][]string, 0, len(groups))
			total := 0
			for _, g := range groups {
				indices, err := svc.Cache.ListUnitIndices(cmd.Context(), g)
				if err != nil {
					return err
				}
				total += len(indices)
				rows = append(rows, []string{strconv.Itoa(g), strconv.Itoa(len(indices))})
			}
			rows = append(rows, []string{"Total", strconv.Itoa(total)})
			fmt.Fprintln(out, renderTable([]string{"Chapter", "Verses"}, rows, []columnAlignment{alignRight, alignRight}))
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <group>",
		Short: "Show the cached verse numbers of a chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := parsePositive("group", args[0])
			if err != nil {
				return err
			}
			svc, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			indices, err := svc.Cache.ListUnitIndices(cmd.Context(), groupID)
			if err != nil {
				return err
			}
			parts := make([]string, 0, len(indices))
			for _, i := range indices {
				parts = append(parts, strconv.Itoa(i))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Chapter %d: %d cached [%s]\n", groupID, len(indices), strings.Join(parts, " "))
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <group>",
		Short: "Remove a chapter from the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := parsePositive("group", args[0])
			if err != nil {
				return err
			}
			svc, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.Cache.DeleteGroup(cmd.Context(), groupID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted chapter %d\n", groupID)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached verse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.services(cmd.Context())
			if err != nil {
				return err
			}
			n, err := svc.Cache.Count(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.Cache.ClearAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d verses\n", n)
			return nil
		},
	}

	cacheCmd.AddCommand(listCmd, showCmd, deleteCmd, clearCmd)
	return cacheCmd
}

// progressPrinter writes one line per attempted verse.
func progressPrinter(w io.Writer) progress.Reporter {
	return progress.Func(func(u progress.Update) {
		if u.Err != nil {
			fmt.Fprintf(w, "[%3d%%] %s: %v\n", u.Percent, u.Label, u.Err)
			return
		}
		fmt.Fprintf(w, "[%3d%%] %s\n", u.Percent, u.Label)
	})
}

func parseSegment(args []string) (assembler.Request, error) {
	var vals [3]int
	names := [3]string{"group", "start", "end"}
	for i := range vals {
		v, err := parsePositive(names[i], args[i])
		if err != nil {
			return assembler.Request{}, err
		}
		vals[i] = v
	}
	if vals[2] < vals[1] {
		return assembler.Request{}, errors.New("end must not be before start")
	}
	return assembler.Request{GroupID: vals[0], StartUnit: vals[1], EndUnit: vals[2]}, nil
}

func parsePositive(name, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return n, nil
}
