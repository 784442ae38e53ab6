/**
 * Copyright (c) 2024 Peking University and Peking University
 * Changsha Institute for Computing and Digital Economy
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package halopipe

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"HaloFrontEnd/internal/snapshot"
	"HaloFrontEnd/internal/util"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	FlagConfigFilePath string
	FlagLogLevel       string
	FlagJson           bool

	FlagFirst        int
	FlagLast         int
	FlagPrefix       string
	FlagKeepExisting bool
	FlagNoLoad       bool

	FlagDest   string
	FlagSubdir string
	FlagDryRun bool

	FlagStage  string
	FlagFollow bool

	config *util.Config

	RootCmd = &cobra.Command{
		Use:     "halopipe",
		Short:   "Prepare and submit HaloMaker and TreeMaker runs on simulation outputs",
		Version: util.Version(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd)
		},
	}

	DiscoverCmd = &cobra.Command{
		Use:   "discover [flags] FOLDER",
		Short: "List the outputs of a simulation and their cosmology",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Discover(cmd.OutOrStdout(), args[0], rangeFromFlags(cmd), !FlagNoLoad)
		},
	}

	HaloCmd = &cobra.Command{
		Use:   "halo",
		Short: "Run the halo finder on simulation outputs",
	}

	HaloPrepareCmd = &cobra.Command{
		Use:   "prepare [flags] FOLDER",
		Short: "Write the HaloMaker input files and job script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return HaloPrepare(cmd.OutOrStdout(), args[0], rangeFromFlags(cmd), FlagPrefix)
		},
	}

	HaloSubmitCmd = &cobra.Command{
		Use:   "submit [flags] FOLDER",
		Short: "Write the HaloMaker run directory and submit its job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return HaloSubmit(cmd.Context(), cmd.OutOrStdout(), args[0], rangeFromFlags(cmd), FlagPrefix, FlagKeepExisting)
		},
	}

	HaloLinkCmd = &cobra.Command{
		Use:   "link [flags] RUNDIR",
		Short: "Link the brick files of a halo run into a per-output tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Link(cmd.OutOrStdout(), args[0], FlagDest, FlagSubdir, FlagDryRun)
		},
	}

	TreeCmd = &cobra.Command{
		Use:   "tree",
		Short: "Build merger trees from the bricks of a halo run",
	}

	TreePrepareCmd = &cobra.Command{
		Use:   "prepare [flags] RUNDIR",
		Short: "Write the TreeMaker input file and job script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return TreePrepare(cmd.OutOrStdout(), args[0], rangeFromFlags(cmd), FlagPrefix)
		},
	}

	TreeSubmitCmd = &cobra.Command{
		Use:   "submit [flags] RUNDIR",
		Short: "Write the TreeMaker run directory and submit its job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return TreeSubmit(cmd.Context(), cmd.OutOrStdout(), args[0], rangeFromFlags(cmd), FlagPrefix, FlagKeepExisting)
		},
	}

	StatusCmd = &cobra.Command{
		Use:   "status [flags] RUNDIR...",
		Short: "Show the state of the jobs of run directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Status(cmd.OutOrStdout(), args, FlagStage)
		},
	}

	LogsCmd = &cobra.Command{
		Use:   "logs [flags] RUNDIR",
		Short: "Print the log of a job, optionally following it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Logs(cmd.Context(), cmd.OutOrStdout(), args[0], FlagStage, FlagFollow)
		},
	}

	InspectCmd = &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show the entries of a HaloMaker parameter file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Inspect(cmd.OutOrStdout(), args[0])
		},
	}

	CheckCmd = &cobra.Command{
		Use:   "check [flags]",
		Short: "Check executables, queue command and disk space",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Check(cmd.OutOrStdout(), FlagPrefix)
		},
	}

	ConfigCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	ConfigShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ShowConfig(cmd.OutOrStdout())
		},
	}
)

func loadConfig(cmd *cobra.Command) error {
	var err error
	config, err = util.ParseConfig(FlagConfigFilePath, cmd.Flags().Changed("config"))
	if err != nil {
		return util.WrapHaloErr(util.ErrorConfig, "failed to load configuration", err)
	}
	if err := util.InitLogger(FlagLogLevel, config.Log); err != nil {
		return util.WrapHaloErr(util.ErrorCmdArg, "invalid log level", err)
	}
	return nil
}

// rangeFromFlags leaves a bound open unless its flag was given.
func rangeFromFlags(cmd *cobra.Command) snapshot.Range {
	var r snapshot.Range
	if cmd.Flags().Changed("first") {
		r.First = snapshot.IntPtr(FlagFirst)
	}
	if cmd.Flags().Changed("last") {
		r.Last = snapshot.IntPtr(FlagLast)
	}
	return r
}

func addRangeFlags(fs *pflag.FlagSet, what string) {
	fs.IntVar(&FlagFirst, "first", 0, "First "+what+" to use, default is the smallest found")
	fs.IntVar(&FlagLast, "last", 0, "Last "+what+" to use, default is the largest found")
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&FlagPrefix, "prefix", "p", ".", "Run directory for input files, job script and results")
}

func ParseCmdArgs() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	RootCmd.SetContext(ctx)

	util.RunEWrapperForLeafCommand(RootCmd)
	util.RunAndHandleExit(RootCmd)
}

func init() {
	RootCmd.SetVersionTemplate(util.VersionTemplate())
	RootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return util.WrapHaloErr(util.ErrorCmdArg, "", err)
	})

	RootCmd.PersistentFlags().StringVarP(&FlagConfigFilePath, "config", "C", util.DefaultConfigPath,
		"Path to configuration file")
	RootCmd.PersistentFlags().StringVar(&FlagLogLevel, "log-level", "",
		"Log level: trace, debug, info, warn or error, default is taken from the configuration")
	RootCmd.PersistentFlags().BoolVar(&FlagJson, "json", false, "Produce JSON output")

	DiscoverCmd.Flags().BoolVar(&FlagNoLoad, "no-load", false, "Do not read the info files of the outputs")
	addRangeFlags(DiscoverCmd.Flags(), "output index")

	for _, cmd := range []*cobra.Command{HaloPrepareCmd, HaloSubmitCmd} {
		addRangeFlags(cmd.Flags(), "output index")
		addRunFlags(cmd.Flags())
	}
	HaloSubmitCmd.Flags().BoolVar(&FlagKeepExisting, "keep-existing", false,
		"Only write the files missing from the run directory before submitting")

	HaloLinkCmd.Flags().StringVarP(&FlagDest, "dest", "d", "", "Folder receiving the output_NNNNN link tree")
	HaloLinkCmd.Flags().StringVar(&FlagSubdir, "subdir", "halos", "Subfolder of each output holding the bricks")
	HaloLinkCmd.Flags().BoolVarP(&FlagDryRun, "dry-run", "n", false, "Show the links without creating them")
	_ = HaloLinkCmd.MarkFlagRequired("dest")

	for _, cmd := range []*cobra.Command{TreePrepareCmd, TreeSubmitCmd} {
		addRangeFlags(cmd.Flags(), "brick step")
		addRunFlags(cmd.Flags())
	}
	TreeSubmitCmd.Flags().BoolVar(&FlagKeepExisting, "keep-existing", false,
		"Only write the files missing from the run directory before submitting")

	StatusCmd.Flags().StringVarP(&FlagStage, "stage", "s", "", "Only show this stage: halo or tree")
	LogsCmd.Flags().StringVarP(&FlagStage, "stage", "s", "halo", "Stage whose log is shown: halo or tree")
	LogsCmd.Flags().BoolVarP(&FlagFollow, "follow", "f", false, "Keep printing the log until the job is done")

	CheckCmd.Flags().StringVarP(&FlagPrefix, "prefix", "p", ".", "Run directory whose free space is checked")

	HaloCmd.AddCommand(HaloPrepareCmd, HaloSubmitCmd, HaloLinkCmd)
	TreeCmd.AddCommand(TreePrepareCmd, TreeSubmitCmd)
	ConfigCmd.AddCommand(ConfigShowCmd)
	RootCmd.AddCommand(DiscoverCmd, HaloCmd, TreeCmd, StatusCmd, LogsCmd, InspectCmd, CheckCmd, ConfigCmd)
}
