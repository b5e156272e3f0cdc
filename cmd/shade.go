package cmd

import (
	"context"
	"io"

	"github.com/jaffee/commandeer"
	"github.com/pilosa/canopy/usecase/shade"
	"github.com/spf13/cobra"
)

// ShadeMain is wrapped by NewShadeCommand and only exported for testing
// purposes.
var ShadeMain *shade.Main

// NewShadeCommand returns a new cobra command wrapping ShadeMain.
func NewShadeCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	ShadeMain = shade.NewMain()
	ShadeMain.Stderr = stderr
	shadeCommand := &cobra.Command{
		Use:   "shade " + shade.Usage,
		Short: "find the trees shading each road segment and recommend shaded segments along GPS tracks",
		Long: `Parses a municipal GIS dump into trees, roads, and parks, joins
trees to nearby road segments, and joins the shaded segments to a GPS log.

Inputs may be local files or directories, s3://bucket/prefix, or (for the
GPS log) kafka://host1,host2/topic. Outputs are tab delimited local files.
Intermediate results are checkpointed; a rerun resumes from the latest
complete checkpoints unless --fresh is given.`,
		Args: cobra.ExactArgs(11),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ShadeMain.SetPaths(args); err != nil {
				return err
			}
			return ShadeMain.Run(context.Background())
		},
	}
	flags := shadeCommand.Flags()
	err := commandeer.Flags(flags, ShadeMain)
	if err != nil {
		panic(err)
	}
	return shadeCommand
}

func init() {
	subcommandFns["shade"] = NewShadeCommand
}
