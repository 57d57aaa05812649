package main

import (
	"io"

	"github.com/urfave/cli/v2"

	"go.viam.com/queryvis/config"
)

const (
	flagDebug     = "debug"
	flagImage     = "image"
	flagMask      = "mask"
	flagCloud     = "cloud"
	flagRotation  = "rotation"
	flagViewpoint = "viewpoint"
	flagOut       = "out"
	flagNATS      = "nats"
	flagService   = "service"
	flagRequest   = "request"
	flagTimeout   = "timeout"
	flagBag       = "bag"
	flagTopic     = "topic"
	flagOutDir    = "out-dir"
)

// NewApp returns the queryvis command with Writer set to out and ErrWriter set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "queryvis",
		Usage:           "render and request retrieval query visualizations",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "render",
				Usage:     "compose a visualization from local files",
				UsageText: "queryvis render --image <file> [--mask <file>] [--cloud <file>]... --out <file.png>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagImage,
						Required: true,
						Usage:    "query color image (png, jpeg, bmp, tiff, webp, ppm or qoi)",
					},
					&cli.StringFlag{
						Name:  flagMask,
						Usage: "query mask image, nonzero pixels are foreground. Defaults to all foreground",
					},
					&cli.StringSliceFlag{
						Name:  flagCloud,
						Usage: "retrieved cloud in rank order (.pcd or .las), may be repeated",
					},
					&cli.Float64SliceFlag{
						Name:  flagRotation,
						Usage: "room rotation quaternion as x,y,z,w",
					},
					&cli.BoolFlag{
						Name:  flagViewpoint,
						Usage: "move the points of each .pcd cloud by the pose on its VIEWPOINT line",
					},
					&cli.StringFlag{
						Name:     flagOut,
						Required: true,
						Usage:    "output image (png or jpeg)",
					},
				},
				Action: RenderAction,
			},
			{
				Name:      "call",
				Usage:     "issue a visualize_query call over NATS",
				UsageText: "queryvis call --request <request.json> --out <file.png>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagNATS,
						Value: config.DefaultNATSURL,
						Usage: "NATS server url",
					},
					&cli.StringFlag{
						Name:  flagService,
						Value: config.DefaultServiceName,
						Usage: "service name",
					},
					&cli.StringFlag{
						Name:     flagRequest,
						Required: true,
						Usage:    "JSON encoded visualize_query request",
					},
					&cli.DurationFlag{
						Name:  flagTimeout,
						Usage: "call timeout, 0 uses the default",
					},
					&cli.StringFlag{
						Name:     flagOut,
						Required: true,
						Usage:    "output image (png or jpeg)",
					},
				},
				Action: CallAction,
			},
			{
				Name:      "replay",
				Usage:     "run every retrieval result recorded in a rosbag through the pipeline",
				UsageText: "queryvis replay --bag <file.bag> --out-dir <dir>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagBag,
						Required: true,
						Usage:    "rosbag to read",
					},
					&cli.StringFlag{
						Name:  flagTopic,
						Value: config.DefaultTopicInput,
						Usage: "topic carrying retrieval results",
					},
					&cli.StringFlag{
						Name:  flagOutDir,
						Value: ".",
						Usage: "directory to write composites to",
					},
				},
				Action: ReplayAction,
			},
			{
				Name:   "schema",
				Usage:  "print the JSON schema of the service config file",
				Action: SchemaAction,
			},
		},
	}
}
