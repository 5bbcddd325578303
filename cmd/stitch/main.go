// Command stitch joins two overlapping images into a single composite.
package main

import (
	"context"
	"os"

	"image-stitcher/internal/cli"
)

func main() {
	if err := cli.NewRootCmd(cli.DefaultRegistry).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
