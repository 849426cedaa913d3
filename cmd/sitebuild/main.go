// Sitebuild is an incremental static asset build pipeline.
package main

import "github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/cli"

func main() {
	cli.Execute()
}
