// The main package for the release-crawler executable.
package main

import (
	"github.com/booktrail/release-crawler/cmd"
)

func main() {
	cmd.Execute()
}
