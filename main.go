// The main package for the crawler executable.
package main

import (
	"github.com/jobwatch/crawler/cmd"
)

func main() {
	cmd.Execute()
}
