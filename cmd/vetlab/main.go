// Command vetlab is the command-line front end of the vetlab record store.
package main

import "github.com/mesh-intelligence/vetlab/internal/cli"

func main() {
	cli.Execute()
}
