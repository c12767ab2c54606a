package main

import "github.com/markb/plexgate/cmd"

func main() {
	cmd.Execute()
}
