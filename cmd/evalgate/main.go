package main

import "github.com/evalgate/evalgate/cmd/evalgate/cmd"

func main() {
	cmd.Execute()
}
