package main

import "github.com/snipvault/snipvault/cmd/snipvault/cmd"

func main() {
	cmd.Execute()
}
