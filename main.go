package main

import "plexscan-go/cmd"

func main() {
	cmd.Execute()
}
