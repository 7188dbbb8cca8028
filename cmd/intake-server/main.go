package main

import "github.com/Azure/btumor-intake/cmd"

func main() {
	cmd.Execute()
}
