package main

import "github.com/coinpulse/coinpulse/cmd/coinpulse/cmd"

func main() {
	cmd.Execute()
}
