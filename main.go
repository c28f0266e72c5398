package main

import "github.com/robalobadob/tonewheel/cmd"

func main() {
	cmd.Execute()
}
