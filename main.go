package main

import "github.com/ezlinkai/fal-studio/cmd"

func main() {
	cmd.Execute()
}
