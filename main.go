package main

import "collabdocs/cmd"

func main() {
	cmd.Execute()
}
