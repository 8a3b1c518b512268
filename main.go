package main

import "noddymix/cmd"

func main() {
	cmd.Execute()
}
