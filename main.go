package main

import "github.com/encodeous/rpld/cmd"

func main() {
	cmd.Execute()
}
