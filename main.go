package main

import "termsync/cmd"

func main() {
	cmd.Execute()
}
