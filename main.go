package main

import "github.com/frahmantamala/timecard-management/cmd"

func main() {
	cmd.Execute()
}
