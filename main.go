package main

import "github.com/ValentinKolb/qtable/cmd"

func main() {
	cmd.Execute()
}
