package main

import "github.com/filmesbr/torrent-movies-etl/cmd"

func main() {
	cmd.Execute()
}
