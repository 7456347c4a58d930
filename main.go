package main

import "github.com/googlecloudplatform/blockfs/cmd/blockfsctl"

func main() {
	blockfsctl.Execute()
}
