package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fulldump/goconfig"
	"github.com/joho/godotenv"

	"github.com/fulldump/itempicker/bootstrap"
	"github.com/fulldump/itempicker/configuration"
)

var banner = `
 ___ _                 ____  _      _
|_ _| |_ ___ _ __ ___ |  _ \(_) ___| | _____ _ __
 | || __/ _ \ '_ ' _ \| |_) | |/ __| |/ / _ \ '__|
 | || ||  __/ | | | | |  __/| | (__|   <  __/ |
|___|\__\___|_| |_| |_|_|   |_|\___|_|\_\___|_|
                                 version ` + bootstrap.VERSION + `
`

func main() {

	// Environment from .env is optional, real variables win
	_ = godotenv.Load()

	c := configuration.Default()
	goconfig.Read(&c)

	if c.Version {
		fmt.Println("Version:", bootstrap.VERSION)
		return
	}

	if c.ShowBanner {
		fmt.Println(banner)
	}

	if c.ShowConfig {
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "    ")
		e.Encode(c)
	}

	start, _ := bootstrap.Bootstrap(&c)
	start()
}
